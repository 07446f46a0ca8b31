package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/config"
	"coinfolio-engine/pkg/models"
)

var RedisClient *redis.Client

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Initialize Redis connection
func Initialize(cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisURL(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := RedisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.Info("Redis connected successfully")
	return nil
}

// Cache keys constants
const (
	KeyCoinSnapshot  = "coin:snapshot:%s" // coin:snapshot:<coinId>
	KeyRecentTrades  = "trades:recent:%s" // trades:recent:<coinId>
	KeyTickerChannel = "ticker:%s"        // ticker:<coinId>
	KeyTradesChannel = "trades:%s"        // trades:<coinId>
	KeyRateLimit     = "ratelimit:%s"     // ratelimit:<client>
)

// Cache expiration times
const (
	ExpireCoinSnapshot = 30 * time.Second
	ExpireRecentTrades = 10 * time.Minute
)

// RecentTradesLimit caps the per-coin recent trades list.
const RecentTradesLimit = 100

// cacheCoinAttempts bounds the optimistic retries of CacheCoin.
const cacheCoinAttempts = 3

// Set stores a value in Redis with expiration
func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := RedisClient.Set(ctx, key, jsonValue, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Get retrieves a value from Redis
func Get(ctx context.Context, key string, dest interface{}) error {
	val, err := RedisClient.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key from Redis
func Delete(ctx context.Context, key string) error {
	if err := RedisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Publish publishes a message to a channel
func Publish(ctx context.Context, channel string, message interface{}) error {
	jsonMessage, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := RedisClient.Publish(ctx, channel, jsonMessage).Err(); err != nil {
		return fmt.Errorf("failed to publish message to channel %s: %w", channel, err)
	}
	return nil
}

// Close closes the Redis connection
func Close() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// HealthCheck checks if Redis is healthy
func HealthCheck(ctx context.Context) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if err := RedisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}
	return nil
}

// Enabled reports whether Initialize has run.
func Enabled() bool {
	return RedisClient != nil
}

// CacheCoin stores a coin snapshot unless the cache already holds the same
// or a newer version of the coin. The read and the write run in a WATCH
// transaction, so concurrent writers cannot replace a newer snapshot.
func CacheCoin(ctx context.Context, coin models.Coin) error {
	payload, err := json.Marshal(coin)
	if err != nil {
		return fmt.Errorf("failed to marshal coin: %w", err)
	}
	key := fmt.Sprintf(KeyCoinSnapshot, coin.CoinID)

	for attempt := 0; attempt < cacheCoinAttempts; attempt++ {
		err = RedisClient.Watch(ctx, func(tx *redis.Tx) error {
			cached, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if !supersedes(coin, cached) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, ExpireCoinSnapshot)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to cache coin %s: %w", coin.CoinID, err)
	}
	return nil
}

// supersedes reports whether coin is newer than the cached snapshot. An
// empty or unreadable snapshot is always replaced.
func supersedes(coin models.Coin, cached []byte) bool {
	if len(cached) == 0 {
		return true
	}
	var snapshot struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(cached, &snapshot); err != nil {
		return true
	}
	return coin.Version > snapshot.Version
}

// GetCoin returns a cached coin snapshot or ErrMiss.
func GetCoin(ctx context.Context, coinID string) (models.Coin, error) {
	var coin models.Coin
	if err := Get(ctx, fmt.Sprintf(KeyCoinSnapshot, coinID), &coin); err != nil {
		return models.Coin{}, err
	}
	return coin, nil
}

// InvalidateCoin drops a cached coin snapshot.
func InvalidateCoin(ctx context.Context, coinID string) error {
	return Delete(ctx, fmt.Sprintf(KeyCoinSnapshot, coinID))
}

// PushRecentTrade prepends a trade to the coin's capped recent trades list.
func PushRecentTrade(ctx context.Context, trade models.TradeHistory) error {
	payload, err := json.Marshal(trade.Info())
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}
	key := fmt.Sprintf(KeyRecentTrades, trade.CoinID)

	pipe := RedisClient.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, RecentTradesLimit-1)
	pipe.Expire(ctx, key, ExpireRecentTrades)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push recent trade for %s: %w", trade.CoinID, err)
	}
	return nil
}

// RecentTrades returns up to limit cached trades for a coin, newest first.
func RecentTrades(ctx context.Context, coinID string, limit int) ([]models.TradeInfo, error) {
	if limit <= 0 || limit > RecentTradesLimit {
		limit = RecentTradesLimit
	}
	raw, err := RedisClient.LRange(ctx, fmt.Sprintf(KeyRecentTrades, coinID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent trades for %s: %w", coinID, err)
	}
	trades := make([]models.TradeInfo, 0, len(raw))
	for _, item := range raw {
		var t models.TradeInfo
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recent trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}
