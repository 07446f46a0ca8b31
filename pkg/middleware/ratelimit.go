package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/cache"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests   int                         // Number of requests
	Window     time.Duration               // Time window
	KeyFunc    func(c *gin.Context) string // Function to generate rate limit key
	Message    string                      // Error message to return
	StatusCode int                         // HTTP status code to return
}

// Default rate limiting configurations
var (
	PublicRateLimit = RateLimitConfig{
		Requests:   1000,
		Window:     time.Minute,
		KeyFunc:    func(c *gin.Context) string { return "ip:" + c.ClientIP() },
		Message:    "Too many requests, please try again later",
		StatusCode: http.StatusTooManyRequests,
	}

	TradingRateLimit = RateLimitConfig{
		Requests:   60,
		Window:     time.Minute,
		KeyFunc:    userOrIP,
		Message:    "Trading rate limit exceeded",
		StatusCode: http.StatusTooManyRequests,
	}
)

func userOrIP(c *gin.Context) string {
	if userID, ok := GetUserIDFromContext(c); ok {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// RateLimitMiddleware counts requests in Redis when a client is configured
// and in process memory otherwise.
type RateLimitMiddleware struct {
	client *redis.Client
	local  *windowCounter
}

// NewRateLimitMiddleware creates a new rate limiting middleware. client may be nil.
func NewRateLimitMiddleware(client *redis.Client) *RateLimitMiddleware {
	return &RateLimitMiddleware{client: client, local: newWindowCounter(time.Now)}
}

// PublicRateLimit creates a rate limiting middleware for public endpoints
func (rl *RateLimitMiddleware) PublicRateLimit() gin.HandlerFunc {
	return rl.RateLimit(PublicRateLimit)
}

// TradingRateLimit limits trade requests per user to perMinute.
func (rl *RateLimitMiddleware) TradingRateLimit(perMinute int) gin.HandlerFunc {
	config := TradingRateLimit
	if perMinute > 0 {
		config.Requests = perMinute
	}
	return rl.RateLimit(config)
}

// RateLimit creates a rate limiting middleware with the given configuration
func (rl *RateLimitMiddleware) RateLimit(config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf(cache.KeyRateLimit, config.KeyFunc(c))

		if !rl.allow(c.Request.Context(), key, config) {
			c.AbortWithStatusJSON(config.StatusCode, gin.H{"error": config.Message})
			return
		}
		c.Next()
	}
}

// allow falls back to the local counter when Redis is unavailable.
func (rl *RateLimitMiddleware) allow(ctx context.Context, key string, config RateLimitConfig) bool {
	if rl.client != nil {
		allowed, err := rl.checkRateLimitRedis(ctx, key, config)
		if err == nil {
			return allowed
		}
		logrus.WithError(err).WithField("key", key).Warn("Redis rate limit unavailable, counting locally")
	}
	return rl.local.allow(key, config.Requests, config.Window)
}

// checkRateLimitRedis checks rate limiting using a Redis sliding window
func (rl *RateLimitMiddleware) checkRateLimitRedis(ctx context.Context, key string, config RateLimitConfig) (bool, error) {
	now := time.Now()
	expired := now.Add(-config.Window).UnixNano()

	if err := rl.client.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(expired, 10)).Err(); err != nil {
		return false, err
	}
	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count >= int64(config.Requests) {
		return false, nil
	}

	pipe := rl.client.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: strconv.FormatInt(now.UnixNano(), 10)})
	pipe.Expire(ctx, key, config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// windowCounter is a fixed-window counter keyed by client.
type windowCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

func newWindowCounter(now func() time.Time) *windowCounter {
	return &windowCounter{now: now, windows: make(map[string]*window)}
}

func (w *windowCounter) allow(key string, limit int, size time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	win, ok := w.windows[key]
	if !ok || now.Sub(win.start) >= size {
		w.sweep(now, size)
		win = &window{start: now}
		w.windows[key] = win
	}
	if win.count >= limit {
		return false
	}
	win.count++
	return true
}

func (w *windowCounter) sweep(now time.Time, size time.Duration) {
	for key, win := range w.windows {
		if now.Sub(win.start) >= size {
			delete(w.windows, key)
		}
	}
}
