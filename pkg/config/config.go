package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Trading  TradingConfig
	Rollup   RollupConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Environment  string
	CORSOrigins  []string
}

type DatabaseConfig struct {
	Driver   string // postgres or memory
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxOpen  int
	MaxIdle  int
	MaxLife  time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	Database int
	PoolSize int
}

type JWTConfig struct {
	SecretKey string
	ExpiresIn time.Duration
}

// TradingConfig holds the impact-model constants and coordinator limits.
// Decimal values are kept as strings until Load validates them.
type TradingConfig struct {
	MinVolatility      string
	MaxVolatility      string
	ScarcityWeight     string
	OversupplyWeight   string
	RandomFactorMin    string
	RandomFactorMax    string
	PriceFloor         string
	RandomSeed         int64
	DefaultTotalSupply string
	DefaultTradingFee  string
	MaxConflictRetries int
	LockDriver         string // local or redis
	LockTTL            time.Duration
	LockWait           time.Duration
	OperationTimeout   time.Duration
	RateLimitPerMinute int
	WalletEnabled      bool
}

type RollupConfig struct {
	Interval          time.Duration
	ReconcileInterval time.Duration
	BatchSize         int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
			CORSOrigins:  getListEnv("CORS_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("STORE_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "coinfolio_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxOpen:  getIntEnv("DB_MAX_OPEN", 25),
			MaxIdle:  getIntEnv("DB_MAX_IDLE", 5),
			MaxLife:  getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			Database: getIntEnv("REDIS_DATABASE", 0),
			PoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", "coinfolio-engine-secret-key"),
			ExpiresIn: getDurationEnv("JWT_EXPIRES_IN", 24*time.Hour),
		},
		Trading: TradingConfig{
			MinVolatility:      getEnv("IMPACT_MIN_VOLATILITY", "0.1"),
			MaxVolatility:      getEnv("IMPACT_MAX_VOLATILITY", "5.0"),
			ScarcityWeight:     getEnv("IMPACT_SCARCITY_WEIGHT", "0.5"),
			OversupplyWeight:   getEnv("IMPACT_OVERSUPPLY_WEIGHT", "0.3"),
			RandomFactorMin:    getEnv("IMPACT_RANDOM_MIN", "0.8"),
			RandomFactorMax:    getEnv("IMPACT_RANDOM_MAX", "1.2"),
			PriceFloor:         getEnv("IMPACT_PRICE_FLOOR", "0.01"),
			RandomSeed:         int64(getIntEnv("IMPACT_RANDOM_SEED", 0)),
			DefaultTotalSupply: getEnv("DEFAULT_TOTAL_SUPPLY", "1000000"),
			DefaultTradingFee:  getEnv("DEFAULT_TRADING_FEE", "0.001"),
			MaxConflictRetries: getIntEnv("MAX_CONFLICT_RETRIES", 3),
			LockDriver:         getEnv("LOCK_DRIVER", "local"),
			LockTTL:            getDurationEnv("LOCK_TTL", 10*time.Second),
			LockWait:           getDurationEnv("LOCK_WAIT", 5*time.Second),
			OperationTimeout:   getDurationEnv("OPERATION_TIMEOUT", 5*time.Second),
			RateLimitPerMinute: getIntEnv("TRADE_RATE_LIMIT", 30),
			WalletEnabled:      getBoolEnv("WALLET_ENABLED", false),
		},
		Rollup: RollupConfig{
			Interval:          getDurationEnv("ROLLUP_INTERVAL", 24*time.Hour),
			ReconcileInterval: getDurationEnv("RECONCILE_INTERVAL", time.Minute),
			BatchSize:         getIntEnv("ROLLUP_BATCH_SIZE", 100),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	decimals := map[string]string{
		"IMPACT_MIN_VOLATILITY":    c.Trading.MinVolatility,
		"IMPACT_MAX_VOLATILITY":    c.Trading.MaxVolatility,
		"IMPACT_SCARCITY_WEIGHT":   c.Trading.ScarcityWeight,
		"IMPACT_OVERSUPPLY_WEIGHT": c.Trading.OversupplyWeight,
		"IMPACT_RANDOM_MIN":        c.Trading.RandomFactorMin,
		"IMPACT_RANDOM_MAX":        c.Trading.RandomFactorMax,
		"IMPACT_PRICE_FLOOR":       c.Trading.PriceFloor,
		"DEFAULT_TOTAL_SUPPLY":     c.Trading.DefaultTotalSupply,
		"DEFAULT_TRADING_FEE":      c.Trading.DefaultTradingFee,
	}
	for key, value := range decimals {
		if _, err := decimal.NewFromString(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
	}

	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Database.Driver)
	}
	switch c.Trading.LockDriver {
	case "local":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("LOCK_DRIVER=redis requires REDIS_ENABLED")
		}
	default:
		return fmt.Errorf("unsupported LOCK_DRIVER %q", c.Trading.LockDriver)
	}
	if c.Trading.MaxConflictRetries < 0 {
		return fmt.Errorf("MAX_CONFLICT_RETRIES must not be negative")
	}
	if c.Rollup.Interval <= 0 || c.Rollup.ReconcileInterval <= 0 {
		return fmt.Errorf("rollup and reconcile intervals must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) GetDatabaseURL() string {
	return "postgres://" + c.Database.User + ":" + c.Database.Password + "@" + c.Database.Host + ":" + c.Database.Port + "/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}

func (c *Config) GetRedisURL() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
