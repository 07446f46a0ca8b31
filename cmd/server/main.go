package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/api"
	"coinfolio-engine/pkg/cache"
	"coinfolio-engine/pkg/config"
	"coinfolio-engine/pkg/database"
	"coinfolio-engine/pkg/engine"
	"coinfolio-engine/pkg/history"
	"coinfolio-engine/pkg/lock"
	"coinfolio-engine/pkg/pricing"
	"coinfolio-engine/pkg/store"
	"coinfolio-engine/pkg/store/gormstore"
	"coinfolio-engine/pkg/store/memstore"
	"coinfolio-engine/pkg/websocket"
)

const publisherQueueSize = 1024

type stores struct {
	coins  store.CoinStore
	trades store.TradeStore
	wallet store.Wallet
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)

	logrus.Info("Starting Coinfolio Engine...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.HealthCheck{}

	st, err := openStores(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize store: %v", err)
	}
	if cfg.Database.Driver == "postgres" {
		defer database.Close()
		checks["database"] = database.HealthCheck
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		if err := cache.Initialize(cfg); err != nil {
			logrus.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer cache.Close()
		redisClient = cache.RedisClient
		checks["redis"] = cache.HealthCheck
	}

	params, err := pricing.ParamsFromConfig(cfg.Trading)
	if err != nil {
		logrus.Fatalf("Invalid impact parameters: %v", err)
	}
	seed := cfg.Trading.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	opts, err := engine.OptionsFromConfig(cfg.Trading)
	if err != nil {
		logrus.Fatalf("Invalid trading options: %v", err)
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Trading.LockDriver == "redis" {
		locker = lock.NewRedis(redisClient, cfg.Trading.LockTTL)
	}

	hub := websocket.NewHub()
	notifiers := engine.Notifiers{hub}
	var publisher *cache.Publisher
	if cache.Enabled() {
		publisher = cache.NewPublisher(cache.RedisSink(), publisherQueueSize)
		notifiers = append(notifiers, publisher)
	}

	svc := engine.New(engine.Deps{
		Coins:      st.coins,
		Trades:     st.trades,
		Wallet:     st.wallet,
		Calculator: pricing.NewCalculator(params, pricing.NewRandomSource(seed)),
		Locker:     locker,
		Notifier:   notifiers,
	}, opts)
	hist := history.NewService(st.trades, history.WithLocker(locker, cfg.Trading.LockWait))

	// Background workers
	go hub.Run(ctx)
	if publisher != nil {
		go publisher.Run(ctx)
	}
	go engine.NewRollup(svc, cfg.Rollup.Interval, cfg.Rollup.BatchSize).Run(ctx)
	go engine.NewReconciler(svc, cfg.Rollup.ReconcileInterval).Run(ctx)

	// Setup HTTP server
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg)))

	handlers := api.NewHandlers(svc, hist, st.wallet, hub, checks)
	api.SetupRoutes(router, handlers, cfg, redisClient)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logrus.Infof("Coinfolio Engine server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down Coinfolio Engine...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}
	if publisher != nil && publisher.Dropped() > 0 {
		logrus.WithField("dropped", publisher.Dropped()).Warn("Cache updates were dropped")
	}

	logrus.Info("Coinfolio Engine stopped successfully")
}

func openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	if cfg.Database.Driver == "memory" {
		st := stores{coins: memstore.NewCoinStore(), trades: memstore.NewTradeStore()}
		if cfg.Trading.WalletEnabled {
			st.wallet = memstore.NewWallet()
		}
		if cfg.IsDevelopment() {
			for _, coin := range database.SampleCoins() {
				if _, err := st.coins.Create(ctx, coin); err != nil {
					return stores{}, fmt.Errorf("seed %s: %w", coin.Symbol, err)
				}
			}
		}
		logrus.Warn("Using the in-memory store; data is lost on restart")
		return st, nil
	}

	if err := database.Initialize(cfg); err != nil {
		return stores{}, err
	}
	if err := database.AutoMigrate(); err != nil {
		return stores{}, fmt.Errorf("migrate: %w", err)
	}
	if cfg.IsDevelopment() {
		if err := database.SeedData(); err != nil {
			return stores{}, fmt.Errorf("seed: %w", err)
		}
	}

	db := database.GetDB()
	st := stores{coins: gormstore.NewCoinStore(db), trades: gormstore.NewTradeStore(db)}
	if cfg.Trading.WalletEnabled {
		st.wallet = gormstore.NewWallet(db)
	}
	return st, nil
}

func corsConfig(cfg *config.Config) cors.Config {
	corsConfig := cors.DefaultConfig()
	if cfg.IsDevelopment() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
	}
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	corsConfig.MaxAge = 12 * time.Hour
	return corsConfig
}

func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	if cfg.IsDevelopment() {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging initialized")
}
