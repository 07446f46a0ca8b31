package api

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coinfolio-engine/pkg/auth"
	"coinfolio-engine/pkg/config"
	"coinfolio-engine/pkg/middleware"
)

// SetupRoutes configures all API routes. redisClient may be nil, in which
// case rate limits are counted in process.
func SetupRoutes(router *gin.Engine, h *Handlers, cfg *config.Config, redisClient *redis.Client) {
	jwtService := auth.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.ExpiresIn)
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(redisClient)

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupSwagger(router)

	v1 := router.Group("/api/v1")
	{
		// Public coin endpoints
		coins := v1.Group("/coins")
		coins.Use(rateLimitMiddleware.PublicRateLimit())
		{
			coins.GET("", h.ListCoins)
			coins.GET("/tradeable", h.GetTradeableCoins)
			coins.GET("/:coinId", h.GetCoin)
			coins.GET("/:coinId/trades", h.GetCoinTrades)
			coins.GET("/:coinId/trades/recent", h.GetRecentTrades)
			coins.GET("/:coinId/stats", h.GetCoinStats)
		}

		// Coin management (require authentication)
		owned := v1.Group("/coins")
		owned.Use(authMiddleware.JWTAuth())
		{
			owned.POST("", h.CreateCoin)
			owned.PUT("/:coinId", h.UpdateCoin)
			owned.DELETE("/:coinId", h.DeleteCoin)
		}

		// Trading endpoints
		trading := v1.Group("/coins/:coinId")
		trading.Use(authMiddleware.JWTAuth())
		trading.Use(rateLimitMiddleware.TradingRateLimit(cfg.Trading.RateLimitPerMinute))
		{
			trading.POST("/buy", h.Buy)
			trading.POST("/sell", h.Sell)
		}

		users := v1.Group("/users")
		users.Use(authMiddleware.JWTAuth())
		{
			users.GET("/me/trades", h.GetUserTrades)
			users.GET("/me/stats", h.GetUserStats)
			users.GET("/me/wallet", h.GetUserWallet)
		}

		// Anonymous clients get public channels only
		if h.hub != nil {
			ws := v1.Group("/ws")
			ws.Use(authMiddleware.OptionalAuth())
			{
				ws.GET("", h.hub.Handler(cfg.Server.CORSOrigins))
			}
		}
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware.JWTAuth())
	admin.Use(middleware.RequireAdmin())
	{
		admin.PUT("/coins/:coinId", h.UpdateAsset)
		admin.PUT("/coins/:coinId/price", h.SetPrice)
		admin.PUT("/coins/:coinId/tradeable", h.SetTradeable)
		admin.POST("/coins/:coinId/reset-stats", h.ResetDailyStats)
		admin.POST("/coins/:coinId/reconcile", h.Reconcile)
		admin.POST("/trades/:historyId/cancel", h.CancelTrade)
		admin.POST("/trades/:historyId/complete", h.CompleteTrade)
		admin.POST("/users/:userId/deposit", h.Deposit)
		admin.GET("/health/:component", h.CheckComponentHealth)
	}
}
