package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/cache"
	"coinfolio-engine/pkg/engine"
	"coinfolio-engine/pkg/history"
	"coinfolio-engine/pkg/middleware"
	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
	"coinfolio-engine/pkg/store"
	"coinfolio-engine/pkg/websocket"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultStatDays = 1
	maxStatDays     = 365
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handlers serves the HTTP API.
type Handlers struct {
	engine  *engine.Service
	history *history.Service
	wallet  store.Wallet
	hub     *websocket.Hub
	checks  map[string]HealthCheck
}

// NewHandlers wires the handlers. wallet and hub may be nil.
func NewHandlers(svc *engine.Service, hist *history.Service, wallet store.Wallet, hub *websocket.Hub, checks map[string]HealthCheck) *Handlers {
	if checks == nil {
		checks = map[string]HealthCheck{}
	}
	return &Handlers{engine: svc, history: hist, wallet: wallet, hub: hub, checks: checks}
}

// Coin Handlers

var coinOrderFields = []string{"rank", "created_at", "current_price", "market_cap", "volume_24h", "change_24h_percent", "name", "symbol"}

// ListCoins returns coins, optionally matching q against name and symbol
func (h *Handlers) ListCoins(c *gin.Context) {
	v := NewValidator()
	page := parsePage(c, v, coinOrderFields)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	coins, total, err := h.engine.SearchCoins(c.Request.Context(), c.Query("q"), page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    coins,
		"total":   total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

// GetTradeableCoins returns coins currently accepting trades
func (h *Handlers) GetTradeableCoins(c *gin.Context) {
	v := NewValidator()
	limit := intQuery(c, v, "limit", defaultPageSize)
	v.ValidateLimit("limit", limit, maxPageSize)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	coins, err := h.engine.Tradeable(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": coins})
}

// GetCoin returns a coin, served from the snapshot cache when available
func (h *Handlers) GetCoin(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if cache.Enabled() {
		if coin, err := cache.GetCoin(ctx, coinID); err == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": coin})
			return
		} else if !errors.Is(err, cache.ErrMiss) {
			logrus.WithField("coin_id", coinID).WithError(err).Warn("Coin cache read failed")
		}
	}

	coin, err := h.engine.GetCoin(ctx, coinID)
	if err != nil {
		respondError(c, err)
		return
	}
	if cache.Enabled() {
		if err := cache.CacheCoin(ctx, coin); err != nil {
			logrus.WithField("coin_id", coinID).WithError(err).Warn("Coin cache write failed")
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": coin})
}

// GetCoinTrades returns the trade history of a coin, newest first
func (h *Handlers) GetCoinTrades(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	v := NewValidator()
	page := parsePage(c, v, []string{"created_at", "price", "amount"})
	side := c.Query("side")
	v.ValidateSide("side", side)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	var filter query.Expr = query.Eq("coin_id", coinID)
	if side != "" {
		filter = query.And(filter, query.Eq("side", side))
	}
	h.respondTrades(c, filter, page)
}

// GetRecentTrades returns the latest trades of a coin from the cache,
// falling back to the history store
func (h *Handlers) GetRecentTrades(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	v := NewValidator()
	limit := intQuery(c, v, "limit", defaultPageSize)
	v.ValidateLimit("limit", limit, cache.RecentTradesLimit)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	ctx := c.Request.Context()
	if cache.Enabled() {
		trades, err := cache.RecentTrades(ctx, coinID, limit)
		if err == nil && len(trades) > 0 {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": trades, "source": "cache"})
			return
		}
		if err != nil {
			logrus.WithField("coin_id", coinID).WithError(err).Warn("Recent trades cache read failed")
		}
	}

	trades, _, err := h.history.ByCoin(ctx, coinID, query.Page{Limit: limit})
	if err != nil {
		respondError(c, err)
		return
	}
	infos := make([]models.TradeInfo, len(trades))
	for i, t := range trades {
		infos[i] = t.Info()
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": infos, "source": "store"})
}

// GetCoinStats returns the coin's prices and its trading statistics
func (h *Handlers) GetCoinStats(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	v := NewValidator()
	days := intQuery(c, v, "days", defaultStatDays)
	v.ValidateRange("days", days, 1, maxStatDays)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	ctx := c.Request.Context()
	coin, err := h.engine.GetCoin(ctx, coinID)
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := h.history.CoinStats(ctx, coinID, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"coin":   coin.BasicInfo(),
			"prices": coin.PriceInfo(),
			"trades": stats,
			"days":   days,
		},
	})
}

// CreateCoin lists a new coin owned by the caller
func (h *Handlers) CreateCoin(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req CreateCoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	price, supply, fee, errs := req.Validate()
	if len(errs) > 0 {
		SendValidationErrors(c, errs)
		return
	}

	coin, err := h.engine.CreateCoin(c.Request.Context(), engine.CreateCoinRequest{
		CreatorID:   userID,
		Name:        req.Name,
		Symbol:      req.Symbol,
		Description: req.Description,
		Price:       price,
		TotalSupply: supply,
		TradingFee:  fee,
		IsMineable:  req.IsMineable,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": coin})
}

// UpdateCoin lets a coin's creator edit its description
func (h *Handlers) UpdateCoin(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	var req struct {
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Description == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}
	if !h.authorizeOwner(c, coinID) {
		return
	}

	coin, err := h.engine.UpdateDescription(c.Request.Context(), coinID, *req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": coin})
}

// DeleteCoin soft-deletes a coin owned by the caller
func (h *Handlers) DeleteCoin(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	if !h.authorizeOwner(c, coinID) {
		return
	}

	ctx := c.Request.Context()
	coin, err := h.engine.DeleteAsset(ctx, coinID)
	if err != nil {
		respondError(c, err)
		return
	}
	if cache.Enabled() {
		if err := cache.InvalidateCoin(ctx, coinID); err != nil {
			logrus.WithField("coin_id", coinID).WithError(err).Warn("Coin cache invalidation failed")
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": coin})
}

// authorizeOwner allows the coin's creator and admins.
func (h *Handlers) authorizeOwner(c *gin.Context, coinID string) bool {
	userID, ok := requireUser(c)
	if !ok {
		return false
	}
	if middleware.IsAdmin(c) {
		return true
	}
	coin, err := h.engine.GetCoin(c.Request.Context(), coinID)
	if err != nil {
		respondError(c, err)
		return false
	}
	if coin.CreatorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the coin creator can modify this coin"})
		return false
	}
	return true
}

// Trade Handlers

// Buy executes a buy for the caller
func (h *Handlers) Buy(c *gin.Context) {
	h.trade(c, models.TradeSideBuy)
}

// Sell executes a sell for the caller
func (h *Handlers) Sell(c *gin.Context) {
	h.trade(c, models.TradeSideSell)
}

func (h *Handlers) trade(c *gin.Context, side models.TradeSide) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	amount, price, errs := req.Validate()
	if len(errs) > 0 {
		SendValidationErrors(c, errs)
		return
	}

	result, err := h.engine.ExecuteTrade(c.Request.Context(), engine.TradeRequest{
		CoinID:  coinID,
		ActorID: userID,
		Side:    side,
		Amount:  amount,
		Price:   price,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindPartialApplication) && result != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Trade recorded; price update is pending reconciliation",
				"kind":  apperr.KindPartialApplication.String(),
				"trade": result.Trade.Info(),
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"coin":           result.Coin.PriceInfo(),
			"trade":          result.Trade.Info(),
			"percent_change": result.PercentChange,
		},
	})
}

// GetUserTrades returns the caller's trade history
func (h *Handlers) GetUserTrades(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	v := NewValidator()
	page := parsePage(c, v, []string{"created_at", "price", "amount"})
	coinID := c.Query("coin_id")
	status := c.Query("status")
	v.ValidateStatus("status", status)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	var filter query.Expr = query.Eq("user_id", userID)
	if coinID != "" {
		filter = query.And(filter, query.Eq("coin_id", coinID))
	}
	if status != "" {
		filter = query.And(filter, query.Eq("status", status))
	}
	h.respondTrades(c, filter, page)
}

// GetUserStats returns the caller's trading statistics
func (h *Handlers) GetUserStats(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	v := NewValidator()
	days := intQuery(c, v, "days", 30)
	v.ValidateRange("days", days, 1, maxStatDays)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	stats, err := h.history.UserStats(c.Request.Context(), userID, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats, "days": days})
}

// GetUserWallet returns the caller's balance and holdings
func (h *Handlers) GetUserWallet(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if h.wallet == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallets are not enabled"})
		return
	}

	ctx := c.Request.Context()
	account, err := h.wallet.Account(ctx, userID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		respondError(c, err)
		return
	}
	holdings, err := h.wallet.Holdings(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"balance":  account.Balance,
			"holdings": holdings,
		},
	})
}

func (h *Handlers) respondTrades(c *gin.Context, filter query.Expr, page query.Page) {
	trades, total, err := h.history.Search(c.Request.Context(), filter, page)
	if err != nil {
		respondError(c, err)
		return
	}
	infos := make([]models.TradeInfo, len(trades))
	for i, t := range trades {
		infos[i] = t.Info()
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    infos,
		"total":   total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

// System Handlers

// Health reports liveness and the state of every dependency
func (h *Handlers) Health(c *gin.Context) {
	status := http.StatusOK
	components := gin.H{}
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			components[name] = gin.H{"status": "unhealthy", "error": err.Error()}
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = gin.H{"status": "healthy"}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	body := gin.H{
		"status":     overall,
		"service":    "coinfolio-engine",
		"version":    SwaggerInfo.Version,
		"components": components,
		"time":       time.Now().UTC(),
	}
	if h.hub != nil {
		body["websocket"] = h.hub.Stats()
	}
	c.JSON(status, body)
}

// CheckComponentHealth reports the state of one dependency
func (h *Handlers) CheckComponentHealth(c *gin.Context) {
	name := c.Param("component")
	check, ok := h.checks[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown component"})
		return
	}
	if err := check(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "component": name, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "component": name})
}

// Helpers

func requireUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	}
	return userID, ok
}

func coinParam(c *gin.Context) (string, bool) {
	v := NewValidator()
	coinID := c.Param("coinId")
	v.ValidateID("coin_id", coinID)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return "", false
	}
	return coinID, true
}

func intQuery(c *gin.Context, v *Validator, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v.AddError(name, "must be an integer")
		return def
	}
	return n
}

// parsePage reads page (1-based), limit, order_by and direction.
func parsePage(c *gin.Context, v *Validator, orderFields []string) query.Page {
	page := intQuery(c, v, "page", 1)
	limit := intQuery(c, v, "limit", defaultPageSize)
	v.ValidateLimit("limit", limit, maxPageSize)
	if page < 1 {
		v.AddError("page", "page must be at least 1")
		page = 1
	}

	orderBy := c.Query("order_by")
	direction := c.DefaultQuery("direction", "desc")
	v.ValidateOneOf("order_by", orderBy, orderFields)
	v.ValidateOneOf("direction", direction, []string{"asc", "desc"})

	var order []query.Order
	if orderBy != "" {
		if direction == "asc" {
			order = append(order, query.Asc(orderBy))
		} else {
			order = append(order, query.Desc(orderBy))
		}
	}
	return query.PageOf(page-1, limit, order...)
}
