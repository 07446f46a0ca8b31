package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/engine"
	"coinfolio-engine/pkg/middleware"
	"coinfolio-engine/pkg/models"
)

// UpdateAsset applies a partial administrative update to a coin
func (h *Handlers) UpdateAsset(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	var req UpdateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	price, errs := req.Validate()
	if len(errs) > 0 {
		SendValidationErrors(c, errs)
		return
	}

	coin, err := h.engine.UpdateAsset(c.Request.Context(), coinID, engine.AssetUpdate{
		Description: req.Description,
		Rank:        req.Rank,
		IsActive:    req.IsActive,
		IsTradeable: req.IsTradeable,
		Price:       price,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "update_asset", coinID)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": coin})
}

// SetPrice overrides a coin's price
func (h *Handlers) SetPrice(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	var req struct {
		Price string `json:"price" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price is required"})
		return
	}
	v := NewValidator()
	price := v.ValidatePrice("price", req.Price, true)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	coin, err := h.engine.SetPrice(c.Request.Context(), coinID, *price)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "set_price", coinID)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": coin.PriceInfo()})
}

// SetTradeable halts or resumes trading of a coin
func (h *Handlers) SetTradeable(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	var req struct {
		Tradeable *bool `json:"is_tradeable"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Tradeable == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_tradeable is required"})
		return
	}

	coin, err := h.engine.SetTradeable(c.Request.Context(), coinID, *req.Tradeable)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "set_tradeable", coinID)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": coin})
}

// ResetDailyStats starts a new 24h window for a coin
func (h *Handlers) ResetDailyStats(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	coin, err := h.engine.ResetDailyStats(c.Request.Context(), coinID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "reset_daily_stats", coinID)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": coin.PriceInfo()})
}

// Reconcile replays trades whose price impact was never applied
func (h *Handlers) Reconcile(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	applied, err := h.engine.Reconcile(c.Request.Context(), coinID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "reconcile", coinID)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"coin_id": coinID, "applied": applied}})
}

// CancelTrade marks a trade as failed
func (h *Handlers) CancelTrade(c *gin.Context) {
	h.transitionTrade(c, "cancel_trade", h.history.Cancel)
}

// CompleteTrade marks a trade as completed
func (h *Handlers) CompleteTrade(c *gin.Context) {
	h.transitionTrade(c, "complete_trade", h.history.Complete)
}

func (h *Handlers) transitionTrade(c *gin.Context, action string, fn func(ctx context.Context, historyID string) (models.TradeHistory, error)) {
	historyID := c.Param("historyId")
	v := NewValidator()
	v.ValidateID("history_id", historyID)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	trade, err := fn(c.Request.Context(), historyID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, action, trade.CoinID)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": trade.Info()})
}

// Deposit credits a user's base-coin balance
func (h *Handlers) Deposit(c *gin.Context) {
	if h.wallet == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallets are not enabled"})
		return
	}
	userID := c.Param("userId")
	var req struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}
	v := NewValidator()
	v.ValidateString("user_id", userID, 1, 64, true)
	amount := v.ValidateAmount("amount", req.Amount)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	account, err := h.wallet.Deposit(c.Request.Context(), userID, amount)
	if err != nil {
		respondError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"admin_id": c.GetString(middleware.ContextUserID),
		"user_id":  userID,
		"amount":   amount.String(),
	}).Info("Admin deposit")
	c.JSON(http.StatusOK, gin.H{"success": true, "data": account})
}

func (h *Handlers) audit(c *gin.Context, action, coinID string) {
	logrus.WithFields(logrus.Fields{
		"admin_id": c.GetString(middleware.ContextUserID),
		"action":   action,
		"coin_id":  coinID,
	}).Info("Admin action")
}
