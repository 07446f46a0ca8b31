package api

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"coinfolio-engine/pkg/models"
)

// Validation patterns
var (
	symbolRegex = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)
	idRegex     = regexp.MustCompile(`^[a-z0-9]{1,32}$`)
)

// Limits
var (
	maxAmount = decimal.NewFromInt(1000000000)
	maxPrice  = decimal.NewFromInt(1000000000)
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	messages := make([]string, 0, len(ve))
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Validator provides validation methods
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// GetErrors returns all validation errors
func (v *Validator) GetErrors() ValidationErrors {
	return v.errors
}

// ValidateID validates a coin or trade identifier
func (v *Validator) ValidateID(field, id string) {
	if id == "" {
		v.AddError(field, fmt.Sprintf("%s is required", field))
		return
	}
	if !idRegex.MatchString(id) {
		v.AddError(field, "invalid identifier format")
	}
}

// ValidateSymbol validates a coin symbol
func (v *Validator) ValidateSymbol(field, symbol string) {
	if symbol == "" {
		v.AddError(field, "symbol is required")
		return
	}
	if !symbolRegex.MatchString(symbol) {
		v.AddError(field, "symbol must be 1-20 letters or digits")
	}
}

// ValidatePrice validates a price
func (v *Validator) ValidatePrice(field, priceStr string, required bool) *decimal.Decimal {
	if priceStr == "" {
		if required {
			v.AddError(field, "price is required")
		}
		return nil
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		v.AddError(field, "invalid price format")
		return nil
	}
	if !price.IsPositive() {
		v.AddError(field, "price must be positive")
		return nil
	}
	if price.GreaterThan(maxPrice) {
		v.AddError(field, "price is too large")
		return nil
	}
	return &price
}

// ValidateAmount validates a trade amount
func (v *Validator) ValidateAmount(field, amountStr string) decimal.Decimal {
	if amountStr == "" {
		v.AddError(field, "amount is required")
		return decimal.Zero
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		v.AddError(field, "invalid amount format")
		return decimal.Zero
	}
	if !amount.IsPositive() {
		v.AddError(field, "amount must be positive")
		return decimal.Zero
	}
	if amount.GreaterThan(maxAmount) {
		v.AddError(field, "amount is too large")
		return decimal.Zero
	}
	return amount
}

// ValidateString validates a general string field
func (v *Validator) ValidateString(field, value string, minLen, maxLen int, required bool) {
	if value == "" {
		if required {
			v.AddError(field, fmt.Sprintf("%s is required", field))
		}
		return
	}
	if len(value) < minLen {
		v.AddError(field, fmt.Sprintf("%s must be at least %d characters", field, minLen))
	}
	if maxLen > 0 && len(value) > maxLen {
		v.AddError(field, fmt.Sprintf("%s must be at most %d characters", field, maxLen))
	}
}

// ValidateSide validates a trade side filter
func (v *Validator) ValidateSide(field, side string) {
	if side != "" && !models.TradeSide(side).Valid() {
		v.AddError(field, "side must be one of buy, sell, send, catch")
	}
}

// ValidateStatus validates a trade status filter
func (v *Validator) ValidateStatus(field, status string) {
	if status != "" && !models.TradeStatus(status).Valid() {
		v.AddError(field, "status must be one of loading, completed, failed")
	}
}

// ValidateOneOf validates that value is empty or one of allowed
func (v *Validator) ValidateOneOf(field, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of %s", strings.Join(allowed, ", ")))
}

// ValidateLimit validates pagination limit
func (v *Validator) ValidateLimit(field string, limit int, maxLimit int) {
	if limit < 1 {
		v.AddError(field, "limit must be at least 1")
		return
	}
	if limit > maxLimit {
		v.AddError(field, fmt.Sprintf("limit cannot exceed %d", maxLimit))
	}
}

// ValidateRange validates an integer in [min, max]
func (v *Validator) ValidateRange(field string, value, min, max int) {
	if value < min || value > max {
		v.AddError(field, fmt.Sprintf("%s must be between %d and %d", field, min, max))
	}
}

// SendValidationErrors sends validation errors as JSON response
func SendValidationErrors(c *gin.Context, errors ValidationErrors) {
	c.JSON(400, gin.H{
		"error":   "Validation failed",
		"details": errors,
	})
}

// CreateCoinRequest is the body of POST /coins.
type CreateCoinRequest struct {
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Description string  `json:"description"`
	Price       string  `json:"price"`
	TotalSupply string  `json:"total_supply"`
	TradingFee  *string `json:"trading_fee"`
	IsMineable  bool    `json:"is_mineable"`
}

// Validate checks the request and returns the parsed numbers.
func (r CreateCoinRequest) Validate() (price, supply decimal.Decimal, fee *decimal.Decimal, errs ValidationErrors) {
	v := NewValidator()
	v.ValidateString("name", r.Name, 1, 100, true)
	v.ValidateSymbol("symbol", r.Symbol)
	v.ValidateString("description", r.Description, 0, 1000, false)
	if p := v.ValidatePrice("price", r.Price, true); p != nil {
		price = *p
	}
	if r.TotalSupply != "" {
		supply = v.ValidateAmount("total_supply", r.TotalSupply)
	}
	if r.TradingFee != nil {
		f, err := decimal.NewFromString(*r.TradingFee)
		switch {
		case err != nil:
			v.AddError("trading_fee", "invalid trading fee format")
		case f.IsNegative() || f.GreaterThanOrEqual(decimal.NewFromInt(1)):
			v.AddError("trading_fee", "trading fee must be in [0, 1)")
		default:
			fee = &f
		}
	}
	return price, supply, fee, v.GetErrors()
}

// TradeRequest is the body of POST /coins/:coinId/buy and /sell.
type TradeRequest struct {
	Amount string `json:"amount"`
	Price  string `json:"price"`
}

// Validate checks the request and returns the parsed numbers.
func (r TradeRequest) Validate() (decimal.Decimal, *decimal.Decimal, ValidationErrors) {
	v := NewValidator()
	amount := v.ValidateAmount("amount", r.Amount)
	price := v.ValidatePrice("price", r.Price, false)
	return amount, price, v.GetErrors()
}

// UpdateAssetRequest is the body of PUT /admin/coins/:coinId.
type UpdateAssetRequest struct {
	Description *string `json:"description"`
	Rank        *int    `json:"rank"`
	IsActive    *bool   `json:"is_active"`
	IsTradeable *bool   `json:"is_tradeable"`
	Price       *string `json:"price"`
}

func (r UpdateAssetRequest) Validate() (*decimal.Decimal, ValidationErrors) {
	v := NewValidator()
	if r.Description != nil {
		v.ValidateString("description", *r.Description, 0, 1000, false)
	}
	if r.Rank != nil && *r.Rank < 0 {
		v.AddError("rank", "rank must not be negative")
	}
	var price *decimal.Decimal
	if r.Price != nil {
		price = v.ValidatePrice("price", *r.Price, true)
	}
	return price, v.GetErrors()
}
