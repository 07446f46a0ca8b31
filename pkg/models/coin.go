package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Coin represents a user-created asset and its rolling 24h market statistics.
// Coins are handed out by value; the stores never share a row with callers.
type Coin struct {
	ID               uint            `gorm:"primaryKey" json:"-"`
	CoinID           string          `gorm:"uniqueIndex;size:32;not null" json:"coin_id"`
	Name             string          `gorm:"size:100;not null" json:"name"`
	Symbol           string          `gorm:"size:20;not null;index" json:"symbol"`
	Description      string          `gorm:"type:text" json:"description"`
	CreatorID        string          `gorm:"size:64;not null;index" json:"creator_id"`
	TotalSupply      decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"total_supply"`
	CurrentSupply    decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"current_supply"`
	InitialPrice     decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"initial_price"`
	CurrentPrice     decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"current_price"`
	High24h          decimal.Decimal `gorm:"column:high_24h;type:decimal(36,18)" json:"high_24h"`
	Low24h           decimal.Decimal `gorm:"column:low_24h;type:decimal(36,18)" json:"low_24h"`
	Volume24h        decimal.Decimal `gorm:"column:volume_24h;type:decimal(36,18)" json:"volume_24h"`
	Change24h        decimal.Decimal `gorm:"column:change_24h;type:decimal(36,18)" json:"change_24h"`
	Change24hPercent decimal.Decimal `gorm:"column:change_24h_percent;type:decimal(36,18)" json:"change_24h_percent"`
	MarketCap        decimal.Decimal `gorm:"type:decimal(36,18)" json:"market_cap"`
	Rank             *int            `gorm:"index" json:"rank"`
	IsActive         bool            `gorm:"not null;index" json:"is_active"`
	IsTradeable      bool            `gorm:"not null" json:"is_tradeable"`
	IsMineable       bool            `gorm:"not null" json:"is_mineable"`
	TradingFee       decimal.Decimal `gorm:"type:decimal(36,18)" json:"trading_fee"`
	Version          int64           `gorm:"not null" json:"version"`
	AppliedSeq       int64           `gorm:"not null;default:0" json:"applied_seq"`
	LastTradeAt      *time.Time      `json:"last_trade_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (Coin) TableName() string { return "coins" }

// Clone returns a copy of c that shares no pointers with it.
func (c Coin) Clone() Coin {
	if c.Rank != nil {
		rank := *c.Rank
		c.Rank = &rank
	}
	if c.LastTradeAt != nil {
		at := *c.LastTradeAt
		c.LastTradeAt = &at
	}
	return c
}

// Tradeable reports whether buys and sells are currently accepted.
func (c Coin) Tradeable() bool { return c.IsActive && c.IsTradeable }

// Field exposes filterable columns by name for in-memory evaluation.
func (c Coin) Field(name string) (interface{}, bool) {
	switch name {
	case "coin_id":
		return c.CoinID, true
	case "name":
		return c.Name, true
	case "symbol":
		return c.Symbol, true
	case "description":
		return c.Description, true
	case "creator_id":
		return c.CreatorID, true
	case "total_supply":
		return c.TotalSupply, true
	case "current_supply":
		return c.CurrentSupply, true
	case "initial_price":
		return c.InitialPrice, true
	case "current_price":
		return c.CurrentPrice, true
	case "high_24h":
		return c.High24h, true
	case "low_24h":
		return c.Low24h, true
	case "volume_24h":
		return c.Volume24h, true
	case "change_24h":
		return c.Change24h, true
	case "change_24h_percent":
		return c.Change24hPercent, true
	case "market_cap":
		return c.MarketCap, true
	case "rank":
		return c.Rank, true
	case "is_active":
		return c.IsActive, true
	case "is_tradeable":
		return c.IsTradeable, true
	case "is_mineable":
		return c.IsMineable, true
	case "trading_fee":
		return c.TradingFee, true
	case "applied_seq":
		return c.AppliedSeq, true
	case "last_trade_at":
		return c.LastTradeAt, true
	case "created_at":
		return c.CreatedAt, true
	case "updated_at":
		return c.UpdatedAt, true
	}
	return nil, false
}

// CoinColumns lists the columns that may appear in coin filters and orderings.
var CoinColumns = []string{
	"coin_id", "name", "symbol", "description", "creator_id",
	"total_supply", "current_supply", "initial_price", "current_price",
	"high_24h", "low_24h", "volume_24h", "change_24h", "change_24h_percent",
	"market_cap", "rank", "is_active", "is_tradeable", "is_mineable",
	"trading_fee", "applied_seq", "last_trade_at", "created_at", "updated_at",
}

// CoinPatch is a partial update. Nil fields are left untouched.
type CoinPatch struct {
	Name             *string
	Description      *string
	CurrentSupply    *decimal.Decimal
	CurrentPrice     *decimal.Decimal
	High24h          *decimal.Decimal
	Low24h           *decimal.Decimal
	Volume24h        *decimal.Decimal
	Change24h        *decimal.Decimal
	Change24hPercent *decimal.Decimal
	MarketCap        *decimal.Decimal
	Rank             *int
	IsActive         *bool
	IsTradeable      *bool
	TradingFee       *decimal.Decimal
	AppliedSeq       *int64
	LastTradeAt      *time.Time
}

// Empty reports whether the patch changes nothing.
func (p CoinPatch) Empty() bool {
	return len(p.Columns()) == 0
}

// Columns returns the set fields keyed by column name.
func (p CoinPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.CurrentSupply != nil {
		cols["current_supply"] = *p.CurrentSupply
	}
	if p.CurrentPrice != nil {
		cols["current_price"] = *p.CurrentPrice
	}
	if p.High24h != nil {
		cols["high_24h"] = *p.High24h
	}
	if p.Low24h != nil {
		cols["low_24h"] = *p.Low24h
	}
	if p.Volume24h != nil {
		cols["volume_24h"] = *p.Volume24h
	}
	if p.Change24h != nil {
		cols["change_24h"] = *p.Change24h
	}
	if p.Change24hPercent != nil {
		cols["change_24h_percent"] = *p.Change24hPercent
	}
	if p.MarketCap != nil {
		cols["market_cap"] = *p.MarketCap
	}
	if p.Rank != nil {
		cols["rank"] = *p.Rank
	}
	if p.IsActive != nil {
		cols["is_active"] = *p.IsActive
	}
	if p.IsTradeable != nil {
		cols["is_tradeable"] = *p.IsTradeable
	}
	if p.TradingFee != nil {
		cols["trading_fee"] = *p.TradingFee
	}
	if p.AppliedSeq != nil {
		cols["applied_seq"] = *p.AppliedSeq
	}
	if p.LastTradeAt != nil {
		cols["last_trade_at"] = *p.LastTradeAt
	}
	return cols
}

// Apply returns a copy of c with the patch applied.
func (p CoinPatch) Apply(c Coin) Coin {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.CurrentSupply != nil {
		c.CurrentSupply = *p.CurrentSupply
	}
	if p.CurrentPrice != nil {
		c.CurrentPrice = *p.CurrentPrice
	}
	if p.High24h != nil {
		c.High24h = *p.High24h
	}
	if p.Low24h != nil {
		c.Low24h = *p.Low24h
	}
	if p.Volume24h != nil {
		c.Volume24h = *p.Volume24h
	}
	if p.Change24h != nil {
		c.Change24h = *p.Change24h
	}
	if p.Change24hPercent != nil {
		c.Change24hPercent = *p.Change24hPercent
	}
	if p.MarketCap != nil {
		c.MarketCap = *p.MarketCap
	}
	if p.Rank != nil {
		rank := *p.Rank
		c.Rank = &rank
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if p.IsTradeable != nil {
		c.IsTradeable = *p.IsTradeable
	}
	if p.TradingFee != nil {
		c.TradingFee = *p.TradingFee
	}
	if p.AppliedSeq != nil {
		c.AppliedSeq = *p.AppliedSeq
	}
	if p.LastTradeAt != nil {
		at := *p.LastTradeAt
		c.LastTradeAt = &at
	}
	return c
}

// CoinPriceInfo is the price-only view of a coin.
type CoinPriceInfo struct {
	CoinID           string          `json:"coin_id"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	Change24h        decimal.Decimal `json:"change_24h"`
	Change24hPercent decimal.Decimal `json:"change_24h_percent"`
	Volume24h        decimal.Decimal `json:"volume_24h"`
	MarketCap        decimal.Decimal `json:"market_cap"`
	High24h          decimal.Decimal `json:"high_24h"`
	Low24h           decimal.Decimal `json:"low_24h"`
}

// PriceInfo projects the price fields of c.
func (c Coin) PriceInfo() CoinPriceInfo {
	return CoinPriceInfo{
		CoinID:           c.CoinID,
		CurrentPrice:     c.CurrentPrice,
		Change24h:        c.Change24h,
		Change24hPercent: c.Change24hPercent,
		Volume24h:        c.Volume24h,
		MarketCap:        c.MarketCap,
		High24h:          c.High24h,
		Low24h:           c.Low24h,
	}
}

// CoinBasicInfo is the listing view of a coin.
type CoinBasicInfo struct {
	CoinID      string          `json:"coin_id"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Description string          `json:"description"`
	CreatorID   string          `json:"creator_id"`
	Rank        *int            `json:"rank"`
	IsTradeable bool            `json:"is_tradeable"`
	TradingFee  decimal.Decimal `json:"trading_fee"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BasicInfo projects the descriptive fields of c.
func (c Coin) BasicInfo() CoinBasicInfo {
	return CoinBasicInfo{
		CoinID:      c.CoinID,
		Name:        c.Name,
		Symbol:      c.Symbol,
		Description: c.Description,
		CreatorID:   c.CreatorID,
		Rank:        c.Rank,
		IsTradeable: c.IsTradeable,
		TradingFee:  c.TradingFee,
		CreatedAt:   c.CreatedAt,
	}
}
