package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide represents the direction of a trade record
type TradeSide string

const (
	TradeSideBuy   TradeSide = "buy"
	TradeSideSell  TradeSide = "sell"
	TradeSideSend  TradeSide = "send"
	TradeSideCatch TradeSide = "catch"
)

// Valid reports whether s is a known side.
func (s TradeSide) Valid() bool {
	switch s {
	case TradeSideBuy, TradeSideSell, TradeSideSend, TradeSideCatch:
		return true
	}
	return false
}

// MovesPrice reports whether trades on side s change the coin's price.
func (s TradeSide) MovesPrice() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// TradeStatus represents the lifecycle state of a trade record
type TradeStatus string

const (
	TradeStatusLoading   TradeStatus = "loading"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusFailed    TradeStatus = "failed"
)

// Valid reports whether s is a known status.
func (s TradeStatus) Valid() bool {
	switch s {
	case TradeStatusLoading, TradeStatusCompleted, TradeStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a record in status s may move to next.
func (s TradeStatus) CanTransition(next TradeStatus) bool {
	switch s {
	case TradeStatusLoading:
		return next == TradeStatusCompleted || next == TradeStatusFailed
	case TradeStatusCompleted:
		return next == TradeStatusFailed
	}
	return false
}

// TradeHistory is an append-only record of a trade. Buys and sells carry a
// per-coin sequence number assigned under the coin lock; the coin's
// applied_seq marks the last one whose impact was persisted.
type TradeHistory struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	HistoryID string          `gorm:"uniqueIndex;size:32;not null" json:"history_id"`
	UserID    string          `gorm:"size:64;not null;index" json:"user_id"`
	CoinID    string          `gorm:"size:32;not null;index:idx_trade_histories_coin_created;index:idx_trade_histories_coin_seq,unique,where:seq > 0" json:"coin_id"`
	Seq       int64           `gorm:"not null;default:0;index:idx_trade_histories_coin_seq,unique,where:seq > 0" json:"seq"`
	AuthorID  *string         `gorm:"size:64" json:"author_id,omitempty"`
	Amount    decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	Price     decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"price"`
	Side      TradeSide       `gorm:"size:8;not null;index" json:"side"`
	Status    TradeStatus     `gorm:"size:16;not null;index" json:"status"`
	CreatedAt time.Time       `gorm:"index:idx_trade_histories_coin_created" json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (TradeHistory) TableName() string { return "trade_histories" }

// TotalValue is amount multiplied by price.
func (t TradeHistory) TotalValue() decimal.Decimal {
	return t.Amount.Mul(t.Price)
}

// Field exposes filterable columns by name for in-memory evaluation.
func (t TradeHistory) Field(name string) (interface{}, bool) {
	switch name {
	case "history_id":
		return t.HistoryID, true
	case "user_id":
		return t.UserID, true
	case "coin_id":
		return t.CoinID, true
	case "seq":
		return t.Seq, true
	case "author_id":
		return t.AuthorID, true
	case "amount":
		return t.Amount, true
	case "price":
		return t.Price, true
	case "side":
		return t.Side, true
	case "status":
		return t.Status, true
	case "created_at":
		return t.CreatedAt, true
	case "updated_at":
		return t.UpdatedAt, true
	}
	return nil, false
}

// TradeColumns lists the columns that may appear in trade filters and orderings.
var TradeColumns = []string{
	"history_id", "user_id", "coin_id", "seq", "author_id", "amount", "price",
	"side", "status", "created_at", "updated_at",
}

// TradeInfo is a trade record with its total value.
type TradeInfo struct {
	TradeHistory
	TotalValue decimal.Decimal `json:"total_value"`
}

// Info returns the trade with its computed total value.
func (t TradeHistory) Info() TradeInfo {
	return TradeInfo{TradeHistory: t, TotalValue: t.TotalValue()}
}
