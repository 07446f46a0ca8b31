package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a user's base-coin cash balance.
type Account struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	UserID    string          `gorm:"uniqueIndex;size:64;not null" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Holding is the quantity of a coin held by a user.
type Holding struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	UserID    string          `gorm:"size:64;not null;uniqueIndex:idx_holdings_user_coin" json:"user_id"`
	CoinID    string          `gorm:"size:32;not null;uniqueIndex:idx_holdings_user_coin" json:"coin_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }
func (Holding) TableName() string { return "holdings" }

// Settlement describes the wallet movement of a single trade.
type Settlement struct {
	UserID   string
	CoinID   string
	Side     TradeSide
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Cost is the base-coin value moved by the settlement.
func (s Settlement) Cost() decimal.Decimal {
	return s.Quantity.Mul(s.Price)
}
