// Package store declares the persistence contract the engine depends on.
// Implementations live in gormstore (postgres) and memstore (in-process).
//
// Every implementation reports missing rows as apperr.KindNotFound, version
// mismatches as apperr.KindConflict and I/O failures as apperr.KindPersistence.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
)

// CoinStore persists coins.
type CoinStore interface {
	FindByID(ctx context.Context, coinID string) (models.Coin, error)
	FindMany(ctx context.Context, filter query.Expr, page query.Page) ([]models.Coin, error)
	Count(ctx context.Context, filter query.Expr) (int64, error)
	Create(ctx context.Context, coin models.Coin) (models.Coin, error)
	// Update applies patch, stamps updated_at and bumps the version. When
	// expectedVersion is positive the write only happens if it still matches.
	Update(ctx context.Context, coinID string, patch models.CoinPatch, expectedVersion int64) (models.Coin, error)
}

// TradeStore persists trade history records.
type TradeStore interface {
	Create(ctx context.Context, trade models.TradeHistory) (models.TradeHistory, error)
	FindByID(ctx context.Context, historyID string) (models.TradeHistory, error)
	UpdateStatus(ctx context.Context, historyID string, status models.TradeStatus) (models.TradeHistory, error)
	FindMany(ctx context.Context, filter query.Expr, page query.Page) ([]models.TradeHistory, error)
	Count(ctx context.Context, filter query.Expr) (int64, error)
}

// Wallet moves base-coin balance and coin holdings for a trade.
type Wallet interface {
	// Settle debits or credits the account and holdings atomically.
	// Insufficient funds or holdings are apperr.KindInvalidState.
	Settle(ctx context.Context, s models.Settlement) error
	// Reverse undoes a previous Settle.
	Reverse(ctx context.Context, s models.Settlement) error
	Account(ctx context.Context, userID string) (models.Account, error)
	Holdings(ctx context.Context, userID string) ([]models.Holding, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (models.Account, error)
}
