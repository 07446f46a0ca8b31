package engine

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
)

type mockCoinStore struct {
	mock.Mock
}

func (m *mockCoinStore) FindByID(ctx context.Context, coinID string) (models.Coin, error) {
	args := m.Called(ctx, coinID)
	return args.Get(0).(models.Coin), args.Error(1)
}

func (m *mockCoinStore) FindMany(ctx context.Context, filter query.Expr, page query.Page) ([]models.Coin, error) {
	args := m.Called(ctx, filter, page)
	return args.Get(0).([]models.Coin), args.Error(1)
}

func (m *mockCoinStore) Count(ctx context.Context, filter query.Expr) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCoinStore) Create(ctx context.Context, coin models.Coin) (models.Coin, error) {
	args := m.Called(ctx, coin)
	return args.Get(0).(models.Coin), args.Error(1)
}

func (m *mockCoinStore) Update(ctx context.Context, coinID string, patch models.CoinPatch, expectedVersion int64) (models.Coin, error) {
	args := m.Called(ctx, coinID, patch, expectedVersion)
	return args.Get(0).(models.Coin), args.Error(1)
}

type mockTradeStore struct {
	mock.Mock
}

func (m *mockTradeStore) Create(ctx context.Context, trade models.TradeHistory) (models.TradeHistory, error) {
	args := m.Called(ctx, trade)
	return args.Get(0).(models.TradeHistory), args.Error(1)
}

func (m *mockTradeStore) FindByID(ctx context.Context, historyID string) (models.TradeHistory, error) {
	args := m.Called(ctx, historyID)
	return args.Get(0).(models.TradeHistory), args.Error(1)
}

func (m *mockTradeStore) UpdateStatus(ctx context.Context, historyID string, status models.TradeStatus) (models.TradeHistory, error) {
	args := m.Called(ctx, historyID, status)
	return args.Get(0).(models.TradeHistory), args.Error(1)
}

func (m *mockTradeStore) FindMany(ctx context.Context, filter query.Expr, page query.Page) ([]models.TradeHistory, error) {
	args := m.Called(ctx, filter, page)
	return args.Get(0).([]models.TradeHistory), args.Error(1)
}

func (m *mockTradeStore) Count(ctx context.Context, filter query.Expr) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

// recorder is a Notifier that remembers what it was told.
type recorder struct {
	mu     sync.Mutex
	coins  []models.Coin
	trades []models.TradeHistory
}

func (r *recorder) CoinUpdated(coin models.Coin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coins = append(r.coins, coin)
}

func (r *recorder) TradeExecuted(trade models.TradeHistory, coin models.Coin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, trade)
	r.coins = append(r.coins, coin)
}

func (r *recorder) tradeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trades)
}

func (r *recorder) coinCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.coins)
}

func (r *recorder) lastCoin() models.Coin {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.coins) == 0 {
		return models.Coin{}
	}
	return r.coins[len(r.coins)-1]
}
