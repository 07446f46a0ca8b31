package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedCoins(t *testing.T, s *CoinStore) {
	t.Helper()
	ctx := context.Background()
	for i, name := range []string{"Alpha", "beta", "Gamma"} {
		_, err := s.Create(ctx, models.Coin{
			CoinID:       name,
			Name:         name,
			Symbol:       name[:1],
			CurrentPrice: decimal.NewFromInt(int64(10 * (i + 1))),
			Rank:         models.IntPtr(3 - i),
			IsActive:     i != 2,
			IsTradeable:  true,
		})
		require.NoError(t, err)
	}
}

func TestCoinStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewCoinStore(WithClock(StepClock(epoch, time.Second)))

	created, err := s.Create(ctx, models.Coin{Name: "Solo"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.CoinID)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, epoch, created.CreatedAt)

	found, err := s.FindByID(ctx, created.CoinID)
	require.NoError(t, err)
	assert.Equal(t, created, found)

	_, err = s.Create(ctx, models.Coin{CoinID: created.CoinID})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = s.FindByID(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCoinStoreUpdateVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewCoinStore()
	seedCoins(t, s)

	price := decimal.NewFromInt(99)
	updated, err := s.Update(ctx, "Alpha", models.CoinPatch{CurrentPrice: &price}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.True(t, updated.CurrentPrice.Equal(price))

	_, err = s.Update(ctx, "Alpha", models.CoinPatch{IsTradeable: models.BoolPtr(false)}, 1)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	unconditional, err := s.Update(ctx, "Alpha", models.CoinPatch{IsTradeable: models.BoolPtr(false)}, 0)
	require.NoError(t, err)
	assert.False(t, unconditional.IsTradeable)
	assert.Equal(t, int64(3), unconditional.Version)

	_, err = s.Update(ctx, "nope", models.CoinPatch{}, 0)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCoinStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewCoinStore()
	seedCoins(t, s)

	coin, err := s.FindByID(ctx, "Alpha")
	require.NoError(t, err)
	coin.Name = "mutated"
	*coin.Rank = 42

	again, err := s.FindByID(ctx, "Alpha")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", again.Name)
	assert.Equal(t, 3, *again.Rank)
}

func TestCoinStoreFindMany(t *testing.T) {
	ctx := context.Background()
	s := NewCoinStore()
	seedCoins(t, s)

	byRank, err := s.FindMany(ctx, query.Eq("is_active", true), query.Page{OrderBy: []query.Order{query.Asc("rank")}})
	require.NoError(t, err)
	require.Len(t, byRank, 2)
	assert.Equal(t, "beta", byRank[0].CoinID)
	assert.Equal(t, "Alpha", byRank[1].CoinID)

	search, err := s.FindMany(ctx, query.Contains("name", "A").Insensitive(), query.PageOf(0, 10, query.Desc("current_price")))
	require.NoError(t, err)
	assert.Len(t, search, 3)
	assert.Equal(t, "Gamma", search[0].CoinID)

	n, err := s.Count(ctx, query.Or(query.Eq("symbol", "b"), query.Gte("current_price", 30)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.FindMany(ctx, query.Eq("owner", "x"), query.Page{})
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))
}

func TestCoinStoreRankCopyOnUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewCoinStore()
	seedCoins(t, s)

	rank := 7
	_, err := s.Update(ctx, "beta", models.CoinPatch{Rank: &rank}, 0)
	require.NoError(t, err)
	rank = 8

	coin, err := s.FindByID(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, 7, *coin.Rank)
}

func TestTradeStoreOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore(WithClock(StepClock(epoch, time.Minute)))

	sides := []models.TradeSide{models.TradeSideBuy, models.TradeSideSell, models.TradeSideBuy}
	var ids []string
	for i, side := range sides {
		trade, err := s.Create(ctx, models.TradeHistory{
			UserID: "u1",
			CoinID: "c1",
			Amount: decimal.NewFromInt(int64(i + 1)),
			Price:  decimal.NewFromInt(10),
			Side:   side,
			Status: models.TradeStatusCompleted,
		})
		require.NoError(t, err)
		ids = append(ids, trade.HistoryID)
	}

	all, err := s.FindMany(ctx, nil, query.Page{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids, []string{all[0].HistoryID, all[1].HistoryID, all[2].HistoryID})

	newest, err := s.FindMany(ctx, query.Eq("side", models.TradeSideBuy), query.Page{Limit: 1, OrderBy: []query.Order{query.Desc("created_at")}})
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, ids[2], newest[0].HistoryID)

	after, err := s.Count(ctx, query.Gt("created_at", epoch))
	require.NoError(t, err)
	assert.Equal(t, int64(2), after)
}

func TestTradeStoreSequencePerCoin(t *testing.T) {
	ctx := context.Background()
	// every trade gets the same timestamp, so only seq orders them
	s := NewTradeStore(WithClock(func() time.Time { return epoch }))

	for _, seq := range []int64{2, 1, 3} {
		_, err := s.Create(ctx, models.TradeHistory{UserID: "u1", CoinID: "c1", Seq: seq, Side: models.TradeSideBuy, Status: models.TradeStatusCompleted})
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, models.TradeHistory{UserID: "u1", CoinID: "c2", Seq: 1, Side: models.TradeSideBuy, Status: models.TradeStatusCompleted})
	require.NoError(t, err)
	_, err = s.Create(ctx, models.TradeHistory{UserID: "u1", CoinID: "c1", Side: models.TradeSideSend, Status: models.TradeStatusCompleted})
	require.NoError(t, err)

	_, err = s.Create(ctx, models.TradeHistory{UserID: "u2", CoinID: "c1", Seq: 2, Side: models.TradeSideSell, Status: models.TradeStatusCompleted})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	above, err := s.FindMany(ctx,
		query.And(query.Eq("coin_id", "c1"), query.Gt("seq", int64(1))),
		query.Page{OrderBy: []query.Order{query.Asc("seq")}})
	require.NoError(t, err)
	require.Len(t, above, 2)
	assert.Equal(t, int64(2), above[0].Seq)
	assert.Equal(t, int64(3), above[1].Seq)
}

func TestTradeStoreUpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()

	trade, err := s.Create(ctx, models.TradeHistory{UserID: "u", CoinID: "c", Side: models.TradeSideBuy, Status: models.TradeStatusCompleted})
	require.NoError(t, err)

	failed, err := s.UpdateStatus(ctx, trade.HistoryID, models.TradeStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusFailed, failed.Status)

	reloaded, err := s.FindByID(ctx, trade.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusFailed, reloaded.Status)

	_, err = s.UpdateStatus(ctx, "missing", models.TradeStatusFailed)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestWalletSettleAndReverse(t *testing.T) {
	ctx := context.Background()
	w := NewWallet()

	_, err := w.Deposit(ctx, "u1", decimal.NewFromInt(100))
	require.NoError(t, err)

	buy := models.Settlement{UserID: "u1", CoinID: "c1", Side: models.TradeSideBuy, Quantity: decimal.NewFromInt(4), Price: decimal.NewFromInt(20)}
	require.NoError(t, w.Settle(ctx, buy))

	account, err := w.Account(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(20)))

	holdings, err := w.Holdings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].Amount.Equal(decimal.NewFromInt(4)))

	err = w.Settle(ctx, buy)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	sell := models.Settlement{UserID: "u1", CoinID: "c1", Side: models.TradeSideSell, Quantity: decimal.NewFromInt(5), Price: decimal.NewFromInt(1)}
	assert.True(t, apperr.Is(w.Settle(ctx, sell), apperr.KindInvalidState))

	require.NoError(t, w.Reverse(ctx, buy))
	account, err = w.Account(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(100)))

	holdings, err = w.Holdings(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, holdings)

	_, err = w.Account(ctx, "ghost")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
