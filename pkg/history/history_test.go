package history

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/lock"
	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
	"coinfolio-engine/pkg/store/memstore"
)

var now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seed(t *testing.T) (*Service, *memstore.TradeStore) {
	t.Helper()
	trades := memstore.NewTradeStore()
	ctx := context.Background()

	rows := []models.TradeHistory{
		{HistoryID: "t1", UserID: "alice", CoinID: "c1", Amount: dec("10"), Price: dec("100"), Side: models.TradeSideBuy, Status: models.TradeStatusCompleted, CreatedAt: now.Add(-72 * time.Hour)},
		{HistoryID: "t2", UserID: "alice", CoinID: "c1", Amount: dec("4"), Price: dec("110"), Side: models.TradeSideSell, Status: models.TradeStatusCompleted, CreatedAt: now.Add(-2 * time.Hour)},
		{HistoryID: "t3", UserID: "bob", CoinID: "c1", Amount: dec("2"), Price: dec("90"), Side: models.TradeSideBuy, Status: models.TradeStatusCompleted, CreatedAt: now.Add(-1 * time.Hour)},
		{HistoryID: "t4", UserID: "alice", CoinID: "c2", Amount: dec("1"), Price: dec("5"), Side: models.TradeSideBuy, Status: models.TradeStatusFailed, CreatedAt: now.Add(-30 * time.Minute)},
		{HistoryID: "t5", UserID: "alice", CoinID: "c1", Amount: dec("6"), Price: dec("120"), Side: models.TradeSideBuy, Status: models.TradeStatusCompleted, CreatedAt: now.Add(-10 * 24 * time.Hour)},
	}
	for _, row := range rows {
		_, err := trades.Create(ctx, row)
		require.NoError(t, err)
	}
	return NewService(trades, WithClock(func() time.Time { return now })), trades
}

func ids(trades []models.TradeHistory) []string {
	out := make([]string, len(trades))
	for i, t := range trades {
		out[i] = t.HistoryID
	}
	return out
}

func TestQueries(t *testing.T) {
	svc, _ := seed(t)
	ctx := context.Background()

	byUser, total, err := svc.ByUser(ctx, "alice", query.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Equal(t, []string{"t4", "t2", "t1", "t5"}, ids(byUser))

	byCoin, total, err := svc.ByCoin(ctx, "c1", query.PageOf(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Equal(t, []string{"t1", "t5"}, ids(byCoin))

	ranged, _, err := svc.ByDateRange(ctx, now.Add(-3*time.Hour), now.Add(-time.Hour), query.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"t3", "t2"}, ids(ranged))

	sells, _, err := svc.BySide(ctx, models.TradeSideSell, query.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ids(sells))

	failed, _, err := svc.ByStatus(ctx, models.TradeStatusFailed, query.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"t4"}, ids(failed))

	oldestFirst, _, err := svc.Search(ctx, query.Gt("price", dec("95")), query.Page{OrderBy: []query.Order{query.Asc("created_at")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t5", "t1", "t2"}, ids(oldestFirst))

	n, err := svc.Count(ctx, query.Eq("user_id", "bob"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQueryArgumentErrors(t *testing.T) {
	svc, _ := seed(t)
	ctx := context.Background()

	_, _, err := svc.ByDateRange(ctx, now, now.Add(-time.Hour), query.Page{})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, _, err = svc.BySide(ctx, "swap", query.Page{})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, _, err = svc.ByStatus(ctx, "pending", query.Page{})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = svc.Get(ctx, "")
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = svc.Get(ctx, "nope")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestStatusTransitions(t *testing.T) {
	svc, _ := seed(t)
	ctx := context.Background()

	sent, err := svc.Record(ctx, models.TradeHistory{
		UserID: "alice", CoinID: "c1", Amount: dec("1"), Price: decimal.Zero, Side: models.TradeSideSend,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusLoading, sent.Status)

	done, err := svc.Complete(ctx, sent.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusCompleted, done.Status)

	_, err = svc.Complete(ctx, sent.HistoryID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	cancelled, err := svc.Cancel(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusFailed, cancelled.Status)

	_, err = svc.Cancel(ctx, "t1")
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = svc.Cancel(ctx, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCancelWaitsForCoinLock(t *testing.T) {
	trades := memstore.NewTradeStore()
	ctx := context.Background()
	_, err := trades.Create(ctx, models.TradeHistory{HistoryID: "t1", UserID: "alice", CoinID: "c1", Amount: dec("1"), Price: dec("100"), Side: models.TradeSideBuy, Status: models.TradeStatusCompleted})
	require.NoError(t, err)
	_, err = trades.Create(ctx, models.TradeHistory{HistoryID: "s1", UserID: "alice", CoinID: "c1", Amount: dec("1"), Side: models.TradeSideSend, Status: models.TradeStatusLoading})
	require.NoError(t, err)

	locker := lock.NewLocal()
	svc := NewService(trades, WithLocker(locker, 20*time.Millisecond))

	unlock, err := locker.Lock(ctx, "c1")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "t1")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	unchanged, err := svc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusCompleted, unchanged.Status)

	// transfers never move the price, so they skip the coin lock
	sent, err := svc.Cancel(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusFailed, sent.Status)

	unlock()
	cancelled, err := svc.Cancel(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusFailed, cancelled.Status)
	assert.Zero(t, locker.Len())
}

func TestRecordRejectsPriceMovingSides(t *testing.T) {
	svc, _ := seed(t)

	_, err := svc.Record(context.Background(), models.TradeHistory{
		UserID: "alice", CoinID: "c1", Amount: dec("1"), Price: dec("1"), Side: models.TradeSideBuy,
	})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = svc.Record(context.Background(), models.TradeHistory{
		UserID: "alice", CoinID: "c1", Amount: decimal.Zero, Side: models.TradeSideCatch,
	})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestUserStats(t *testing.T) {
	svc, _ := seed(t)

	stats, err := svc.UserStats(context.Background(), "alice", 7)
	require.NoError(t, err)

	// t1 and t2; t4 failed and t5 is outside the window
	assert.Equal(t, int64(2), stats.TotalTrades)
	assert.Equal(t, int64(1), stats.BuyCount)
	assert.Equal(t, int64(1), stats.SellCount)
	assert.True(t, stats.TotalSpent.Equal(dec("1000")))
	assert.True(t, stats.TotalEarned.Equal(dec("440")))
	assert.True(t, stats.TotalVolume.Equal(dec("1440")))
	assert.True(t, stats.AvgTradeSize.Equal(dec("720")))

	empty, err := svc.UserStats(context.Background(), "carol", 7)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalTrades)
	assert.True(t, empty.AvgTradeSize.IsZero())

	_, err = svc.UserStats(context.Background(), "alice", 0)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestCoinStats(t *testing.T) {
	svc, _ := seed(t)

	stats, err := svc.CoinStats(context.Background(), "c1", 30)
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.TotalTrades)
	assert.True(t, stats.BuyVolume.Equal(dec("1900")))
	assert.True(t, stats.SellVolume.Equal(dec("440")))
	assert.True(t, stats.TotalVolume.Equal(dec("2340")))
	assert.True(t, stats.AvgPrice.Equal(dec("105")))
	assert.True(t, stats.HighPrice.Equal(dec("120")))
	assert.True(t, stats.LowPrice.Equal(dec("90")))
}
