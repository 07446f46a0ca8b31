package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinfolio-engine/pkg/models"
)

type fakeSink struct {
	mu        sync.Mutex
	coins     []models.Coin
	trades    []models.TradeHistory
	channels  []string
	dropped   []string
	failCache bool
}

func (f *fakeSink) CacheCoin(_ context.Context, coin models.Coin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCache {
		return errors.New("redis down")
	}
	f.coins = append(f.coins, coin)
	return nil
}

func (f *fakeSink) InvalidateCoin(_ context.Context, coinID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, coinID)
	return nil
}

func (f *fakeSink) PushRecentTrade(_ context.Context, trade models.TradeHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, trade)
	return nil
}

func (f *fakeSink) Publish(_ context.Context, channel string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakeSink) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.channels...)
}

func TestPublisherFlushesCoinAndTrade(t *testing.T) {
	sink := &fakeSink{}
	p := NewPublisher(sink, 8)
	coin := models.Coin{CoinID: "c1", CurrentPrice: decimal.NewFromInt(101)}

	p.CoinUpdated(coin)
	p.TradeExecuted(models.TradeHistory{HistoryID: "t1", CoinID: "c1"}, coin)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return len(sink.published()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"ticker:c1", "ticker:c1", "trades:c1"}, sink.published())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.coins, 2)
	require.Len(t, sink.trades, 1)
	assert.Equal(t, "t1", sink.trades[0].HistoryID)
}

func TestPublisherContinuesAfterSinkError(t *testing.T) {
	sink := &fakeSink{failCache: true}
	p := NewPublisher(sink, 8)

	p.flush(context.Background(), update{coin: models.Coin{CoinID: "c9"}})
	assert.Equal(t, []string{"ticker:c9"}, sink.published())
	assert.Equal(t, []string{"c9"}, sink.dropped)
}

func TestPublisherKeepsSnapshotOnSuccess(t *testing.T) {
	sink := &fakeSink{}
	p := NewPublisher(sink, 8)

	p.flush(context.Background(), update{coin: models.Coin{CoinID: "c1", Version: 2}})
	assert.Empty(t, sink.dropped)
	require.Len(t, sink.coins, 1)
}

func TestPublisherDropsWhenFull(t *testing.T) {
	p := NewPublisher(&fakeSink{}, 2)
	for i := 0; i < 5; i++ {
		p.CoinUpdated(models.Coin{CoinID: "c1"})
	}
	assert.Equal(t, int64(3), p.Dropped())
}

func TestHealthCheckWithoutClient(t *testing.T) {
	saved := RedisClient
	RedisClient = nil
	defer func() { RedisClient = saved }()

	assert.False(t, Enabled())
	assert.Error(t, HealthCheck(context.Background()))
}
