package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/models"
)

// Sink receives coin and trade updates from a Publisher.
type Sink interface {
	CacheCoin(ctx context.Context, coin models.Coin) error
	InvalidateCoin(ctx context.Context, coinID string) error
	PushRecentTrade(ctx context.Context, trade models.TradeHistory) error
	Publish(ctx context.Context, channel string, message interface{}) error
}

type redisSink struct{}

func (redisSink) CacheCoin(ctx context.Context, coin models.Coin) error { return CacheCoin(ctx, coin) }

func (redisSink) InvalidateCoin(ctx context.Context, coinID string) error {
	return InvalidateCoin(ctx, coinID)
}

func (redisSink) PushRecentTrade(ctx context.Context, trade models.TradeHistory) error {
	return PushRecentTrade(ctx, trade)
}

func (redisSink) Publish(ctx context.Context, channel string, message interface{}) error {
	return Publish(ctx, channel, message)
}

// RedisSink writes to the initialized RedisClient.
func RedisSink() Sink { return redisSink{} }

type update struct {
	coin  models.Coin
	trade *models.TradeHistory
}

// Publisher mirrors coin snapshots and trades into the cache and onto the
// ticker channels. Updates are queued so the caller never waits on Redis;
// when the queue is full the update is dropped.
type Publisher struct {
	sink    Sink
	queue   chan update
	dropped atomic.Int64
}

func NewPublisher(sink Sink, size int) *Publisher {
	if size <= 0 {
		size = 1024
	}
	return &Publisher{sink: sink, queue: make(chan update, size)}
}

func (p *Publisher) CoinUpdated(coin models.Coin) {
	p.enqueue(update{coin: coin})
}

func (p *Publisher) TradeExecuted(trade models.TradeHistory, coin models.Coin) {
	p.enqueue(update{coin: coin, trade: &trade})
}

func (p *Publisher) enqueue(u update) {
	select {
	case p.queue <- u:
	default:
		if n := p.dropped.Add(1); n%100 == 1 {
			logrus.WithFields(logrus.Fields{
				"coin_id": u.coin.CoinID,
				"dropped": n,
			}).Warn("Cache publisher queue full, dropping update")
		}
	}
}

// Dropped is the number of updates discarded because the queue was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Run drains the queue until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-p.queue:
			p.flush(ctx, u)
		}
	}
}

func (p *Publisher) flush(ctx context.Context, u update) {
	log := logrus.WithField("coin_id", u.coin.CoinID)

	if err := p.sink.CacheCoin(ctx, u.coin); err != nil {
		log.WithError(err).Warn("Failed to cache coin snapshot")
		// an older snapshot must not outlive a failed refresh
		if err := p.sink.InvalidateCoin(ctx, u.coin.CoinID); err != nil {
			log.WithError(err).Warn("Failed to invalidate coin snapshot")
		}
	}
	if err := p.sink.Publish(ctx, fmt.Sprintf(KeyTickerChannel, u.coin.CoinID), u.coin.PriceInfo()); err != nil {
		log.WithError(err).Warn("Failed to publish ticker")
	}
	if u.trade == nil {
		return
	}
	log = log.WithField("trade_id", u.trade.HistoryID)
	if err := p.sink.PushRecentTrade(ctx, *u.trade); err != nil {
		log.WithError(err).Warn("Failed to cache recent trade")
	}
	if err := p.sink.Publish(ctx, fmt.Sprintf(KeyTradesChannel, u.coin.CoinID), u.trade.Info()); err != nil {
		log.WithError(err).Warn("Failed to publish trade")
	}
}
