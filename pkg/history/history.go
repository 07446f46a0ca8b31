// Package history answers queries over the trade history ledger and keeps
// per-user and per-coin trading statistics.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/lock"
	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
	"coinfolio-engine/pkg/store"
)

const defaultLimit = 50

// Service reads and annotates trade records.
type Service struct {
	trades   store.TradeStore
	now      func() time.Time
	locker   lock.Locker
	lockWait time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for the statistics window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocker shares the trade coordinator's per-coin locker, so status
// changes on buys and sells never interleave with a replay of the same coin.
func WithLocker(l lock.Locker, wait time.Duration) Option {
	return func(s *Service) { s.locker, s.lockWait = l, wait }
}

func NewService(trades store.TradeStore, opts ...Option) *Service {
	s := &Service{trades: trades, now: time.Now, locker: lock.NewLocal(), lockWait: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newestFirst(p query.Page) query.Page {
	return p.WithDefaults(defaultLimit, query.Desc("created_at"), query.Desc("history_id"))
}

// Get returns a single trade record.
func (s *Service) Get(ctx context.Context, historyID string) (models.TradeHistory, error) {
	if historyID == "" {
		return models.TradeHistory{}, apperr.InvalidArgument("history.get", "history id is required")
	}
	return s.trades.FindByID(ctx, historyID)
}

// Record appends a trade record that does not move a price, such as a
// transfer. Buy and sell records are written by the trade coordinator.
func (s *Service) Record(ctx context.Context, trade models.TradeHistory) (models.TradeHistory, error) {
	const op = "history.record"
	switch {
	case trade.UserID == "" || trade.CoinID == "":
		return models.TradeHistory{}, apperr.InvalidArgument(op, "user id and coin id are required")
	case trade.Side != models.TradeSideSend && trade.Side != models.TradeSideCatch:
		return models.TradeHistory{}, apperr.Newf(apperr.KindInvalidArgument, op, "side %q is recorded by the trade coordinator", trade.Side)
	case !trade.Amount.IsPositive():
		return models.TradeHistory{}, apperr.InvalidArgument(op, "amount must be positive")
	case trade.Price.IsNegative():
		return models.TradeHistory{}, apperr.InvalidArgument(op, "price must not be negative")
	}
	if trade.Status == "" {
		trade.Status = models.TradeStatusLoading
	}
	if !trade.Status.Valid() {
		return models.TradeHistory{}, apperr.Newf(apperr.KindInvalidArgument, op, "unknown status %q", trade.Status)
	}
	return s.trades.Create(ctx, trade)
}

// Search returns trades matching filter, newest first unless page orders
// otherwise, together with the total number of matches.
func (s *Service) Search(ctx context.Context, filter query.Expr, page query.Page) ([]models.TradeHistory, int64, error) {
	trades, err := s.trades.FindMany(ctx, filter, newestFirst(page))
	if err != nil {
		return nil, 0, err
	}
	total, err := s.trades.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

func (s *Service) Count(ctx context.Context, filter query.Expr) (int64, error) {
	return s.trades.Count(ctx, filter)
}

func (s *Service) ByUser(ctx context.Context, userID string, page query.Page) ([]models.TradeHistory, int64, error) {
	return s.Search(ctx, query.Eq("user_id", userID), page)
}

func (s *Service) ByCoin(ctx context.Context, coinID string, page query.Page) ([]models.TradeHistory, int64, error) {
	return s.Search(ctx, query.Eq("coin_id", coinID), page)
}

// ByDateRange returns trades created within [from, to].
func (s *Service) ByDateRange(ctx context.Context, from, to time.Time, page query.Page) ([]models.TradeHistory, int64, error) {
	if to.Before(from) {
		return nil, 0, apperr.InvalidArgument("history.by_date_range", "range end is before its start")
	}
	return s.Search(ctx, query.Between("created_at", from, to), page)
}

func (s *Service) BySide(ctx context.Context, side models.TradeSide, page query.Page) ([]models.TradeHistory, int64, error) {
	if !side.Valid() {
		return nil, 0, apperr.Newf(apperr.KindInvalidArgument, "history.by_side", "unknown side %q", side)
	}
	return s.Search(ctx, query.Eq("side", side), page)
}

func (s *Service) ByStatus(ctx context.Context, status models.TradeStatus, page query.Page) ([]models.TradeHistory, int64, error) {
	if !status.Valid() {
		return nil, 0, apperr.Newf(apperr.KindInvalidArgument, "history.by_status", "unknown status %q", status)
	}
	return s.Search(ctx, query.Eq("status", status), page)
}

// Cancel marks a trade failed. A completed buy or sell keeps its price
// impact; a record still pending reconciliation is never replayed.
func (s *Service) Cancel(ctx context.Context, historyID string) (models.TradeHistory, error) {
	return s.transition(ctx, "history.cancel", historyID, models.TradeStatusFailed)
}

// Complete marks a loading trade completed.
func (s *Service) Complete(ctx context.Context, historyID string) (models.TradeHistory, error) {
	return s.transition(ctx, "history.complete", historyID, models.TradeStatusCompleted)
}

func (s *Service) transition(ctx context.Context, op, historyID string, next models.TradeStatus) (models.TradeHistory, error) {
	trade, err := s.Get(ctx, historyID)
	if err != nil {
		return models.TradeHistory{}, err
	}
	if trade.Side.MovesPrice() {
		unlock, err := s.lockCoin(ctx, op, trade.CoinID)
		if err != nil {
			return models.TradeHistory{}, err
		}
		defer unlock()
		// reread under the lock; a replay may have finished meanwhile
		if trade, err = s.Get(ctx, historyID); err != nil {
			return models.TradeHistory{}, err
		}
	}
	if !trade.Status.CanTransition(next) {
		return models.TradeHistory{}, apperr.Newf(apperr.KindInvalidState, op, "trade %s cannot move from %s to %s", historyID, trade.Status, next)
	}
	updated, err := s.trades.UpdateStatus(ctx, historyID, next)
	if err != nil {
		return models.TradeHistory{}, err
	}
	logrus.WithFields(logrus.Fields{
		"trade_id": historyID,
		"coin_id":  trade.CoinID,
		"from":     trade.Status,
		"to":       next,
	}).Info("Trade status changed")
	return updated, nil
}

func (s *Service) lockCoin(ctx context.Context, op, coinID string) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	unlock, err := s.locker.Lock(lctx, coinID)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindConflict, Op: op, Msg: fmt.Sprintf("coin %s is busy", coinID), Err: err}
	}
	return unlock, nil
}

// UserStats summarises a user's completed trades over the last days days.
type UserStats struct {
	TotalTrades  int64           `json:"total_trades"`
	TotalVolume  decimal.Decimal `json:"total_volume"`
	BuyCount     int64           `json:"buy_count"`
	SellCount    int64           `json:"sell_count"`
	AvgTradeSize decimal.Decimal `json:"avg_trade_size"`
	TotalSpent   decimal.Decimal `json:"total_spent"`
	TotalEarned  decimal.Decimal `json:"total_earned"`
}

// CoinStats summarises a coin's completed trades over the last days days.
type CoinStats struct {
	TotalTrades int64           `json:"total_trades"`
	TotalVolume decimal.Decimal `json:"total_volume"`
	BuyVolume   decimal.Decimal `json:"buy_volume"`
	SellVolume  decimal.Decimal `json:"sell_volume"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	HighPrice   decimal.Decimal `json:"high_price"`
	LowPrice    decimal.Decimal `json:"low_price"`
}

func (s *Service) UserStats(ctx context.Context, userID string, days int) (UserStats, error) {
	trades, err := s.completedSince(ctx, "history.user_stats", query.Eq("user_id", userID), days)
	if err != nil {
		return UserStats{}, err
	}

	stats := UserStats{
		TotalVolume:  decimal.Zero,
		AvgTradeSize: decimal.Zero,
		TotalSpent:   decimal.Zero,
		TotalEarned:  decimal.Zero,
	}
	for _, t := range trades {
		value := t.TotalValue()
		stats.TotalTrades++
		stats.TotalVolume = stats.TotalVolume.Add(value)
		switch t.Side {
		case models.TradeSideBuy:
			stats.BuyCount++
			stats.TotalSpent = stats.TotalSpent.Add(value)
		case models.TradeSideSell:
			stats.SellCount++
			stats.TotalEarned = stats.TotalEarned.Add(value)
		}
	}
	if stats.TotalTrades > 0 {
		stats.AvgTradeSize = stats.TotalVolume.Div(decimal.NewFromInt(stats.TotalTrades))
	}
	return stats, nil
}

func (s *Service) CoinStats(ctx context.Context, coinID string, days int) (CoinStats, error) {
	trades, err := s.completedSince(ctx, "history.coin_stats", query.Eq("coin_id", coinID), days)
	if err != nil {
		return CoinStats{}, err
	}

	stats := CoinStats{
		TotalVolume: decimal.Zero,
		BuyVolume:   decimal.Zero,
		SellVolume:  decimal.Zero,
		AvgPrice:    decimal.Zero,
		HighPrice:   decimal.Zero,
		LowPrice:    decimal.Zero,
	}
	priceSum := decimal.Zero
	for i, t := range trades {
		value := t.TotalValue()
		stats.TotalTrades++
		stats.TotalVolume = stats.TotalVolume.Add(value)
		priceSum = priceSum.Add(t.Price)
		switch t.Side {
		case models.TradeSideBuy:
			stats.BuyVolume = stats.BuyVolume.Add(value)
		case models.TradeSideSell:
			stats.SellVolume = stats.SellVolume.Add(value)
		}
		if i == 0 || t.Price.GreaterThan(stats.HighPrice) {
			stats.HighPrice = t.Price
		}
		if i == 0 || t.Price.LessThan(stats.LowPrice) {
			stats.LowPrice = t.Price
		}
	}
	if stats.TotalTrades > 0 {
		stats.AvgPrice = priceSum.Div(decimal.NewFromInt(stats.TotalTrades))
	}
	return stats, nil
}

func (s *Service) completedSince(ctx context.Context, op string, scope query.Expr, days int) ([]models.TradeHistory, error) {
	if days <= 0 {
		return nil, apperr.InvalidArgument(op, "days must be positive")
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	return s.trades.FindMany(ctx, query.And(
		scope,
		query.Eq("status", models.TradeStatusCompleted),
		query.Gte("created_at", since),
	), query.Page{OrderBy: []query.Order{query.Asc("created_at")}})
}
