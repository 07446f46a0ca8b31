// Package engine coordinates trades against coins: it validates requests,
// serialises per-coin mutations, records trade history, applies the price
// impact and reports partial failures for the reconciler to repair.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/config"
	"coinfolio-engine/pkg/lock"
	"coinfolio-engine/pkg/metrics"
	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/pricing"
	"coinfolio-engine/pkg/store"
)

// Options tune the coordinator.
type Options struct {
	MaxConflictRetries int
	OperationTimeout   time.Duration
	LockWait           time.Duration
	DefaultTotalSupply decimal.Decimal
	DefaultTradingFee  decimal.Decimal
	ListLimit          int
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxConflictRetries: 3,
		OperationTimeout:   5 * time.Second,
		LockWait:           5 * time.Second,
		DefaultTotalSupply: decimal.NewFromInt(1000000),
		DefaultTradingFee:  decimal.RequireFromString("0.001"),
		ListLimit:          20,
	}
}

// OptionsFromConfig maps trading configuration onto Options.
func OptionsFromConfig(tc config.TradingConfig) (Options, error) {
	opts := DefaultOptions()
	opts.MaxConflictRetries = tc.MaxConflictRetries
	opts.OperationTimeout = tc.OperationTimeout
	opts.LockWait = tc.LockWait

	var err error
	if opts.DefaultTotalSupply, err = decimal.NewFromString(tc.DefaultTotalSupply); err != nil {
		return Options{}, fmt.Errorf("parse default total supply: %w", err)
	}
	if opts.DefaultTradingFee, err = decimal.NewFromString(tc.DefaultTradingFee); err != nil {
		return Options{}, fmt.Errorf("parse default trading fee: %w", err)
	}
	return opts, nil
}

// Deps are the collaborators of a Service. Wallet and Notifier are optional.
type Deps struct {
	Coins      store.CoinStore
	Trades     store.TradeStore
	Wallet     store.Wallet
	Calculator *pricing.Calculator
	Locker     lock.Locker
	Notifier   Notifier
}

// Service is the trade execution coordinator.
type Service struct {
	coins   store.CoinStore
	trades  store.TradeStore
	wallet  store.Wallet
	calc    *pricing.Calculator
	locker  lock.Locker
	notify  Notifier
	opts    Options
	repairs chan string
}

func New(deps Deps, opts Options) *Service {
	defaults := DefaultOptions()
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = defaults.OperationTimeout
	}
	if opts.LockWait <= 0 {
		opts.LockWait = defaults.LockWait
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = defaults.ListLimit
	}
	if !opts.DefaultTotalSupply.IsPositive() {
		opts.DefaultTotalSupply = defaults.DefaultTotalSupply
	}
	if opts.MaxConflictRetries < 0 {
		opts.MaxConflictRetries = 0
	}

	s := &Service{
		coins:   deps.Coins,
		trades:  deps.Trades,
		wallet:  deps.Wallet,
		calc:    deps.Calculator,
		locker:  deps.Locker,
		notify:  deps.Notifier,
		opts:    opts,
		repairs: make(chan string, 64),
	}
	if s.calc == nil {
		s.calc = pricing.NewCalculator(pricing.DefaultParams(), nil)
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.notify == nil {
		s.notify = Notifiers{}
	}
	return s
}

// TradeRequest asks to buy or sell amount units of a coin. Price overrides
// the coin's current price when set.
type TradeRequest struct {
	CoinID  string
	ActorID string
	Side    models.TradeSide
	Amount  decimal.Decimal
	Price   *decimal.Decimal
}

func (r TradeRequest) validate(op string) error {
	switch {
	case r.CoinID == "":
		return apperr.InvalidArgument(op, "coin id is required")
	case r.ActorID == "":
		return apperr.InvalidArgument(op, "actor id is required")
	case !r.Side.MovesPrice():
		return apperr.Newf(apperr.KindInvalidArgument, op, "unsupported side %q", r.Side)
	case !r.Amount.IsPositive():
		return apperr.InvalidArgument(op, "amount must be positive")
	case r.Price != nil && !r.Price.IsPositive():
		return apperr.InvalidArgument(op, "price must be positive")
	}
	return nil
}

// TradeResult is the confirmation returned to the caller.
type TradeResult struct {
	Coin          models.Coin         `json:"coin"`
	Trade         models.TradeHistory `json:"trade"`
	PercentChange decimal.Decimal     `json:"percent_change"`
}

// Buy executes a buy. A nil price trades at the coin's current price.
func (s *Service) Buy(ctx context.Context, coinID, actorID string, amount decimal.Decimal, price *decimal.Decimal) (*TradeResult, error) {
	return s.ExecuteTrade(ctx, TradeRequest{CoinID: coinID, ActorID: actorID, Side: models.TradeSideBuy, Amount: amount, Price: price})
}

// Sell executes a sell. A nil price trades at the coin's current price.
func (s *Service) Sell(ctx context.Context, coinID, actorID string, amount decimal.Decimal, price *decimal.Decimal) (*TradeResult, error) {
	return s.ExecuteTrade(ctx, TradeRequest{CoinID: coinID, ActorID: actorID, Side: models.TradeSideSell, Amount: amount, Price: price})
}

// ExecuteTrade records a trade and moves the coin's price.
//
// A failure before the trade record exists leaves nothing behind. A failure
// to persist the coin afterwards returns a KindPartialApplication error
// together with the recorded trade and the last coin state that was
// persisted; the reconciler replays the rest later.
func (s *Service) ExecuteTrade(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	const op = "engine.execute_trade"
	started := time.Now()
	side := string(req.Side)

	if err := req.validate(op); err != nil {
		metrics.TradesTotal.WithLabelValues(side, metrics.ResultRejected).Inc()
		return nil, err
	}
	defer func() {
		metrics.TradeLatency.WithLabelValues(side).Observe(float64(time.Since(started).Microseconds()) / 1000)
	}()

	unlock, err := s.lock(ctx, op, req.CoinID)
	if err != nil {
		metrics.TradesTotal.WithLabelValues(side, metrics.ResultFailed).Inc()
		return nil, err
	}
	defer unlock()

	coin, err := s.findCoin(ctx, req.CoinID)
	if err != nil {
		metrics.TradesTotal.WithLabelValues(side, metrics.ResultRejected).Inc()
		return nil, err
	}
	if err := checkTradeable(op, coin); err != nil {
		metrics.TradesTotal.WithLabelValues(side, metrics.ResultRejected).Inc()
		return nil, err
	}

	unapplied, err := s.unappliedTrades(ctx, coin)
	if err != nil {
		metrics.TradesTotal.WithLabelValues(side, metrics.ResultFailed).Inc()
		return nil, err
	}

	price := coin.CurrentPrice
	if req.Price != nil {
		price = *req.Price
	}
	settlement := models.Settlement{
		UserID:   req.ActorID,
		CoinID:   coin.CoinID,
		Side:     req.Side,
		Quantity: req.Amount,
		Price:    price,
	}

	if err := s.settle(ctx, settlement); err != nil {
		metrics.TradesTotal.WithLabelValues(side, resultFor(err)).Inc()
		return nil, err
	}

	trade, err := s.recordTrade(ctx, models.TradeHistory{
		UserID: req.ActorID,
		CoinID: coin.CoinID,
		Seq:    nextSeq(coin, unapplied),
		Amount: req.Amount,
		Price:  price,
		Side:   req.Side,
		Status: models.TradeStatusCompleted,
	})
	if err != nil {
		s.reverse(ctx, settlement)
		metrics.TradesTotal.WithLabelValues(side, metrics.ResultFailed).Inc()
		return nil, apperr.Wrap(apperr.KindPersistence, op, err)
	}

	updated, impact, err := s.catchUp(ctx, coin, unapplied, trade)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"coin_id":  coin.CoinID,
			"trade_id": trade.HistoryID,
			"user_id":  trade.UserID,
			"side":     trade.Side,
			"amount":   trade.Amount.String(),
			"price":    trade.Price.String(),
			"step":     "persist_coin",
		}).WithError(err).Error("Trade recorded but coin update failed")
		metrics.PartialApplications.Inc()
		metrics.TradesTotal.WithLabelValues(side, metrics.ResultPartial).Inc()
		s.requestRepair(coin.CoinID)
		return &TradeResult{Coin: updated, Trade: trade}, &apperr.Error{
			Kind: apperr.KindPartialApplication,
			Op:   op,
			Msg:  fmt.Sprintf("trade %s recorded but coin %s was not updated", trade.HistoryID, coin.CoinID),
			Err:  err,
		}
	}

	metrics.TradesTotal.WithLabelValues(side, metrics.ResultSuccess).Inc()
	metrics.PriceImpactPercent.WithLabelValues(side).Observe(impact.PercentChange.Abs().InexactFloat64())
	logrus.WithFields(logrus.Fields{
		"coin_id":   updated.CoinID,
		"trade_id":  trade.HistoryID,
		"side":      trade.Side,
		"new_price": updated.CurrentPrice.String(),
	}).Debug("Trade executed")

	s.notify.TradeExecuted(trade, updated)
	return &TradeResult{Coin: updated, Trade: trade, PercentChange: impact.PercentChange}, nil
}

func checkTradeable(op string, coin models.Coin) error {
	if !coin.Tradeable() {
		if !coin.IsActive {
			return apperr.Newf(apperr.KindInvalidState, op, "coin %s is not active", coin.CoinID)
		}
		return apperr.Newf(apperr.KindInvalidState, op, "trading is halted for coin %s", coin.CoinID)
	}
	if !coin.CurrentSupply.IsPositive() || !coin.TotalSupply.IsPositive() {
		return apperr.Newf(apperr.KindInvalidState, op, "coin %s has non-positive supply", coin.CoinID)
	}
	return nil
}

// nextSeq returns the sequence number for the next trade on coin. Trades
// above the applied watermark still hold their numbers, cancelled or not.
func nextSeq(coin models.Coin, unapplied []models.TradeHistory) int64 {
	seq := coin.AppliedSeq
	for _, t := range unapplied {
		if t.Seq > seq {
			seq = t.Seq
		}
	}
	return seq + 1
}

// catchUp applies every completed trade above the coin's applied_seq and
// then trade itself, so the watermark never moves past a trade whose
// impact was lost.
func (s *Service) catchUp(ctx context.Context, coin models.Coin, unapplied []models.TradeHistory, trade models.TradeHistory) (models.Coin, pricing.Impact, error) {
	pending := append(completed(unapplied), trade)
	updated, impact, _, err := s.replay(ctx, coin, pending, trade.HistoryID)
	return updated, impact, err
}

func completed(trades []models.TradeHistory) []models.TradeHistory {
	out := make([]models.TradeHistory, 0, len(trades)+1)
	for _, t := range trades {
		if t.Status == models.TradeStatusCompleted {
			out = append(out, t)
		}
	}
	return out
}

// replay applies trades in order and returns the final coin, the impact of
// the trade identified by focus and how many trades were applied. On error
// the returned coin is the last state that was persisted.
func (s *Service) replay(ctx context.Context, coin models.Coin, trades []models.TradeHistory, focus string) (models.Coin, pricing.Impact, int, error) {
	var focused pricing.Impact
	for i, trade := range trades {
		updated, impact, err := s.applyTrade(ctx, coin, trade)
		if err != nil {
			return coin, pricing.Impact{}, i, err
		}
		coin = updated
		if trade.HistoryID == focus {
			focused = impact
			continue
		}
		metrics.ReconciledTrades.Inc()
		logrus.WithFields(logrus.Fields{
			"coin_id":  coin.CoinID,
			"trade_id": trade.HistoryID,
		}).Warn("Replayed trade impact")
	}
	return coin, focused, len(trades), nil
}

// applyTrade computes the impact of trade on coin and persists it, retrying
// on version conflicts with a freshly loaded coin. The applied_seq watermark
// advances to the trade's sequence number in the same write; last_trade_at
// only records when the coin last traded.
func (s *Service) applyTrade(ctx context.Context, coin models.Coin, trade models.TradeHistory) (models.Coin, pricing.Impact, error) {
	for attempt := 0; ; attempt++ {
		if trade.Seq > 0 && trade.Seq <= coin.AppliedSeq {
			return coin, pricing.Impact{}, nil
		}
		impact, err := s.calc.Compute(coin, trade.Side, trade.Amount, trade.Price)
		if err != nil {
			return models.Coin{}, pricing.Impact{}, err
		}
		patch := impact.Patch()
		if trade.Seq > coin.AppliedSeq {
			seq := trade.Seq
			patch.AppliedSeq = &seq
		}
		at := trade.CreatedAt
		if coin.LastTradeAt != nil && coin.LastTradeAt.After(at) {
			at = *coin.LastTradeAt
		}
		patch.LastTradeAt = &at

		updated, err := s.updateCoin(ctx, coin.CoinID, patch, coin.Version)
		if err == nil {
			return updated, impact, nil
		}
		if !apperr.Is(err, apperr.KindConflict) || attempt >= s.opts.MaxConflictRetries {
			return models.Coin{}, pricing.Impact{}, err
		}

		metrics.ConflictRetries.Inc()
		if coin, err = s.findCoin(ctx, coin.CoinID); err != nil {
			return models.Coin{}, pricing.Impact{}, err
		}
	}
}

func (s *Service) settle(ctx context.Context, st models.Settlement) error {
	if s.wallet == nil {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.wallet.Settle(ctx, st)
}

func (s *Service) reverse(ctx context.Context, st models.Settlement) {
	if s.wallet == nil {
		return
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.wallet.Reverse(ctx, st); err != nil {
		logrus.WithFields(logrus.Fields{
			"coin_id": st.CoinID,
			"user_id": st.UserID,
			"side":    st.Side,
			"amount":  st.Quantity.String(),
			"step":    "reverse_settlement",
		}).WithError(err).Error("Failed to reverse wallet settlement")
	}
}

func (s *Service) recordTrade(ctx context.Context, trade models.TradeHistory) (models.TradeHistory, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.trades.Create(ctx, trade)
}

func (s *Service) findCoin(ctx context.Context, coinID string) (models.Coin, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.coins.FindByID(ctx, coinID)
}

func (s *Service) updateCoin(ctx context.Context, coinID string, patch models.CoinPatch, version int64) (models.Coin, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.coins.Update(ctx, coinID, patch, version)
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.OperationTimeout)
}

// lock takes the per-coin lock, waiting at most LockWait.
func (s *Service) lock(ctx context.Context, op, coinID string) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, s.opts.LockWait)
	defer cancel()
	unlock, err := s.locker.Lock(lctx, coinID)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindConflict, Op: op, Msg: fmt.Sprintf("coin %s is busy", coinID), Err: err}
	}
	return unlock, nil
}

func (s *Service) requestRepair(coinID string) {
	select {
	case s.repairs <- coinID:
	default:
	}
}

// Repairs delivers coin ids that need reconciliation.
func (s *Service) Repairs() <-chan string {
	return s.repairs
}

func resultFor(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidArgument, apperr.KindInvalidState, apperr.KindNotFound:
		return metrics.ResultRejected
	}
	return metrics.ResultFailed
}
