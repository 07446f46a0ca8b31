package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
)

// Reconcile applies the impact of completed trades whose sequence number is
// above the coin's applied_seq watermark, in sequence order. It repairs
// trades left behind by a KindPartialApplication failure and returns how
// many it replayed. Running it again with nothing pending is a no-op.
func (s *Service) Reconcile(ctx context.Context, coinID string) (int, error) {
	const op = "engine.reconcile"

	unlock, err := s.lock(ctx, op, coinID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	coin, err := s.findCoin(ctx, coinID)
	if err != nil {
		return 0, err
	}

	unapplied, err := s.unappliedTrades(ctx, coin)
	if err != nil {
		return 0, err
	}

	updated, _, replayed, err := s.replay(ctx, coin, completed(unapplied), "")
	if replayed > 0 {
		s.notify.CoinUpdated(updated)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"coin_id":  coinID,
			"replayed": replayed,
			"step":     "reconcile",
		}).WithError(err).Error("Failed to replay trades")
		return replayed, err
	}
	return replayed, nil
}

// unappliedTrades loads the price-moving trades numbered above the coin's
// applied_seq, in sequence order, whatever their status.
func (s *Service) unappliedTrades(ctx context.Context, coin models.Coin) ([]models.TradeHistory, error) {
	filter := query.And(
		query.Eq("coin_id", coin.CoinID),
		query.In("side", models.TradeSideBuy, models.TradeSideSell),
		query.Gt("seq", coin.AppliedSeq),
	)

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.trades.FindMany(ctx, filter, query.Page{
		OrderBy: []query.Order{query.Asc("seq")},
	})
}

// ReconcileAll reconciles every active coin and returns the total replayed.
func (s *Service) ReconcileAll(ctx context.Context) (int, error) {
	total := 0
	err := s.eachCoin(ctx, query.Eq("is_active", true), 100, func(coin models.Coin) {
		n, err := s.Reconcile(ctx, coin.CoinID)
		total += n
		if err != nil {
			logrus.WithField("coin_id", coin.CoinID).WithError(err).Error("Reconcile failed")
		}
	})
	return total, err
}

// Reconciler runs ReconcileAll periodically and reconciles single coins as
// soon as the coordinator reports a partial application.
type Reconciler struct {
	svc      *Service
	interval time.Duration
}

func NewReconciler(svc *Service, interval time.Duration) *Reconciler {
	return &Reconciler{svc: svc, interval: interval}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case coinID := <-r.svc.Repairs():
			if _, err := r.svc.Reconcile(ctx, coinID); err != nil {
				logrus.WithField("coin_id", coinID).WithError(err).Error("Reconcile after partial application failed")
			}
		case <-ticker.C:
			n, err := r.svc.ReconcileAll(ctx)
			if err != nil {
				logrus.WithError(err).Error("Reconcile pass aborted")
				continue
			}
			if n > 0 {
				logrus.WithField("replayed", n).Warn("Reconcile pass replayed trades")
			}
		}
	}
}
