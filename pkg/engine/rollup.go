package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/metrics"
	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
)

// Rollup resets the 24h statistics of every active coin on a fixed interval.
type Rollup struct {
	svc       *Service
	interval  time.Duration
	batchSize int
}

func NewRollup(svc *Service, interval time.Duration, batchSize int) *Rollup {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Rollup{svc: svc, interval: interval, batchSize: batchSize}
}

// RollupReport summarises one pass.
type RollupReport struct {
	Reset  int
	Failed int
}

// RunOnce resets every active coin. A failure on one coin is logged and the
// pass continues.
func (r *Rollup) RunOnce(ctx context.Context) (RollupReport, error) {
	var report RollupReport
	err := r.svc.eachCoin(ctx, query.Eq("is_active", true), r.batchSize, func(coin models.Coin) {
		if _, err := r.svc.ResetDailyStats(ctx, coin.CoinID); err != nil {
			report.Failed++
			metrics.RollupsTotal.WithLabelValues(metrics.ResultFailed).Inc()
			logrus.WithField("coin_id", coin.CoinID).WithError(err).Error("Failed to reset daily stats")
			return
		}
		report.Reset++
		metrics.RollupsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	})
	return report, err
}

// Run repeats RunOnce every interval until ctx is done.
func (r *Rollup) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logrus.Infof("Daily stats rollup scheduled every %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := r.RunOnce(ctx)
			if err != nil {
				logrus.WithError(err).Error("Daily stats rollup aborted")
				continue
			}
			logrus.WithFields(logrus.Fields{
				"reset":  report.Reset,
				"failed": report.Failed,
			}).Info("Daily stats rollup completed")
		}
	}
}

// eachCoin pages through coins matching filter in creation order. The
// page is fetched before fn runs on its members.
func (s *Service) eachCoin(ctx context.Context, filter query.Expr, batch int, fn func(models.Coin)) error {
	for offset := 0; ; offset += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		page := query.Page{Limit: batch, Offset: offset, OrderBy: []query.Order{query.Asc("created_at"), query.Asc("coin_id")}}
		coins, err := s.findCoins(ctx, filter, page)
		if err != nil {
			return err
		}
		for _, coin := range coins {
			fn(coin)
		}
		if len(coins) < batch {
			return nil
		}
	}
}

func (s *Service) findCoins(ctx context.Context, filter query.Expr, page query.Page) ([]models.Coin, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.coins.FindMany(ctx, filter, page)
}
