package gormstore

import (
	"context"
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
)

// TradeStore is the postgres store.TradeStore.
type TradeStore struct {
	db *gorm.DB
}

func NewTradeStore(db *gorm.DB) *TradeStore {
	return &TradeStore{db: db}
}

func (s *TradeStore) Create(ctx context.Context, trade models.TradeHistory) (models.TradeHistory, error) {
	if trade.HistoryID == "" {
		trade.HistoryID = xid.New().String()
	}
	ts := now()
	trade.ID = 0
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = ts
	} else {
		trade.CreatedAt = trade.CreatedAt.UTC().Truncate(time.Microsecond)
	}
	trade.UpdatedAt = ts
	if err := s.db.WithContext(ctx).Create(&trade).Error; err != nil {
		return models.TradeHistory{}, classify("trades.create", err)
	}
	return trade, nil
}

func (s *TradeStore) FindByID(ctx context.Context, historyID string) (models.TradeHistory, error) {
	var trade models.TradeHistory
	if err := s.db.WithContext(ctx).Where("history_id = ?", historyID).First(&trade).Error; err != nil {
		return models.TradeHistory{}, classify("trades.find", err)
	}
	return trade, nil
}

func (s *TradeStore) UpdateStatus(ctx context.Context, historyID string, status models.TradeStatus) (models.TradeHistory, error) {
	const op = "trades.update_status"
	res := s.db.WithContext(ctx).Model(&models.TradeHistory{}).
		Where("history_id = ?", historyID).
		Updates(map[string]interface{}{"status": string(status), "updated_at": now()})
	if res.Error != nil {
		return models.TradeHistory{}, classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.TradeHistory{}, apperr.Newf(apperr.KindNotFound, op, "trade %s not found", historyID)
	}
	return s.FindByID(ctx, historyID)
}

func (s *TradeStore) FindMany(ctx context.Context, filter query.Expr, page query.Page) ([]models.TradeHistory, error) {
	const op = "trades.find_many"
	db, err := scope(s.db.WithContext(ctx).Model(&models.TradeHistory{}), op, filter, page, models.TradeColumns)
	if err != nil {
		return nil, err
	}
	var trades []models.TradeHistory
	if err := db.Find(&trades).Error; err != nil {
		return nil, classify(op, err)
	}
	return trades, nil
}

func (s *TradeStore) Count(ctx context.Context, filter query.Expr) (int64, error) {
	const op = "trades.count"
	db, err := scope(s.db.WithContext(ctx).Model(&models.TradeHistory{}), op, filter, query.Page{}, models.TradeColumns)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Count(&n).Error; err != nil {
		return 0, classify(op, err)
	}
	return n, nil
}
