package gormstore

import (
	"context"

	"github.com/rs/xid"
	"gorm.io/gorm"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
)

// CoinStore is the postgres store.CoinStore.
type CoinStore struct {
	db *gorm.DB
}

func NewCoinStore(db *gorm.DB) *CoinStore {
	return &CoinStore{db: db}
}

func (s *CoinStore) FindByID(ctx context.Context, coinID string) (models.Coin, error) {
	var coin models.Coin
	if err := s.db.WithContext(ctx).Where("coin_id = ?", coinID).First(&coin).Error; err != nil {
		return models.Coin{}, classify("coins.find", err)
	}
	return coin, nil
}

func (s *CoinStore) FindMany(ctx context.Context, filter query.Expr, page query.Page) ([]models.Coin, error) {
	const op = "coins.find_many"
	db, err := scope(s.db.WithContext(ctx).Model(&models.Coin{}), op, filter, page, models.CoinColumns)
	if err != nil {
		return nil, err
	}
	var coins []models.Coin
	if err := db.Find(&coins).Error; err != nil {
		return nil, classify(op, err)
	}
	return coins, nil
}

func (s *CoinStore) Count(ctx context.Context, filter query.Expr) (int64, error) {
	const op = "coins.count"
	db, err := scope(s.db.WithContext(ctx).Model(&models.Coin{}), op, filter, query.Page{}, models.CoinColumns)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Count(&n).Error; err != nil {
		return 0, classify(op, err)
	}
	return n, nil
}

func (s *CoinStore) Create(ctx context.Context, coin models.Coin) (models.Coin, error) {
	if coin.CoinID == "" {
		coin.CoinID = xid.New().String()
	}
	ts := now()
	coin.ID = 0
	coin.Version = 1
	coin.CreatedAt = ts
	coin.UpdatedAt = ts
	if err := s.db.WithContext(ctx).Create(&coin).Error; err != nil {
		return models.Coin{}, classify("coins.create", err)
	}
	return coin, nil
}

func (s *CoinStore) Update(ctx context.Context, coinID string, patch models.CoinPatch, expectedVersion int64) (models.Coin, error) {
	const op = "coins.update"

	cols := patch.Columns()
	cols["updated_at"] = now()
	cols["version"] = gorm.Expr("version + 1")

	db := s.db.WithContext(ctx).Model(&models.Coin{}).Where("coin_id = ?", coinID)
	if expectedVersion > 0 {
		db = db.Where("version = ?", expectedVersion)
	}
	res := db.Updates(cols)
	if res.Error != nil {
		return models.Coin{}, classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := s.FindByID(ctx, coinID)
		if err != nil {
			return models.Coin{}, err
		}
		return models.Coin{}, apperr.Newf(apperr.KindConflict, op, "coin %s is at version %d, expected %d", coinID, current.Version, expectedVersion)
	}
	return s.FindByID(ctx, coinID)
}
