package engine

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/metrics"
	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/pricing"
	"coinfolio-engine/pkg/query"
)

const maxDescriptionLength = 1000

// CreateCoinRequest describes a new coin.
type CreateCoinRequest struct {
	CreatorID   string
	Name        string
	Symbol      string
	Description string
	Price       decimal.Decimal
	TotalSupply decimal.Decimal
	TradingFee  *decimal.Decimal
	Rank        *int
	IsMineable  bool
}

// CreateCoin lists a new tradeable coin. Its whole supply is in circulation
// and its statistics start at the initial price.
func (s *Service) CreateCoin(ctx context.Context, req CreateCoinRequest) (models.Coin, error) {
	const op = "engine.create_coin"

	req.Name = strings.TrimSpace(req.Name)
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	switch {
	case req.CreatorID == "":
		return models.Coin{}, apperr.InvalidArgument(op, "creator id is required")
	case req.Name == "":
		return models.Coin{}, apperr.InvalidArgument(op, "name is required")
	case req.Symbol == "":
		return models.Coin{}, apperr.InvalidArgument(op, "symbol is required")
	case !req.Price.IsPositive():
		return models.Coin{}, apperr.InvalidArgument(op, "price must be positive")
	case len(req.Description) > maxDescriptionLength:
		return models.Coin{}, apperr.InvalidArgument(op, "description is too long")
	case req.Rank != nil && *req.Rank < 0:
		return models.Coin{}, apperr.InvalidArgument(op, "rank must not be negative")
	}

	supply := req.TotalSupply
	if supply.IsZero() {
		supply = s.opts.DefaultTotalSupply
	}
	if !supply.IsPositive() {
		return models.Coin{}, apperr.InvalidArgument(op, "total supply must be positive")
	}
	fee := s.opts.DefaultTradingFee
	if req.TradingFee != nil {
		if req.TradingFee.IsNegative() {
			return models.Coin{}, apperr.InvalidArgument(op, "trading fee must not be negative")
		}
		fee = *req.TradingFee
	}

	coin := models.Coin{
		Name:             req.Name,
		Symbol:           req.Symbol,
		Description:      req.Description,
		CreatorID:        req.CreatorID,
		TotalSupply:      supply,
		CurrentSupply:    supply,
		InitialPrice:     req.Price,
		CurrentPrice:     req.Price,
		High24h:          req.Price,
		Low24h:           req.Price,
		Volume24h:        decimal.Zero,
		Change24h:        decimal.Zero,
		Change24hPercent: decimal.Zero,
		MarketCap:        req.Price.Mul(supply),
		Rank:             req.Rank,
		IsActive:         true,
		IsTradeable:      true,
		IsMineable:       req.IsMineable,
		TradingFee:       fee,
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	created, err := s.coins.Create(ctx, coin)
	if err != nil {
		return models.Coin{}, err
	}

	logrus.WithFields(logrus.Fields{
		"coin_id":    created.CoinID,
		"symbol":     created.Symbol,
		"creator_id": created.CreatorID,
	}).Info("Coin created")
	s.notify.CoinUpdated(created)
	return created, nil
}

// GetCoin returns a snapshot of a coin.
func (s *Service) GetCoin(ctx context.Context, coinID string) (models.Coin, error) {
	return s.findCoin(ctx, coinID)
}

// ListCoins returns coins matching filter, ranked first unless page orders otherwise.
func (s *Service) ListCoins(ctx context.Context, filter query.Expr, page query.Page) ([]models.Coin, int64, error) {
	page = page.WithDefaults(s.opts.ListLimit, query.Asc("rank"), query.Asc("created_at"))

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	coins, err := s.coins.FindMany(ctx, filter, page)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.coins.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return coins, total, nil
}

// SearchCoins matches active coins whose name or symbol contains term,
// ignoring case.
func (s *Service) SearchCoins(ctx context.Context, term string, page query.Page) ([]models.Coin, int64, error) {
	term = strings.TrimSpace(term)
	var filter query.Expr = query.Eq("is_active", true)
	if term != "" {
		filter = query.And(filter, query.Or(
			query.Contains("name", term).Insensitive(),
			query.Contains("symbol", term).Insensitive(),
		))
	}
	return s.ListCoins(ctx, filter, page)
}

// Tradeable lists coins that currently accept trades, by rank.
func (s *Service) Tradeable(ctx context.Context, limit int) ([]models.Coin, error) {
	coins, _, err := s.ListCoins(ctx,
		query.And(query.Eq("is_active", true), query.Eq("is_tradeable", true)),
		query.Page{Limit: limit})
	return coins, err
}

// AssetUpdate is a partial administrative update.
type AssetUpdate struct {
	Description *string
	Rank        *int
	IsActive    *bool
	IsTradeable *bool
	Price       *decimal.Decimal
}

func (u AssetUpdate) empty() bool {
	return u.Description == nil && u.Rank == nil && u.IsActive == nil && u.IsTradeable == nil && u.Price == nil
}

// UpdateAsset applies an administrative update. A price change recomputes
// the derived statistics without the random impact model.
func (s *Service) UpdateAsset(ctx context.Context, coinID string, u AssetUpdate) (models.Coin, error) {
	const op = "engine.update_asset"

	switch {
	case u.empty():
		return models.Coin{}, apperr.InvalidArgument(op, "no valid fields to update")
	case u.Rank != nil && *u.Rank < 0:
		return models.Coin{}, apperr.InvalidArgument(op, "rank must not be negative")
	case u.Description != nil && len(*u.Description) > maxDescriptionLength:
		return models.Coin{}, apperr.InvalidArgument(op, "description is too long")
	case u.Price != nil && !u.Price.IsPositive():
		return models.Coin{}, apperr.InvalidArgument(op, "price must be positive")
	}

	return s.mutate(ctx, op, coinID, func(coin models.Coin) (models.CoinPatch, error) {
		patch := models.CoinPatch{
			Description: u.Description,
			Rank:        u.Rank,
			IsActive:    u.IsActive,
			IsTradeable: u.IsTradeable,
		}
		if u.Price != nil {
			impact, err := s.calc.Manual(coin, *u.Price)
			if err != nil {
				return models.CoinPatch{}, err
			}
			pricePatch := impact.Patch()
			patch.CurrentPrice = pricePatch.CurrentPrice
			patch.Change24h = pricePatch.Change24h
			patch.Change24hPercent = pricePatch.Change24hPercent
			patch.MarketCap = pricePatch.MarketCap
			patch.High24h = pricePatch.High24h
			patch.Low24h = pricePatch.Low24h
		}
		return patch, nil
	})
}

func (s *Service) SetTradeable(ctx context.Context, coinID string, tradeable bool) (models.Coin, error) {
	return s.UpdateAsset(ctx, coinID, AssetUpdate{IsTradeable: &tradeable})
}

func (s *Service) SetActive(ctx context.Context, coinID string, active bool) (models.Coin, error) {
	return s.UpdateAsset(ctx, coinID, AssetUpdate{IsActive: &active})
}

func (s *Service) UpdateRank(ctx context.Context, coinID string, rank int) (models.Coin, error) {
	return s.UpdateAsset(ctx, coinID, AssetUpdate{Rank: &rank})
}

func (s *Service) UpdateDescription(ctx context.Context, coinID, description string) (models.Coin, error) {
	return s.UpdateAsset(ctx, coinID, AssetUpdate{Description: &description})
}

// SetPrice overrides the current price and recomputes the derived statistics.
func (s *Service) SetPrice(ctx context.Context, coinID string, price decimal.Decimal) (models.Coin, error) {
	return s.UpdateAsset(ctx, coinID, AssetUpdate{Price: &price})
}

// DeleteAsset soft-deletes a coin by deactivating it.
func (s *Service) DeleteAsset(ctx context.Context, coinID string) (models.Coin, error) {
	const op = "engine.delete_asset"
	return s.mutate(ctx, op, coinID, func(coin models.Coin) (models.CoinPatch, error) {
		if !coin.IsActive {
			return models.CoinPatch{}, apperr.Newf(apperr.KindInvalidState, op, "coin %s is already deleted", coinID)
		}
		return models.CoinPatch{IsActive: models.BoolPtr(false)}, nil
	})
}

// ResetDailyStats starts a new 24h window at the current price. Running it
// twice leaves the coin as after the first run.
func (s *Service) ResetDailyStats(ctx context.Context, coinID string) (models.Coin, error) {
	return s.mutate(ctx, "engine.reset_daily_stats", coinID, func(coin models.Coin) (models.CoinPatch, error) {
		return pricing.ResetPatch(coin), nil
	})
}

// mutate loads coinID under its lock, builds a patch from the snapshot and
// writes it with the snapshot's version, reloading on conflict.
func (s *Service) mutate(ctx context.Context, op, coinID string, build func(models.Coin) (models.CoinPatch, error)) (models.Coin, error) {
	unlock, err := s.lock(ctx, op, coinID)
	if err != nil {
		return models.Coin{}, err
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		coin, err := s.findCoin(ctx, coinID)
		if err != nil {
			return models.Coin{}, err
		}
		patch, err := build(coin)
		if err != nil {
			return models.Coin{}, err
		}
		updated, err := s.updateCoin(ctx, coinID, patch, coin.Version)
		if err == nil {
			s.notify.CoinUpdated(updated)
			return updated, nil
		}
		if !apperr.Is(err, apperr.KindConflict) || attempt >= s.opts.MaxConflictRetries {
			return models.Coin{}, err
		}
		metrics.ConflictRetries.Inc()
	}
}
