package memstore

import (
	"context"
	"sync"

	"github.com/rs/xid"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
)

// CoinStore is an in-memory store.CoinStore.
type CoinStore struct {
	mu    sync.RWMutex
	opts  options
	seq   uint
	coins map[string]models.Coin
}

func NewCoinStore(opts ...Option) *CoinStore {
	return &CoinStore{opts: buildOptions(opts), coins: make(map[string]models.Coin)}
}

func (s *CoinStore) FindByID(ctx context.Context, coinID string) (models.Coin, error) {
	if err := ctx.Err(); err != nil {
		return models.Coin{}, apperr.Wrap(apperr.KindPersistence, "coins.find", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	coin, ok := s.coins[coinID]
	if !ok {
		return models.Coin{}, apperr.Newf(apperr.KindNotFound, "coins.find", "coin %s not found", coinID)
	}
	return coin.Clone(), nil
}

func (s *CoinStore) FindMany(ctx context.Context, filter query.Expr, page query.Page) ([]models.Coin, error) {
	matched, err := s.match(ctx, "coins.find_many", filter, page)
	if err != nil {
		return nil, err
	}
	order := page.OrderBy
	if len(order) == 0 {
		order = []query.Order{query.Asc("created_at")}
	}
	query.Sort(matched, order)
	return query.Window(matched, page), nil
}

func (s *CoinStore) Count(ctx context.Context, filter query.Expr) (int64, error) {
	matched, err := s.match(ctx, "coins.count", filter, query.Page{})
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *CoinStore) match(ctx context.Context, op string, filter query.Expr, page query.Page) ([]models.Coin, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, err)
	}
	if err := query.Validate(filter, page, models.CoinColumns); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, op, err)
	}

	s.mu.RLock()
	all := make([]models.Coin, 0, len(s.coins))
	for _, c := range s.coins {
		all = append(all, c.Clone())
	}
	s.mu.RUnlock()

	matched, err := query.Filter(all, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, op, err)
	}
	return matched, nil
}

func (s *CoinStore) Create(ctx context.Context, coin models.Coin) (models.Coin, error) {
	if err := ctx.Err(); err != nil {
		return models.Coin{}, apperr.Wrap(apperr.KindPersistence, "coins.create", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if coin.CoinID == "" {
		coin.CoinID = xid.New().String()
	}
	if _, exists := s.coins[coin.CoinID]; exists {
		return models.Coin{}, apperr.Newf(apperr.KindConflict, "coins.create", "coin %s already exists", coin.CoinID)
	}

	s.seq++
	now := s.opts.timestamp()
	coin.ID = s.seq
	coin.Version = 1
	coin.CreatedAt = now
	coin.UpdatedAt = now
	s.coins[coin.CoinID] = coin.Clone()
	return coin, nil
}

func (s *CoinStore) Update(ctx context.Context, coinID string, patch models.CoinPatch, expectedVersion int64) (models.Coin, error) {
	const op = "coins.update"
	if err := ctx.Err(); err != nil {
		return models.Coin{}, apperr.Wrap(apperr.KindPersistence, op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	coin, ok := s.coins[coinID]
	if !ok {
		return models.Coin{}, apperr.Newf(apperr.KindNotFound, op, "coin %s not found", coinID)
	}
	if expectedVersion > 0 && coin.Version != expectedVersion {
		return models.Coin{}, apperr.Newf(apperr.KindConflict, op, "coin %s is at version %d, expected %d", coinID, coin.Version, expectedVersion)
	}

	coin = patch.Apply(coin)
	coin.Version++
	coin.UpdatedAt = s.opts.timestamp()
	s.coins[coinID] = coin
	return coin.Clone(), nil
}
