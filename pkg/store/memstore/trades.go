package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/huandu/skiplist"
	"github.com/rs/xid"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/models"
	"coinfolio-engine/pkg/query"
)

type tradeKey struct {
	createdAt time.Time
	historyID string
}

func compareTradeKeys(lhs, rhs interface{}) int {
	a, b := lhs.(tradeKey), rhs.(tradeKey)
	if c := a.createdAt.Compare(b.createdAt); c != 0 {
		return c
	}
	switch {
	case a.historyID < b.historyID:
		return -1
	case a.historyID > b.historyID:
		return 1
	}
	return 0
}

type coinSeq struct {
	coinID string
	seq    int64
}

// TradeStore is an in-memory store.TradeStore. Records are indexed by
// creation time in a skip list so scans come out oldest first.
type TradeStore struct {
	mu        sync.RWMutex
	opts      options
	seq       uint
	byTime    *skiplist.SkipList
	keys      map[string]tradeKey
	sequenced map[coinSeq]string
}

func NewTradeStore(opts ...Option) *TradeStore {
	return &TradeStore{
		opts:      buildOptions(opts),
		byTime:    skiplist.New(skiplist.GreaterThanFunc(compareTradeKeys)),
		keys:      make(map[string]tradeKey),
		sequenced: make(map[coinSeq]string),
	}
}

func (s *TradeStore) Create(ctx context.Context, trade models.TradeHistory) (models.TradeHistory, error) {
	const op = "trades.create"
	if err := ctx.Err(); err != nil {
		return models.TradeHistory{}, apperr.Wrap(apperr.KindPersistence, op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if trade.HistoryID == "" {
		trade.HistoryID = xid.New().String()
	}
	if _, exists := s.keys[trade.HistoryID]; exists {
		return models.TradeHistory{}, apperr.Newf(apperr.KindConflict, op, "trade %s already exists", trade.HistoryID)
	}
	cs := coinSeq{coinID: trade.CoinID, seq: trade.Seq}
	if trade.Seq > 0 {
		if other, taken := s.sequenced[cs]; taken {
			return models.TradeHistory{}, apperr.Newf(apperr.KindConflict, op, "seq %d of coin %s is taken by trade %s", trade.Seq, trade.CoinID, other)
		}
	}

	s.seq++
	now := s.opts.timestamp()
	trade.ID = s.seq
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	} else {
		trade.CreatedAt = trade.CreatedAt.UTC().Truncate(time.Microsecond)
	}
	trade.UpdatedAt = now

	key := tradeKey{createdAt: trade.CreatedAt, historyID: trade.HistoryID}
	s.byTime.Set(key, trade)
	s.keys[trade.HistoryID] = key
	if trade.Seq > 0 {
		s.sequenced[cs] = trade.HistoryID
	}
	return trade, nil
}

func (s *TradeStore) FindByID(ctx context.Context, historyID string) (models.TradeHistory, error) {
	if err := ctx.Err(); err != nil {
		return models.TradeHistory{}, apperr.Wrap(apperr.KindPersistence, "trades.find", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(historyID)
}

func (s *TradeStore) get(historyID string) (models.TradeHistory, error) {
	key, ok := s.keys[historyID]
	if !ok {
		return models.TradeHistory{}, apperr.Newf(apperr.KindNotFound, "trades.find", "trade %s not found", historyID)
	}
	return s.byTime.Get(key).Value.(models.TradeHistory), nil
}

func (s *TradeStore) UpdateStatus(ctx context.Context, historyID string, status models.TradeStatus) (models.TradeHistory, error) {
	const op = "trades.update_status"
	if err := ctx.Err(); err != nil {
		return models.TradeHistory{}, apperr.Wrap(apperr.KindPersistence, op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	trade, err := s.get(historyID)
	if err != nil {
		return models.TradeHistory{}, err
	}
	trade.Status = status
	trade.UpdatedAt = s.opts.timestamp()
	s.byTime.Set(s.keys[historyID], trade)
	return trade, nil
}

func (s *TradeStore) FindMany(ctx context.Context, filter query.Expr, page query.Page) ([]models.TradeHistory, error) {
	matched, err := s.match(ctx, "trades.find_many", filter, page)
	if err != nil {
		return nil, err
	}
	query.Sort(matched, page.OrderBy)
	return query.Window(matched, page), nil
}

func (s *TradeStore) Count(ctx context.Context, filter query.Expr) (int64, error) {
	matched, err := s.match(ctx, "trades.count", filter, query.Page{})
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *TradeStore) match(ctx context.Context, op string, filter query.Expr, page query.Page) ([]models.TradeHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, err)
	}
	if err := query.Validate(filter, page, models.TradeColumns); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, op, err)
	}

	s.mu.RLock()
	var out []models.TradeHistory
	for elem := s.byTime.Front(); elem != nil; elem = elem.Next() {
		trade := elem.Value.(models.TradeHistory)
		ok, err := query.Match(filter, trade)
		if err != nil {
			s.mu.RUnlock()
			return nil, apperr.Wrap(apperr.KindInvalidArgument, op, err)
		}
		if ok {
			out = append(out, trade)
		}
	}
	s.mu.RUnlock()
	return out, nil
}
