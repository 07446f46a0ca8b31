package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/models"
)

// Wallet is an in-memory store.Wallet.
type Wallet struct {
	mu       sync.Mutex
	opts     options
	accounts map[string]models.Account
	holdings map[string]map[string]models.Holding
}

func NewWallet(opts ...Option) *Wallet {
	return &Wallet{
		opts:     buildOptions(opts),
		accounts: make(map[string]models.Account),
		holdings: make(map[string]map[string]models.Holding),
	}
}

func (w *Wallet) Settle(ctx context.Context, s models.Settlement) error {
	const op = "wallet.settle"
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindPersistence, op, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	cost := s.Cost()
	account := w.accounts[s.UserID]
	held := w.holding(s.UserID, s.CoinID)

	switch s.Side {
	case models.TradeSideBuy:
		if account.Balance.LessThan(cost) {
			return apperr.Newf(apperr.KindInvalidState, op, "insufficient balance: need %s, have %s", cost, account.Balance)
		}
		w.setBalance(s.UserID, account.Balance.Sub(cost))
		w.setHolding(s.UserID, s.CoinID, held.Add(s.Quantity))
	case models.TradeSideSell:
		if held.LessThan(s.Quantity) {
			return apperr.Newf(apperr.KindInvalidState, op, "insufficient holdings: need %s, have %s", s.Quantity, held)
		}
		w.setHolding(s.UserID, s.CoinID, held.Sub(s.Quantity))
		w.setBalance(s.UserID, account.Balance.Add(cost))
	default:
		return apperr.Newf(apperr.KindInvalidArgument, op, "side %q is not settled", s.Side)
	}
	return nil
}

func (w *Wallet) Reverse(ctx context.Context, s models.Settlement) error {
	const op = "wallet.reverse"
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindPersistence, op, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	cost := s.Cost()
	balance := w.accounts[s.UserID].Balance
	held := w.holding(s.UserID, s.CoinID)

	switch s.Side {
	case models.TradeSideBuy:
		w.setBalance(s.UserID, balance.Add(cost))
		w.setHolding(s.UserID, s.CoinID, held.Sub(s.Quantity))
	case models.TradeSideSell:
		w.setBalance(s.UserID, balance.Sub(cost))
		w.setHolding(s.UserID, s.CoinID, held.Add(s.Quantity))
	default:
		return apperr.Newf(apperr.KindInvalidArgument, op, "side %q is not settled", s.Side)
	}
	return nil
}

func (w *Wallet) Account(ctx context.Context, userID string) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, apperr.Wrap(apperr.KindPersistence, "wallet.account", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	account, ok := w.accounts[userID]
	if !ok {
		return models.Account{}, apperr.Newf(apperr.KindNotFound, "wallet.account", "account %s not found", userID)
	}
	return account, nil
}

func (w *Wallet) Holdings(ctx context.Context, userID string) ([]models.Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "wallet.holdings", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]models.Holding, 0, len(w.holdings[userID]))
	for _, h := range w.holdings[userID] {
		if h.Amount.IsPositive() {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CoinID < out[j].CoinID })
	return out, nil
}

func (w *Wallet) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (models.Account, error) {
	const op = "wallet.deposit"
	if err := ctx.Err(); err != nil {
		return models.Account{}, apperr.Wrap(apperr.KindPersistence, op, err)
	}
	if !amount.IsPositive() {
		return models.Account{}, apperr.InvalidArgument(op, "deposit must be positive")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.setBalance(userID, w.accounts[userID].Balance.Add(amount))
	return w.accounts[userID], nil
}

func (w *Wallet) holding(userID, coinID string) decimal.Decimal {
	return w.holdings[userID][coinID].Amount
}

func (w *Wallet) setBalance(userID string, balance decimal.Decimal) {
	now := w.opts.timestamp()
	account, ok := w.accounts[userID]
	if !ok {
		account = models.Account{UserID: userID, CreatedAt: now}
	}
	account.Balance = balance
	account.UpdatedAt = now
	w.accounts[userID] = account
}

func (w *Wallet) setHolding(userID, coinID string, amount decimal.Decimal) {
	now := w.opts.timestamp()
	byCoin, ok := w.holdings[userID]
	if !ok {
		byCoin = make(map[string]models.Holding)
		w.holdings[userID] = byCoin
	}
	h, ok := byCoin[coinID]
	if !ok {
		h = models.Holding{UserID: userID, CoinID: coinID, CreatedAt: now}
	}
	h.Amount = amount
	h.UpdatedAt = now
	byCoin[coinID] = h
}
