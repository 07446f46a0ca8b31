package gormstore

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/models"
)

// Wallet is the postgres store.Wallet. Each settlement runs in one
// transaction holding row locks on the account and the holding.
type Wallet struct {
	db *gorm.DB
}

func NewWallet(db *gorm.DB) *Wallet {
	return &Wallet{db: db}
}

func (w *Wallet) Settle(ctx context.Context, s models.Settlement) error {
	const op = "wallet.settle"
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, s.UserID)
		if err != nil {
			return err
		}
		holding, err := lockHolding(tx, s.UserID, s.CoinID)
		if err != nil {
			return err
		}

		cost := s.Cost()
		switch s.Side {
		case models.TradeSideBuy:
			if account.Balance.LessThan(cost) {
				return apperr.Newf(apperr.KindInvalidState, op, "insufficient balance: need %s, have %s", cost, account.Balance)
			}
			account.Balance = account.Balance.Sub(cost)
			holding.Amount = holding.Amount.Add(s.Quantity)
		case models.TradeSideSell:
			if holding.Amount.LessThan(s.Quantity) {
				return apperr.Newf(apperr.KindInvalidState, op, "insufficient holdings: need %s, have %s", s.Quantity, holding.Amount)
			}
			holding.Amount = holding.Amount.Sub(s.Quantity)
			account.Balance = account.Balance.Add(cost)
		default:
			return apperr.Newf(apperr.KindInvalidArgument, op, "side %q is not settled", s.Side)
		}
		return save(tx, &account, &holding)
	})
	return classify(op, err)
}

func (w *Wallet) Reverse(ctx context.Context, s models.Settlement) error {
	const op = "wallet.reverse"
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, s.UserID)
		if err != nil {
			return err
		}
		holding, err := lockHolding(tx, s.UserID, s.CoinID)
		if err != nil {
			return err
		}

		cost := s.Cost()
		switch s.Side {
		case models.TradeSideBuy:
			account.Balance = account.Balance.Add(cost)
			holding.Amount = holding.Amount.Sub(s.Quantity)
		case models.TradeSideSell:
			account.Balance = account.Balance.Sub(cost)
			holding.Amount = holding.Amount.Add(s.Quantity)
		default:
			return apperr.Newf(apperr.KindInvalidArgument, op, "side %q is not settled", s.Side)
		}
		return save(tx, &account, &holding)
	})
	return classify(op, err)
}

func (w *Wallet) Account(ctx context.Context, userID string) (models.Account, error) {
	var account models.Account
	if err := w.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error; err != nil {
		return models.Account{}, classify("wallet.account", err)
	}
	return account, nil
}

func (w *Wallet) Holdings(ctx context.Context, userID string) ([]models.Holding, error) {
	var holdings []models.Holding
	err := w.db.WithContext(ctx).
		Where("user_id = ? AND amount > 0", userID).
		Order("coin_id").
		Find(&holdings).Error
	if err != nil {
		return nil, classify("wallet.holdings", err)
	}
	return holdings, nil
}

func (w *Wallet) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (models.Account, error) {
	const op = "wallet.deposit"
	if !amount.IsPositive() {
		return models.Account{}, apperr.InvalidArgument(op, "deposit must be positive")
	}
	var account models.Account
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		account, err = lockAccount(tx, userID)
		if err != nil {
			return err
		}
		account.Balance = account.Balance.Add(amount)
		return tx.Save(&account).Error
	})
	if err != nil {
		return models.Account{}, classify(op, err)
	}
	return account, nil
}

// lockAccount selects the account FOR UPDATE, returning an unsaved zero
// account when the user has none yet.
func lockAccount(tx *gorm.DB, userID string) (models.Account, error) {
	var account models.Account
	res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).Limit(1).Find(&account)
	if res.Error != nil {
		return models.Account{}, res.Error
	}
	if res.RowsAffected == 0 {
		account = models.Account{UserID: userID, Balance: decimal.Zero}
	}
	return account, nil
}

func lockHolding(tx *gorm.DB, userID, coinID string) (models.Holding, error) {
	var holding models.Holding
	res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND coin_id = ?", userID, coinID).
		Limit(1).
		Find(&holding)
	if res.Error != nil {
		return models.Holding{}, res.Error
	}
	if res.RowsAffected == 0 {
		holding = models.Holding{UserID: userID, CoinID: coinID, Amount: decimal.Zero}
	}
	return holding, nil
}

func save(tx *gorm.DB, account *models.Account, holding *models.Holding) error {
	if err := tx.Save(account).Error; err != nil {
		return err
	}
	return tx.Save(holding).Error
}
