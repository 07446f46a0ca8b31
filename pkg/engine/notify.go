package engine

import "coinfolio-engine/pkg/models"

// Notifier is told about state changes after they are persisted. Calls are
// made while the coin lock is held, so implementations must not block.
type Notifier interface {
	CoinUpdated(coin models.Coin)
	TradeExecuted(trade models.TradeHistory, coin models.Coin)
}

// Notifiers fans out to every member.
type Notifiers []Notifier

func (ns Notifiers) CoinUpdated(coin models.Coin) {
	for _, n := range ns {
		n.CoinUpdated(coin)
	}
}

func (ns Notifiers) TradeExecuted(trade models.TradeHistory, coin models.Coin) {
	for _, n := range ns {
		n.TradeExecuted(trade, coin)
	}
}
