// Package metrics exposes the engine's Prometheus collectors. They register
// with the default registry and are served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trade results
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
	ResultPartial  = "partial"
)

// TradesTotal counts executed trades by side and result.
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "coinfolio",
		Subsystem: "engine",
		Name:      "trades_total",
		Help:      "Total number of trade requests by side and result",
	},
	[]string{"side", "result"},
)

// PriceImpactPercent observes the absolute percent move of each trade.
var PriceImpactPercent = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "coinfolio",
		Subsystem: "engine",
		Name:      "price_impact_percent",
		Help:      "Absolute percent price change caused by a trade",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 6, 9},
	},
	[]string{"side"},
)

// TradeLatency is the time spent executing a trade, lock wait included.
var TradeLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "coinfolio",
		Subsystem: "engine",
		Name:      "trade_latency_ms",
		Help:      "Time to execute a trade in milliseconds",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
	},
	[]string{"side"},
)

// PartialApplications counts trades recorded whose price update was not persisted.
var PartialApplications = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "coinfolio",
		Subsystem: "engine",
		Name:      "partial_applications_total",
		Help:      "Trades recorded without the matching coin update",
	},
)

// ConflictRetries counts optimistic version conflicts that were retried.
var ConflictRetries = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "coinfolio",
		Subsystem: "engine",
		Name:      "conflict_retries_total",
		Help:      "Coin updates retried after a version conflict",
	},
)

// RollupsTotal counts 24h statistic resets by result.
var RollupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "coinfolio",
		Subsystem: "rollup",
		Name:      "resets_total",
		Help:      "Daily statistic resets by result",
	},
	[]string{"result"},
)

// ReconciledTrades counts trades replayed by the reconciler.
var ReconciledTrades = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "coinfolio",
		Subsystem: "rollup",
		Name:      "reconciled_trades_total",
		Help:      "Trades whose impact was applied by the reconciler",
	},
)

// WebSocketClients is the number of connected websocket clients.
var WebSocketClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "coinfolio",
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Connected websocket clients",
	},
)
