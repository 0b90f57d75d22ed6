package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RedBankMetrics tracks ledger operation outcomes and latencies.
type RedBankMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rates      *prometheus.GaugeVec
	indexes    *prometheus.GaugeVec
}

var (
	redbankOnce     sync.Once
	redbankRegistry *RedBankMetrics
)

// RedBank returns the process-wide ledger metrics, registering the collectors
// on first use.
func RedBank() *RedBankMetrics {
	redbankOnce.Do(func() {
		redbankRegistry = &RedBankMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "redbank_operations_total",
				Help: "Count of ledger operations by name and outcome.",
			}, []string{"op", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "redbank_operation_duration_seconds",
				Help:    "Latency of ledger operations by name.",
				Buckets: prometheus.DefBuckets,
			}, []string{"op"}),
			rates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "redbank_market_rate",
				Help: "Current borrow and liquidity rates per market.",
			}, []string{"asset", "side"}),
			indexes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "redbank_market_index",
				Help: "Current borrow and liquidity indexes per market.",
			}, []string{"asset", "side"}),
		}
		prometheus.MustRegister(
			redbankRegistry.operations,
			redbankRegistry.duration,
			redbankRegistry.rates,
			redbankRegistry.indexes,
		)
	})
	return redbankRegistry
}

// ObserveOperation records one handler invocation.
func (m *RedBankMetrics) ObserveOperation(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveMarket records a market's current rates and indexes.
func (m *RedBankMetrics) ObserveMarket(asset string, borrowRate, liquidityRate, borrowIndex, liquidityIndex float64) {
	if m == nil {
		return
	}
	m.rates.WithLabelValues(asset, "borrow").Set(borrowRate)
	m.rates.WithLabelValues(asset, "liquidity").Set(liquidityRate)
	m.indexes.WithLabelValues(asset, "borrow").Set(borrowIndex)
	m.indexes.WithLabelValues(asset, "liquidity").Set(liquidityIndex)
}
