package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type LendingMetrics struct {
	operations      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	marketTotals    *prometheus.GaugeVec
	flashLoans      prometheus.Counter
	vaultAssets     prometheus.Gauge
	indexerFailures prometheus.Counter
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the process-wide lending metrics, registering them with the
// default prometheus registry on first use.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operations_total",
				Help: "Count of lending operations by action and result code.",
			}, []string{"action", "result"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "lending_operation_duration_seconds",
				Help:    "Time spent executing lending operations.",
				Buckets: prometheus.DefBuckets,
			}, []string{"action"}),
			marketTotals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_market_total",
				Help: "Aggregate market totals in base units by kind.",
			}, []string{"kind"}),
			flashLoans: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_flash_loans_total",
				Help: "Count of repaid flash loans.",
			}),
			vaultAssets: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_total_assets",
				Help: "Underlying assets held by the yield vault.",
			}),
			indexerFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_indexer_write_failures_total",
				Help: "Number of events the indexer failed to persist.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.latency,
			lendingRegistry.marketTotals,
			lendingRegistry.flashLoans,
			lendingRegistry.vaultAssets,
			lendingRegistry.indexerFailures,
		)
	})
	return lendingRegistry
}

// ObserveOperation records the outcome of one operation. An empty result
// means success.
func (m *LendingMetrics) ObserveOperation(action, result string, started time.Time) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	if result == "" {
		result = "ok"
	}
	m.operations.WithLabelValues(action, result).Inc()
	m.latency.WithLabelValues(action).Observe(time.Since(started).Seconds())
}

// SetMarketTotal publishes one of the aggregate market totals.
func (m *LendingMetrics) SetMarketTotal(kind string, amount *big.Int) {
	if m == nil {
		return
	}
	m.marketTotals.WithLabelValues(kind).Set(toFloat(amount))
}

func (m *LendingMetrics) IncFlashLoan() {
	if m == nil {
		return
	}
	m.flashLoans.Inc()
}

func (m *LendingMetrics) SetVaultAssets(amount *big.Int) {
	if m == nil {
		return
	}
	m.vaultAssets.Set(toFloat(amount))
}

func (m *LendingMetrics) IncIndexerFailure() {
	if m == nil {
		return
	}
	m.indexerFailures.Inc()
}

func toFloat(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	return f
}
