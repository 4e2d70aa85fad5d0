package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// EscrowMetrics tracks prize lock and distribution activity.
type EscrowMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	volume     *prometheus.CounterVec
	drift      prometheus.Gauge
}

// NewEscrowMetrics registers the escrow metrics on the provided registerer.
func NewEscrowMetrics(reg prometheus.Registerer) *EscrowMetrics {
	if reg == nil {
		return &EscrowMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_operations_total",
		Help: "Escrow operations partitioned by outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_operation_duration_seconds",
		Help:    "Duration of escrow operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	volume := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_prize_volume_total",
		Help: "Prize amount moved by committed escrow operations.",
	}, []string{"operation"})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_drifted_wallets",
		Help: "Wallets whose locked balance disagrees with the transaction log at the last reconciliation.",
	})
	reg.MustRegister(operations, duration, volume, drift)
	return &EscrowMetrics{
		operations: operations,
		duration:   duration,
		volume:     volume,
		drift:      drift,
	}
}

// ObserveOperation records the outcome and latency of one escrow call.
// An empty outcome is recorded as "ok".
func (m *EscrowMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	op := normalizeLabel(operation)
	m.operations.WithLabelValues(op, strings.ToLower(outcome)).Inc()
	m.duration.WithLabelValues(op).Observe(duration.Seconds())
}

// AddVolume adds a committed prize amount to the running total.
func (m *EscrowMetrics) AddVolume(operation string, amount decimal.Decimal) {
	if m == nil || m.volume == nil || !amount.IsPositive() {
		return
	}
	value, _ := amount.Float64()
	m.volume.WithLabelValues(normalizeLabel(operation)).Add(value)
}

// SetDriftedWallets publishes the latest reconciliation mismatch count.
func (m *EscrowMetrics) SetDriftedWallets(count int) {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.Set(float64(count))
}
