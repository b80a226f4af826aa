// Package metrics holds the Prometheus instrumentation for the settlement
// engine. All methods are nil-receiver safe so wiring metrics stays optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ordersPlaced      prometheus.Counter
	ordersFilled      prometheus.Counter
	ordersCancelled   prometheus.Counter
	fillsApplied      prometheus.Counter
	depositsConfirmed prometheus.Counter
	withdrawalsPaid   prometheus.Counter
	adminOverrides    prometheus.Counter
	invariantFailures prometheus.Counter
	markToMarketTicks prometheus.Counter

	opDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersPlaced:      prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_orders_placed_total", Help: "Orders accepted by the order manager."}),
		ordersFilled:      prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_orders_filled_total", Help: "Orders that reached the filled state."}),
		ordersCancelled:   prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_orders_cancelled_total", Help: "Orders that reached the cancelled state."}),
		fillsApplied:      prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_fills_applied_total", Help: "Individual fill events applied to orders."}),
		depositsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_deposits_confirmed_total", Help: "Deposit requests confirmed and credited."}),
		withdrawalsPaid:   prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_withdrawals_paid_total", Help: "Withdrawal requests confirmed and debited."}),
		adminOverrides:    prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_admin_overrides_total", Help: "Administrative override operations."}),
		invariantFailures: prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_invariant_failures_total", Help: "Ledger invariant violations detected. Always a bug."}),
		markToMarketTicks: prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_mark_to_market_ticks_total", Help: "Price ticks applied to open positions."}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_op_duration_seconds",
			Help:    "Latency of engine operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(
		m.ordersPlaced, m.ordersFilled, m.ordersCancelled, m.fillsApplied,
		m.depositsConfirmed, m.withdrawalsPaid, m.adminOverrides,
		m.invariantFailures, m.markToMarketTicks, m.opDuration,
	)
	return m
}

func (m *Metrics) OrderPlaced() {
	if m != nil {
		m.ordersPlaced.Inc()
	}
}

func (m *Metrics) OrderFilled() {
	if m != nil {
		m.ordersFilled.Inc()
	}
}

func (m *Metrics) OrderCancelled() {
	if m != nil {
		m.ordersCancelled.Inc()
	}
}

func (m *Metrics) FillApplied() {
	if m != nil {
		m.fillsApplied.Inc()
	}
}

func (m *Metrics) DepositConfirmed() {
	if m != nil {
		m.depositsConfirmed.Inc()
	}
}

func (m *Metrics) WithdrawalPaid() {
	if m != nil {
		m.withdrawalsPaid.Inc()
	}
}

func (m *Metrics) AdminOverride() {
	if m != nil {
		m.adminOverrides.Inc()
	}
}

func (m *Metrics) InvariantFailure() {
	if m != nil {
		m.invariantFailures.Inc()
	}
}

func (m *Metrics) MarkToMarketTick() {
	if m != nil {
		m.markToMarketTicks.Inc()
	}
}

// Observe records the elapsed time of op since start.
func (m *Metrics) Observe(op string, start time.Time) {
	if m != nil {
		m.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
