package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records settlement outcomes per payment method.
type PaymentMetrics struct {
	duration       *prometheus.HistogramVec
	settled        *prometheus.CounterVec
	failed         *prometheus.CounterVec
	reconciliation prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_settlement_duration_seconds",
		Help:    "Duration of payment settlements in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_settled_total",
		Help: "Completed payment settlements.",
	}, []string{"method"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Failed payment settlements.",
	}, []string{"method", "reason"})
	reconciliation := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_reconciliation_flagged_total",
		Help: "Payments flagged for manual reconciliation.",
	})
	reg.MustRegister(duration, settled, failed, reconciliation)
	return &PaymentMetrics{
		duration:       duration,
		settled:        settled,
		failed:         failed,
		reconciliation: reconciliation,
	}
}

// ObserveDuration records the settlement duration for the given method.
func (p *PaymentMetrics) ObserveDuration(method string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.WithLabelValues(normalizeLabel(method)).Observe(duration.Seconds())
}

// IncSettled increments the settled counter for the given method.
func (p *PaymentMetrics) IncSettled(method string) {
	if p == nil || p.settled == nil {
		return
	}
	p.settled.WithLabelValues(normalizeLabel(method)).Inc()
}

// IncFailed increments the failure counter for the given method and reason.
func (p *PaymentMetrics) IncFailed(method, reason string) {
	if p == nil || p.failed == nil {
		return
	}
	p.failed.WithLabelValues(normalizeLabel(method), normalizeLabel(reason)).Inc()
}

// IncReconciliationFlagged counts a payment flagged for manual reconciliation.
func (p *PaymentMetrics) IncReconciliationFlagged() {
	if p == nil || p.reconciliation == nil {
		return
	}
	p.reconciliation.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
