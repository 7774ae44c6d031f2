// Package metrics exposes Prometheus counters and histograms for the billing engine.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for ObserveOperation.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeClient   = "client_error"
	OutcomeLocked   = "locked"
	OutcomeError    = "error"
)

type Config struct {
	ServiceName string
	Environment string
}

// BillingMetrics captures generation, settlement and ledger signals.
// A nil *BillingMetrics is a valid no-op recorder.
type BillingMetrics struct {
	billsGenerated  *prometheus.CounterVec
	billsDeleted    prometheus.Counter
	warnings        *prometheus.CounterVec
	paymentsApplied prometheus.Counter
	paymentAmount   prometheus.Counter
	excessCredited  *prometheus.CounterVec
	billsOverdue    prometheus.Counter
	opDuration      *prometheus.HistogramVec
	opTotal         *prometheus.CounterVec
}

// New registers the billing collectors on registerer, the default registerer when nil.
func New(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "condo-soa"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &BillingMetrics{
		billsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "soa_bills_generated_total",
			Help:        "Bills committed by resulting status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		billsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "soa_bills_deleted_total",
			Help:        "Unpaid bills deleted for regeneration.",
			ConstLabels: constLabels,
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "soa_bill_warnings_total",
			Help:        "Assembly warnings by code.",
			ConstLabels: constLabels,
		}, []string{"code"}),
		paymentsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "soa_payments_allocated_total",
			Help:        "Payments allocated against bills.",
			ConstLabels: constLabels,
		}),
		paymentAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "soa_payment_amount_total",
			Help:        "Sum of payment amounts received.",
			ConstLabels: constLabels,
		}),
		excessCredited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "soa_advance_excess_credited_total",
			Help:        "Payment excess credited to advance balances by bucket.",
			ConstLabels: constLabels,
		}, []string{"bucket"}),
		billsOverdue: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "soa_bills_marked_overdue_total",
			Help:        "Bills moved to OVERDUE.",
			ConstLabels: constLabels,
		}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "soa_operation_duration_seconds",
			Help:        "Engine operation latency.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		}, []string{"operation"}),
		opTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "soa_operations_total",
			Help:        "Engine operations by outcome.",
			ConstLabels: constLabels,
		}, []string{"operation", "outcome"}),
	}

	registerer.MustRegister(
		m.billsGenerated,
		m.billsDeleted,
		m.warnings,
		m.paymentsApplied,
		m.paymentAmount,
		m.excessCredited,
		m.billsOverdue,
		m.opDuration,
		m.opTotal,
	)
	return m
}

func (m *BillingMetrics) IncBillsGenerated(status string) {
	if m == nil {
		return
	}
	m.billsGenerated.WithLabelValues(status).Inc()
}

func (m *BillingMetrics) IncBillsDeleted() {
	if m == nil {
		return
	}
	m.billsDeleted.Inc()
}

func (m *BillingMetrics) IncWarning(code string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(code).Inc()
}

func (m *BillingMetrics) AddPayment(amount float64) {
	if m == nil {
		return
	}
	m.paymentsApplied.Inc()
	if amount > 0 {
		m.paymentAmount.Add(amount)
	}
}

func (m *BillingMetrics) AddExcessCredited(bucket string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.excessCredited.WithLabelValues(bucket).Add(amount)
}

func (m *BillingMetrics) AddMarkedOverdue(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.billsOverdue.Add(float64(count))
}

// ObserveOperation records latency and outcome for one engine call.
func (m *BillingMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = OutcomeOK
	}
	m.opDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.opTotal.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the given gatherer, the default gatherer when nil.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
