package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config labels every series with service and environment.
type Config struct {
	ServiceName string
	Environment string
}

const (
	OutcomeCreated = "created"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// BillingMetrics captures invoice generation and ledger signals.
type BillingMetrics struct {
	generationRuns     *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	invoiceOutcomes    *prometheus.CounterVec
	waiverDecisions    *prometheus.CounterVec
	walletPostings     *prometheus.CounterVec
	lateFees           prometheus.Counter
	corrections        *prometheus.CounterVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the process-wide billing metrics registered on the default registerer.
func Billing(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = NewBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest clears the singleton.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func NewBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "estatebill"
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
		generationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "estatebill_generation_runs_total",
			Help:        "Invoice generation runs by trigger and final status.",
			ConstLabels: constLabels,
		}, []string{"trigger", "status"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "estatebill_generation_duration_seconds",
			Help:        "Invoice generation run latency.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}, []string{"trigger"}),
		invoiceOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "estatebill_generation_houses_total",
			Help:        "Per-house generation outcomes by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"outcome", "reason"}),
		waiverDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "estatebill_waiver_decisions_total",
			Help:        "Late fee waiver decisions.",
			ConstLabels: constLabels,
		}, []string{"decision"}),
		walletPostings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "estatebill_wallet_postings_total",
			Help:        "Wallet ledger postings by direction.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		lateFees: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "estatebill_late_fees_applied_total",
			Help:        "Late fees applied to invoices.",
			ConstLabels: constLabels,
		}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "estatebill_corrections_total",
			Help:        "Correction invoices issued by kind.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
	}

	m.generationRuns = registerCounterVec(registerer, m.generationRuns)
	m.generationDuration = registerHistogramVec(registerer, m.generationDuration)
	m.invoiceOutcomes = registerCounterVec(registerer, m.invoiceOutcomes)
	m.waiverDecisions = registerCounterVec(registerer, m.waiverDecisions)
	m.walletPostings = registerCounterVec(registerer, m.walletPostings)
	m.corrections = registerCounterVec(registerer, m.corrections)
	if err := registerer.Register(m.lateFees); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				m.lateFees = existing
			}
		}
	}

	return m
}

func registerCounterVec(registerer prometheus.Registerer, vec *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return vec
}

func registerHistogramVec(registerer prometheus.Registerer, vec *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := registerer.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return vec
}

func (m *BillingMetrics) RecordGenerationRun(trigger, status string, duration time.Duration) {
	if m == nil {
		return
	}
	trigger = normalizeLabel(trigger)
	m.generationRuns.WithLabelValues(trigger, normalizeLabel(status)).Inc()
	m.generationDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

func (m *BillingMetrics) RecordHouseOutcome(outcome, reason string) {
	if m == nil {
		return
	}
	m.invoiceOutcomes.WithLabelValues(normalizeLabel(outcome), normalizeLabel(reason)).Inc()
}

func (m *BillingMetrics) RecordWaiverDecision(decision string) {
	if m == nil {
		return
	}
	m.waiverDecisions.WithLabelValues(normalizeLabel(decision)).Inc()
}

func (m *BillingMetrics) RecordWalletPosting(txType string) {
	if m == nil {
		return
	}
	m.walletPostings.WithLabelValues(normalizeLabel(txType)).Inc()
}

func (m *BillingMetrics) RecordLateFee() {
	if m == nil {
		return
	}
	m.lateFees.Inc()
}

func (m *BillingMetrics) RecordCorrection(kind string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(normalizeLabel(kind)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "none"
	}
	return value
}
