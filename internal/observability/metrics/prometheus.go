// Package metrics provides Prometheus metrics for the intake service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	IntakesSubmitted      prometheus.Counter
	IntakesCommitted      prometheus.Counter
	ValidationFailures    prometheus.Counter
	ConfirmationsRequired *prometheus.CounterVec
	DuplicateKeyConflicts prometheus.Counter
	ReconcileDuration     prometheus.Histogram
	OrdersCreated         prometheus.Counter
	CarePlansGenerated    prometheus.Counter
	CarePlanFailures      prometheus.Counter
	DocumentsExtracted    prometheus.Counter
	OutboxPending         prometheus.Gauge
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		IntakesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intakes_submitted_total",
			Help: "Total intake submissions received",
		}),
		IntakesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intakes_committed_total",
			Help: "Total intake submissions committed",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_validation_failures_total",
			Help: "Total intake submissions rejected by validation",
		}),
		ConfirmationsRequired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_confirmations_required_total",
			Help: "Total 422 responses awaiting caller confirmation",
		}, []string{"kind"}),
		DuplicateKeyConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_duplicate_key_conflicts_total",
			Help: "Total commit-time unique constraint races",
		}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_reconcile_duration_seconds",
			Help:    "Reconciliation duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total medication orders created",
		}),
		CarePlansGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "care_plans_generated_total",
			Help: "Total care plans generated",
		}),
		CarePlanFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "care_plan_failures_total",
			Help: "Total failed care plan generations",
		}),
		DocumentsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "documents_extracted_total",
			Help: "Total documents processed by the text extractor",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
	}

	prometheus.MustRegister(
		m.IntakesSubmitted,
		m.IntakesCommitted,
		m.ValidationFailures,
		m.ConfirmationsRequired,
		m.DuplicateKeyConflicts,
		m.ReconcileDuration,
		m.OrdersCreated,
		m.CarePlansGenerated,
		m.CarePlanFailures,
		m.DocumentsExtracted,
		m.OutboxPending,
	)

	return m
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
