package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	RowsProduced   *prometheus.CounterVec
	BatchesFlushed prometheus.Counter
	WorkflowRuns   *prometheus.CounterVec
	WorkflowSecs   prometheus.Histogram
	KpiEvaluations *prometheus.CounterVec
}

// New registers the engine's instruments with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RowsProduced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insight_engine",
			Name:      "report_rows_produced_total",
			Help:      "Report rows produced by the processor, by chart type.",
		}, []string{"chart_type"}),
		BatchesFlushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "insight_engine",
			Name:      "sink_batches_flushed_total",
			Help:      "Row batches flushed to the sink.",
		}),
		WorkflowRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insight_engine",
			Name:      "workflow_runs_total",
			Help:      "Workflow executions, by outcome.",
		}, []string{"outcome"}),
		WorkflowSecs: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "insight_engine",
			Name:      "workflow_duration_seconds",
			Help:      "Wall-clock duration of workflow executions.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		KpiEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insight_engine",
			Name:      "kpi_evaluations_total",
			Help:      "KPI evaluations, by outcome.",
		}, []string{"outcome"}),
	}
}

// NewNop returns instruments backed by a throwaway registry, for tests and
// callers that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
