package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reelpipe"

// Stage item outcomes.
const (
	OutcomeAdvanced = "advanced"
	OutcomeFailed   = "failed"
	OutcomeRetried  = "retried"
	OutcomeSkipped  = "skipped"
)

var (
	// StageItems counts per-item outcomes by stage.
	StageItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_items_total",
			Help:      "Items processed by a stage, by outcome",
		},
		[]string{"stage", "outcome"},
	)

	// StageRunSeconds tracks wall time of a stage run.
	StageRunSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_run_seconds",
			Help:      "Duration of one stage run in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// PipelineRuns counts orchestrator runs by trigger and result.
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	// PipelineRunSeconds tracks wall time of a full pipeline run.
	PipelineRunSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_seconds",
			Help:      "Duration of a pipeline run in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// ItemsByStage reports the current item count per lifecycle stage.
	ItemsByStage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items",
			Help:      "Content items by lifecycle stage",
		},
		[]string{"stage"},
	)

	// ApprovalDecisions counts recorded approval decisions.
	ApprovalDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Approval decisions by outcome",
		},
		[]string{"decision"},
	)

	// PublisherBreakerState mirrors the publish circuit breaker (0 closed, 1 half-open, 2 open).
	PublisherBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publisher_breaker_state",
			Help:      "Publisher circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
	)
)

// ObserveStageItem records a single item outcome.
func ObserveStageItem(stage, outcome string) {
	StageItems.WithLabelValues(stage, outcome).Inc()
}

// SetItemsByStage replaces the per-stage gauge values.
func SetItemsByStage(counts map[string]int) {
	ItemsByStage.Reset()
	for stage, count := range counts {
		ItemsByStage.WithLabelValues(stage).Set(float64(count))
	}
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
