package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(ingestionJobsTotal, ingestionStageSeconds)
}

var ingestionJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingestion_jobs_total",
		Help: "Total ingestion jobs by terminal outcome.",
	},
	[]string{"outcome"}, // 'complete', 'failed', 'cancelled'
)

var ingestionStageSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ingestion_stage_seconds",
		Help:    "Duration of individual ingestion stages.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	},
	[]string{"stage"},
)

func IncIngestionJob(outcome string) {
	ingestionJobsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveIngestionStage(stage string, seconds float64) {
	ingestionStageSeconds.WithLabelValues(norm(stage)).Observe(seconds)
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
