package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(aiCallsLatencyMs)
}

var aiCallsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ai_calls_latency_ms",
		Help:    "AI call latency distribution in milliseconds.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	},
	[]string{"service", "success"}, // service: 'metadata', 'transcription'
)

func ObserveAICall(service string, latencyMs int, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(service), strconv.FormatBool(success)).Observe(float64(latencyMs))
}
