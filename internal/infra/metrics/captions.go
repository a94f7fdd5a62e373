package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(captionJobsProcessedTotal, captionQueueDepth, captionGateSkipsTotal)
}

var captionJobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "caption_jobs_processed_total",
		Help: "Total caption jobs reaching a scheduler decision, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'requeued', 'failed'
)

var captionQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "caption_queue_depth",
		Help: "Number of caption jobs currently queued.",
	},
)

var captionGateSkipsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "caption_gate_skips_total",
		Help: "Scheduler ticks that pulled no work, labeled by which gate held.",
	},
	[]string{"gate"}, // 'daily_cap', 'rate', 'single_flight', 'empty'
)

func IncCaptionJob(status string) {
	captionJobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func SetCaptionQueueDepth(n int) {
	captionQueueDepth.Set(float64(n))
}

func IncCaptionGateSkip(gate string) {
	captionGateSkipsTotal.WithLabelValues(norm(gate)).Inc()
}
