package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(uploadAttemptsTotal, uploadBytesTotal)
}

var uploadAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storage_upload_attempts_total",
		Help: "Upload attempts by result.",
	},
	[]string{"result"}, // 'success', 'transient_failure', 'permanent_failure'
)

var uploadBytesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "storage_upload_bytes_total",
		Help: "Bytes durably written to object storage.",
	},
)

func IncUploadAttempt(result string) {
	uploadAttemptsTotal.WithLabelValues(norm(result)).Inc()
}

func AddUploadBytes(n int64) {
	uploadBytesTotal.Add(float64(n))
}
