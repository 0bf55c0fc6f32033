package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedOperations counts feed store operations by name and outcome
	// ("ok", "unauthenticated", "invalid", "busy", "backend").
	FeedOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialfeed_operations_total",
		Help: "Feed store operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// BackendLatency records latency of calls into the document/object/identity backends.
	BackendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "socialfeed_backend_latency_seconds",
		Help:    "Backend call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "call"})

	// UploadedBytes counts media bytes sent to object storage.
	UploadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socialfeed_uploaded_bytes_total",
		Help: "Total media bytes uploaded to object storage",
	})

	// OrphanedUploads counts uploads that could not be removed after a failed create.
	OrphanedUploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socialfeed_orphaned_uploads_total",
		Help: "Uploads left behind because compensation failed",
	})

	// EventSubscribers is the number of open view event streams.
	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "socialfeed_event_subscribers",
		Help: "Open websocket event streams",
	})
)

// TrackBackend returns a func that records the call latency when invoked (e.g. defer).
func TrackBackend(backend, call string) func() {
	start := time.Now()
	return func() {
		BackendLatency.WithLabelValues(backend, call).Observe(time.Since(start).Seconds())
	}
}
