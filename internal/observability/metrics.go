// Package observability holds the process-wide prometheus collectors and tracer.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knot_redis_errors_total",
		Help: "Total number of Redis errors by operation",
	}, []string{"operation"})

	// StorageOperations counts bucket operations by op and result.
	StorageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knot_storage_operations_total",
		Help: "Bucket operations by operation and result",
	}, []string{"op", "result"})

	// Compensations counts compensating file deletes by saga stage and result.
	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knot_compensations_total",
		Help: "Compensating deletes by stage and result",
	}, []string{"stage", "result"})

	// FileDeletionsPending is the number of outbox rows still awaiting a retry.
	FileDeletionsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "knot_file_deletions_pending",
		Help: "File deletions waiting in the retry outbox",
	})

	// FileDeletionsDead counts outbox rows that exhausted their attempts.
	FileDeletionsDead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knot_file_deletions_dead_total",
		Help: "File deletions that exhausted all retry attempts",
	})

	// WebSocketConnections is the gauge of open feed sockets.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "knot_websocket_connections",
		Help: "Open feed WebSocket connections",
	})

	// WebSocketDrops counts messages dropped due to backpressure.
	WebSocketDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knot_websocket_drops_total",
		Help: "Feed messages dropped due to backpressure",
	}, []string{"reason"})

	// PreviewRenderSeconds records preview render latency.
	PreviewRenderSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "knot_preview_render_seconds",
		Help:    "Time spent rendering file previews",
		Buckets: prometheus.DefBuckets,
	})
)

// Result labels for outcome counters.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// ObserveStorage records the outcome of a bucket operation.
func ObserveStorage(op string, err error) {
	StorageOperations.WithLabelValues(op, resultLabel(err)).Inc()
}

// ObserveCompensation records the outcome of a compensating delete.
func ObserveCompensation(stage string, result string) {
	Compensations.WithLabelValues(stage, result).Inc()
}

// TrackPreview returns a function that records render latency when called.
func TrackPreview() func() {
	start := time.Now()
	return func() {
		PreviewRenderSeconds.Observe(time.Since(start).Seconds())
	}
}

func resultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
