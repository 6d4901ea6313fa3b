package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facefeed_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// CacheLookups counts cache-aside lookups by result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facefeed_cache_lookups_total",
		Help: "Cache-aside lookups by result",
	}, []string{"result"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "facefeed_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ContentActions counts domain writes (post_created, comment_created, reaction_added, ...).
	ContentActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facefeed_content_actions_total",
		Help: "Content domain actions by type",
	}, []string{"action"})

	// FaceVerificationActions counts face-verification actions by action and outcome.
	FaceVerificationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facefeed_face_verification_actions_total",
		Help: "Face verification actions by action and outcome",
	}, []string{"action", "outcome"})

	// BiometricReadinessAttempts records how many probes the biometric readiness check needed.
	BiometricReadinessAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facefeed_biometric_readiness_attempts",
		Help:    "Attempts needed before the biometric provider reported ready or gave up",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 12},
	})

	// MediaUploads counts media uploads by kind and outcome.
	MediaUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facefeed_media_uploads_total",
		Help: "Media uploads by kind and outcome",
	}, []string{"kind", "outcome"})

	// WebSocketConnections is the gauge of active websocket connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facefeed_websocket_connections",
		Help: "Number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facefeed_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})
)

// ObserveQuery records the latency of a database statement started at start.
func ObserveQuery(operation, table string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}
