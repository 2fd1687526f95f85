package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric exported by treekeeper.
const Namespace = "treekeeper"

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Coordination operation label values.
const (
	OpExists    = "exists"
	OpCreate    = "create"
	OpDelete    = "delete"
	OpGet       = "get"
	OpSet       = "set"
	OpChildren  = "children"
	OpSubscribe = "subscribe"
)

// DefaultCoordLatencyBuckets are latency buckets for coordination service
// round trips, which range from sub-millisecond (in-memory) to seconds
// (a ZooKeeper ensemble under load).
var DefaultCoordLatencyBuckets = []float64{
	0.0001, // 0.1ms
	0.0005, // 0.5ms
	0.001,  // 1ms
	0.005,  // 5ms
	0.01,   // 10ms
	0.025,  // 25ms
	0.05,   // 50ms
	0.1,    // 100ms
	0.25,   // 250ms
	0.5,    // 500ms
	1.0,    // 1s
	2.5,    // 2.5s
	5.0,    // 5s
}

// CoordMetrics records coordination service operations. It satisfies
// coord.MetricsRecorder.
type CoordMetrics struct {
	// LatencyHistogram tracks operation latencies.
	// Labels: operation, status (success, failure)
	LatencyHistogram *prometheus.HistogramVec

	// RequestsTotal counts operations by type and status.
	RequestsTotal *prometheus.CounterVec

	// ReconnectsTotal counts sessions re-established after a connection loss.
	ReconnectsTotal prometheus.Counter
}

// NewCoordMetrics creates coordination metrics registered with the default
// registry.
func NewCoordMetrics() *CoordMetrics {
	return NewCoordMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewCoordMetricsWithRegistry creates coordination metrics registered with
// reg. Useful for testing to avoid conflicts with the default registry.
func NewCoordMetricsWithRegistry(reg prometheus.Registerer) *CoordMetrics {
	f := promauto.With(reg)
	m := &CoordMetrics{}
	m.LatencyHistogram = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "coord",
			Name:      "operation_latency_seconds",
			Help:      "Coordination operation latency in seconds, broken down by operation type and status.",
			Buckets:   DefaultCoordLatencyBuckets,
		},
		[]string{"operation", "status"},
	)
	m.RequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "coord",
			Name:      "operations_total",
			Help:      "Total number of coordination operations, broken down by operation type and status.",
		},
		[]string{"operation", "status"},
	)
	m.ReconnectsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "coord",
			Name:      "reconnects_total",
			Help:      "Total number of coordination sessions re-established after a connection loss.",
		},
	)
	return m
}

// RecordOperation records an operation latency and increments the request
// counter.
func (m *CoordMetrics) RecordOperation(operation string, durationSeconds float64, success bool) {
	status := StatusFailure
	if success {
		status = StatusSuccess
	}
	m.LatencyHistogram.WithLabelValues(operation, status).Observe(durationSeconds)
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordReconnect counts a re-established session.
func (m *CoordMetrics) RecordReconnect() {
	m.ReconnectsTotal.Inc()
}

func (m *CoordMetrics) RecordExists(d float64, ok bool)   { m.RecordOperation(OpExists, d, ok) }
func (m *CoordMetrics) RecordCreate(d float64, ok bool)   { m.RecordOperation(OpCreate, d, ok) }
func (m *CoordMetrics) RecordDelete(d float64, ok bool)   { m.RecordOperation(OpDelete, d, ok) }
func (m *CoordMetrics) RecordGet(d float64, ok bool)      { m.RecordOperation(OpGet, d, ok) }
func (m *CoordMetrics) RecordSet(d float64, ok bool)      { m.RecordOperation(OpSet, d, ok) }
func (m *CoordMetrics) RecordChildren(d float64, ok bool) { m.RecordOperation(OpChildren, d, ok) }

func (m *CoordMetrics) RecordSubscribe(d float64, ok bool) {
	m.RecordOperation(OpSubscribe, d, ok)
}
