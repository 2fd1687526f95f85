package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WatchMetrics tracks node watch registrations and listener deliveries. It
// satisfies tree.WatchMetricsRecorder.
type WatchMetrics struct {
	// ActiveRegistrations is the number of live node watches.
	ActiveRegistrations prometheus.Gauge

	// DeliveriesTotal counts listener invocations by status.
	DeliveriesTotal *prometheus.CounterVec
}

// NewWatchMetrics creates watch metrics registered with the default registry.
func NewWatchMetrics() *WatchMetrics {
	return NewWatchMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewWatchMetricsWithRegistry creates watch metrics registered with reg.
func NewWatchMetricsWithRegistry(reg prometheus.Registerer) *WatchMetrics {
	f := promauto.With(reg)
	return &WatchMetrics{
		ActiveRegistrations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "watch",
			Name:      "active_registrations",
			Help:      "Number of active node watch registrations.",
		}),
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "watch",
			Name:      "deliveries_total",
			Help:      "Total number of node change deliveries to listeners, broken down by status.",
		}, []string{"status"}),
	}
}

// RecordRegistration adjusts the active registration gauge by delta.
func (m *WatchMetrics) RecordRegistration(delta int) {
	m.ActiveRegistrations.Add(float64(delta))
}

// RecordDelivery counts one listener invocation.
func (m *WatchMetrics) RecordDelivery(success bool) {
	status := StatusFailure
	if success {
		status = StatusSuccess
	}
	m.DeliveriesTotal.WithLabelValues(status).Inc()
}
