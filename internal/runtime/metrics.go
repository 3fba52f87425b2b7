package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons recorded when the bridge discards a message without replying.
const (
	DropReasonEmptyPayload   = "empty_payload"
	DropReasonDecode         = "payload_decode"
	DropReasonClientNotReady = "client_not_ready"
)

// BridgeMetrics tracks forwarding statistics for one or more bridges.
type BridgeMetrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	forwardedTotal *prometheus.CounterVec
	failedTotal    *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
	submitSeconds  *prometheus.HistogramVec
}

// NewBridgeMetrics creates a metrics collector. A nil registerer uses the
// Prometheus default.
func NewBridgeMetrics(registerer prometheus.Registerer) *BridgeMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BridgeMetrics{
		registerer: registerer,
		forwardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streambridge",
			Subsystem: "forwarder",
			Name:      "records_forwarded_total",
			Help:      "Total number of records acknowledged by the stream service",
		}, []string{"stream"}),
		failedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streambridge",
			Subsystem: "forwarder",
			Name:      "records_failed_total",
			Help:      "Total number of submissions rejected or unacknowledged",
		}, []string{"stream"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streambridge",
			Subsystem: "forwarder",
			Name:      "messages_dropped_total",
			Help:      "Total number of inbound messages dropped without a reply",
		}, []string{"reason"}),
		submitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streambridge",
			Subsystem: "forwarder",
			Name:      "submit_duration_seconds",
			Help:      "Latency of record submissions to the stream service",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stream"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *BridgeMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.forwardedTotal,
		m.failedTotal,
		m.droppedTotal,
		m.submitSeconds,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordForwarded records one acknowledged submission.
func (m *BridgeMetrics) RecordForwarded(stream string, elapsed time.Duration) {
	m.forwardedTotal.WithLabelValues(stream).Inc()
	m.submitSeconds.WithLabelValues(stream).Observe(elapsed.Seconds())
}

// RecordFailed records one failed submission.
func (m *BridgeMetrics) RecordFailed(stream string, elapsed time.Duration) {
	m.failedTotal.WithLabelValues(stream).Inc()
	m.submitSeconds.WithLabelValues(stream).Observe(elapsed.Seconds())
}

// RecordDropped records one message discarded without a reply.
func (m *BridgeMetrics) RecordDropped(reason string) {
	m.droppedTotal.WithLabelValues(reason).Inc()
}
