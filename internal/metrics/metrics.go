// Package metrics provides Prometheus metrics for the file-transfer agent.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "nbshare"
)

// Metrics contains all Prometheus metrics for the agent.
type Metrics struct {
	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsComplete prometheus.Counter
	SessionFailures  *prometheus.CounterVec

	// Payload transfer metrics
	TransfersActive    prometheus.Gauge
	BytesSent          prometheus.Counter
	BytesReceived      prometheus.Counter
	PayloadsSent       prometheus.Counter
	PayloadsReceived   prometheus.Counter
	PayloadChunkErrors *prometheus.CounterVec

	// Protocol metrics
	HandshakeLatency prometheus.Histogram
	HandshakeErrors  *prometheus.CounterVec
	KeepalivesSent   prometheus.Counter
	KeepalivesRecv   prometheus.Counter
	KeepaliveRTT     prometheus.Histogram
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Session metrics
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions started and not yet ended as complete or failed",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of sessions started",
		}),
		SessionsComplete: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of sessions that reached Complete",
		}),
		SessionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_failures_total",
			Help:      "Total number of sessions that reached Failed, by reason",
		}, []string{"reason"}),

		// Payload transfer metrics
		TransfersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfers_active",
			Help:      "Number of file payloads currently being sent or received",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes sent",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes received",
		}),
		PayloadsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_sent_total",
			Help:      "Total number of payloads (files and control frames) sent to completion",
		}),
		PayloadsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_received_total",
			Help:      "Total number of payloads (files and control frames) received to completion",
		}),
		PayloadChunkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_chunk_errors_total",
			Help:      "Total payload chunk errors by type",
		}, []string{"error_type"}),

		// Protocol metrics
		HandshakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_latency_seconds",
			Help:      "Histogram of UKEY2 handshake latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		HandshakeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_errors_total",
			Help:      "Total handshake errors by type",
		}, []string{"error_type"}),
		KeepalivesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalives_sent_total",
			Help:      "Total keepalive messages sent",
		}),
		KeepalivesRecv: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalives_received_total",
			Help:      "Total keepalive messages received",
		}),
		KeepaliveRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "keepalive_rtt_seconds",
			Help:      "Histogram of keepalive round-trip time",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}

	return m
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsActive.Inc()
	m.SessionsStarted.Inc()
}

// RecordSessionComplete records a session reaching Complete.
func (m *Metrics) RecordSessionComplete() {
	m.SessionsActive.Dec()
	m.SessionsComplete.Inc()
}

// RecordSessionFailure records a session reaching Failed.
func (m *Metrics) RecordSessionFailure(reason string) {
	m.SessionsActive.Dec()
	m.SessionFailures.WithLabelValues(reason).Inc()
}

// RecordTransferStart records a payload beginning reassembly or send.
func (m *Metrics) RecordTransferStart() {
	m.TransfersActive.Inc()
}

// RecordTransferEnd records a payload finishing, successfully or not.
func (m *Metrics) RecordTransferEnd() {
	m.TransfersActive.Dec()
}

// RecordBytesSent records payload bytes sent.
func (m *Metrics) RecordBytesSent(n int) {
	m.BytesSent.Add(float64(n))
}

// RecordBytesReceived records payload bytes received.
func (m *Metrics) RecordBytesReceived(n int) {
	m.BytesReceived.Add(float64(n))
}

// RecordPayloadSent records a payload sent to completion.
func (m *Metrics) RecordPayloadSent() {
	m.PayloadsSent.Inc()
}

// RecordPayloadReceived records a payload received to completion.
func (m *Metrics) RecordPayloadReceived() {
	m.PayloadsReceived.Inc()
}

// RecordPayloadChunkError records a payload chunk error.
func (m *Metrics) RecordPayloadChunkError(errorType string) {
	m.PayloadChunkErrors.WithLabelValues(errorType).Inc()
}

// RecordHandshake records a successful handshake.
func (m *Metrics) RecordHandshake(latencySeconds float64) {
	m.HandshakeLatency.Observe(latencySeconds)
}

// RecordHandshakeError records a handshake error.
func (m *Metrics) RecordHandshakeError(errorType string) {
	m.HandshakeErrors.WithLabelValues(errorType).Inc()
}

// RecordKeepaliveSent records a keepalive sent.
func (m *Metrics) RecordKeepaliveSent() {
	m.KeepalivesSent.Inc()
}

// RecordKeepaliveRecv records a keepalive received with RTT.
func (m *Metrics) RecordKeepaliveRecv(rttSeconds float64) {
	m.KeepalivesRecv.Inc()
	m.KeepaliveRTT.Observe(rttSeconds)
}
