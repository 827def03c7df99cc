package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the mirror service.
type Metrics struct {
	registry          *prometheus.Registry
	framesTotal       *prometheus.CounterVec
	fallbackTotal     *prometheus.CounterVec
	encodeFailures    prometheus.Counter
	streamClients     *prometheus.GaugeVec
	windowMovesTotal  prometheus.Counter
	receiverRestarts  prometheus.Counter
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	framesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "airmirror_frames_streamed_total",
		Help: "Total number of frames written to clients, per source",
	}, []string{"source"})
	fallbackTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "airmirror_capture_fallback_total",
		Help: "Total number of frames served from the fallback region, per source",
	}, []string{"source"})
	encodeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "airmirror_encode_failures_total",
		Help: "Total number of frames dropped due to JPEG encode failure",
	})
	streamClients := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "airmirror_stream_clients",
		Help: "Number of currently connected stream clients, per source",
	}, []string{"source"})
	windowMovesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "airmirror_window_moves_total",
		Help: "Total number of confirmed receiver window moves",
	})
	receiverRestarts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "airmirror_receiver_exits_total",
		Help: "Total number of receiver process exits observed",
	})

	registry.MustRegister(
		framesTotal,
		fallbackTotal,
		encodeFailures,
		streamClients,
		windowMovesTotal,
		receiverRestarts,
	)

	return &Metrics{
		registry:         registry,
		framesTotal:      framesTotal,
		fallbackTotal:    fallbackTotal,
		encodeFailures:   encodeFailures,
		streamClients:    streamClients,
		windowMovesTotal: windowMovesTotal,
		receiverRestarts: receiverRestarts,
	}
}

// IncFrames increments the streamed frame counter for a source.
func (m *Metrics) IncFrames(source string) {
	m.framesTotal.WithLabelValues(source).Inc()
}

// IncFallback increments the fallback capture counter for a source.
func (m *Metrics) IncFallback(source string) {
	m.fallbackTotal.WithLabelValues(source).Inc()
}

// IncEncodeFailures increments the encode failure counter.
func (m *Metrics) IncEncodeFailures() {
	m.encodeFailures.Inc()
}

// ClientConnected increments the client gauge for a source.
func (m *Metrics) ClientConnected(source string) {
	m.streamClients.WithLabelValues(source).Inc()
}

// ClientDisconnected decrements the client gauge for a source.
func (m *Metrics) ClientDisconnected(source string) {
	m.streamClients.WithLabelValues(source).Dec()
}

// IncWindowMoves increments the confirmed window move counter.
func (m *Metrics) IncWindowMoves() {
	m.windowMovesTotal.Inc()
}

// IncReceiverExits increments the receiver exit counter.
func (m *Metrics) IncReceiverExits() {
	m.receiverRestarts.Inc()
}

// Handler returns an http.Handler that serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
