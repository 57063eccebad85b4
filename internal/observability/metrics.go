package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the client. Each
// instance owns its registry so several stores can coexist in one process
// (tests, for example) without colliding on the default registerer.
type Metrics struct {
	registry *prometheus.Registry
	latency  *latencyWindow

	HTTPRequests      *prometheus.CounterVec
	SocketEvents      *prometheus.CounterVec
	ActiveSockets     *prometheus.GaugeVec
	VoiceSessions     *prometheus.CounterVec
	ReplyLatency      prometheus.Histogram
	PlaybackBytes     prometheus.Counter
	StateTransitions  *prometheus.CounterVec
	DroppedSocketData *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		latency:  newLatencyWindow(128),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "REST calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		SocketEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_events_total",
			Help:      "WebSocket lifecycle and message events by socket.",
		}, []string{"socket", "event"}),
		ActiveSockets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sockets",
			Help:      "Open WebSocket connections owned by the client, by socket.",
		}, []string{"socket"}),
		VoiceSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_sessions_total",
			Help:      "Voice sessions by outcome.",
		}, []string{"outcome"}),
		ReplyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voice_reply_latency_ms",
			Help:      "Latency from sending a recording to receiving the audio reply in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000},
		}),
		PlaybackBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_bytes_total",
			Help:      "Audio reply bytes handed to the player.",
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_status_transitions_total",
			Help:      "Voice status transitions by source and target status.",
		}, []string{"from", "to"}),
		DroppedSocketData: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_dropped_total",
			Help:      "Inbound or outbound socket payloads that were discarded, by socket and reason.",
		}, []string{"socket", "reason"}),
	}
}

// OpVoiceReply is the latency window key for recording-to-reply time.
const OpVoiceReply = "voice_reply"

func (m *Metrics) ObserveReplyLatency(d time.Duration) {
	m.ReplyLatency.Observe(float64(d.Milliseconds()))
	m.latency.Observe(OpVoiceReply, d)
}

// ObserveHTTP records the outcome and duration of one REST call.
func (m *Metrics) ObserveHTTP(operation string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.HTTPRequests.WithLabelValues(operation, outcome).Inc()
	m.latency.Observe(operation, elapsed)
}

// SnapshotLatency returns rolling percentiles for every observed operation.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	return m.latency.Snapshot()
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and embedding servers.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
