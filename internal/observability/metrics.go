package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zhouzirui/z-call/backend/internal/apperr"
)

// Upstream service labels.
const (
	ServiceClaude      = "claude"
	ServiceClaudeList  = "claude_models"
	ServiceTTS         = "kurdish_tts"
	ServiceTranscriber = "gemini"
)

// UpstreamObserver records outbound calls. A nil *Metrics satisfies it and
// records nothing.
type UpstreamObserver interface {
	ObserveUpstream(service string, elapsed time.Duration, err error)
}

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry

	RelayTurns       *prometheus.CounterVec
	EndCalls         prometheus.Counter
	UpstreamLatency  *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	sessionsGaugeSet bool
}

// NewMetrics registers the instruments on a private registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RelayTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_turns_total",
			Help:      "Relay operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		EndCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "end_calls_total",
			Help:      "Replies in which the persona hung up.",
		}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_seconds",
			Help:      "Latency of outbound AI and speech requests.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"service"}),
		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed outbound requests by service and status code.",
		}, []string{"service", "code"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

// TrackSessions exports a gauge reading live sessions from count. Later
// calls are ignored.
func (m *Metrics) TrackSessions(namespace string, count func() int) {
	if m == nil || m.sessionsGaugeSet {
		return
	}
	m.sessionsGaugeSet = true
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_sessions",
		Help:      "Sessions currently held in memory.",
	}, func() float64 { return float64(count()) })
}

// ObserveUpstream records the latency and, on failure, the status code.
func (m *Metrics) ObserveUpstream(service string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.UpstreamLatency.WithLabelValues(service).Observe(elapsed.Seconds())
	if err == nil {
		return
	}

	code := "transport"
	var upstreamErr *apperr.UpstreamError
	if errors.As(err, &upstreamErr) && upstreamErr.Status > 0 {
		code = strconv.Itoa(upstreamErr.Status)
	}
	m.UpstreamErrors.WithLabelValues(service, code).Inc()
}

// ObserveTurn counts one relay operation.
func (m *Metrics) ObserveTurn(operation string, err error, endCall bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = strconv.Itoa(apperr.HTTPStatus(err))
	}
	m.RelayTurns.WithLabelValues(operation, outcome).Inc()
	if endCall {
		m.EndCalls.Inc()
	}
}

// ObserveWSMessage counts one websocket frame.
func (m *Metrics) ObserveWSMessage(direction, kind string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, kind).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
