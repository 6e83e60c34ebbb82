// Package metrics holds the Prometheus collectors for the relay. All methods
// are safe on a nil *Metrics so tests and tools can skip instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

type Metrics struct {
	messagesIngested  *prometheus.CounterVec
	routingDecisions  *prometheus.CounterVec
	dispatchOutcomes  *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	dispatchInFlight  prometheus.Gauge
	fanoutDeliveries  *prometheus.CounterVec
	connections       prometheus.Gauge
	inboundRateLimits prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		messagesIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "User messages persisted, by ingress channel.",
		}, []string{"channel"}),
		routingDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Router decisions, by reason.",
		}, []string{"reason"}),
		dispatchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_outcomes_total",
			Help:      "Finished AI dispatches, by terminal status and error kind.",
		}, []string{"status", "error_kind"}),
		dispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent waiting on the AI provider.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),
		dispatchInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_in_flight",
			Help:      "AI calls currently running in this process.",
		}),
		fanoutDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_deliveries_total",
			Help:      "Per-recipient fanout results.",
		}, []string{"result"}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Live websocket connections in this process.",
		}),
		inboundRateLimits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_rate_limited_total",
			Help:      "Inbound websocket frames rejected by the per-connection limiter.",
		}),
	}
}

func (m *Metrics) MessageIngested(channel string) {
	if m == nil {
		return
	}
	m.messagesIngested.WithLabelValues(channel).Inc()
}

func (m *Metrics) RoutingDecision(reason string) {
	if m == nil {
		return
	}
	m.routingDecisions.WithLabelValues(reason).Inc()
}

// DispatchStarted returns a func to call when the AI call returns.
func (m *Metrics) DispatchStarted() func() {
	if m == nil {
		return func() {}
	}
	m.dispatchInFlight.Inc()
	return m.dispatchInFlight.Dec
}

func (m *Metrics) DispatchFinished(status, errorKind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatchOutcomes.WithLabelValues(status, errorKind).Inc()
	m.dispatchDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) FanoutDelivered(n int) {
	if m == nil || n == 0 {
		return
	}
	m.fanoutDeliveries.WithLabelValues("delivered").Add(float64(n))
}

func (m *Metrics) FanoutUnreachable(n int) {
	if m == nil || n == 0 {
		return
	}
	m.fanoutDeliveries.WithLabelValues("unreachable").Add(float64(n))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) InboundRateLimited() {
	if m == nil {
		return
	}
	m.inboundRateLimits.Inc()
}
