package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lure"

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	reg *prometheus.Registry

	turns             *prometheus.CounterVec
	stageTransitions  *prometheus.CounterVec
	replies           *prometheus.CounterVec
	generationSeconds prometheus.Histogram
	signals           *prometheus.CounterVec
	conclusions       *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	deliveryAttempts  prometheus.Counter
	queueDepth        prometheus.Gauge
}

// New registers all collectors, plus Go runtime and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "turns_total",
			Help: "Conversation turns recorded, by sender.",
		}, []string{"sender"}),
		stageTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stage_transitions_total",
			Help: "Session stage advances, by destination stage.",
		}, []string{"stage"}),
		replies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "replies_total",
			Help: "Agent replies, by source (llm or fallback) and goal.",
		}, []string{"source", "goal"}),
		generationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "generation_duration_seconds",
			Help:    "Time spent waiting on the generation backend.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
		}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total",
			Help: "New or strengthened ledger entries, by kind.",
		}, []string{"kind"}),
		conclusions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_concluded_total",
			Help: "Sessions concluded, by reason.",
		}, []string{"reason"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "report_deliveries_total",
			Help: "Final report delivery outcomes.",
		}, []string{"outcome"}),
		deliveryAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "report_delivery_attempts_total",
			Help: "Outbound callback attempts, including retries.",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "report_queue_depth",
			Help: "Reports waiting for a delivery worker.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Turn(sender string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(sender).Inc()
}

func (m *Metrics) StageTransition(stage string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(stage).Inc()
}

func (m *Metrics) Reply(source, goal string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(source, goal).Inc()
}

func (m *Metrics) Generation(d time.Duration) {
	if m == nil {
		return
	}
	m.generationSeconds.Observe(d.Seconds())
}

func (m *Metrics) Signals(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.signals.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Concluded(reason string) {
	if m == nil {
		return
	}
	m.conclusions.WithLabelValues(reason).Inc()
}

func (m *Metrics) Delivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DeliveryAttempt() {
	if m == nil {
		return
	}
	m.deliveryAttempts.Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
