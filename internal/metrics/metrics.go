// Package metrics exposes Prometheus counters for the ladder bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the ladder metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry

	messages       *prometheus.CounterVec
	commits        prometheus.Counter
	collabFailures *prometheus.CounterVec
	cycles         *prometheus.CounterVec
	flushLatency   prometheus.Histogram
	flushFailures  prometheus.Counter
	pending        prometheus.Gauge
	rated          prometheus.Gauge
}

func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "elo",
		subsystem: "ladder",
		buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(r.registry)
	r.messages = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name: "messages_total",
		Help: "Messages processed, by outcome",
	}, []string{"outcome"})
	r.commits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name: "commits_total",
		Help: "Reports committed to the rating table",
	})
	r.collabFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name: "platform_failures_total",
		Help: "Failed calls to the platform, by operation",
	}, []string{"op"})
	r.cycles = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name: "poll_cycles_total",
		Help: "Polling cycles, by result",
	}, []string{"result"})
	r.flushLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name:    "flush_seconds",
		Help:    "Time spent persisting the ladder state",
		Buckets: r.buckets,
	})
	r.flushFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name: "flush_failures_total",
		Help: "Failed attempts to persist the ladder state",
	})
	r.pending = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name: "pending_reports",
		Help: "Reports awaiting confirmation",
	})
	r.rated = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name: "rated_participants",
		Help: "Participants in the rating table",
	})
	return r
}

func (r *Recorder) Message(outcome string) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Commit() {
	if r == nil {
		return
	}
	r.commits.Inc()
}

func (r *Recorder) PlatformFailure(op string) {
	if r == nil {
		return
	}
	r.collabFailures.WithLabelValues(op).Inc()
}

func (r *Recorder) Cycle(result string) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(result).Inc()
}

// Flush records one persistence attempt.
func (r *Recorder) Flush(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.flushLatency.Observe(d.Seconds())
	if err != nil {
		r.flushFailures.Inc()
	}
}

// Sizes sets the pending and rated gauges.
func (r *Recorder) Sizes(pending, rated int) {
	if r == nil {
		return
	}
	r.pending.Set(float64(pending))
	r.rated.Set(float64(rated))
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
