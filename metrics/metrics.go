// Package metrics provides Prometheus instrumentation for the gateway's
// request pipeline, adapted from the teacher's per-algorithm Collector to
// report per-rule, per-action outcomes instead: how many requests each
// rule matched, what action it dispatched to, and how the Counter Store
// decided (allowed/denied), plus Counter Store latency and backend errors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds Prometheus metric vectors for pipeline instrumentation.
type Collector struct {
	decisions      *prometheus.CounterVec
	counterLatency *prometheus.HistogramVec
	counterErrors  prometheus.Counter
	configRefresh  *prometheus.CounterVec
}

type collectorConfig struct {
	namespace string
	subsystem string
	registry  prometheus.Registerer
	buckets   []float64
}

// CollectorOption configures a Collector.
type CollectorOption func(*collectorConfig)

// WithNamespace sets the Prometheus metric namespace (prefix).
func WithNamespace(ns string) CollectorOption {
	return func(c *collectorConfig) { c.namespace = ns }
}

// WithSubsystem sets the Prometheus metric subsystem.
func WithSubsystem(sub string) CollectorOption {
	return func(c *collectorConfig) { c.subsystem = sub }
}

// WithRegistry registers metrics with the given Registerer instead of
// prometheus.DefaultRegisterer.
func WithRegistry(r prometheus.Registerer) CollectorOption {
	return func(c *collectorConfig) { c.registry = r }
}

// WithBuckets sets custom histogram buckets for Counter Store latency.
func WithBuckets(b []float64) CollectorOption {
	return func(c *collectorConfig) { c.buckets = b }
}

var defaultBuckets = []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1}

// NewCollector creates a Collector and registers its metrics.
//
// Metrics registered:
//   - {namespace}_decisions_total             counter   (rule, action, decision)
//   - {namespace}_counter_store_duration_seconds  histogram
//   - {namespace}_counter_store_errors_total  counter
//   - {namespace}_config_refresh_total        counter   (result)
//
// Default namespace is "gateway".
func NewCollector(opts ...CollectorOption) *Collector {
	cfg := &collectorConfig{
		namespace: "gateway",
		registry:  prometheus.DefaultRegisterer,
		buckets:   defaultBuckets,
	}
	for _, o := range opts {
		o(cfg)
	}

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "decisions_total",
		Help:      "Total pipeline decisions partitioned by rule, action, and outcome.",
	}, []string{"rule", "action", "decision"})

	counterLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "counter_store_duration_seconds",
		Help:      "Latency of Counter Store Check calls in seconds.",
		Buckets:   cfg.buckets,
	}, []string{"backend"})

	counterErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "counter_store_errors_total",
		Help:      "Total Counter Store backend errors.",
	})

	configRefresh := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "config_refresh_total",
		Help:      "Total Config Cache refresh attempts partitioned by result.",
	}, []string{"result"})

	cfg.registry.MustRegister(decisions, counterLatency, counterErrors, configRefresh)

	return &Collector{
		decisions:      decisions,
		counterLatency: counterLatency,
		counterErrors:  counterErrors,
		configRefresh:  configRefresh,
	}
}

// RecordDecision records one pipeline outcome. rule and action may be
// empty ("") when no rule matched. decision is the matched rule's Counter
// Store verdict ("allowed" or "denied", for every action type), or
// whatever label the caller uses for requests without one (the pipeline
// passes "passthrough" when no rule matched), so dashboards can count
// pass-through traffic too.
func (c *Collector) RecordDecision(rule, action, decision string) {
	c.decisions.WithLabelValues(rule, action, decision).Inc()
}

// ObserveCounterStore records the latency of one Counter Store Check call
// and, on failure, increments the error counter.
func (c *Collector) ObserveCounterStore(backend string, start time.Time, err error) {
	c.counterLatency.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	if err != nil {
		c.counterErrors.Inc()
	}
}

// RecordConfigRefresh records a Config Cache refresh attempt's outcome
// ("ok" or "stale").
func (c *Collector) RecordConfigRefresh(result string) {
	c.configRefresh.WithLabelValues(result).Inc()
}
