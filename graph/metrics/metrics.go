// Package metrics provides Prometheus-compatible instrumentation for the
// scheduler and cache, adapted from the teacher's PrometheusMetrics
// (graph/metrics.go) to the compute graph's node/port vocabulary.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every metric the engine publishes. All fields are safe
// for concurrent use. A nil *Collector is valid and records nothing; use
// NewCollector with a nil registry to get a Collector that records to its
// own private registry without exposing it anywhere.
type Collector struct {
	activeNodes  prometheus.Gauge
	queueDepth   prometheus.Gauge
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	nodeLatency  *prometheus.HistogramVec
	backpressure prometheus.Counter
	asyncPending prometheus.Gauge

	mu       sync.RWMutex
	enabled  bool
	registry prometheus.Registerer
}

// NewCollector registers every metric with registry. A nil registry uses
// prometheus.NewRegistry() privately, so constructing a Collector never
// has side effects on prometheus.DefaultRegisterer unless the caller
// explicitly passes it.
func NewCollector(registry prometheus.Registerer) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{registry: registry, enabled: true}

	c.activeNodes = promauto(registry, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nodeflow",
		Name:      "active_nodes",
		Help:      "Number of nodes currently dispatched to the worker pool.",
	}))
	c.queueDepth = promauto(registry, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nodeflow",
		Name:      "queue_depth",
		Help:      "Number of ready work items waiting in the scheduler frontier.",
	}))
	c.cacheHits = promauto(registry, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nodeflow",
		Name:      "cache_hits_total",
		Help:      "Cumulative count of cache lookups that matched the candidate fingerprint.",
	}))
	c.cacheMisses = promauto(registry, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nodeflow",
		Name:      "cache_misses_total",
		Help:      "Cumulative count of cache lookups that did not match the candidate fingerprint.",
	}))
	c.nodeLatency = promautoVec(registry, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nodeflow",
		Name:      "node_run_seconds",
		Help:      "Node Run() duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"}))
	c.backpressure = promauto(registry, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nodeflow",
		Name:      "backpressure_events_total",
		Help:      "Count of times the scheduler frontier blocked an Enqueue on a full queue.",
	}))
	c.asyncPending = promauto(registry, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nodeflow",
		Name:      "async_pending",
		Help:      "Number of async tasks currently outstanding.",
	}))
	return c
}

func promauto[T prometheus.Collector](registry prometheus.Registerer, coll T) T {
	registry.MustRegister(coll)
	return coll
}

func promautoVec(registry prometheus.Registerer, v *prometheus.HistogramVec) *prometheus.HistogramVec {
	registry.MustRegister(v)
	return v
}

// SetActiveNodes records the current number of in-flight sync node
// executions.
func (c *Collector) SetActiveNodes(n int) {
	if c == nil {
		return
	}
	c.activeNodes.Set(float64(n))
}

// SetQueueDepth records the current Frontier depth.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

// ObserveCacheLookup increments the hit or miss counter.
func (c *Collector) ObserveCacheLookup(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.cacheHits.Inc()
		return
	}
	c.cacheMisses.Inc()
}

// ObserveNodeLatency records a node Run() duration under status
// ("ok"/"error"/"pending").
func (c *Collector) ObserveNodeLatency(status string, seconds float64) {
	if c == nil {
		return
	}
	c.nodeLatency.WithLabelValues(status).Observe(seconds)
}

// IncBackpressure records one frontier backpressure event.
func (c *Collector) IncBackpressure() {
	if c == nil {
		return
	}
	c.backpressure.Inc()
}

// SetAsyncPending records the current outstanding async task count.
func (c *Collector) SetAsyncPending(n int) {
	if c == nil {
		return
	}
	c.asyncPending.Set(float64(n))
}
