// Package metrics records dispatched requests in Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tags are constant labels attached to every metric.
type Tags map[string]string

// CollectorConfig selects which request metrics are collected.
type CollectorConfig struct {
	Registry         *prometheus.Registry // Registry to register with; a new one is created when nil
	Namespace        string               // Namespace for metrics
	Subsystem        string               // Subsystem for metrics
	DefaultTags      Tags                 // Constant labels, e.g. {"service": "api"}
	EnableLatency    bool                 // request_duration_seconds histogram
	EnableThroughput bool                 // response_size_bytes counter
	EnableQPS        bool                 // requests_total counter
	EnableErrors     bool                 // request_errors_total counter for status >= 400 and failed dispatches
}

// Collector owns the request metrics of one router.
type Collector struct {
	config   CollectorConfig
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	throughput *prometheus.CounterVec
	inFlight   prometheus.Gauge
}

var labels = []string{"method", "route", "status"}

// NewCollector registers the enabled metrics. It fails when a metric with
// the same fully qualified name is already registered.
func NewCollector(config CollectorConfig) (*Collector, error) {
	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{config: config, registry: registry}
	constLabels := prometheus.Labels(config.DefaultTags)

	c.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   config.Namespace,
		Subsystem:   config.Subsystem,
		Name:        "requests_in_flight",
		Help:        "Number of requests currently being dispatched.",
		ConstLabels: constLabels,
	})
	collectors := []prometheus.Collector{c.inFlight}

	if config.EnableQPS {
		c.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of dispatched requests.",
			ConstLabels: constLabels,
		}, labels)
		collectors = append(collectors, c.requests)
	}
	if config.EnableErrors {
		c.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_errors_total",
			Help:        "Total number of requests that failed or produced an error status.",
			ConstLabels: constLabels,
		}, labels)
		collectors = append(collectors, c.errors)
	}
	if config.EnableLatency {
		c.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Request latency in seconds.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, labels)
		collectors = append(collectors, c.latency)
	}
	if config.EnableThroughput {
		c.throughput = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "response_size_bytes",
			Help:        "Total response body bytes produced.",
			ConstLabels: constLabels,
		}, labels)
		collectors = append(collectors, c.throughput)
	}

	for _, col := range collectors {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Begin marks a request as in flight. The returned func must be called once
// the request is done.
func (c *Collector) Begin() func() {
	c.inFlight.Inc()
	return c.inFlight.Dec
}

// Observe records one completed request. A status of 0 means the dispatch
// failed with an error before producing a response.
func (c *Collector) Observe(method, route string, status int, duration time.Duration, size int64) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}

	if c.requests != nil {
		c.requests.WithLabelValues(method, route, code).Inc()
	}
	if c.errors != nil && (status == 0 || status >= 400) {
		c.errors.WithLabelValues(method, route, code).Inc()
	}
	if c.latency != nil {
		c.latency.WithLabelValues(method, route, code).Observe(duration.Seconds())
	}
	if c.throughput != nil && size > 0 {
		c.throughput.WithLabelValues(method, route, code).Add(float64(size))
	}
}

// Registry returns the registry the collector registered with.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
