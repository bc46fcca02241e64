// Package metrics exposes Prometheus collectors for the announcement pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "announcebot"

// Collector implements queue.Observer and the store error hook.
type Collector struct {
	detected    *prometheus.CounterVec
	enqueued    *prometheus.CounterVec
	posted      prometheus.Counter
	retried     *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
	sourceFails *prometheus.CounterVec
	queueDepth  prometheus.Gauge
	sendLatency prometheus.Histogram
	cycles      *prometheus.CounterVec
	lastCheck   prometheus.Gauge
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		detected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_detected_total",
			Help:      "New items reported by detection sources.",
		}, []string{"source"}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_enqueued_total",
			Help:      "Posts added to the delivery queue by priority.",
		}, []string{"priority"}),
		posted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_delivered_total",
			Help:      "Posts delivered successfully.",
		}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_retried_total",
			Help:      "Failed sends rescheduled for retry by error kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_dropped_total",
			Help:      "Posts removed from the queue without delivery.",
		}, []string{"reason"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "State store operations that failed and fell back to a default.",
		}, []string{"op"}),
		sourceFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detect_failures_total",
			Help:      "Detection cycles that failed.",
		}, []string{"source"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Posts currently queued.",
		}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_latency_seconds",
			Help:      "Latency of successful sends.",
			Buckets:   prometheus.DefBuckets,
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Orchestrator cycles by kind.",
		}, []string{"kind"}),
		lastCheck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_check_timestamp_seconds",
			Help:      "Unix time of the last successful detection cycle.",
		}),
	}

	reg.MustRegister(
		c.detected,
		c.enqueued,
		c.posted,
		c.retried,
		c.dropped,
		c.storeErrors,
		c.sourceFails,
		c.queueDepth,
		c.sendLatency,
		c.cycles,
		c.lastCheck,
	)
	return c
}

func (c *Collector) Enqueued(priority int) {
	c.enqueued.WithLabelValues(strconv.Itoa(priority)).Inc()
}

func (c *Collector) Delivered(latency time.Duration) {
	c.posted.Inc()
	c.sendLatency.Observe(latency.Seconds())
}

func (c *Collector) Retried(kind string) { c.retried.WithLabelValues(kind).Inc() }

func (c *Collector) Dropped(reason string) { c.dropped.WithLabelValues(reason).Inc() }

func (c *Collector) Depth(n int) { c.queueDepth.Set(float64(n)) }

// StoreError matches storage.WithErrorHook.
func (c *Collector) StoreError(op string) { c.storeErrors.WithLabelValues(op).Inc() }

func (c *Collector) Detected(source string, n int) {
	c.detected.WithLabelValues(source).Add(float64(n))
}

func (c *Collector) DetectFailed(source string) { c.sourceFails.WithLabelValues(source).Inc() }

func (c *Collector) Cycle(kind string) { c.cycles.WithLabelValues(kind).Inc() }

func (c *Collector) Checked(at time.Time) { c.lastCheck.Set(float64(at.Unix())) }

// Handler serves the Prometheus exposition format for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
