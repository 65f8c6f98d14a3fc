// Package metrics exposes pipeline counters through a Prometheus registry.
//
// All methods are safe to call on a nil *Metrics, so components can be
// built without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "image_doc"

// Byte counter kinds.
const (
	KindImage     = "image"
	KindThumbnail = "thumbnail"
	KindManifest  = "manifest"
	KindOriginal  = "original"
)

type Metrics struct {
	registry *prometheus.Registry

	documents    *prometheus.CounterVec
	pages        prometheus.Counter
	failures     *prometheus.CounterVec
	duration     prometheus.Histogram
	bytesWritten *prometheus.CounterVec
	inFlight     prometheus.Gauge
	watchEvents  *prometheus.CounterVec
	sweptFiles   prometheus.Counter
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents processed, by final status.",
		}, []string{"status"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages written for completed documents.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed documents, by error code.",
		}, []string{"code"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Wall time spent processing a document.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes persisted to the workspace, by file kind.",
		}, []string{"kind"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "documents_in_flight",
			Help:      "Documents currently being processed.",
		}),
		watchEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_events_total",
			Help:      "Hot folder events, by outcome.",
		}, []string{"outcome"}),
		sweptFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temp_files_swept_total",
			Help:      "Stale temp files removed from the workspace.",
		}),
	}

	m.registry.MustRegister(
		m.documents,
		m.pages,
		m.failures,
		m.duration,
		m.bytesWritten,
		m.inFlight,
		m.watchEvents,
		m.sweptFiles,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// PoolStats is the subset of worker pool state exported as gauges.
type PoolStats interface {
	Workers() int
	QueueLen() int
	ActiveTasks() int64
}

// RegisterPool exports gauges that read the pool state at scrape time.
func (m *Metrics) RegisterPool(p PoolStats) {
	if m == nil || p == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Configured worker goroutines.",
		}, func() float64 { return float64(p.Workers()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queued_tasks",
			Help:      "Tasks waiting for a worker.",
		}, func() float64 { return float64(p.QueueLen()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "active_tasks",
			Help:      "Tasks currently running.",
		}, func() float64 { return float64(p.ActiveTasks()) }),
	)
}

// Begin marks a document as in flight and returns a func recording its
// outcome. code is ignored unless status is failed.
func (m *Metrics) Begin() func(status string, code string, pages int) {
	if m == nil {
		return func(string, string, int) {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func(status, code string, pages int) {
		m.inFlight.Dec()
		m.duration.Observe(time.Since(start).Seconds())
		m.documents.WithLabelValues(status).Inc()
		if status == "failed" {
			m.failures.WithLabelValues(code).Inc()
			return
		}
		m.pages.Add(float64(pages))
	}
}

func (m *Metrics) AddBytes(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesWritten.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) WatchEvent(outcome string) {
	if m == nil {
		return
	}
	m.watchEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptFiles.Add(float64(n))
}

// Registry returns the underlying registry, for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
