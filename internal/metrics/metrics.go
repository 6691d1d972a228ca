// Package metrics provides Prometheus instrumentation for the charatag service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid; every record helper is a no-op on it, so callers never need to
// branch on whether metrics are enabled.
type Metrics struct {
	// Preview resolution metrics
	ResolvesTotal *prometheus.CounterVec
	FetchesTotal  *prometheus.CounterVec
	FetchBytes    prometheus.Histogram
	FetchLatency  prometheus.Histogram

	// Cache state metrics
	MemoryCacheItems prometheus.Gauge
	MemoryCacheBytes prometheus.Gauge
	DiskSelfHeals    prometheus.Counter

	// Dataset metrics
	DatasetReloads prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with the given namespace. It
// registers on the default registry, so it must be called at most once per
// process.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ResolvesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolves_total",
			Help:      "Total preview resolutions by serving tier",
		}, []string{"source"}),
		FetchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Total origin fetches by outcome",
		}, []string{"result"}),
		FetchBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_bytes",
			Help:      "Downloaded body size per successful fetch",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		FetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Origin fetch duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}),

		MemoryCacheItems: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_cache_items",
			Help:      "Current number of bitmaps in the memory tier",
		}),
		MemoryCacheBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_cache_bytes",
			Help:      "Current pixel bytes held by the memory tier",
		}),
		DiskSelfHeals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disk_self_heal_total",
			Help:      "Corrupt disk entries removed during verification",
		}),

		DatasetReloads: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_reloads_total",
			Help:      "Dataset files re-parsed after an mtime change",
		}),

		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route and status",
		}, []string{"route", "status"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// RecordResolve records a preview resolution served from the given tier.
func (m *Metrics) RecordResolve(source string) {
	if m == nil {
		return
	}
	m.ResolvesTotal.WithLabelValues(source).Inc()
}

// RecordFetch records an origin fetch attempt and its outcome.
func (m *Metrics) RecordFetch(result string, bytes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(result).Inc()
	m.FetchLatency.Observe(duration.Seconds())
	if bytes > 0 {
		m.FetchBytes.Observe(float64(bytes))
	}
}

// UpdateMemoryCache updates the memory tier gauges.
func (m *Metrics) UpdateMemoryCache(items int, bytes int64) {
	if m == nil {
		return
	}
	m.MemoryCacheItems.Set(float64(items))
	m.MemoryCacheBytes.Set(float64(bytes))
}

// RecordSelfHeal records removal of a corrupt disk entry.
func (m *Metrics) RecordSelfHeal() {
	if m == nil {
		return
	}
	m.DiskSelfHeals.Inc()
}

// RecordDatasetReload records a dataset file re-parse.
func (m *Metrics) RecordDatasetReload() {
	if m == nil {
		return
	}
	m.DatasetReloads.Inc()
}

// RecordRequest records an HTTP request handled by the API server.
func (m *Metrics) RecordRequest(route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// MetricsServer runs an HTTP server exposing the /metrics endpoint.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a new metrics server on the given address.
func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	return s.server.ListenAndServe()
}

// StartAsync starts the metrics server in a goroutine.
func (s *MetricsServer) StartAsync() {
	go func() {
		_ = s.server.ListenAndServe()
	}()
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
