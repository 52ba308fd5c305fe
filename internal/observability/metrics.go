package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	ioDurationBuckets   = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	bodySizeBuckets     = []float64{100, 1024, 10240, 102400, 1048576, 10485760}
)

// Metrics holds all Prometheus metric instruments of the content service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Document metrics
	SavesTotal          *prometheus.CounterVec
	SaveDuration        *prometheus.HistogramVec
	SaveRejectionsTotal *prometheus.CounterVec
	ReloadsTotal        *prometheus.CounterVec
	DraftsDiscarded     prometheus.Counter
	DocumentsLoaded     *prometheus.GaugeVec
	DanglingReferences  *prometheus.GaugeVec

	// Live connections
	EventSubscribers prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardforge_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardforge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardforge_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardforge_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Documents
		SavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardforge_saves_total",
			Help: "Total number of collection saves.",
		}, []string{"collection", "status"}),
		SaveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardforge_save_duration_seconds",
			Help:    "Collection save duration in seconds.",
			Buckets: ioDurationBuckets,
		}, []string{"collection"}),
		SaveRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardforge_save_rejections_total",
			Help: "Total number of saves refused for their content.",
		}, []string{"collection", "reason"}),
		ReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardforge_reloads_total",
			Help: "Total number of project reloads.",
		}, []string{"trigger", "status"}),
		DraftsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardforge_drafts_discarded_total",
			Help: "Total number of unsaved drafts discarded by reloads.",
		}),
		DocumentsLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cardforge_documents_loaded",
			Help: "Number of records loaded per collection.",
		}, []string{"collection"}),
		DanglingReferences: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cardforge_dangling_references",
			Help: "Number of references that resolve to nothing, by source collection.",
		}, []string{"collection"}),

		EventSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cardforge_event_subscribers",
			Help: "Number of connected event stream clients.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Documents
		m.SavesTotal,
		m.SaveDuration,
		m.SaveRejectionsTotal,
		m.ReloadsTotal,
		m.DraftsDiscarded,
		m.DocumentsLoaded,
		m.DanglingReferences,
		// Live connections
		m.EventSubscribers,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordSave records a collection save. status is "success" or "error".
func (m *Metrics) RecordSave(collection, status string, duration time.Duration) {
	m.SavesTotal.WithLabelValues(collection, status).Inc()
	m.SaveDuration.WithLabelValues(collection).Observe(duration.Seconds())
}

// RecordSaveRejection records a save refused for its content.
func (m *Metrics) RecordSaveRejection(collection, reason string) {
	m.SaveRejectionsTotal.WithLabelValues(collection, reason).Inc()
}

// RecordReload records a project reload. trigger is "poll", "manual" or
// "switch".
func (m *Metrics) RecordReload(trigger, status string, discarded int) {
	m.ReloadsTotal.WithLabelValues(trigger, status).Inc()
	m.DraftsDiscarded.Add(float64(discarded))
}

// SetDocumentsLoaded sets the number of records loaded for a collection.
func (m *Metrics) SetDocumentsLoaded(collection string, count float64) {
	m.DocumentsLoaded.WithLabelValues(collection).Set(count)
}

// SetDanglingReferences sets the number of dangling references held by a
// collection.
func (m *Metrics) SetDanglingReferences(collection string, count float64) {
	m.DanglingReferences.WithLabelValues(collection).Set(count)
}

// SetEventSubscribers sets the number of connected event stream clients.
func (m *Metrics) SetEventSubscribers(count int) {
	m.EventSubscribers.Set(float64(count))
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := newRecorder(w)

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns the Prometheus HTTP handler serving one registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
