package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576, 10485760}
)

// Metrics holds all Prometheus metric instruments for the service.
// All Record methods are safe to call on a nil receiver, so callers
// that run without metrics (unit tests, tooling) pass nil and skip
// instrumentation entirely.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Termination workflow metrics
	TransitionsTotal  *prometheus.CounterVec
	MediaUploadsTotal prometheus.Counter
	MediaUploadBytes  prometheus.Histogram

	// Backend collaborator metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState *prometheus.GaugeVec
	BackendRetriesTotal        *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vacate_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vacate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vacate_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vacate_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Termination workflow
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vacate_transitions_total",
			Help: "Total number of stage transition attempts by outcome.",
		}, []string{"transition", "status"}),
		MediaUploadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vacate_media_uploads_total",
			Help: "Total number of media files uploaded.",
		}),
		MediaUploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vacate_media_upload_bytes",
			Help:    "Size of uploaded media files in bytes.",
			Buckets: bodySizeBuckets,
		}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vacate_backend_requests_total",
			Help: "Total number of backend service requests.",
		}, []string{"service_id", "operation", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vacate_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"service_id"}),
		BackendCircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vacate_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"service_id"}),
		BackendRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vacate_backend_retries_total",
			Help: "Total number of backend request retries.",
		}, []string{"service_id"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Termination workflow
		m.TransitionsTotal,
		m.MediaUploadsTotal,
		m.MediaUploadBytes,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.BackendRetriesTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordTransition records a stage transition attempt. Status is "ok" for
// a successful transition or the error code of the rejection.
func (m *Metrics) RecordTransition(transition, status string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(transition, status).Inc()
}

// RecordMediaUpload records an accepted media file upload.
func (m *Metrics) RecordMediaUpload(sizeBytes int) {
	if m == nil {
		return
	}
	m.MediaUploadsTotal.Inc()
	m.MediaUploadBytes.Observe(float64(sizeBytes))
}

// RecordBackendRequest records a backend service request. Requests that
// never produced a response record status 0.
func (m *Metrics) RecordBackendRequest(serviceID, operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(serviceID, operation, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(serviceID).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the circuit breaker state gauge for a
// service. State: 0=closed, 1=open, 2=half-open.
func (m *Metrics) SetBackendCircuitBreakerState(serviceID string, state float64) {
	if m == nil {
		return
	}
	m.BackendCircuitBreakerState.WithLabelValues(serviceID).Set(state)
}

// RecordBackendRetry records a backend request retry.
func (m *Metrics) RecordBackendRetry(serviceID string) {
	if m == nil {
		return
	}
	m.BackendRetriesTotal.WithLabelValues(serviceID).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

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

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
