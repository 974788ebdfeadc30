// Package metrics provides Prometheus metrics for the fileroot server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileroot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fileroot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Filesystem operation metrics
	fsOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileroot_fs_operations_total",
			Help: "Total filesystem operations by outcome",
		},
		[]string{"op", "result"},
	)

	fsOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fileroot_fs_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Transfer metrics
	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fileroot_bytes_downloaded_total",
			Help: "Total bytes streamed to clients",
		},
	)

	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fileroot_bytes_uploaded_total",
			Help: "Total bytes written by uploads, including discarded partial uploads",
		},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileroot_downloads_total",
			Help: "Total number of downloads",
		},
		[]string{"status"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileroot_uploads_total",
			Help: "Total number of uploads",
		},
		[]string{"status"},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fileroot_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileroot_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)

	sseEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fileroot_sse_events_dropped_total",
			Help: "Events not delivered to a subscriber whose buffer was full",
		},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fileroot_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordFSOperation records one filesystem operation. result is "ok",
// "client_error" or "error".
func RecordFSOperation(op, result string, duration time.Duration) {
	fsOperationsTotal.WithLabelValues(op, result).Inc()
	fsOperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordDownload records a finished download.
func RecordDownload(bytes int64, success bool) {
	bytesDownloaded.Add(float64(bytes))
	downloadsTotal.WithLabelValues(status(success)).Inc()
}

// RecordUpload records a finished upload.
func RecordUpload(bytes int64, success bool) {
	bytesUploaded.Add(float64(bytes))
	uploadsTotal.WithLabelValues(status(success)).Inc()
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordSSEDrop records an event dropped for a slow subscriber.
func RecordSSEDrop() {
	sseEventsDropped.Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics. Requests
// are labelled by the mux pattern that served them, not the raw URL, so static
// asset paths do not blow up label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
