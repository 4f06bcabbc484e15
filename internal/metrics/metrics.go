// Package metrics provides Prometheus metrics for the file manager.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemanager_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filemanager_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Copy engine metrics
	copyBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filemanager_copy_bytes_total",
			Help: "Total bytes written by the copy engine",
		},
	)

	copiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemanager_copies_total",
			Help: "Total copy operations by outcome",
		},
		[]string{"outcome"},
	)

	copyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filemanager_copy_duration_seconds",
			Help:    "Duration of successful copies",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	copyThreads = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filemanager_copy_threads",
			Help:    "Number of chunk workers per copy",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8},
		},
	)

	activeTransfers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filemanager_transfers_active",
			Help: "Number of transfers currently running or paused",
		},
	)

	// Media cache metrics, mirrored from the cache counters
	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filemanager_cache_entries",
			Help: "Number of cached media listings",
		},
	)

	cacheHits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filemanager_cache_hits",
			Help: "Cache hits since start",
		},
	)

	cacheMisses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filemanager_cache_misses",
			Help: "Cache misses since start",
		},
	)

	cacheEvictions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filemanager_cache_evictions",
			Help: "LRU evictions since start",
		},
	)

	cacheMemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filemanager_cache_memory_bytes",
			Help: "Approximate memory held by cached listings",
		},
	)

	// Media index metrics
	indexQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filemanager_index_query_duration_seconds",
			Help:    "Media index query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// Volume metrics
	volumeFreeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filemanager_volume_free_bytes",
			Help: "Free bytes per storage volume",
		},
		[]string{"volume"},
	)

	volumeMounted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filemanager_volume_mounted",
			Help: "Whether a storage volume is mounted (1) or not (0)",
		},
		[]string{"volume"},
	)
)

// Copy outcomes
const (
	OutcomeDone      = "done"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
	OutcomeExists    = "exists"
	OutcomeSkipped   = "skipped"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// AddCopyBytes counts bytes written by chunk workers.
func AddCopyBytes(n int64) {
	if n > 0 {
		copyBytesTotal.Add(float64(n))
	}
}

// RecordCopy records the outcome of one copy.
func RecordCopy(outcome string, threads int, duration time.Duration) {
	copiesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeDone {
		copyDuration.Observe(duration.Seconds())
		copyThreads.Observe(float64(threads))
	}
}

// TransferStarted increments the active transfer gauge.
func TransferStarted() {
	activeTransfers.Inc()
}

// TransferFinished decrements the active transfer gauge.
func TransferFinished() {
	activeTransfers.Dec()
}

// SetCacheStats mirrors a cache stats snapshot.
func SetCacheStats(size int, hits, misses, evictions, memoryBytes int64) {
	cacheEntries.Set(float64(size))
	cacheHits.Set(float64(hits))
	cacheMisses.Set(float64(misses))
	cacheEvictions.Set(float64(evictions))
	cacheMemoryBytes.Set(float64(memoryBytes))
}

// RecordIndexQuery records a media index query duration.
func RecordIndexQuery(query string, duration time.Duration) {
	indexQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetVolume records the state of a storage volume.
func SetVolume(name string, mounted bool, freeBytes int64) {
	m := 0.0
	if mounted {
		m = 1
	}
	volumeMounted.WithLabelValues(name).Set(m)
	volumeFreeBytes.WithLabelValues(name).Set(float64(freeBytes))
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

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// Middleware returns HTTP middleware that records request metrics. Paths
// are labelled by their route template to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, routeLabel(r), rw.statusCode, time.Since(start))
	})
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
