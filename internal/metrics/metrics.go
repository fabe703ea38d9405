// Package metrics exposes Prometheus collectors for HTTP traffic and
// RCA pipeline throughput, plus a chi middleware that records them
// without blowing up cardinality on path parameters.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rca_http_requests_total",
		Help: "Total HTTP requests handled, by route, method and status code.",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rca_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	RCAJobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rca_jobs_enqueued_total",
		Help: "Total RCA jobs enqueued for analysis.",
	})

	RCAJobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rca_jobs_completed_total",
		Help: "Total RCA jobs completed, by terminal status.",
	}, []string{"status"})

	RCAJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rca_job_duration_seconds",
		Help:    "Time spent running one RCA job end to end.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

var idSegment = regexp.MustCompile(`^[0-9a-fA-F-]*[0-9][0-9a-fA-F-]*$`)

// normalizePath replaces dynamic path segments (UUIDs, numeric IDs and
// other hex-and-hyphen IDs containing a digit) with ":id" so per-route metrics don't accumulate one series per
// resource.
func normalizePath(path string) string {
	if path == "" || path == "/" {
		return path
	}
	trailingSlash := path[len(path)-1] == '/'
	segments := splitPath(path)
	for i, seg := range segments {
		if idSegment.MatchString(seg) {
			segments[i] = ":id"
		}
	}
	out := "/" + joinPath(segments)
	if trailingSlash && out != "/" {
		out += "/"
	}
	return out
}

func splitPath(path string) []string {
	var segments []string
	var current string
	for _, ch := range path {
		if ch == '/' {
			if current != "" {
				segments = append(segments, current)
				current = ""
			}
			continue
		}
		current += string(ch)
	}
	if current != "" {
		segments = append(segments, current)
	}
	return segments
}

func joinPath(segments []string) string {
	out := ""
	for i, s := range segments {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}

// Middleware instruments every request with the route-normalized
// counters and latency histogram above.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := normalizePath(r.URL.Path)
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
		httpRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
