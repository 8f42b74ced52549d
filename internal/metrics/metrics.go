// Package metrics exposes Prometheus collectors for the HTTP layer and the
// notification, email and search subsystems.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCounter counts all HTTP requests with labels
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	// RequestDurationHistogram records request duration in seconds
	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	StatusCodeCategoryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_status_category_total",
			Help: "Total number of responses by status category (2xx, 4xx, 5xx)",
		},
		[]string{"service", "category"},
	)

	NotificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nel_notifications_created_total",
			Help: "Notifications inserted, by type",
		},
		[]string{"type"},
	)

	NotificationsDeduplicated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nel_notifications_deduplicated_total",
			Help: "Notification writes collapsed onto an existing unread notification",
		},
	)

	NotificationsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nel_notifications_expired_total",
			Help: "Expired notifications removed by cleanup",
		},
	)

	EmailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nel_emails_total",
			Help: "Email send attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	SearchBackend = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nel_search_requests_total",
			Help: "Search requests by ranking backend",
		},
		[]string{"backend"},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nel_job_runs_total",
			Help: "Scheduled job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDurationHistogram,
			StatusCodeCategoryCounter,
			NotificationsCreated,
			NotificationsDeduplicated,
			NotificationsExpired,
			EmailsSent,
			SearchBackend,
			JobRuns,
		)
	})
}

// HTTPMetrics records request metrics for one service
type HTTPMetrics struct {
	ServiceName string
}

func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	Register()
	return &HTTPMetrics{ServiceName: serviceName}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware labels requests with the matched route template so ids do not
// blow up label cardinality.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(writer, r)

		path := routeTemplate(r)
		status := strconv.Itoa(writer.status)
		RequestCounter.WithLabelValues(m.ServiceName, r.Method, path, status).Inc()
		RequestDurationHistogram.WithLabelValues(m.ServiceName, r.Method, path, status).Observe(time.Since(start).Seconds())
		if category := statusCategory(writer.status); category != "" {
			StatusCodeCategoryCounter.WithLabelValues(m.ServiceName, category).Inc()
		}
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func statusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return ""
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
