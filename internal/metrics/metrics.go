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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chime_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chime_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chime_deliveries_total",
			Help: "Push delivery attempts by scheduler and result",
		},
		[]string{"scheduler", "result"},
	)

	jobsBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chime_jobs_built_total",
			Help: "Notification jobs built per tick by scheduler",
		},
		[]string{"scheduler"},
	)

	ticksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chime_ticks_skipped_total",
			Help: "Ticks skipped because the previous tick was still running",
		},
		[]string{"scheduler"},
	)

	tickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chime_tick_duration_seconds",
			Help:    "Wall time of one scheduler tick including fan-out",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60},
		},
		[]string{"scheduler"},
	)

	subscriptionsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chime_subscriptions_reaped_total",
			Help: "Subscriptions deleted after a permanent delivery failure",
		},
	)

	duplicatesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chime_duplicates_suppressed_total",
			Help: "Sends skipped because a delivery marker already existed",
		},
		[]string{"scheduler"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDelivery records one classified push delivery attempt
func RecordDelivery(scheduler, result string) {
	deliveriesTotal.WithLabelValues(scheduler, result).Inc()
}

// RecordJobsBuilt records the number of jobs a tick produced
func RecordJobsBuilt(scheduler string, n int) {
	jobsBuilt.WithLabelValues(scheduler).Add(float64(n))
}

// RecordTickSkipped records a skip-if-busy decision
func RecordTickSkipped(scheduler string) {
	ticksSkipped.WithLabelValues(scheduler).Inc()
}

// ObserveTick records the wall time of one completed tick
func ObserveTick(scheduler string, d time.Duration) {
	tickDuration.WithLabelValues(scheduler).Observe(d.Seconds())
}

// RecordSubscriptionReaped records one reaped subscription
func RecordSubscriptionReaped() {
	subscriptionsReaped.Inc()
}

// RecordDuplicateSuppressed records a send skipped by the delivery marker
func RecordDuplicateSuppressed(scheduler string) {
	duplicatesSuppressed.WithLabelValues(scheduler).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
