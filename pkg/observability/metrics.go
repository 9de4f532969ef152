package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
//
// Every Record/Set method is safe to call on a nil *Metrics, so components
// can be built without a registry.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Delivery metrics
	PublishTotal            *prometheus.CounterVec
	PublishDuration         *prometheus.HistogramVec
	TasksDeliveredTotal     *prometheus.CounterVec
	TaskDuration            *prometheus.HistogramVec
	HandlerImpairmentsTotal *prometheus.CounterVec

	// Dispatch loop metrics
	LoopTransitionsTotal *prometheus.CounterVec

	// Thread pool metrics
	PoolWorkers          *prometheus.GaugeVec
	PoolEvictionsTotal   *prometheus.CounterVec
	PoolUnpooledTotal    *prometheus.CounterVec
	PoolSubmissionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventbus_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Delivery metrics
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_publish_total",
				Help: "Total number of publish calls",
			},
			[]string{"mode", "status"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventbus_publish_duration_seconds",
				Help:    "Time a publisher spent inside a publish call",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"mode"},
		),
		TasksDeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_tasks_delivered_total",
				Help: "Total number of delivery tasks executed",
			},
			[]string{"mode", "status"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventbus_task_duration_seconds",
				Help:    "Handler execution time in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"mode"},
		),
		HandlerImpairmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_handler_impairments_total",
				Help: "Total number of handlers impaired by a watchdog",
			},
			[]string{"handler"},
		),

		// Dispatch loop metrics
		LoopTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_loop_transitions_total",
				Help: "Total number of dispatch loop hand-overs, holds and resumes",
			},
			[]string{"queue", "transition"},
		),

		// Thread pool metrics
		PoolWorkers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eventbus_pool_workers",
				Help: "Number of pooled workers",
			},
			[]string{"pool"},
		),
		PoolEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_pool_evictions_total",
				Help: "Total number of workers decoupled from a saturated pool",
			},
			[]string{"pool"},
		),
		PoolUnpooledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_pool_unpooled_total",
				Help: "Total number of submissions run on unpooled workers",
			},
			[]string{"pool"},
		),
		PoolSubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_pool_submissions_total",
				Help: "Total number of loops submitted to a pool",
			},
			[]string{"pool"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PublishTotal,
		m.PublishDuration,
		m.TasksDeliveredTotal,
		m.TaskDuration,
		m.HandlerImpairmentsTotal,
		m.LoopTransitionsTotal,
		m.PoolWorkers,
		m.PoolEvictionsTotal,
		m.PoolUnpooledTotal,
		m.PoolSubmissionsTotal,
	)

	return m
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordPublish records one publish call
func (m *Metrics) RecordPublish(mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PublishTotal.WithLabelValues(mode, statusLabel(err)).Inc()
	m.PublishDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordTask records one executed delivery task
func (m *Metrics) RecordTask(mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.TasksDeliveredTotal.WithLabelValues(mode, statusLabel(err)).Inc()
	m.TaskDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordImpairment records a handler marked impaired
func (m *Metrics) RecordImpairment(handler string) {
	if m == nil {
		return
	}
	m.HandlerImpairmentsTotal.WithLabelValues(handler).Inc()
}

// RecordTransition records a dispatch loop transition
func (m *Metrics) RecordTransition(queue, transition string) {
	if m == nil {
		return
	}
	m.LoopTransitionsTotal.WithLabelValues(queue, transition).Inc()
}

// SetPoolWorkers sets the pooled worker count of a pool
func (m *Metrics) SetPoolWorkers(pool string, n int) {
	if m == nil {
		return
	}
	m.PoolWorkers.WithLabelValues(pool).Set(float64(n))
}

// RecordSubmission records a loop submitted to a pool
func (m *Metrics) RecordSubmission(pool string) {
	if m == nil {
		return
	}
	m.PoolSubmissionsTotal.WithLabelValues(pool).Inc()
}

// RecordEviction records a worker decoupled from a saturated pool
func (m *Metrics) RecordEviction(pool string) {
	if m == nil {
		return
	}
	m.PoolEvictionsTotal.WithLabelValues(pool).Inc()
}

// RecordUnpooled records a submission run on an unpooled worker
func (m *Metrics) RecordUnpooled(pool string) {
	if m == nil {
		return
	}
	m.PoolUnpooledTotal.WithLabelValues(pool).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Paths are labeled by their route template to keep cardinality bounded.
// With nil metrics the middleware passes requests through untouched.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
