// Package metrics exposes the server's Prometheus instrumentation, grounded
// on the oubliette MCP server's metrics package: request counters/latency,
// session/task gauges, and task outcome counters.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts HTTP requests by method, normalized path, and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskserver_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskserver_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ActiveSessions tracks the number of live sessions in the pool.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskserver_active_sessions",
			Help: "Number of active agent sessions",
		},
	)

	// ActiveTasks tracks the number of tasks currently executing.
	ActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskserver_active_tasks",
			Help: "Number of tasks currently executing",
		},
	)

	// TasksTotal counts completed tasks by terminal outcome.
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskserver_tasks_total",
			Help: "Total number of tasks reaching a terminal state",
		},
		[]string{"outcome"}, // completed | failed | interrupted
	)

	// TaskDuration tracks wall-clock task execution time.
	TaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskserver_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// EventBufferDrops counts drops reported through RecordEventDrop. The
	// per-task queue in internal/eventbus blocks when full instead of
	// dropping, and does not call RecordEventDrop.
	EventBufferDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskserver_event_buffer_drops_total",
			Help: "Total number of events dropped due to buffer overflow",
		},
		[]string{"task_id"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GinMiddleware records per-request counters and latency.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		path := normalizePath(c.FullPath())
		status := strconv.Itoa(c.Writer.Status())

		RequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func normalizePath(path string) string {
	if path == "" {
		return "other"
	}
	return path
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTaskOutcome increments the outcome counter and observes duration.
func RecordTaskOutcome(outcome string, durationSeconds float64) {
	TasksTotal.WithLabelValues(outcome).Inc()
	TaskDuration.Observe(durationSeconds)
}

// RecordEventDrop records an event buffer drop for taskID.
func RecordEventDrop(taskID string) {
	EventBufferDrops.WithLabelValues(taskID).Inc()
}
