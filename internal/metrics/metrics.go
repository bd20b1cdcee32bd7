// Package metrics exposes Prometheus instrumentation for the scheduler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	taskRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chime_task_runs_total",
			Help: "Total number of task execution sequences by terminal outcome",
		},
		[]string{"task", "status"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chime_task_duration_seconds",
			Help:    "Task execution time in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"task"},
	)

	tasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chime_tasks_in_flight",
			Help: "Number of task executions currently running",
		},
	)

	dispatchSkipsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chime_dispatch_skips_total",
			Help: "Due tasks skipped because the worker cap was reached",
		},
	)

	scheduledTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chime_scheduled_tasks",
			Help: "Number of tasks registered with the scheduler",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTaskRun records one terminal outcome of a task execution sequence.
func RecordTaskRun(taskName, status string, duration time.Duration) {
	taskRunsTotal.WithLabelValues(taskName, status).Inc()
	taskDuration.WithLabelValues(taskName).Observe(duration.Seconds())
}

// IncrementInFlight tracks the start of one task execution.
func IncrementInFlight() {
	tasksInFlight.Inc()
}

// DecrementInFlight tracks the end of one task execution.
func DecrementInFlight() {
	tasksInFlight.Dec()
}

// RecordDispatchSkip counts a due task skipped at the worker cap.
func RecordDispatchSkip() {
	dispatchSkipsTotal.Inc()
}

// SetScheduledTasks updates the registered task gauge.
func SetScheduledTasks(n int) {
	scheduledTasks.Set(float64(n))
}
