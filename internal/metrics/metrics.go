package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "molding_report"

// Render holds the scheduler metrics. A nil *Render is valid and records nothing.
type Render struct {
	tasks     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	workers   prometheus.Gauge
	fallbacks prometheus.Counter
}

func NewRender(reg prometheus.Registerer) *Render {
	f := promauto.With(reg)
	return &Render{
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_tasks_total",
			Help:      "Render tasks by outcome.",
		}, []string{"task", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_task_duration_seconds",
			Help:      "Render task duration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"task"}),
		workers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_workers",
			Help:      "Workers used by the last render run.",
		}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_sequential_fallbacks_total",
			Help:      "Render runs that fell back to sequential execution.",
		}),
	}
}

func (r *Render) ObserveTask(task string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	r.tasks.WithLabelValues(task, status).Inc()
	r.duration.WithLabelValues(task).Observe(elapsed.Seconds())
}

func (r *Render) SetWorkers(n int) {
	if r == nil {
		return
	}
	r.workers.Set(float64(n))
}

func (r *Render) Fallback() {
	if r == nil {
		return
	}
	r.fallbacks.Inc()
}

// Run holds the report run metrics.
type Run struct {
	runs     *prometheus.CounterVec
	severity *prometheus.GaugeVec
}

func NewRun(reg prometheus.Registerer) *Run {
	f := promauto.With(reg)
	return &Run{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Report runs by level and outcome.",
		}, []string{"level", "outcome"}),
		severity: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orders_by_severity",
			Help:      "Unfinished orders per risk severity in the last run.",
		}, []string{"severity"}),
	}
}

func (r *Run) Finished(level, outcome string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(level, outcome).Inc()
}

func (r *Run) SetSeverity(severity string, n int) {
	if r == nil {
		return
	}
	r.severity.WithLabelValues(severity).Set(float64(n))
}
