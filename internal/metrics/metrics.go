// Package metrics holds the Prometheus collectors for task, process and
// pipeline activity.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for songbook. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	TaskExecutions *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	ProcessHandles *prometheus.CounterVec
	PipelineRuns   *prometheus.CounterVec
	ToolProbes     *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		TaskExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songbook_task_executions_total",
				Help: "Total number of task executions by terminal state",
			},
			[]string{"kind", "state"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "songbook_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
		ProcessHandles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songbook_process_handles_total",
				Help: "Total number of external processes created",
			},
			[]string{"kind"},
		),
		PipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songbook_pipeline_runs_total",
				Help: "Total number of pipeline runs by aggregate state",
			},
			[]string{"state"},
		),
		ToolProbes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songbook_tool_probes_total",
				Help: "Total number of tool probes by result",
			},
			[]string{"tool", "status"},
		),
	}
}

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

func (m *Metrics) ObserveTask(kind, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.TaskExecutions.WithLabelValues(kind, state).Inc()
	m.TaskDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) HandleCreated(kind string) {
	if m == nil {
		return
	}
	m.ProcessHandles.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObservePipeline(state string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveProbe(tool, status string) {
	if m == nil {
		return
	}
	m.ToolProbes.WithLabelValues(tool, status).Inc()
}

// WriteTextfile writes everything gathered from g to path in the text
// exposition format, for pickup by a node exporter textfile collector.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
