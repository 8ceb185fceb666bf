package runtime

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mohammad-safakhou/marketresearch/internal/executor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the prometheus collectors of a process on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	toolCalls   *prometheus.CounterVec
	toolLatency *prometheus.HistogramVec
	steps       *prometheus.CounterVec
	runs        *prometheus.CounterVec
}

// NewMetrics registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Tool invocations by tool and outcome.",
		}, []string{"tool", "ok"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tool_latency_seconds",
			Help:    "Tool invocation latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"tool"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plan_steps_total",
			Help: "Executed plan steps by tool and outcome.",
		}, []string{"tool", "ok"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_runs_total",
			Help: "Finished workflow runs by status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(m.toolCalls, m.toolLatency, m.steps, m.runs)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveTool implements tools.Metrics.
func (m *Metrics) ObserveTool(tool string, ok bool, latency time.Duration) {
	m.toolCalls.WithLabelValues(tool, strconv.FormatBool(ok)).Inc()
	m.toolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// ObserveRun implements workflow.RunMetrics.
func (m *Metrics) ObserveRun(status string) {
	m.runs.WithLabelValues(status).Inc()
}

// ExecutorMetrics adapts the collectors to the executor's callbacks.
func (m *Metrics) ExecutorMetrics() executor.Metrics {
	return executor.Metrics{
		StepCounter: func(_ context.Context, f executor.Finding) {
			m.steps.WithLabelValues(f.Tool, strconv.FormatBool(f.OK)).Inc()
		},
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the current values to a Pushgateway, replacing the job's group.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
