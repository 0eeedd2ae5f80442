package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Tool executions, by tool and outcome
//   - Policy decisions, by decision kind
//   - Sandbox invocations, latency, and peak heap use
//   - Job dispatch outcomes and queue latency
//   - Memory selection/enforcement activity
type Metrics struct {
	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// PolicyDecisionCounter counts policy decisions.
	// Labels: decision (allow|confirm|deny|rate_limit), profile
	PolicyDecisionCounter *prometheus.CounterVec

	// SandboxInvocationCounter counts sandboxed executions.
	// Labels: tool_name, outcome (result|error|timeout|crash)
	SandboxInvocationCounter *prometheus.CounterVec

	// SandboxMemoryUsed observes per-invocation heap use in MiB.
	// Labels: tool_name
	SandboxMemoryUsed *prometheus.HistogramVec

	// JobCounter counts dispatched jobs.
	// Labels: job_type, status (succeeded|failed|retried)
	JobCounter *prometheus.CounterVec

	// JobDuration measures job handler time in seconds.
	// Labels: job_type
	JobDuration *prometheus.HistogramVec

	// CommitGateCounter counts commit-gate outcomes.
	// Labels: outcome (allow|duplicate_hash|duplicate_similar|already_committed)
	CommitGateCounter *prometheus.CounterVec

	// MemoryArchivedCounter counts memory items archived by enforcement.
	// Labels: level
	MemoryArchivedCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (registry|policy|sandbox|jobs|memory), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics against the
// default registry. This should be called once at application startup.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers metrics against a caller-supplied
// registry. Intended for tests and embedding.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		PolicyDecisionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_policy_decisions_total",
				Help: "Total number of policy decisions by kind and profile",
			},
			[]string{"decision", "profile"},
		),

		SandboxInvocationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_sandbox_invocations_total",
				Help: "Total number of sandboxed handler invocations by outcome",
			},
			[]string{"tool_name", "outcome"},
		),

		SandboxMemoryUsed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_sandbox_memory_used_mb",
				Help:    "Peak heap use of sandboxed invocations in MiB",
				Buckets: []float64{4, 16, 32, 64, 128, 256, 512, 1024},
			},
			[]string{"tool_name"},
		),

		JobCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_jobs_total",
				Help: "Total number of dispatched jobs by type and status",
			},
			[]string{"job_type", "status"},
		),

		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_job_duration_seconds",
				Help:    "Duration of job handler execution in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"job_type"},
		),

		CommitGateCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_commit_gate_total",
				Help: "Total number of commit-gate decisions by outcome",
			},
			[]string{"outcome"},
		),

		MemoryArchivedCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_memory_items_archived_total",
				Help: "Total number of memory items archived by enforcement",
			},
			[]string{"level"},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}
