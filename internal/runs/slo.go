package runs

import (
	"github.com/haasonsaas/warden/pkg/models"
)

// SLO thresholds. Rate predicates are vacuously satisfied at zero volume.
const (
	// MaxToolFailureRate bounds tool-call failures per run.
	MaxToolFailureRate = 0.05

	// MaxParseFailureRate bounds parse failures per iteration.
	MaxParseFailureRate = 0.005

	// MaxCoordinatorIterations bounds how many iterations a coordinator run
	// may take to finish. Other run kinds are exempt.
	MaxCoordinatorIterations = 8
)

// SLO names as reported by CheckSLOs.
const (
	SLOToolCallFailureRate   = "tool_call_failure_rate"
	SLOParseFailureRate      = "parse_failure_rate"
	SLORunCompleted          = "run_completed"
	SLOCoordinatorIterations = "coordinator_iterations"
)

// CheckSLOs evaluates every SLO predicate against a finalized snapshot and
// returns the names of the violated ones. Evaluation is pure and
// order-independent.
func CheckSLOs(m Metrics) []string {
	var violated []string

	if m.ToolCalls > 0 {
		rate := float64(m.ToolFailures) / float64(m.ToolCalls)
		if rate >= MaxToolFailureRate {
			violated = append(violated, SLOToolCallFailureRate)
		}
	}

	if m.Iterations > 0 {
		rate := float64(m.ParseFailures) / float64(m.Iterations)
		if rate >= MaxParseFailureRate {
			violated = append(violated, SLOParseFailureRate)
		}
	}

	if m.Status != models.RunStatusCompleted {
		violated = append(violated, SLORunCompleted)
	}

	if m.Kind == models.RunKindCoordinator && m.Iterations > MaxCoordinatorIterations {
		violated = append(violated, SLOCoordinatorIterations)
	}

	return violated
}
