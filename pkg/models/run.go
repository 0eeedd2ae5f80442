package models

// RunStatus is the terminal (or in-flight) state of an agent run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunKind distinguishes run shapes for SLO purposes. Coordinator runs carry a
// tighter iteration bound than worker runs.
type RunKind string

const (
	RunKindCoordinator RunKind = "coordinator"
	RunKindWorker      RunKind = "worker"
)
