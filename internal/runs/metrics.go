// Package runs tracks per-run execution counters and evaluates service-level
// objectives against finished runs.
package runs

import (
	"sync"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
)

// Metrics is the immutable snapshot of one finished (or in-flight) run.
type Metrics struct {
	RunID string         `json:"run_id"`
	Kind  models.RunKind `json:"kind"`

	Iterations    int `json:"iterations"`
	ToolCalls     int `json:"tool_calls"`
	ToolFailures  int `json:"tool_failures"`
	ParseFailures int `json:"parse_failures"`
	Repairs       int `json:"repairs"`

	Status     models.RunStatus `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
}

// Collector accumulates monotonically increasing counters during a run's
// lifetime and finalizes into an immutable snapshot on Finish.
type Collector struct {
	mu       sync.Mutex
	metrics  Metrics
	finished bool
}

// NewCollector starts collection for a run.
func NewCollector(runID string, kind models.RunKind) *Collector {
	return &Collector{
		metrics: Metrics{
			RunID:     runID,
			Kind:      kind,
			Status:    models.RunStatusRunning,
			StartedAt: time.Now().UTC(),
		},
	}
}

// AddIteration records one agent loop iteration.
func (c *Collector) AddIteration() { c.add(func(m *Metrics) { m.Iterations++ }) }

// AddToolCall records one tool invocation.
func (c *Collector) AddToolCall() { c.add(func(m *Metrics) { m.ToolCalls++ }) }

// AddToolFailure records one failed tool invocation.
func (c *Collector) AddToolFailure() { c.add(func(m *Metrics) { m.ToolFailures++ }) }

// AddParseFailure records one model-output parse failure.
func (c *Collector) AddParseFailure() { c.add(func(m *Metrics) { m.ParseFailures++ }) }

// AddRepair records one successful repair of malformed model output.
func (c *Collector) AddRepair() { c.add(func(m *Metrics) { m.Repairs++ }) }

func (c *Collector) add(f func(*Metrics)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	f(&c.metrics)
}

// Snapshot returns the current counter values without finalizing.
func (c *Collector) Snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Finish finalizes the run with its terminal status and returns the
// immutable snapshot. Further counter updates are dropped; calling Finish
// again returns the already-finalized snapshot.
func (c *Collector) Finish(status models.RunStatus) Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return c.metrics
	}
	c.finished = true
	c.metrics.Status = status
	c.metrics.FinishedAt = time.Now().UTC()
	return c.metrics
}
