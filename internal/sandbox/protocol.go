// Package sandbox executes a single tool handler invocation in an isolated
// worker process, so a crash, infinite loop, or runaway allocation in
// handler code cannot take down the caller.
//
// The caller and worker speak a one-shot JSON request/response protocol over
// the worker's stdin/stdout. One process handles exactly one invocation and
// terminates immediately after responding; processes are never reused. This
// trades process-spawn cost for a clean, leak-free isolation boundary.
package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haasonsaas/warden/pkg/models"
)

// Message types on the wire.
const (
	MessageExecute = "execute"
	MessageResult  = "result"
	MessageError   = "error"
)

var (
	// ErrTimeout indicates the invocation exceeded its deadline and the
	// worker process was reaped.
	ErrTimeout = errors.New("sandbox invocation timed out")

	// ErrCrash indicates the worker exited without producing a response.
	ErrCrash = errors.New("sandbox worker exited without responding")
)

// ExecError reports a handler failure inside the worker: a returned error,
// a panic, or a malformed request. It is a valid terminal outcome, distinct
// from the transport-level ErrTimeout/ErrCrash.
type ExecError struct {
	Message string

	// MemoryUsedMB is the worker's heap use at failure time, when known.
	MemoryUsedMB float64
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("sandbox execution error: %s", e.Message)
}

// Request asks the worker to execute one handler invocation.
//
// The handler is resolved inside the worker by identifier; executable code
// never crosses the process boundary. Ctx is the reduced execution context:
// identifiers and validated tool config only, no live database handle.
// Database access is categorically unavailable inside the sandbox.
type Request struct {
	Type    string            `json:"type"`
	Handler string            `json:"handler"`
	Ctx     models.Invocation `json:"ctx"`
	Args    json.RawMessage   `json:"args,omitempty"`

	// TimeoutMs bounds the handler's own context inside the worker. The
	// caller enforces an independent overall deadline regardless.
	TimeoutMs int `json:"timeoutMs,omitempty"`

	// MemoryLimitMB caps the worker's heap via the runtime soft limit.
	MemoryLimitMB int `json:"memoryLimitMb,omitempty"`
}

// Response is the worker's single reply: exactly one per invocation, type
// "result" on success or "error" on any failure path.
type Response struct {
	Type   string             `json:"type"`
	Result *models.ToolResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`

	// MemoryUsedMB is heap-used in MiB, rounded to 2 decimal places,
	// reported opportunistically on every outcome for post-hoc analysis.
	MemoryUsedMB float64 `json:"memoryUsedMb"`
}
