package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/haasonsaas/warden/internal/tools"
)

// Invoker spawns one worker process per invocation and enforces the overall
// deadline from the caller's side. A handler that ignores cancellation is
// never allowed to outlive its timeout window: the process is killed and
// reaped when the deadline passes.
//
// Exactly one terminal outcome (result or error) is produced per
// invocation. The invoker never retries; retry policy belongs to the
// job-dispatch layer.
type Invoker struct {
	runnerPath string
	defaults   tools.SandboxDefaults
}

// NewInvoker creates an invoker that spawns the runner binary at the given
// path.
func NewInvoker(runnerPath string, defaults tools.SandboxDefaults) *Invoker {
	if defaults.TimeoutMs <= 0 {
		defaults = tools.DefaultSandboxDefaults()
	}
	return &Invoker{runnerPath: runnerPath, defaults: defaults}
}

// Invoke executes one handler invocation in a fresh worker process.
//
// Outcomes:
//   - success: the worker's result response, nil error
//   - handler failure: the worker's error response plus an *ExecError
//   - deadline exceeded: nil response, ErrTimeout (process killed)
//   - worker died without responding: nil response, ErrCrash
func (i *Invoker) Invoke(ctx context.Context, req Request, cfg tools.SandboxConfig) (*Response, error) {
	limits := cfg.Merge(i.defaults)

	req.Type = MessageExecute
	if req.TimeoutMs <= 0 {
		req.TimeoutMs = limits.TimeoutMs
	}
	if req.MemoryLimitMB <= 0 {
		req.MemoryLimitMB = limits.MemoryLimitMB
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode sandbox request: %w", err)
	}

	// The caller-side deadline is deliberately wider than the worker's own
	// timeout, so a cooperative worker reports its timeout itself and the
	// hard kill only fires on a wedged process.
	overall := time.Duration(limits.TimeoutMs)*time.Millisecond + 2*time.Second
	runCtx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	cmd := exec.CommandContext(runCtx, i.runnerPath)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.WaitDelay = time.Second

	runErr := cmd.Run()
	return mapOutcome(stdout.Bytes(), runErr, runCtx.Err())
}

// mapOutcome turns worker output and process state into the single terminal
// outcome of the invocation.
func mapOutcome(output []byte, runErr, ctxErr error) (*Response, error) {
	if ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}

	resp, ok := parseResponse(output)
	if !ok {
		if runErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrCrash, runErr)
		}
		return nil, ErrCrash
	}

	if resp.Type == MessageError {
		return resp, &ExecError{Message: resp.Error, MemoryUsedMB: resp.MemoryUsedMB}
	}
	return resp, nil
}

// parseResponse extracts the last JSON response on stdout. Anything the
// handler printed before the response is ignored.
func parseResponse(output []byte) (*Response, bool) {
	lines := bytes.Split(bytes.TrimSpace(output), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.Type == MessageResult || resp.Type == MessageError {
			return &resp, true
		}
	}
	return nil, false
}
