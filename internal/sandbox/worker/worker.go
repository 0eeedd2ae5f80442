// Package worker implements the sandbox side of the invocation protocol:
// read one request, execute the resolved handler, respond exactly once,
// terminate.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/haasonsaas/warden/internal/sandbox"
	"github.com/haasonsaas/warden/pkg/models"
)

// DefaultStartupWindow bounds how long the worker waits for a request
// before reporting a timeout and exiting. Guards against orphaned idle
// workers.
const DefaultStartupWindow = 5 * time.Second

// Resolver locates a handler by its identifier. The runner binary registers
// its native and plugin handlers here; source text is never accepted from
// the caller.
type Resolver interface {
	ResolveHandler(id string) (models.Handler, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(id string) (models.Handler, bool)

// ResolveHandler implements Resolver.
func (f ResolverFunc) ResolveHandler(id string) (models.Handler, bool) {
	return f(id)
}

// Options adjusts worker behavior.
type Options struct {
	// StartupWindow overrides DefaultStartupWindow.
	StartupWindow time.Duration
}

// Run serves exactly one invocation: it reads a request from in, executes
// the resolved handler, and writes exactly one response to out. Every
// failure path (malformed request, unknown handler, handler error, panic,
// request timeout) produces an error response; Run never lets a failure
// escape without responding.
func Run(in io.Reader, out io.Writer, resolver Resolver, opts Options) error {
	window := opts.StartupWindow
	if window <= 0 {
		window = DefaultStartupWindow
	}

	req, err := readRequest(in, window)
	if err != nil {
		return respondError(out, err.Error())
	}

	if req.Type != sandbox.MessageExecute {
		return respondError(out, fmt.Sprintf("unexpected message type %q", req.Type))
	}

	if req.MemoryLimitMB > 0 {
		debug.SetMemoryLimit(int64(req.MemoryLimitMB) << 20)
	}

	handler, ok := resolver.ResolveHandler(req.Handler)
	if !ok {
		return respondError(out, fmt.Sprintf("unknown handler %q", req.Handler))
	}

	ctx := context.Background()
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	result, err := execute(ctx, handler, req)
	if err != nil {
		return respondError(out, err.Error())
	}
	return respond(out, sandbox.Response{
		Type:         sandbox.MessageResult,
		Result:       result,
		MemoryUsedMB: heapUsedMB(),
	})
}

// execute runs the handler, converting panics into errors so the response
// contract holds on every failure path.
func execute(ctx context.Context, handler models.Handler, req *sandbox.Request) (result *models.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	inv := req.Ctx
	if len(req.Args) > 0 {
		inv.Args = req.Args
	}
	return handler(ctx, inv)
}

// readRequest reads one JSON request, bounded by the startup window.
func readRequest(in io.Reader, window time.Duration) (*sandbox.Request, error) {
	type outcome struct {
		req *sandbox.Request
		err error
	}
	ch := make(chan outcome, 1)

	go func() {
		var req sandbox.Request
		if err := json.NewDecoder(in).Decode(&req); err != nil {
			ch <- outcome{err: fmt.Errorf("malformed request: %v", err)}
			return
		}
		ch <- outcome{req: &req}
	}()

	select {
	case o := <-ch:
		return o.req, o.err
	case <-time.After(window):
		return nil, fmt.Errorf("no request received within %s", window)
	}
}

func respondError(out io.Writer, msg string) error {
	return respond(out, sandbox.Response{
		Type:         sandbox.MessageError,
		Error:        msg,
		MemoryUsedMB: heapUsedMB(),
	})
}

func respond(out io.Writer, resp sandbox.Response) error {
	return json.NewEncoder(out).Encode(resp)
}

// heapUsedMB reports current heap use in MiB, rounded to 2 decimal places.
func heapUsedMB() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	mb := float64(stats.HeapAlloc) / (1024 * 1024)
	return math.Round(mb*100) / 100
}
