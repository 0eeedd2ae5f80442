package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/warden/internal/sandbox"
	"github.com/haasonsaas/warden/pkg/models"
)

func testResolver(handlers map[string]models.Handler) Resolver {
	return ResolverFunc(func(id string) (models.Handler, bool) {
		h, ok := handlers[id]
		return h, ok
	})
}

func runWorker(t *testing.T, input string, resolver Resolver, opts Options) sandbox.Response {
	t.Helper()
	var out bytes.Buffer
	if err := Run(strings.NewReader(input), &out, resolver, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var resp sandbox.Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, out.String())
	}
	return resp
}

func requestJSON(t *testing.T, req sandbox.Request) string {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	return string(payload)
}

func TestRunSuccess(t *testing.T) {
	resolver := testResolver(map[string]models.Handler{
		"echo": func(ctx context.Context, inv models.Invocation) (*models.ToolResult, error) {
			return &models.ToolResult{Content: "hello from " + inv.Tool}, nil
		},
	})

	input := requestJSON(t, sandbox.Request{
		Type:    sandbox.MessageExecute,
		Handler: "echo",
		Ctx:     models.Invocation{Tool: "echo", TenantID: "t1"},
	})
	resp := runWorker(t, input, resolver, Options{})

	if resp.Type != sandbox.MessageResult {
		t.Fatalf("type = %q, want result: %+v", resp.Type, resp)
	}
	if resp.Result == nil || resp.Result.Content != "hello from echo" {
		t.Errorf("result = %+v", resp.Result)
	}
	if resp.MemoryUsedMB <= 0 {
		t.Error("memoryUsedMb must be reported on success")
	}
}

func TestRunHandlerError(t *testing.T) {
	resolver := testResolver(map[string]models.Handler{
		"boom": func(ctx context.Context, inv models.Invocation) (*models.ToolResult, error) {
			return nil, errors.New("disk on fire")
		},
	})

	input := requestJSON(t, sandbox.Request{Type: sandbox.MessageExecute, Handler: "boom"})
	resp := runWorker(t, input, resolver, Options{})

	if resp.Type != sandbox.MessageError {
		t.Fatalf("type = %q, want error", resp.Type)
	}
	if resp.Error == "" {
		t.Error("error response must carry a non-empty message")
	}
	if resp.MemoryUsedMB <= 0 {
		t.Error("memoryUsedMb must be reported on failure too")
	}
}

func TestRunHandlerPanic(t *testing.T) {
	resolver := testResolver(map[string]models.Handler{
		"panic": func(ctx context.Context, inv models.Invocation) (*models.ToolResult, error) {
			panic("unexpected nil")
		},
	})

	input := requestJSON(t, sandbox.Request{Type: sandbox.MessageExecute, Handler: "panic"})
	resp := runWorker(t, input, resolver, Options{})

	if resp.Type != sandbox.MessageError {
		t.Fatalf("panic must become an error response, got %+v", resp)
	}
	if !strings.Contains(resp.Error, "unexpected nil") {
		t.Errorf("error = %q, want panic message included", resp.Error)
	}
}

func TestRunUnknownHandler(t *testing.T) {
	input := requestJSON(t, sandbox.Request{Type: sandbox.MessageExecute, Handler: "ghost"})
	resp := runWorker(t, input, testResolver(nil), Options{})

	if resp.Type != sandbox.MessageError {
		t.Fatalf("type = %q, want error", resp.Type)
	}
	if !strings.Contains(resp.Error, "ghost") {
		t.Errorf("error = %q, want handler id named", resp.Error)
	}
}

func TestRunMalformedRequest(t *testing.T) {
	resp := runWorker(t, "{not json", testResolver(nil), Options{})
	if resp.Type != sandbox.MessageError {
		t.Fatalf("malformed request must yield an error response, got %+v", resp)
	}
}

func TestRunWrongMessageType(t *testing.T) {
	input := requestJSON(t, sandbox.Request{Type: "ping", Handler: "echo"})
	resp := runWorker(t, input, testResolver(nil), Options{})
	if resp.Type != sandbox.MessageError {
		t.Fatalf("unexpected type must yield an error response, got %+v", resp)
	}
}

func TestRunStartupWindowTimeout(t *testing.T) {
	// A reader that never delivers a request.
	blocked := make(chan struct{})
	t.Cleanup(func() { close(blocked) })
	reader := blockingReader{unblock: blocked}

	var out bytes.Buffer
	start := time.Now()
	if err := Run(reader, &out, testResolver(nil), Options{StartupWindow: 50 * time.Millisecond}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("startup window not honored, took %s", elapsed)
	}

	var resp sandbox.Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Type != sandbox.MessageError {
		t.Fatalf("idle worker must report a timeout error, got %+v", resp)
	}

	// Exactly one response was written.
	if n := bytes.Count(bytes.TrimSpace(out.Bytes()), []byte("\n")); n != 0 {
		t.Errorf("expected a single response line, got %d extra", n)
	}
}

func TestRunHandlerTimeoutViaContext(t *testing.T) {
	resolver := testResolver(map[string]models.Handler{
		"slow": func(ctx context.Context, inv models.Invocation) (*models.ToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	input := requestJSON(t, sandbox.Request{
		Type:      sandbox.MessageExecute,
		Handler:   "slow",
		TimeoutMs: 20,
	})
	resp := runWorker(t, input, resolver, Options{})

	if resp.Type != sandbox.MessageError {
		t.Fatalf("type = %q, want error", resp.Type)
	}
	if !strings.Contains(resp.Error, "deadline") {
		t.Errorf("error = %q, want context deadline surfaced", resp.Error)
	}
}

type blockingReader struct {
	unblock chan struct{}
}

func (r blockingReader) Read(p []byte) (int, error) {
	<-r.unblock
	return 0, nil
}
