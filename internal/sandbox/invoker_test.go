package sandbox

import (
	"context"
	"errors"
	"testing"
)

func TestMapOutcomeSuccess(t *testing.T) {
	output := []byte(`{"type":"result","result":{"content":"ok"},"memoryUsedMb":12.34}`)

	resp, err := mapOutcome(output, nil, nil)
	if err != nil {
		t.Fatalf("mapOutcome error = %v", err)
	}
	if resp.Result == nil || resp.Result.Content != "ok" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.MemoryUsedMB != 12.34 {
		t.Errorf("memory = %v, want 12.34", resp.MemoryUsedMB)
	}
}

func TestMapOutcomeHandlerError(t *testing.T) {
	output := []byte(`{"type":"error","error":"handler blew up","memoryUsedMb":3.5}`)

	resp, err := mapOutcome(output, nil, nil)
	if resp == nil {
		t.Fatal("error outcome must still carry the response")
	}

	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want *ExecError", err)
	}
	if execErr.Message != "handler blew up" {
		t.Errorf("message = %q", execErr.Message)
	}
	if execErr.MemoryUsedMB != 3.5 {
		t.Errorf("memory = %v", execErr.MemoryUsedMB)
	}
}

func TestMapOutcomeTimeout(t *testing.T) {
	_, err := mapOutcome(nil, errors.New("signal: killed"), context.DeadlineExceeded)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}

func TestMapOutcomeCrash(t *testing.T) {
	// Worker died without writing a response.
	_, err := mapOutcome([]byte("partial garbage"), errors.New("exit status 2"), nil)
	if !errors.Is(err, ErrCrash) {
		t.Errorf("error = %v, want ErrCrash", err)
	}

	// Clean exit but no response is still a crash from the caller's view.
	_, err = mapOutcome(nil, nil, nil)
	if !errors.Is(err, ErrCrash) {
		t.Errorf("error = %v, want ErrCrash", err)
	}
}

func TestParseResponseIgnoresHandlerNoise(t *testing.T) {
	output := []byte("debug: starting\nnot json\n{\"type\":\"result\",\"result\":{\"content\":\"done\"},\"memoryUsedMb\":1.0}\n")

	resp, ok := parseResponse(output)
	if !ok {
		t.Fatal("expected response to parse")
	}
	if resp.Result.Content != "done" {
		t.Errorf("content = %q", resp.Result.Content)
	}
}

func TestParseResponseRejectsUnknownTypes(t *testing.T) {
	if _, ok := parseResponse([]byte(`{"type":"status","error":""}`)); ok {
		t.Error("unknown message types must not count as a response")
	}
}
