package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/warden/internal/config"
	"github.com/haasonsaas/warden/internal/jobs"
	"github.com/haasonsaas/warden/internal/memory"
	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/pkg/models"
)

func workerConfig() *config.Config {
	cfg := config.Default()
	cfg.Policy.Read = []string{"echo"}
	cfg.Policy.Destructive = []string{"clock"}
	return cfg
}

func testRunHandler(t *testing.T, cfg *config.Config) jobs.Handler {
	t.Helper()
	logger := observability.NewLogger(observability.LogConfig{Level: "error"})
	executor, err := buildExecutor(cfg, logger, nil, nil)
	if err != nil {
		t.Fatalf("buildExecutor: %v", err)
	}
	return runJobHandler(executor, logger)
}

func runJob(payload string) *models.Job {
	return &models.Job{
		ID:      "job-1",
		Type:    models.JobTypeRun,
		RunID:   "run-1",
		Payload: json.RawMessage(payload),
	}
}

func TestRunJobHandlerExecutesAllowedTool(t *testing.T) {
	handler := testRunHandler(t, workerConfig())

	err := handler(context.Background(), runJob(`{"invocation":{"tool":"echo","args":{"text":"hi"}}}`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
}

func TestRunJobHandlerDeniedToolIsPermanent(t *testing.T) {
	handler := testRunHandler(t, workerConfig())

	err := handler(context.Background(), runJob(`{"invocation":{"tool":"clock"}}`))
	if err == nil {
		t.Fatal("expected a policy denial")
	}
	if !jobs.IsPermanent(err) {
		t.Errorf("denial should not be retryable: %v", err)
	}
}

func TestRunJobHandlerUnknownToolIsPermanent(t *testing.T) {
	handler := testRunHandler(t, workerConfig())

	err := handler(context.Background(), runJob(`{"invocation":{"tool":"nope"}}`))
	if err == nil {
		t.Fatal("expected an unknown-tool error")
	}
	if !jobs.IsPermanent(err) {
		t.Errorf("unknown tool should not be retryable: %v", err)
	}
}

func TestRunJobHandlerInvalidArgumentsNotRetryable(t *testing.T) {
	handler := testRunHandler(t, workerConfig())

	err := handler(context.Background(), runJob(`{"invocation":{"tool":"echo","args":{"n":1}}}`))
	if err == nil {
		t.Fatal("expected schema validation to fail")
	}
	if !jobs.IsPermanent(err) {
		t.Errorf("validation failure should not be retryable: %v", err)
	}
}

func TestRunJobHandlerMalformedPayloadIsPermanent(t *testing.T) {
	handler := testRunHandler(t, workerConfig())

	err := handler(context.Background(), runJob(`{not json`))
	if err == nil {
		t.Fatal("expected an unmarshal error")
	}
	if !jobs.IsPermanent(err) {
		t.Errorf("malformed payload should not be retryable: %v", err)
	}
}

func TestMemoryWriteHandlerSecretIsPermanent(t *testing.T) {
	handler := memoryWriteHandler(memory.NewWriter(memory.NewMemoryStore()))

	payload, _ := json.Marshal(memory.WriteRequest{
		TenantID: "t1", UserID: "u1", Level: 2,
		Module: "notes", Key: "token",
		Value: "api_key=sk-abcdef0123456789abcdef0123456789",
	})
	err := handler(context.Background(), &models.Job{
		ID:      "job-2",
		Type:    models.JobTypeMemoryWrite,
		Payload: payload,
	})
	if err == nil {
		t.Fatal("expected the secret-shaped value to be refused")
	}
	if !jobs.IsPermanent(err) {
		t.Errorf("refused write should not be retryable: %v", err)
	}
}
