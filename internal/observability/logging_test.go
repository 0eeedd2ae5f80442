package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config LogConfig
	}{
		{
			name: "json format",
			config: LogConfig{
				Level:  "info",
				Format: "json",
			},
		},
		{
			name: "text format",
			config: LogConfig{
				Level:  "debug",
				Format: "text",
			},
		},
		{
			name:   "defaults",
			config: LogConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Fatal("NewLogger() returned nil")
			}
			if logger.logger == nil {
				t.Error("Logger.logger is nil")
			}
		})
	}
}

func TestLoggerContextCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := context.WithValue(context.Background(), RunIDKey, "run-42")
	ctx = context.WithValue(ctx, TenantIDKey, "acme")

	logger.Info(ctx, "step executed", "tool", "files")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if record["run_id"] != "run-42" {
		t.Errorf("run_id = %v, want run-42", record["run_id"])
	}
	if record["tenant_id"] != "acme" {
		t.Errorf("tenant_id = %v, want acme", record["tenant_id"])
	}
	if record["tool"] != "files" {
		t.Errorf("tool = %v, want files", record["tool"])
	}
}

func TestLoggerRedaction(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		notWant string
	}{
		{
			name:    "api key",
			msg:     "loaded api_key=abcdef0123456789abcdef",
			notWant: "abcdef0123456789abcdef",
		},
		{
			name:    "anthropic key",
			msg:     "using sk-ant-" + strings.Repeat("a", 100),
			notWant: "sk-ant-",
		},
		{
			name:    "password assignment",
			msg:     "password: hunter2hunter2",
			notWant: "hunter2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})
			logger.Info(context.Background(), tt.msg)

			out := buf.String()
			if strings.Contains(out, tt.notWant) {
				t.Errorf("output still contains secret %q: %s", tt.notWant, out)
			}
			if !strings.Contains(out, "[REDACTED]") {
				t.Errorf("expected redaction marker in output: %s", out)
			}
		})
	}
}

func TestLoggerRedactsSensitiveMapKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Info(context.Background(), "tool config", "config", map[string]any{
		"endpoint": "https://example.com",
		"token":    "super-secret-value",
	})

	out := buf.String()
	if strings.Contains(out, "super-secret-value") {
		t.Errorf("sensitive map value leaked: %s", out)
	}
	if !strings.Contains(out, "example.com") {
		t.Errorf("non-sensitive value missing: %s", out)
	}
}
