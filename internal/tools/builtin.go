package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
)

// Builtins returns the native diagnostic tools every warden binary carries.
// They are deliberately side-effect free; real tool surfaces come from
// plugins or the embedding application.
func Builtins() []models.ToolDefinition {
	return []models.ToolDefinition{
		{
			Name:        "echo",
			Description: "Return the given text unchanged. Diagnostic.",
			Schema:      json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"],"additionalProperties":false}`),
			Handler:     echoHandler,
		},
		{
			Name:        "clock",
			Description: "Report the current UTC time. Diagnostic.",
			Handler:     clockHandler,
		},
	}
}

func echoHandler(_ context.Context, inv models.Invocation) (*models.ToolResult, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(inv.Args, &args); err != nil {
		return nil, fmt.Errorf("echo: %w", err)
	}
	return &models.ToolResult{Content: args.Text}, nil
}

func clockHandler(context.Context, models.Invocation) (*models.ToolResult, error) {
	return &models.ToolResult{Content: time.Now().UTC().Format(time.RFC3339)}, nil
}
