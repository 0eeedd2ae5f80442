// Package models defines the core data types for Warden.
package models

import (
	"context"
	"encoding/json"
)

// Classification categorizes the effect of a command for authorization.
type Classification string

const (
	// ClassificationRead marks commands that only observe state.
	ClassificationRead Classification = "read"

	// ClassificationWrite marks commands that mutate state reversibly.
	ClassificationWrite Classification = "write"

	// ClassificationDestruct marks commands whose effects cannot be undone.
	ClassificationDestruct Classification = "destruct"

	// ClassificationSensitive marks commands that expose secrets or PII.
	ClassificationSensitive Classification = "sensitive"
)

// Invocation is the reduced, serializable execution context handed to a
// command handler. It deliberately carries no live database handle or other
// process-bound resources so it can cross the sandbox process boundary.
type Invocation struct {
	TenantID string `json:"tenant_id"`
	AgentID  string `json:"agent_id"`
	RunID    string `json:"run_id"`

	// Tool and Command identify the handler being invoked.
	Tool    string `json:"tool"`
	Command string `json:"command,omitempty"`

	// Config is the tool's merged, validated configuration.
	Config map[string]any `json:"config,omitempty"`

	// Args are the call arguments, already validated against the command schema.
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolResult contains the output from a tool execution.
//
// Errors the handler wants the agent to see are communicated via IsError=true
// rather than a Go error, so the run loop can feed them back to the model.
type ToolResult struct {
	// Content is the tool's output (text, JSON, etc.)
	Content string `json:"content"`

	// IsError indicates this result represents an error condition.
	IsError bool `json:"is_error,omitempty"`
}

// Handler executes one command invocation.
type Handler func(ctx context.Context, inv Invocation) (*ToolResult, error)

// Command is a named sub-operation of a tool with its own schema,
// classification, and handler.
type Command struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`

	// Classification drives the policy decision for this command.
	Classification Classification `json:"classification"`

	Handler Handler `json:"-"`
}

// ToolDefinition describes a capability the agent can invoke.
//
// Definitions are immutable once registered; the registry owns them for the
// lifetime of the process.
type ToolDefinition struct {
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	LongDescription string          `json:"long_description,omitempty"`

	// Schema validates arguments for tools invoked without a command.
	Schema json.RawMessage `json:"schema,omitempty"`

	// Commands are the tool's sub-operations, in declaration order.
	Commands []Command `json:"commands,omitempty"`

	// ConfigSchema validates the tool's configuration before merge.
	ConfigSchema json.RawMessage `json:"config_schema,omitempty"`

	// Handler executes calls that name no command.
	Handler Handler `json:"-"`

	// Pinned and Important are display hints for tool listings.
	Pinned    bool `json:"pinned,omitempty"`
	Important bool `json:"important,omitempty"`
}

// FindCommand returns the named command, or nil if the tool has no such
// command.
func (t *ToolDefinition) FindCommand(name string) *Command {
	for i := range t.Commands {
		if t.Commands[i].Name == name {
			return &t.Commands[i]
		}
	}
	return nil
}

// Plugin is an ordered bundle of tool definitions loaded wholesale from an
// external plugin source.
type Plugin struct {
	Name    string           `json:"name"`
	Version string           `json:"version"`
	Tools   []ToolDefinition `json:"tools"`
}
