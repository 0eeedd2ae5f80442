package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SandboxConfig is the per-tool sandbox policy. Overrides are a tagged,
// schema-validated bag merged over the process-wide defaults; only the
// fields enumerated in the override schema are accepted.
type SandboxConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Overrides may set memory_limit_mb and timeout_ms within bounds.
	Overrides map[string]any `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// SandboxDefaults are the process-wide sandbox execution limits.
type SandboxDefaults struct {
	MemoryLimitMB int `json:"memory_limit_mb" yaml:"memory_limit_mb"`
	TimeoutMs     int `json:"timeout_ms" yaml:"timeout_ms"`
}

// DefaultSandboxDefaults returns the stock limits: 512 MiB, 30 s.
func DefaultSandboxDefaults() SandboxDefaults {
	return SandboxDefaults{
		MemoryLimitMB: 512,
		TimeoutMs:     30000,
	}
}

const overrideSchemaJSON = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"memory_limit_mb": {
			"type": "integer",
			"minimum": 16,
			"maximum": 4096
		},
		"timeout_ms": {
			"type": "integer",
			"minimum": 100,
			"maximum": 600000
		}
	}
}`

var overrideSchema = jsonschema.MustCompileString("sandbox_overrides.schema.json", overrideSchemaJSON)

// Validate checks the override bag against the tagged override schema.
func (c SandboxConfig) Validate() error {
	if len(c.Overrides) == 0 {
		return nil
	}

	// Round-trip through JSON so numeric types normalize the way the
	// schema validator expects.
	payload, err := json.Marshal(c.Overrides)
	if err != nil {
		return fmt.Errorf("encode sandbox overrides: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode sandbox overrides: %w", err)
	}
	if err := overrideSchema.Validate(decoded); err != nil {
		return fmt.Errorf("sandbox overrides invalid: %w", err)
	}
	return nil
}

// Merge applies the validated overrides on top of the given defaults.
func (c SandboxConfig) Merge(defaults SandboxDefaults) SandboxDefaults {
	merged := defaults
	if v, ok := numberOverride(c.Overrides, "memory_limit_mb"); ok {
		merged.MemoryLimitMB = v
	}
	if v, ok := numberOverride(c.Overrides, "timeout_ms"); ok {
		merged.TimeoutMs = v
	}
	return merged
}

func numberOverride(overrides map[string]any, key string) (int, bool) {
	raw, ok := overrides[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
