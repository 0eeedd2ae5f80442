package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles JSON schemas once and reuses them across calls.
// Schemas are immutable per tool definition, so keying by schema text is
// safe.
type schemaCache struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{compiled: make(map[string]*jsonschema.Schema)}
}

func (c *schemaCache) compile(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)

	c.mu.Lock()
	defer c.mu.Unlock()
	if compiled, ok := c.compiled[key]; ok {
		return compiled, nil
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, fmt.Errorf("compile tool schema: %w", err)
	}
	c.compiled[key] = compiled
	return compiled, nil
}

func (c *schemaCache) validate(schema, payload []byte) error {
	compiled, err := c.compile(schema)
	if err != nil {
		return err
	}

	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return compiled.Validate(decoded)
}
