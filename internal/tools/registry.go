// Package tools provides the tool registry: resolution of tool names to
// executable definitions, plugin loading, and per-tool sandbox policy.
package tools

import (
	"errors"
	"fmt"
	"sync"

	"github.com/haasonsaas/warden/pkg/models"
)

var (
	// ErrPluginNotFound indicates the plugin source has no plugin by that name.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrToolNotFound indicates no registered tool carries the requested name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrCommandNotFound indicates the tool exists but has no such command.
	ErrCommandNotFound = errors.New("command not found")

	// ErrInvalidArguments indicates the call arguments failed schema validation.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// PluginSource is a read-only external directory of plugins. The registry
// depends only on this interface, never on how plugins are packaged or
// discovered.
type PluginSource interface {
	// GetPlugin returns the named plugin, or ok=false when absent.
	GetPlugin(name string) (*models.Plugin, bool)

	// GetAllPlugins lists every available plugin.
	GetAllPlugins() []*models.Plugin
}

// Registry resolves tool names to definitions and tracks per-tool sandbox
// configuration.
//
// The name->definition map is populated at startup and during plugin loading
// and read far more often than written; reads take a shared lock, plugin
// loads are serialized by the write lock. Resolution is always a pure map
// lookup with no I/O and no handler execution, so it can be called
// speculatively for listing and describing tools.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*models.ToolDefinition
	sandbox map[string]SandboxConfig
	source  PluginSource
	schemas *schemaCache
}

// NewRegistry creates a registry seeded with the given native tools.
// Native tools are implicitly trusted: no sandbox entry is required.
func NewRegistry(source PluginSource, native ...models.ToolDefinition) *Registry {
	r := &Registry{
		tools:   make(map[string]*models.ToolDefinition, len(native)),
		sandbox: make(map[string]SandboxConfig),
		source:  source,
		schemas: newSchemaCache(),
	}
	for i := range native {
		def := native[i]
		r.tools[def.Name] = &def
	}
	return r
}

// LoadPlugin loads every tool of the named plugin into the registry.
// Later-loaded tools overwrite earlier ones with the same name; last
// registration wins.
func (r *Registry) LoadPlugin(name string) error {
	if r.source == nil {
		return fmt.Errorf("load plugin %q: %w", name, ErrPluginNotFound)
	}
	plugin, ok := r.source.GetPlugin(name)
	if !ok {
		return fmt.Errorf("load plugin %q: %w", name, ErrPluginNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range plugin.Tools {
		def := plugin.Tools[i]
		r.tools[def.Name] = &def
	}
	return nil
}

// LoadPlugins loads a batch of plugins, continuing past individual failures.
// It returns the names that failed to load; partial success is the intended
// semantics for best-effort startup loading.
func (r *Registry) LoadPlugins(names []string) []string {
	var failed []string
	for _, name := range names {
		if err := r.LoadPlugin(name); err != nil {
			failed = append(failed, name)
		}
	}
	return failed
}

// Resolve returns the definition for the named tool.
func (r *Registry) Resolve(name string) (*models.ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", name, ErrToolNotFound)
	}
	return def, nil
}

// ResolveCommand returns the named command of the named tool.
func (r *Registry) ResolveCommand(tool, command string) (*models.Command, error) {
	def, err := r.Resolve(tool)
	if err != nil {
		return nil, err
	}
	cmd := def.FindCommand(command)
	if cmd == nil {
		return nil, fmt.Errorf("resolve %q.%q: %w", tool, command, ErrCommandNotFound)
	}
	return cmd, nil
}

// List returns every registered tool definition. The slice is a snapshot;
// definitions themselves are shared and immutable.
func (r *Registry) List() []*models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.ToolDefinition, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, def)
	}
	return out
}

// SetSandboxConfig sets the per-tool sandbox policy. Overrides are validated
// before they are stored; unvalidated configuration never reaches handler
// execution.
func (r *Registry) SetSandboxConfig(name string, cfg SandboxConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sandbox[name] = cfg
	return nil
}

// ShouldSandbox reports whether the named tool runs in an isolated process.
// Tools without a sandbox entry default to not sandboxed.
func (r *Registry) ShouldSandbox(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sandbox[name].Enabled
}

// GetSandboxConfig returns the tool's sandbox config, or the zero config
// when unset.
func (r *Registry) GetSandboxConfig(name string) SandboxConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sandbox[name]
}

// ValidateArgs validates call arguments against the tool or command schema.
// A tool or command without a schema accepts any arguments.
func (r *Registry) ValidateArgs(tool, command string, args []byte) error {
	def, err := r.Resolve(tool)
	if err != nil {
		return err
	}

	schema := def.Schema
	if command != "" {
		cmd := def.FindCommand(command)
		if cmd == nil {
			return fmt.Errorf("validate %q.%q: %w", tool, command, ErrCommandNotFound)
		}
		schema = cmd.Schema
	}
	if len(schema) == 0 {
		return nil
	}

	if err := r.schemas.validate(schema, args); err != nil {
		return fmt.Errorf("validate %q: %w: %v", tool, ErrInvalidArguments, err)
	}
	return nil
}
