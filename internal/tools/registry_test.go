package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/warden/pkg/models"
)

type fakeSource struct {
	plugins map[string]*models.Plugin
}

func (s *fakeSource) GetPlugin(name string) (*models.Plugin, bool) {
	p, ok := s.plugins[name]
	return p, ok
}

func (s *fakeSource) GetAllPlugins() []*models.Plugin {
	out := make([]*models.Plugin, 0, len(s.plugins))
	for _, p := range s.plugins {
		out = append(out, p)
	}
	return out
}

func testEchoHandler(ctx context.Context, inv models.Invocation) (*models.ToolResult, error) {
	return &models.ToolResult{Content: "ok"}, nil
}

func testSource() *fakeSource {
	return &fakeSource{plugins: map[string]*models.Plugin{
		"weather": {
			Name:    "weather",
			Version: "1.0.0",
			Tools: []models.ToolDefinition{
				{Name: "forecast", Description: "from weather plugin", Handler: testEchoHandler},
			},
		},
		"weather_pro": {
			Name:    "weather_pro",
			Version: "2.0.0",
			Tools: []models.ToolDefinition{
				{Name: "forecast", Description: "from weather_pro plugin", Handler: testEchoHandler},
				{Name: "radar", Handler: testEchoHandler},
			},
		},
	}}
}

func TestResolveNativeTool(t *testing.T) {
	registry := NewRegistry(nil, models.ToolDefinition{Name: "status"})

	def, err := registry.Resolve("status")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if def.Name != "status" {
		t.Errorf("resolved %q, want status", def.Name)
	}

	_, err = registry.Resolve("missing")
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrToolNotFound", err)
	}
}

func TestLoadPluginLastRegistrationWins(t *testing.T) {
	registry := NewRegistry(testSource())

	if err := registry.LoadPlugin("weather"); err != nil {
		t.Fatalf("LoadPlugin(weather) error = %v", err)
	}
	if err := registry.LoadPlugin("weather_pro"); err != nil {
		t.Fatalf("LoadPlugin(weather_pro) error = %v", err)
	}

	def, err := registry.Resolve("forecast")
	if err != nil {
		t.Fatalf("Resolve(forecast) error = %v", err)
	}
	if def.Description != "from weather_pro plugin" {
		t.Errorf("description = %q, want the later plugin's tool to win", def.Description)
	}
}

func TestLoadPluginNotFound(t *testing.T) {
	registry := NewRegistry(testSource())

	err := registry.LoadPlugin("nonexistent")
	if !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("LoadPlugin error = %v, want ErrPluginNotFound", err)
	}
}

func TestLoadPluginsCollectsFailures(t *testing.T) {
	registry := NewRegistry(testSource())

	failed := registry.LoadPlugins([]string{"weather", "bogus", "weather_pro", "other"})
	if len(failed) != 2 {
		t.Fatalf("failed = %v, want 2 entries", failed)
	}
	if failed[0] != "bogus" || failed[1] != "other" {
		t.Errorf("failed = %v, want [bogus other]", failed)
	}

	// The good plugins still loaded.
	if _, err := registry.Resolve("radar"); err != nil {
		t.Errorf("Resolve(radar) after partial load error = %v", err)
	}
}

func TestResolveCommand(t *testing.T) {
	registry := NewRegistry(nil, models.ToolDefinition{
		Name: "files",
		Commands: []models.Command{
			{Name: "read", Classification: models.ClassificationRead, Handler: testEchoHandler},
		},
	})

	cmd, err := registry.ResolveCommand("files", "read")
	if err != nil {
		t.Fatalf("ResolveCommand error = %v", err)
	}
	if cmd.Classification != models.ClassificationRead {
		t.Errorf("classification = %q", cmd.Classification)
	}

	_, err = registry.ResolveCommand("files", "truncate")
	if !errors.Is(err, ErrCommandNotFound) {
		t.Errorf("error = %v, want ErrCommandNotFound", err)
	}
}

func TestSandboxConfigDefaultsToDisabled(t *testing.T) {
	registry := NewRegistry(nil, models.ToolDefinition{Name: "status"})

	if registry.ShouldSandbox("status") {
		t.Error("tool without sandbox entry must default to not sandboxed")
	}

	err := registry.SetSandboxConfig("status", SandboxConfig{
		Enabled:   true,
		Overrides: map[string]any{"timeout_ms": 5000},
	})
	if err != nil {
		t.Fatalf("SetSandboxConfig error = %v", err)
	}
	if !registry.ShouldSandbox("status") {
		t.Error("expected sandboxing after SetSandboxConfig")
	}

	cfg := registry.GetSandboxConfig("status")
	merged := cfg.Merge(DefaultSandboxDefaults())
	if merged.TimeoutMs != 5000 {
		t.Errorf("merged timeout = %d, want 5000", merged.TimeoutMs)
	}
	if merged.MemoryLimitMB != 512 {
		t.Errorf("merged memory = %d, want default 512", merged.MemoryLimitMB)
	}
}

func TestSetSandboxConfigRejectsUnknownOverrides(t *testing.T) {
	registry := NewRegistry(nil, models.ToolDefinition{Name: "status"})

	err := registry.SetSandboxConfig("status", SandboxConfig{
		Enabled:   true,
		Overrides: map[string]any{"network": true},
	})
	if err == nil {
		t.Fatal("expected rejection of unknown override key")
	}
}

func TestValidateArgs(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"required": ["path"],
		"properties": {"path": {"type": "string"}}
	}`)
	registry := NewRegistry(nil, models.ToolDefinition{Name: "files", Schema: schema})

	if err := registry.ValidateArgs("files", "", []byte(`{"path": "/tmp/x"}`)); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}

	err := registry.ValidateArgs("files", "", []byte(`{"path": 7}`))
	if !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("error = %v, want ErrInvalidArguments", err)
	}

	err = registry.ValidateArgs("files", "", nil)
	if !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("missing required field: error = %v, want ErrInvalidArguments", err)
	}
}

func TestListIsPure(t *testing.T) {
	registry := NewRegistry(testSource(), models.ToolDefinition{Name: "status"})
	_ = registry.LoadPlugins([]string{"weather"})

	listed := registry.List()
	if len(listed) != 2 {
		t.Fatalf("List() returned %d tools, want 2", len(listed))
	}
	// Listing twice yields the same contents; no side effects.
	if len(registry.List()) != 2 {
		t.Error("List() changed registry contents")
	}
}
