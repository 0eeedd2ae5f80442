// Package config loads the warden configuration from YAML, expanding
// environment variables and applying defaults for anything unset.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/warden/internal/memory"
	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/internal/policy"
)

// EnvConfigPath overrides the config file path when set.
const EnvConfigPath = "WARDEN_CONFIG"

// Config is the main configuration structure for warden.
type Config struct {
	Database Database `yaml:"database"`
	Policy   Policy   `yaml:"policy"`
	Sandbox  Sandbox  `yaml:"sandbox"`
	Memory   Memory   `yaml:"memory"`
	Jobs     Jobs     `yaml:"jobs"`
	Logging  Logging  `yaml:"logging"`
	Tracing  Tracing  `yaml:"tracing"`
}

type Database struct {
	// Path is the SQLite database file. ":memory:" keeps everything
	// in-process.
	Path string `yaml:"path"`
}

// Policy lists command classifications per category. Gate order is fixed;
// only the membership is configurable.
type Policy struct {
	Read        []string           `yaml:"read"`
	Write       []string           `yaml:"write"`
	Destructive []string           `yaml:"destructive"`
	Profiles    map[string]Profile `yaml:"profiles"`
}

type Profile struct {
	Read        []string `yaml:"read"`
	Write       []string `yaml:"write"`
	Destructive []string `yaml:"destructive"`
}

type Sandbox struct {
	Enabled       bool   `yaml:"enabled"`
	RunnerPath    string `yaml:"runner_path"`
	MemoryLimitMB int64  `yaml:"memory_limit_mb"`
	TimeoutMs     int64  `yaml:"timeout_ms"`
}

type Memory struct {
	Selection   Selection   `yaml:"selection"`
	Enforcement Enforcement `yaml:"enforcement"`

	// EnforceSchedule is a cron expression for the background enforcement
	// sweep. Empty disables the scheduler.
	EnforceSchedule string `yaml:"enforce_schedule"`
}

type Selection struct {
	PerLevelLimit int         `yaml:"per_level_limit"`
	CharBudget    int         `yaml:"char_budget"`
	ValueLimits   map[int]int `yaml:"value_limits"`
}

type Enforcement struct {
	LevelCaps map[int]int `yaml:"level_caps"`
}

type Jobs struct {
	Concurrency map[string]int `yaml:"concurrency"`
	Retry       Retry          `yaml:"retry"`
}

type Retry struct {
	MaxAttempts int     `yaml:"max_attempts"`
	InitialMs   float64 `yaml:"initial_ms"`
	MaxMs       float64 `yaml:"max_ms"`
	Factor      float64 `yaml:"factor"`
	Jitter      float64 `yaml:"jitter"`
}

type Logging struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type Tracing struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure"`
}

// Load reads and parses the configuration file. The WARDEN_CONFIG
// environment variable, when set, takes precedence over path.
func Load(path string) (*Config, error) {
	if env := os.Getenv(EnvConfigPath); env != "" {
		path = env
	}
	if path == "" {
		cfg := Default()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = ":memory:"
	}
	if cfg.Sandbox.MemoryLimitMB == 0 {
		cfg.Sandbox.MemoryLimitMB = 512
	}
	if cfg.Sandbox.TimeoutMs == 0 {
		cfg.Sandbox.TimeoutMs = 30000
	}
	if cfg.Memory.Selection.PerLevelLimit == 0 {
		cfg.Memory.Selection.PerLevelLimit = memory.DefaultSelectionConfig().PerLevelLimit
	}
	if cfg.Memory.Selection.CharBudget == 0 {
		cfg.Memory.Selection.CharBudget = memory.DefaultSelectionConfig().CharBudget
	}
	if cfg.Jobs.Retry.MaxAttempts == 0 {
		cfg.Jobs.Retry = Retry{MaxAttempts: 3, InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0.1}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "warden"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1.0
	}
}

// Validate rejects values no component could act on.
func (c *Config) Validate() error {
	if c.Memory.Selection.PerLevelLimit < 0 {
		return fmt.Errorf("memory.selection.per_level_limit must not be negative")
	}
	if c.Memory.Selection.CharBudget < 0 {
		return fmt.Errorf("memory.selection.char_budget must not be negative")
	}
	for level := range c.Memory.Enforcement.LevelCaps {
		if level < 0 || level > 5 {
			return fmt.Errorf("memory.enforcement.level_caps: level %d out of range", level)
		}
	}
	for level := range c.Memory.Selection.ValueLimits {
		if level < 0 || level > 5 {
			return fmt.Errorf("memory.selection.value_limits: level %d out of range", level)
		}
	}
	if c.Sandbox.Enabled && c.Sandbox.RunnerPath == "" {
		return fmt.Errorf("sandbox.runner_path is required when sandbox is enabled")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	return nil
}

// PolicyClassification converts the configured lists into the policy
// engine's classification shape.
func (c *Config) PolicyClassification() policy.Classification {
	return policy.Classification{
		Read:        c.Policy.Read,
		Write:       c.Policy.Write,
		Destructive: c.Policy.Destructive,
	}
}

// PolicyProfiles converts the per-profile override lists.
func (c *Config) PolicyProfiles() map[string]policy.Classification {
	out := make(map[string]policy.Classification, len(c.Policy.Profiles))
	for name, p := range c.Policy.Profiles {
		out[name] = policy.Classification{
			Read:        p.Read,
			Write:       p.Write,
			Destructive: p.Destructive,
		}
	}
	return out
}

// SelectionConfig converts the memory selection settings.
func (c *Config) SelectionConfig() memory.SelectionConfig {
	sel := memory.DefaultSelectionConfig()
	sel.PerLevelLimit = c.Memory.Selection.PerLevelLimit
	sel.CharBudget = c.Memory.Selection.CharBudget
	for level, limit := range c.Memory.Selection.ValueLimits {
		sel.ValueLimits[level] = limit
	}
	return sel
}

// EnforcementConfig converts the memory retention caps.
func (c *Config) EnforcementConfig() memory.EnforcementConfig {
	enf := memory.DefaultEnforcementConfig()
	for level, limit := range c.Memory.Enforcement.LevelCaps {
		enf.LevelCaps[level] = limit
	}
	return enf
}

// LogConfig converts the logging settings.
func (c *Config) LogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.AddSource,
	}
}

// TraceConfig converts the tracing settings.
func (c *Config) TraceConfig() observability.TraceConfig {
	return observability.TraceConfig{
		Endpoint:       c.Tracing.Endpoint,
		ServiceName:    c.Tracing.ServiceName,
		SamplingRate:   c.Tracing.SampleRate,
		EnableInsecure: c.Tracing.Insecure,
	}
}
