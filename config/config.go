// Package config loads and validates the runtime configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendConfig selects and parameterizes the backend variant.
type BackendConfig struct {
	// Kind is one of: anthropic, openai, ollama, script.
	Kind string `yaml:"kind"`
	// Model names the model for hosted and on-device kinds.
	Model string `yaml:"model,omitempty"`
	// APIKey authenticates hosted kinds; falls back to the provider's
	// environment variable when empty.
	APIKey string `yaml:"api_key,omitempty"`
	// BaseURL overrides the server address for the ollama kind.
	BaseURL string `yaml:"base_url,omitempty"`
	// Command and Args define the child process for the script kind.
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	// Temperature and MaxTokens tune generation where supported.
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

// Config is the full runtime configuration.
type Config struct {
	// WorkspaceRoot is the directory all file capabilities are bound to.
	WorkspaceRoot string `yaml:"workspace_root"`
	// Backend selects the decision-making variant.
	Backend BackendConfig `yaml:"backend"`
	// MaxTurns is the hard ceiling on backend round trips per run.
	MaxTurns int `yaml:"max_turns,omitempty"`
	// Instructions is the system prompt sent on every turn.
	Instructions string `yaml:"instructions,omitempty"`
	// SessionDB is the SQLite path for durable sessions; empty keeps
	// sessions in memory.
	SessionDB string `yaml:"session_db,omitempty"`
	// Log tunes structured logging output.
	Log LogConfig `yaml:"log,omitempty"`
	// Retry tunes transient backend failure handling.
	Retry RetryConfig `yaml:"retry,omitempty"`
}

// LogConfig tunes the structured logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// RetryConfig bounds the backend retry loop.
type RetryConfig struct {
	MaxRetries int      `yaml:"max_retries,omitempty"`
	BaseDelay  Duration `yaml:"base_delay,omitempty"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "2s"
// as well as plain nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var asInt int64
	if err := node.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}
	var asStr string
	if err := node.Decode(&asStr); err != nil {
		return fmt.Errorf("invalid duration %q", node.Value)
	}
	parsed, err := time.ParseDuration(asStr)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", asStr, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a configuration with sensible defaults and the current
// directory as workspace.
func Default() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return &Config{
		WorkspaceRoot: wd,
		Backend:       BackendConfig{Kind: "ollama"},
		MaxTurns:      20,
		Log:           LogConfig{Level: "info", Format: "text"},
		Retry:         RetryConfig{MaxRetries: 3, BaseDelay: Duration(time.Second)},
	}
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks invariants and normalizes paths.
func (c *Config) Validate() error {
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("workspace_root is required")
	}
	abs, err := filepath.Abs(c.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("workspace_root: %w", err)
	}
	c.WorkspaceRoot = abs

	if c.MaxTurns <= 0 {
		return fmt.Errorf("max_turns must be positive, got %d", c.MaxTurns)
	}

	switch c.Backend.Kind {
	case "anthropic", "openai", "ollama":
	case "script":
		if c.Backend.Command == "" {
			return fmt.Errorf("backend.command is required for the script kind")
		}
	case "":
		return fmt.Errorf("backend.kind is required")
	default:
		return fmt.Errorf("unknown backend kind %q", c.Backend.Kind)
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	return nil
}
