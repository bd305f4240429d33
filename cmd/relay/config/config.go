// Package config loads relay CLI configuration from an optional .env file,
// an optional YAML or JSON5 file, and environment overrides, in that order.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"github.com/victorarias/agentic-relay/agentic"
)

// Config controls the relay CLI.
type Config struct {
	Provider   string `yaml:"provider" json:"provider"`
	Runtime    string `yaml:"runtime" json:"runtime"`
	SessionKey string `yaml:"session_key" json:"session_key"`
	// SessionDB is a SQLite path. When empty, SessionDir selects the file
	// store, and when both are empty sessions live in memory.
	SessionDB  string `yaml:"session_db" json:"session_db"`
	SessionDir string `yaml:"session_dir" json:"session_dir"`

	ContextWindow         int `yaml:"context_window" json:"context_window"`
	MaxAttempts           int `yaml:"max_attempts" json:"max_attempts"`
	MaxCompactionAttempts int `yaml:"max_compaction_attempts" json:"max_compaction_attempts"`
	AttemptTimeoutSeconds int `yaml:"attempt_timeout_seconds" json:"attempt_timeout_seconds"`
	KeepLast              int `yaml:"keep_last" json:"keep_last"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
	// Metrics selects the telemetry backend: "prometheus", "otel" or "log".
	Metrics string `yaml:"metrics" json:"metrics"`

	Anthropic AnthropicConfig `yaml:"anthropic" json:"anthropic"`
	Vertex    VertexConfig    `yaml:"vertex" json:"vertex"`
	Tools     []ToolConfig    `yaml:"tools" json:"tools"`
	// AllowedTools limits which configured tools are visible to repair and
	// validation. Empty allows every tool.
	AllowedTools []string `yaml:"allowed_tools" json:"allowed_tools"`
}

// AnthropicConfig configures the direct API summarizer.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// VertexConfig configures the Vertex AI summarizer.
type VertexConfig struct {
	Project  string `yaml:"project" json:"project"`
	Location string `yaml:"location" json:"location"`
	Model    string `yaml:"model" json:"model"`
}

// ToolConfig declares a tool whose calls are validated and repaired.
type ToolConfig struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Schema      map[string]any `yaml:"schema" json:"schema"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Provider:              "anthropic",
		SessionKey:            "main",
		MaxAttempts:           6,
		MaxCompactionAttempts: 3,
		AttemptTimeoutSeconds: 600,
		LogLevel:              "info",
		LogFormat:             "text",
		Metrics:               "log",
	}
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. An empty path tries ".env" and ignores
// its absence.
func LoadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration. path may be empty, in which case
// RELAY_CONFIG is consulted.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		path = trimmedEnv("RELAY_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return errors.New("config: max_attempts must be greater than 0")
	}
	if c.MaxCompactionAttempts <= 0 {
		return errors.New("config: max_compaction_attempts must be greater than 0")
	}
	if c.ContextWindow < 0 {
		return errors.New("config: context_window must be zero or greater")
	}
	if c.AttemptTimeoutSeconds < 0 {
		return errors.New("config: attempt_timeout_seconds must be zero or greater")
	}
	if c.KeepLast < 0 {
		return errors.New("config: keep_last must be zero or greater")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	switch strings.ToLower(c.Metrics) {
	case "prometheus", "otel", "log", "none":
	default:
		return fmt.Errorf("config: metrics must be prometheus, otel, log or none, got %q", c.Metrics)
	}
	for i, tool := range c.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			return fmt.Errorf("config: tool at index %d has empty name", i)
		}
	}
	return nil
}

// Policy returns the tool visibility policy for AllowedTools.
func (c Config) Policy() agentic.Policy {
	if len(c.AllowedTools) == 0 {
		return agentic.AllowAllPolicy{}
	}
	return agentic.NewAllowlistPolicy(c.AllowedTools)
}

// ToolDefinitions converts the configured tools into registry definitions.
func (c Config) ToolDefinitions() ([]agentic.ToolDefinition, error) {
	defs := make([]agentic.ToolDefinition, 0, len(c.Tools))
	for _, tool := range c.Tools {
		def := agentic.ToolDefinition{Name: tool.Name, Description: tool.Description}
		if tool.Schema != nil {
			raw, err := json.Marshal(tool.Schema)
			if err != nil {
				return nil, fmt.Errorf("config: tool %s schema: %w", tool.Name, err)
			}
			def.InputSchema = raw
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	data = []byte(os.ExpandEnv(string(data)))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return fmt.Errorf("config: parse %s: expected single document", path)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"RELAY_MAX_ATTEMPTS", &cfg.MaxAttempts},
		{"RELAY_MAX_COMPACTION_ATTEMPTS", &cfg.MaxCompactionAttempts},
		{"RELAY_CONTEXT_WINDOW", &cfg.ContextWindow},
		{"RELAY_ATTEMPT_TIMEOUT_SECONDS", &cfg.AttemptTimeoutSeconds},
		{"RELAY_KEEP_LAST", &cfg.KeepLast},
	}
	for _, item := range ints {
		v, err := intEnvStrict(item.key, *item.dst)
		if err != nil {
			return err
		}
		*item.dst = v
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"RELAY_PROVIDER", &cfg.Provider},
		{"RELAY_RUNTIME", &cfg.Runtime},
		{"RELAY_SESSION_KEY", &cfg.SessionKey},
		{"RELAY_SESSION_DB", &cfg.SessionDB},
		{"RELAY_SESSION_DIR", &cfg.SessionDir},
		{"RELAY_LOG_LEVEL", &cfg.LogLevel},
		{"RELAY_LOG_FORMAT", &cfg.LogFormat},
		{"RELAY_METRICS", &cfg.Metrics},
		{"ANTHROPIC_API_KEY", &cfg.Anthropic.APIKey},
		{"ANTHROPIC_MODEL", &cfg.Anthropic.Model},
		{"ANTHROPIC_BASE_URL", &cfg.Anthropic.BaseURL},
		{"VERTEX_PROJECT", &cfg.Vertex.Project},
		{"VERTEX_LOCATION", &cfg.Vertex.Location},
		{"VERTEX_MODEL", &cfg.Vertex.Model},
	}
	for _, item := range strs {
		if v := trimmedEnv(item.key); v != "" {
			*item.dst = v
		}
	}
	if v := trimmedEnv("RELAY_ALLOWED_TOOLS"); v != "" {
		cfg.AllowedTools = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.AllowedTools = append(cfg.AllowedTools, name)
			}
		}
	}
	return nil
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func intEnvStrict(key string, fallback int) (int, error) {
	value := trimmedEnv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return parsed, nil
}
