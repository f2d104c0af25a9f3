package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all custquery configuration.
type Config struct {
	// Storage of saved reports and run logs
	Database DatabaseConfig `yaml:"database"`

	// Default record source for the query commands
	Source SourceConfig `yaml:"source"`

	// Saved report runs and triggers
	Reports ReportsConfig `yaml:"reports"`

	// MCP server identity
	MCP MCPConfig `yaml:"mcp"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DatabaseConfig locates the SQLite report store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SourceConfig selects the default record source. Config is passed to the
// source factory unchanged.
type SourceConfig struct {
	Type   string         `yaml:"type"` // memory, json_file, csv_file, database
	Config map[string]any `yaml:"config"`
}

// ReportsConfig tunes report execution.
type ReportsConfig struct {
	RunTimeout    string `yaml:"run_timeout"`
	WatchDebounce string `yaml:"watch_debounce"`
	RunLogLimit   int    `yaml:"run_log_limit"`
}

// MCPConfig names the MCP server.
type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`  // debug, info, warn, error
	Format      string `yaml:"format"` // json, console
	Development bool   `yaml:"development"`
	File        string `yaml:"file"` // optional extra output path
}

// ValidSourceTypes lists the record source types the CLI accepts.
var ValidSourceTypes = []string{"memory", "json_file", "csv_file", "database"}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(DefaultDir(), "custquery.db"),
		},
		Source: SourceConfig{
			Type: "memory",
		},
		Reports: ReportsConfig{
			RunTimeout:    "5m",
			WatchDebounce: "500ms",
			RunLogLimit:   50,
		},
		MCP: MCPConfig{
			Name:    "custquery",
			Version: "1.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultDir returns ~/.config/custquery, or a relative directory if the
// home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".custquery"
	}
	return filepath.Join(home, ".config", "custquery")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads the config at path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("CUSTQUERY_DB"); path != "" {
		c.Database.Path = path
	}
	if level := os.Getenv("CUSTQUERY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if typ := os.Getenv("CUSTQUERY_SOURCE_TYPE"); typ != "" {
		c.Source.Type = typ
	}
}

// GetRunTimeout returns the report run timeout, 5m if unset or invalid.
func (c *Config) GetRunTimeout() time.Duration {
	return parseDuration(c.Reports.RunTimeout, 5*time.Minute)
}

// GetWatchDebounce returns the file watch debounce, 500ms if unset or invalid.
func (c *Config) GetWatchDebounce() time.Duration {
	return parseDuration(c.Reports.WatchDebounce, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path not configured (set database.path or CUSTQUERY_DB)")
	}
	if !slices.Contains(ValidSourceTypes, c.Source.Type) {
		return fmt.Errorf("invalid source type: %s (valid: %v)", c.Source.Type, ValidSourceTypes)
	}
	if !slices.Contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}
	for name, s := range map[string]string{
		"reports.run_timeout":    c.Reports.RunTimeout,
		"reports.watch_debounce": c.Reports.WatchDebounce,
	} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}
