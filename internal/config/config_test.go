package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CUSTQUERY_DB", "CUSTQUERY_LOG_LEVEL", "CUSTQUERY_SOURCE_TYPE", "CUSTQUERY_DB_PASSWORD"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Source.Type)
	assert.Equal(t, 5*time.Minute, cfg.GetRunTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.GetWatchDebounce())
	assert.Equal(t, "custquery.db", filepath.Base(cfg.Database.Path))
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_ParsesYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /var/lib/custquery/reports.db
source:
  type: csv_file
  config:
    filePath: /data/customers.csv
    delimiter: ";"
reports:
  run_timeout: 30s
logging:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/var/lib/custquery/reports.db", cfg.Database.Path)
	assert.Equal(t, "csv_file", cfg.Source.Type)
	assert.Equal(t, ";", cfg.Source.Config["delimiter"])
	assert.Equal(t, 30*time.Second, cfg.GetRunTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.GetWatchDebounce(), "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unclosed"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Source = SourceConfig{Type: "json_file", Config: map[string]any{"filePath": "/data/c.json"}}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("CUSTQUERY_DB sets the database path", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CUSTQUERY_DB", "/tmp/other.db")
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	})

	t.Run("log level and source type", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CUSTQUERY_LOG_LEVEL", "warn")
		t.Setenv("CUSTQUERY_SOURCE_TYPE", "database")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "database", cfg.Source.Type)
	})

	t.Run("database password stays out of the source config", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CUSTQUERY_DB_PASSWORD", "s3cret")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.NotContains(t, cfg.Source.Config, "password")
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"empty db path": func(c *Config) { c.Database.Path = "" },
		"bad source":    func(c *Config) { c.Source.Type = "ftp" },
		"bad level":     func(c *Config) { c.Logging.Level = "loud" },
		"bad format":    func(c *Config) { c.Logging.Format = "xml" },
		"bad timeout":   func(c *Config) { c.Reports.RunTimeout = "soon" },
		"bad debounce":  func(c *Config) { c.Reports.WatchDebounce = "1 sec" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
