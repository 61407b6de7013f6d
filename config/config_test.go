package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Guard.Backend)
	assert.Equal(t, 30*time.Second, cfg.Guard.TTL)
	assert.Equal(t, 10*time.Second, cfg.Guard.Bucket)
	assert.Equal(t, "per_shift", cfg.Closing.DuplicatePolicy)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	// GIVEN: A YAML file and an environment override for one of its keys
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  dsn: postgres://localhost/recon
closing:
  duplicate_policy: per_day
`), 0o600))
	t.Setenv("RECON_DATABASE_DRIVER", "memory")
	t.Setenv("RECON_GUARD_TTL", "5s")

	// WHEN: Loading
	cfg, err := Load(path)

	// THEN: The environment wins, the file fills the rest
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/recon", cfg.Database.DSN)
	assert.Equal(t, "per_day", cfg.Closing.DuplicatePolicy)
	assert.Equal(t, 5*time.Second, cfg.Guard.TTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
			Database: DatabaseConfig{Driver: "memory"},
			Log:      LogConfig{Level: "info", Format: "json"},
			Guard:    GuardConfig{Backend: "memory", TTL: time.Second, Bucket: time.Second, SweepInterval: time.Second},
			Closing:  ClosingConfig{DuplicatePolicy: "per_shift"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"backend", func(c *Config) { c.Guard.Backend = "etcd" }, "guard.backend"},
		{"ttl", func(c *Config) { c.Guard.TTL = 0 }, "guard.ttl"},
		{"redis addr", func(c *Config) { c.Guard.Backend = "redis" }, "redis.addr"},
		{"policy", func(c *Config) { c.Closing.DuplicatePolicy = "per_week" }, "closing.duplicate_policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
