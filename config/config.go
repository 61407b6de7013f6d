/*
Package config loads the server configuration.

SOURCES (later wins):
  1. Defaults below
  2. Optional YAML file (--config flag)
  3. .env file in the working directory, if present
  4. Environment variables with the RECON_ prefix, dots as underscores
     (database.driver -> RECON_DATABASE_DRIVER)
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "RECON"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Guard    GuardConfig    `mapstructure:"guard"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Closing  ClosingConfig  `mapstructure:"closing"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres | memory
	DSN    string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

type GuardConfig struct {
	Backend       string        `mapstructure:"backend"` // memory | redis
	TTL           time.Duration `mapstructure:"ttl"`
	Bucket        time.Duration `mapstructure:"bucket"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ClosingConfig struct {
	DuplicatePolicy string `mapstructure:"duplicate_policy"` // per_shift | per_day
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "reconciliation-engine")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "reconciliation.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("guard.backend", "memory")
	v.SetDefault("guard.ttl", 30*time.Second)
	v.SetDefault("guard.bucket", 10*time.Second)
	v.SetDefault("guard.sweep_interval", time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("closing.duplicate_policy", "per_shift")

	v.SetDefault("metrics.enabled", true)
}

// Load reads the configuration. An empty path skips the YAML file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown enum values and non-positive durations.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			errs = append(errs, fmt.Errorf("database.dsn is required for %s", c.Database.Driver))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of sqlite, postgres, memory", c.Database.Driver))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, console", c.Log.Format))
	}

	switch c.Guard.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("guard.backend %q is not one of memory, redis", c.Guard.Backend))
	}
	if c.Guard.TTL <= 0 {
		errs = append(errs, errors.New("guard.ttl must be positive"))
	}
	if c.Guard.Bucket <= 0 {
		errs = append(errs, errors.New("guard.bucket must be positive"))
	}
	if c.Guard.SweepInterval <= 0 {
		errs = append(errs, errors.New("guard.sweep_interval must be positive"))
	}
	if c.Guard.Backend == "redis" && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required for the redis guard"))
	}

	switch c.Closing.DuplicatePolicy {
	case "per_shift", "per_day":
	default:
		errs = append(errs, fmt.Errorf("closing.duplicate_policy %q is not one of per_shift, per_day", c.Closing.DuplicatePolicy))
	}

	return errors.Join(errs...)
}
