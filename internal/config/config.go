package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "PREZENS_"

// DevJWTSecret is only accepted when Env is "dev".
const DevJWTSecret = "dev-secret-change-me"

type Config struct {
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR"`
	GRPCAddr string `yaml:"grpc_addr" env:"GRPC_ADDR"` // empty disables the gRPC health listener

	Env string `yaml:"env" env:"ENV"` // "dev" | "prod"

	DB DBConfig `yaml:"db" envPrefix:"DB_"`

	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`

	// Timezone defines "today" for dashboards and default meeting dates.
	Timezone string `yaml:"timezone" env:"TIMEZONE"`

	StatusRefreshSeconds int `yaml:"status_refresh_seconds" env:"STATUS_REFRESH_SECONDS"` // 0 = disabled
	HealthProbeSeconds   int `yaml:"health_probe_seconds" env:"HEALTH_PROBE_SECONDS"`

	Log  LogConfig  `yaml:"log" envPrefix:"LOG_"`
	OTel OTelConfig `yaml:"otel" envPrefix:"OTEL_"`
}

type DBConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // sqlite | mysql | postgres | memory
	Path   string `yaml:"path" env:"PATH"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

type LogConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	File       string `yaml:"file" env:"FILE"`
	Console    bool   `yaml:"console" env:"CONSOLE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

type OTelConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
}

func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		Env:      "dev",
		DB: DBConfig{
			Driver: "sqlite",
			Path:   "./data/prezens.db",
		},
		JWTIssuer:            "prezens",
		Timezone:             "UTC",
		StatusRefreshSeconds: 60,
		HealthProbeSeconds:   10,
		Log: LogConfig{
			Level:      "info",
			Console:    true,
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
		OTel: OTelConfig{Enabled: true},
	}
}

// Load applies defaults, then the YAML file at path (if non-empty), then
// PREZENS_* environment variables, and validates the result.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := c.normalize(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) normalize() error {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}

	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	var errs []error
	switch c.DB.Driver {
	case "memory":
	case "sqlite":
		if c.DB.Path == "" {
			errs = append(errs, errors.New("db.path is required for sqlite"))
		}
	case "mysql", "postgres":
		if c.DB.DSN == "" {
			errs = append(errs, fmt.Errorf("db.dsn is required for %s", c.DB.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported db.driver %q", c.DB.Driver))
	}

	if c.JWTSecret == "" {
		if c.IsProd() {
			errs = append(errs, errors.New("jwt_secret is required in prod"))
		}
		c.JWTSecret = DevJWTSecret
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if c.StatusRefreshSeconds < 0 {
		errs = append(errs, errors.New("status_refresh_seconds must be >= 0"))
	}
	if c.HealthProbeSeconds <= 0 {
		c.HealthProbeSeconds = 10
	}
	return errors.Join(errs...)
}

func (c Config) IsProd() bool { return c.Env == "prod" }

// Location returns the configured timezone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) StatusRefreshInterval() time.Duration {
	return time.Duration(c.StatusRefreshSeconds) * time.Second
}

func (c Config) HealthProbeInterval() time.Duration {
	return time.Duration(c.HealthProbeSeconds) * time.Second
}
