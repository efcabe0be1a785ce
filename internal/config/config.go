package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/claude/repcoach/internal/exercise"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Engine    exercise.Config `yaml:"engine"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// SessionIdleTimeout ends sessions that receive no frame for this long.
	// Zero disables expiry.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// TailscaleConfig enables serving on the tailnet via tsnet. When enabled,
// callers are identified by their Tailscale login.
type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Engine values missing from the file keep their defaults.
// Env vars use the prefix REPCOACH_ and underscore-separated paths:
//
//	REPCOACH_SERVER_HOST, REPCOACH_SERVER_PORT, REPCOACH_SERVER_SESSION_IDLE_TIMEOUT,
//	REPCOACH_DB_HOST, REPCOACH_DB_PORT, REPCOACH_DB_NAME,
//	REPCOACH_DB_USER, REPCOACH_DB_PASSWORD, REPCOACH_DB_SSLMODE,
//	REPCOACH_AUTH_API_KEY,
//	REPCOACH_TAILSCALE_ENABLED, REPCOACH_TAILSCALE_HOSTNAME, REPCOACH_TAILSCALE_STATE_DIR,
//	REPCOACH_ENGINE_MIN_CONFIDENCE, REPCOACH_ENGINE_CALIBRATION_WINDOW
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server:    ServerConfig{SessionIdleTimeout: 10 * time.Minute},
		Tailscale: TailscaleConfig{Hostname: "repcoach", StateDir: "tsnet-state"},
		Engine:    exercise.DefaultConfig(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("REPCOACH_SERVER_HOST", &cfg.Server.Host)
	num("REPCOACH_SERVER_PORT", &cfg.Server.Port)
	if v := os.Getenv("REPCOACH_SERVER_SESSION_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.SessionIdleTimeout = d
		}
	}
	str("REPCOACH_DB_HOST", &cfg.Database.Host)
	num("REPCOACH_DB_PORT", &cfg.Database.Port)
	str("REPCOACH_DB_NAME", &cfg.Database.Name)
	str("REPCOACH_DB_USER", &cfg.Database.User)
	str("REPCOACH_DB_PASSWORD", &cfg.Database.Password)
	str("REPCOACH_DB_SSLMODE", &cfg.Database.SSLMode)
	str("REPCOACH_AUTH_API_KEY", &cfg.Auth.APIKey)
	if v := os.Getenv("REPCOACH_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	str("REPCOACH_TAILSCALE_HOSTNAME", &cfg.Tailscale.Hostname)
	str("REPCOACH_TAILSCALE_STATE_DIR", &cfg.Tailscale.StateDir)
	if v := os.Getenv("REPCOACH_ENGINE_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.MinConfidence = f
		}
	}
	num("REPCOACH_ENGINE_CALIBRATION_WINDOW", &cfg.Engine.Calibration.Window)
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.SessionIdleTimeout < 0 {
		return fmt.Errorf("server.session_idle_timeout must not be negative")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}
