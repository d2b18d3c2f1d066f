package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of the config file. Zero values mean "keep
// the default"; environment variables override both.
type fileConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	JWTSecret  string `yaml:"jwt_secret"`

	ServerName       string `yaml:"server_name"`
	ServerVisibility string `yaml:"server_visibility"`

	PaceIntervalMs    int `yaml:"pace_interval_ms"`
	MetricsIntervalMs int `yaml:"metrics_interval_ms"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LoadConfig builds the effective config: defaults, then the optional YAML
// file, then RICECALL_* environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		applyFileConfig(&cfg, fc)
	}

	applyEnv(&cfg)

	if cfg.ServerVisibility != "public" && cfg.ServerVisibility != "private" {
		return Config{}, fmt.Errorf("invalid server_visibility %q", cfg.ServerVisibility)
	}
	return cfg, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.JWTSecret != "" {
		cfg.JWTSecret = fc.JWTSecret
	}
	if fc.ServerName != "" {
		cfg.ServerName = fc.ServerName
	}
	if fc.ServerVisibility != "" {
		cfg.ServerVisibility = fc.ServerVisibility
	}
	if fc.PaceIntervalMs > 0 {
		cfg.PaceInterval = time.Duration(fc.PaceIntervalMs) * time.Millisecond
	}
	if fc.MetricsIntervalMs > 0 {
		cfg.MetricsInterval = time.Duration(fc.MetricsIntervalMs) * time.Millisecond
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RICECALL_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("RICECALL_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RICECALL_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("RICECALL_SERVER_NAME"); v != "" {
		cfg.ServerName = v
	}
	if v := os.Getenv("RICECALL_SERVER_VISIBILITY"); v != "" {
		cfg.ServerVisibility = v
	}
	if v := os.Getenv("RICECALL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RICECALL_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("RICECALL_PACE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PaceInterval = d
		}
	}
}
