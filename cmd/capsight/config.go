package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full capsight configuration.
type Config struct {
	Target       TargetConfig  `yaml:"target"`
	StatePath    string        `yaml:"state_path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	EventWindow  int           `yaml:"event_window"`
	MinVersion   string        `yaml:"min_version"`
	Production   bool          `yaml:"production"`
	DiagListen   string        `yaml:"diag_listen"`
	LogLevel     string        `yaml:"log_level"`
}

// TargetConfig locates the remote engine's REST API.
type TargetConfig struct {
	Scheme  string `yaml:"scheme"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	APIPath string `yaml:"api_path"`
}

// DefaultConfig returns sane defaults for a local engine.
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Scheme:  "http",
			Host:    "127.0.0.1",
			Port:    8081,
			APIPath: "/api",
		},
		StatePath:    "capsight.db",
		PollInterval: time.Second,
		EventWindow:  50,
		MinVersion:   "2.32.0",
		DiagListen:   "",
		LogLevel:     "info",
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
// An empty path returns the defaults untouched.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Target.Host == "" {
		return fmt.Errorf("target.host is required")
	}
	if c.Target.Port <= 0 || c.Target.Port > 65535 {
		return fmt.Errorf("target.port must be in 1..65535")
	}
	switch c.Target.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("target.scheme must be http or https, got %q", c.Target.Scheme)
	}
	if c.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0")
	}
	if c.EventWindow <= 0 {
		return fmt.Errorf("event_window must be > 0")
	}
	return nil
}
