// Package config loads the daemon's small configuration surface: listen
// address and optional tracing. Flags beat env, env beats file, file beats
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Config is the root configuration.
type Config struct {
	Host      string          `json:"host"`
	Port      int             `json:"port"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// TelemetryConfig enables OTLP trace export. Off by default; the daemon is
// a local single-user bridge.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // OTLP/HTTP collector, host:port
}

// Default returns the built-in configuration: loopback only.
func Default() *Config {
	return &Config{
		Host: "127.0.0.1",
		Port: 18800,
	}
}

// DefaultPath is where Load looks when no explicit path is given.
func DefaultPath() string {
	if v := os.Getenv("WINDLINK_CONFIG"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".windlink", "config.json")
}

// Load reads path (JSON5, so comments and trailing commas are tolerated)
// and applies env overrides. A missing file is not an error — defaults
// apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err == nil {
		if err := json5.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("WINDLINK_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid WINDLINK_PORT %q", v)
		}
		cfg.Port = port
	}

	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = Default().Port
	}
	return cfg, nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
