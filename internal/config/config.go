package config

import (
	"fmt"
	"time"

	"github.com/dpup/rooftrace/server/internal/clients/simulation"
	"github.com/dpup/rooftrace/server/internal/lib/capture"
)

// Config represents the complete server configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" koanf:"server"`
	Capture    CaptureConfig    `yaml:"capture" koanf:"capture"`
	Simulation SimulationConfig `yaml:"simulation" koanf:"simulation"`
	Sessions   SessionsConfig   `yaml:"sessions" koanf:"sessions"`
}

// ServerConfig holds API settings; listen address and port belong to prefab
type ServerConfig struct {
	CorsOrigins []string `yaml:"cors_origins" koanf:"cors_origins"`
}

// CaptureConfig holds outline capture settings
type CaptureConfig struct {
	// DebounceWindow coalesces bursts of map clicks; zero applies every click
	DebounceWindow time.Duration `yaml:"debounce_window" koanf:"debounce_window"`
}

// SimulationConfig holds the energy simulation backend settings
type SimulationConfig struct {
	BaseURL  string              `yaml:"base_url" koanf:"base_url"`
	Timeout  time.Duration       `yaml:"timeout" koanf:"timeout"`
	Defaults simulation.Settings `yaml:"defaults" koanf:"defaults"`
}

// SessionsConfig holds capture session lifetime settings
type SessionsConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout" koanf:"idle_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" koanf:"cleanup_interval"`
	ResultTTL       time.Duration `yaml:"result_ttl" koanf:"result_ttl"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			CorsOrigins: []string{"*"},
		},
		Capture: CaptureConfig{
			DebounceWindow: capture.DefaultDebounceWindow,
		},
		Simulation: SimulationConfig{
			BaseURL:  "http://localhost:8001",
			Timeout:  30 * time.Second,
			Defaults: simulation.DefaultSettings(),
		},
		Sessions: SessionsConfig{
			IdleTimeout:     2 * time.Hour,
			CleanupInterval: 10 * time.Minute,
			ResultTTL:       time.Hour,
		},
	}
}

// Source is a hierarchical configuration such as prefab.Config
type Source interface {
	Unmarshal(path string, o interface{}) error
}

// Load unmarshals each known section of src over DefaultConfig. Keys missing
// from src keep their defaults.
func Load(src Source) (*Config, error) {
	cfg := DefaultConfig()
	sections := []struct {
		key    string
		target interface{}
	}{
		{"server", &cfg.Server},
		{"capture", &cfg.Capture},
		{"simulation", &cfg.Simulation},
		{"sessions", &cfg.Sessions},
	}
	for _, section := range sections {
		if err := src.Unmarshal(section.key, section.target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s section: %w", section.key, err)
		}
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Simulation.BaseURL == "" {
		return fmt.Errorf("simulation.base_url is required")
	}
	if c.Simulation.Timeout <= 0 {
		return fmt.Errorf("simulation.timeout must be positive")
	}
	if c.Capture.DebounceWindow < 0 {
		return fmt.Errorf("capture.debounce_window must not be negative")
	}
	if c.Sessions.IdleTimeout <= 0 || c.Sessions.CleanupInterval <= 0 || c.Sessions.ResultTTL <= 0 {
		return fmt.Errorf("sessions durations must be positive")
	}
	if err := c.Simulation.Defaults.Validate(); err != nil {
		return fmt.Errorf("simulation.defaults: %w", err)
	}
	return nil
}
