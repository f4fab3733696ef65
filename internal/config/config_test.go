package config

import (
	"testing"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 100*time.Millisecond, cfg.Capture.DebounceWindow)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.IdleTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.CleanupInterval)
	assert.Equal(t, time.Hour, cfg.Sessions.ResultTTL)
	assert.Equal(t, 1_500_000.0, cfg.Simulation.Defaults.MonthlyBill)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base url", func(c *Config) { c.Simulation.BaseURL = "" }},
		{"zero timeout", func(c *Config) { c.Simulation.Timeout = 0 }},
		{"negative debounce", func(c *Config) { c.Capture.DebounceWindow = -time.Millisecond }},
		{"zero idle timeout", func(c *Config) { c.Sessions.IdleTimeout = 0 }},
		{"bad default efficiency", func(c *Config) { c.Simulation.Defaults.PanelEfficiency = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Capture.DebounceWindow = 0
	assert.NoError(t, cfg.Validate(), "zero window disables coalescing")
}

func TestLoad_OverridesDefaults(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(map[string]interface{}{
		"server.cors_origins":              []string{"https://atap.example"},
		"capture.debounce_window":          "250ms",
		"simulation.base_url":              "http://sim.example:9000",
		"simulation.defaults.tilt":         15.0,
		"simulation.defaults.monthly_bill": 900000.0,
		"sessions.idle_timeout":            "5m",
	}, "."), nil))

	cfg, err := Load(k)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://atap.example"}, cfg.Server.CorsOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.DebounceWindow)
	assert.Equal(t, "http://sim.example:9000", cfg.Simulation.BaseURL)
	assert.Equal(t, 15.0, cfg.Simulation.Defaults.Tilt)
	assert.Equal(t, 900_000.0, cfg.Simulation.Defaults.MonthlyBill)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.IdleTimeout)

	// Keys not present keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Simulation.Timeout)
	assert.Equal(t, 180.0, cfg.Simulation.Defaults.Azimuth)
	assert.Equal(t, time.Hour, cfg.Sessions.ResultTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EmptySource(t *testing.T) {
	cfg, err := Load(koanf.New("."))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PrefabYAML(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, k.Load(file.Provider("../../prefab.yaml"), yaml.Parser()))

	cfg, err := Load(k)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CorsOrigins)
	assert.Equal(t, 100*time.Millisecond, cfg.Capture.DebounceWindow)
	assert.Equal(t, "http://localhost:8001", cfg.Simulation.BaseURL)
	assert.Equal(t, 1444.7, cfg.Simulation.Defaults.ElectricityTariff)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.CleanupInterval)
}
