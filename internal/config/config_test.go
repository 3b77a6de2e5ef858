package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultVelocityThreshold, cfg.VelocityThreshold)
	assert.Equal(t, float64(DefaultAmountCeiling), cfg.AmountCeiling)
	assert.Equal(t, DefaultCriticalThreshold, cfg.CriticalThreshold)
	assert.Equal(t, DefaultObserverQueueCap, cfg.ObserverQueueCap)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, DefaultRecentAlerts, cfg.RecentAlerts)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "VELOCITY_THRESHOLD", "25")
	setEnv(t, "AMOUNT_CEILING", "50000")
	setEnv(t, "HEARTBEAT_INTERVAL", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 25, cfg.VelocityThreshold)
	assert.Equal(t, 50000.0, cfg.AmountCeiling)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
}

func TestLoad_InvalidThresholdOrdering(t *testing.T) {
	setEnv(t, "CRITICAL_THRESHOLD", "0.5")
	setEnv(t, "HIGH_THRESHOLD", "0.7")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CRITICAL_THRESHOLD")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			VelocityThreshold: 10,
			AmountCeiling:     100000,
			ZScoreThreshold:   3.0,
			CriticalThreshold: 0.9,
			HighThreshold:     0.7,
			MediumThreshold:   0.4,
			ObserverQueueCap:  256,
			HeartbeatInterval: 30 * time.Second,
			RecentAlerts:      20,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"critical below high", func(c *Config) { c.CriticalThreshold = 0.6 }, "CRITICAL_THRESHOLD"},
		{"critical equals high", func(c *Config) { c.CriticalThreshold = 0.7 }, "CRITICAL_THRESHOLD"},
		{"high below medium", func(c *Config) { c.HighThreshold = 0.3 }, "HIGH_THRESHOLD"},
		{"critical above one", func(c *Config) { c.CriticalThreshold = 1.5 }, "thresholds"},
		{"zero medium", func(c *Config) { c.MediumThreshold = 0; c.HighThreshold = 0.1; c.CriticalThreshold = 0.2 }, "thresholds"},
		{"negative zscore", func(c *Config) { c.ZScoreThreshold = -1 }, "ZSCORE_THRESHOLD"},
		{"zero ceiling", func(c *Config) { c.AmountCeiling = 0 }, "AMOUNT_CEILING"},
		{"zero velocity", func(c *Config) { c.VelocityThreshold = 0 }, "VELOCITY_THRESHOLD"},
		{"zero queue cap", func(c *Config) { c.ObserverQueueCap = 0 }, "OBSERVER_QUEUE_CAP"},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }, "HEARTBEAT_INTERVAL"},
		{"zero ring", func(c *Config) { c.RecentAlerts = 0 }, "RECENT_ALERTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
