// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. Values are read once at
// process start and are immutable afterward.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Transaction scoring
	VelocityThreshold int     // count_24h above this adds the high-frequency signal
	AmountCeiling     float64 // amounts above this add the large-amount signal
	ZScoreThreshold   float64 // sigma multiplier for the amount-deviation signal

	// Classifier tiers
	CriticalThreshold float64
	HighThreshold     float64
	MediumThreshold   float64

	// Alert feed
	ObserverQueueCap  int           // per-observer bounded queue capacity
	HeartbeatInterval time.Duration // liveness heartbeat to idle observers
	RecentAlerts      int           // size of the replay ring

	// HTTP surface
	RateLimitRPM int

	// Tracing
	OTLPEndpoint string // empty = tracing disabled
}

// Defaults.
const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultVelocityThreshold = 10
	DefaultAmountCeiling     = 100000
	DefaultZScoreThreshold   = 3.0
	DefaultCriticalThreshold = 0.9
	DefaultHighThreshold     = 0.7
	DefaultMediumThreshold   = 0.4
	DefaultObserverQueueCap  = 256
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultRecentAlerts      = 20
	DefaultRateLimitRPM      = 600
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		VelocityThreshold: getEnvInt("VELOCITY_THRESHOLD", DefaultVelocityThreshold),
		AmountCeiling:     getEnvFloat("AMOUNT_CEILING", DefaultAmountCeiling),
		ZScoreThreshold:   getEnvFloat("ZSCORE_THRESHOLD", DefaultZScoreThreshold),
		CriticalThreshold: getEnvFloat("CRITICAL_THRESHOLD", DefaultCriticalThreshold),
		HighThreshold:     getEnvFloat("HIGH_THRESHOLD", DefaultHighThreshold),
		MediumThreshold:   getEnvFloat("MEDIUM_THRESHOLD", DefaultMediumThreshold),
		ObserverQueueCap:  getEnvInt("OBSERVER_QUEUE_CAP", DefaultObserverQueueCap),
		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", DefaultHeartbeatInterval),
		RecentAlerts:      getEnvInt("RECENT_ALERTS", DefaultRecentAlerts),
		RateLimitRPM:      getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
// A failure here is fatal at startup; thresholds are never re-validated
// on the scoring path.
func (c *Config) Validate() error {
	if c.CriticalThreshold <= c.HighThreshold {
		return fmt.Errorf("CRITICAL_THRESHOLD (%.2f) must be greater than HIGH_THRESHOLD (%.2f)",
			c.CriticalThreshold, c.HighThreshold)
	}
	if c.HighThreshold <= c.MediumThreshold {
		return fmt.Errorf("HIGH_THRESHOLD (%.2f) must be greater than MEDIUM_THRESHOLD (%.2f)",
			c.HighThreshold, c.MediumThreshold)
	}
	if c.MediumThreshold <= 0 || c.CriticalThreshold > 1 {
		return fmt.Errorf("classifier thresholds must lie in (0, 1]")
	}
	if c.ZScoreThreshold <= 0 {
		return fmt.Errorf("ZSCORE_THRESHOLD must be positive, got %.2f", c.ZScoreThreshold)
	}
	if c.AmountCeiling <= 0 {
		return fmt.Errorf("AMOUNT_CEILING must be positive, got %.2f", c.AmountCeiling)
	}
	if c.VelocityThreshold < 1 {
		return fmt.Errorf("VELOCITY_THRESHOLD must be at least 1, got %d", c.VelocityThreshold)
	}
	if c.ObserverQueueCap < 1 {
		return fmt.Errorf("OBSERVER_QUEUE_CAP must be at least 1, got %d", c.ObserverQueueCap)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}
	if c.RecentAlerts < 1 {
		return fmt.Errorf("RECENT_ALERTS must be at least 1, got %d", c.RecentAlerts)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
