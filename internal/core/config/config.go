package config

import (
	"time"

	redisclient "github.com/openwallet-foundation/agent-recovery/internal/infra/redis"
	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage/postgres"
	"github.com/openwallet-foundation/agent-recovery/internal/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Recovery RecoveryConfig     `yaml:"recovery"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RecoveryConfig holds the retry/recovery tunables, all durations in
// whole seconds. Read once at process start.
type RecoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	MinRetrySeconds      int     `yaml:"min_retry_seconds"`
	MaxRetrySeconds      int     `yaml:"max_retry_seconds"`
	RetryMultiplier      float64 `yaml:"retry_multiplier"`
	RecoveryDelaySeconds int     `yaml:"recovery_delay_seconds"`

	// AttemptTimeoutSeconds bounds one request-triggered recovery pass.
	AttemptTimeoutSeconds int `yaml:"attempt_timeout_seconds"`

	// SkipPaths lists request path prefixes that never trigger recovery.
	SkipPaths []string `yaml:"skip_paths"`

	// DisabledTenants turns the recovery feature flag off per tenant.
	DisabledTenants []string `yaml:"disabled_tenants"`

	CleanupMaxAgeHours int `yaml:"cleanup_max_age_hours"`
}

// Policy converts the configured tunables to a retry policy.
func (c RecoveryConfig) Policy() retry.Policy {
	return retry.Policy{
		MinRetryDuration: time.Duration(c.MinRetrySeconds) * time.Second,
		MaxRetryDuration: time.Duration(c.MaxRetrySeconds) * time.Second,
		Multiplier:       c.RetryMultiplier,
		RecoveryDelay:    time.Duration(c.RecoveryDelaySeconds) * time.Second,
	}
}

// AttemptTimeout returns the recovery pass timeout.
func (c RecoveryConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutSeconds) * time.Second
}
