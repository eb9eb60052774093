package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	r := &cfg.Recovery
	if r.MinRetrySeconds == 0 {
		r.MinRetrySeconds = 2
	}
	if r.MaxRetrySeconds == 0 {
		r.MaxRetrySeconds = 60
	}
	if r.RetryMultiplier == 0 {
		r.RetryMultiplier = 2.0
	}
	if r.RecoveryDelaySeconds == 0 {
		r.RecoveryDelaySeconds = 120
	}
	if r.AttemptTimeoutSeconds == 0 {
		r.AttemptTimeoutSeconds = 30
	}
	if len(r.SkipPaths) == 0 {
		r.SkipPaths = []string{"/health", "/metrics"}
	}
	if r.CleanupMaxAgeHours == 0 {
		r.CleanupMaxAgeHours = 24
	}
}
