package config

import (
	"fmt"

	"github.com/rezkam/ragctl/internal/env"
)

// ControllerConfig holds all configuration for the controller binary.
type ControllerConfig struct {
	Database      DatabaseConfig
	Reconciler    ReconcilerConfig
	Scheduler     SchedulerConfig
	Index         IndexConfig
	Observability ObservabilityConfig
}

// LoadControllerConfig loads and validates controller configuration from
// environment variables.
func LoadControllerConfig() (*ControllerConfig, error) {
	cfg := &ControllerConfig{}
	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load controller config: %w", err)
	}
	return cfg, nil
}
