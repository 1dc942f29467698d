package config

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	OTelEnabled bool `env:"RAGCTL_OTEL_ENABLED"`
}
