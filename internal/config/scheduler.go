package config

import "fmt"

// Scheduler backend identifiers.
const (
	SchedulerBackendRedis = "redis"
	SchedulerBackendLocal = "local"
)

// SchedulerConfig selects and configures the task scheduler backend.
type SchedulerConfig struct {
	// Backend is the scheduler backend identifier: "redis" or "local".
	Backend string `env:"RAGCTL_SCHEDULER_BACKEND"`

	// Redis backend settings.
	RedisAddr        string `env:"RAGCTL_SCHEDULER_REDIS_ADDR"`
	RedisPassword    string `env:"RAGCTL_SCHEDULER_REDIS_PASSWORD"`
	RedisDB          int    `env:"RAGCTL_SCHEDULER_REDIS_DB"`
	RedisQueuePrefix string `env:"RAGCTL_SCHEDULER_REDIS_QUEUE_PREFIX"`

	// Local backend settings.
	LocalConcurrency int `env:"RAGCTL_SCHEDULER_LOCAL_CONCURRENCY"`
}

// Validate validates the scheduler configuration.
func (c *SchedulerConfig) Validate() error {
	switch c.Backend {
	case "", SchedulerBackendRedis, SchedulerBackendLocal:
	default:
		return fmt.Errorf("unknown scheduler backend %q", c.Backend)
	}
	if c.LocalConcurrency < 0 {
		return fmt.Errorf("RAGCTL_SCHEDULER_LOCAL_CONCURRENCY must not be negative")
	}
	return nil
}

// BackendOrDefault returns the backend identifier, defaulting to redis.
func (c *SchedulerConfig) BackendOrDefault() string {
	if c.Backend == "" {
		return SchedulerBackendRedis
	}
	return c.Backend
}
