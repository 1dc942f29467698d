package config

import (
	"fmt"
	"time"
)

// ReconcilerConfig holds the tick periods of the three reconciliation loops.
// Zero values fall back to the defaults below.
type ReconcilerConfig struct {
	IndexInterval    time.Duration `env:"RAGCTL_RECONCILE_INDEX_INTERVAL"`
	SummaryInterval  time.Duration `env:"RAGCTL_RECONCILE_SUMMARY_INTERVAL"`
	GCInterval       time.Duration `env:"RAGCTL_RECONCILE_GC_INTERVAL"`
	MaxStartupJitter time.Duration `env:"RAGCTL_RECONCILE_MAX_STARTUP_JITTER"`
	RateLimitDelay   time.Duration `env:"RAGCTL_RECONCILE_RATE_LIMIT_DELAY"`
}

const (
	DefaultIndexInterval    = 30 * time.Second
	DefaultSummaryInterval  = 60 * time.Second
	DefaultGCInterval       = 5 * time.Minute
	DefaultMaxStartupJitter = 10 * time.Second
	DefaultRateLimitDelay   = 50 * time.Millisecond
)

// Validate rejects negative intervals; zero means "use default".
func (c *ReconcilerConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"RAGCTL_RECONCILE_INDEX_INTERVAL":     c.IndexInterval,
		"RAGCTL_RECONCILE_SUMMARY_INTERVAL":   c.SummaryInterval,
		"RAGCTL_RECONCILE_GC_INTERVAL":        c.GCInterval,
		"RAGCTL_RECONCILE_MAX_STARTUP_JITTER": c.MaxStartupJitter,
		"RAGCTL_RECONCILE_RATE_LIMIT_DELAY":   c.RateLimitDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// IndexIntervalOrDefault returns the index loop interval with defaults applied.
func (c *ReconcilerConfig) IndexIntervalOrDefault() time.Duration {
	return orDefault(c.IndexInterval, DefaultIndexInterval)
}

// SummaryIntervalOrDefault returns the summary loop interval with defaults applied.
func (c *ReconcilerConfig) SummaryIntervalOrDefault() time.Duration {
	return orDefault(c.SummaryInterval, DefaultSummaryInterval)
}

// GCIntervalOrDefault returns the GC sweep interval with defaults applied.
func (c *ReconcilerConfig) GCIntervalOrDefault() time.Duration {
	return orDefault(c.GCInterval, DefaultGCInterval)
}

// MaxStartupJitterOrDefault returns the startup jitter cap with defaults applied.
func (c *ReconcilerConfig) MaxStartupJitterOrDefault() time.Duration {
	return orDefault(c.MaxStartupJitter, DefaultMaxStartupJitter)
}

// RateLimitDelayOrDefault returns the per-document delay with defaults applied.
func (c *ReconcilerConfig) RateLimitDelayOrDefault() time.Duration {
	return orDefault(c.RateLimitDelay, DefaultRateLimitDelay)
}
