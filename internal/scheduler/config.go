package scheduler

import (
	"errors"
	"time"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

// Config controls the scheduler loop. Per-job cadence and batch limits
// come from the live tunables snapshot so they can change without a redeploy.
type Config struct {
	TickInterval time.Duration
	BatchSize    int
	EnabledJobs  []string
}

func DefaultConfig() Config {
	return Config{
		TickInterval: 15 * time.Second,
		BatchSize:    500,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}

func ProvideConfig() Config {
	return DefaultConfig()
}
