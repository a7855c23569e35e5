package scheduler

import (
	"time"
)

// Config controls the sweep interval and per-organization timeout.
type Config struct {
	RunInterval time.Duration
	SyncTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		SyncTimeout: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = defaults.SyncTimeout
	}
	return c
}
