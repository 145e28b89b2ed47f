package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/casebill/internal/config"
)

// Config controls when jobs fire and how much work each run takes.
type Config struct {
	Enabled     bool
	Spec        string
	JobTimeout  time.Duration
	BatchSize   int
	RunLockTTL  time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Spec:       "@daily",
		JobTimeout: 10 * time.Minute,
		BatchSize:  100,
		RunLockTTL: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.Spec) == "" {
		c.Spec = defaults.Spec
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.RunLockTTL <= 0 {
		c.RunLockTTL = c.JobTimeout + time.Minute
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:    cfg.Scheduler.Enabled,
		Spec:       cfg.Scheduler.Spec,
		JobTimeout: cfg.Scheduler.JobTimeout,
		BatchSize:  cfg.Scheduler.BatchSize,
	}.withDefaults()
}
