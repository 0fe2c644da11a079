package main

import (
	"time"

	"portalgrades/internal/browser"
	"portalgrades/internal/notify"
	"portalgrades/internal/ratelimit"
	"portalgrades/internal/resilience"
	"portalgrades/internal/runner"
	"portalgrades/lib/configutil"
	"portalgrades/lib/configutil/sqlconfig"
)

const (
	envPrefix     = "PORTALGRADES_"
	defaultJitter = time.Second
)

type OutputConfig struct {
	// Dir receives one results file per run.
	Dir string `json:"dir" env:"DIR"`
}

type RateLimitConfig struct {
	Capacity int                 `json:"capacity" env:"CAPACITY" validate:"gte=0"`
	Period   configutil.Duration `json:"period" env:"PERIOD"`
}

type RetryConfig struct {
	MaxAttempts int                 `json:"max_attempts" env:"MAX_ATTEMPTS" validate:"gte=0"`
	Base        configutil.Duration `json:"base" env:"BASE"`
	Multiplier  float64             `json:"multiplier" env:"MULTIPLIER" validate:"gte=0"`
	MinDelay    configutil.Duration `json:"min_delay" env:"MIN_DELAY"`
	MaxDelay    configutil.Duration `json:"max_delay" env:"MAX_DELAY"`
	StepTimeout configutil.Duration `json:"step_timeout" env:"STEP_TIMEOUT"`
}

type RunnerConfig struct {
	Concurrency          int                 `json:"concurrency" env:"CONCURRENCY" validate:"gte=0"`
	PerPortalConcurrency int                 `json:"per_portal_concurrency" env:"PER_PORTAL_CONCURRENCY" validate:"gte=0"`
	Jitter               configutil.Duration `json:"jitter" env:"JITTER"`
	// Label is the kind of grade kept from notification feeds.
	Label string `json:"label" env:"LABEL"`
}

type BrowserConfig struct {
	Timeout   configutil.Duration `json:"timeout" env:"TIMEOUT"`
	UserAgent string              `json:"user_agent" env:"USER_AGENT"`
	DumpDir   string              `json:"dump_dir" env:"DUMP_DIR"`
}

type Config struct {
	Database  sqlconfig.Struct `json:"database" envPrefix:"DATABASE_"`
	Output    OutputConfig     `json:"output" envPrefix:"OUTPUT_"`
	RateLimit RateLimitConfig  `json:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Retry     RetryConfig      `json:"retry" envPrefix:"RETRY_"`
	Runner    RunnerConfig     `json:"runner" envPrefix:"RUNNER_"`
	Browser   BrowserConfig    `json:"browser" envPrefix:"BROWSER_"`
	Smtp      notify.Config    `json:"smtp" envPrefix:"SMTP_"`
}

func loadConfig(name string) (Config, error) {
	return configutil.Load[Config](name, envPrefix)
}

func (c Config) OutputDir() string {
	if c.Output.Dir == "" {
		return "results"
	}
	return c.Output.Dir
}

func (c Config) Limiter() (*ratelimit.Limiter, error) {
	if c.RateLimit.Capacity == 0 && c.RateLimit.Period == 0 {
		return ratelimit.Default(), nil
	}
	capacity := c.RateLimit.Capacity
	if capacity == 0 {
		capacity = ratelimit.DefaultCapacity
	}
	return ratelimit.New(capacity, c.RateLimit.Period.Or(ratelimit.DefaultPeriod))
}

// Policy starts from resilience.DefaultPolicy and overrides what is set.
func (c Config) Policy() resilience.Policy {
	p := resilience.DefaultPolicy()
	r := c.Retry
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.Multiplier > 0 {
		p.Multiplier = r.Multiplier
	}
	p.Base = r.Base.Or(p.Base)
	p.MinDelay = r.MinDelay.Or(p.MinDelay)
	p.MaxDelay = r.MaxDelay.Or(p.MaxDelay)
	p.StepTimeout = r.StepTimeout.Or(p.StepTimeout)
	return p
}

func (c Config) RunnerOptions() runner.Options {
	return runner.Options{
		Concurrency:          c.Runner.Concurrency,
		PerPortalConcurrency: c.Runner.PerPortalConcurrency,
		Jitter:               c.Runner.Jitter.Or(defaultJitter),
		Policy:               c.Policy(),
	}
}

func (c Config) BrowserOptions() browser.Options {
	return browser.Options{
		Timeout:   c.Browser.Timeout.D(),
		UserAgent: c.Browser.UserAgent,
		DumpDir:   c.Browser.DumpDir,
	}
}
