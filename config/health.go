package config

import (
	"strings"
	"time"
)

// HealthConfig tunes the process-wide health coordinator.
type HealthConfig struct {
	// MinInterval is the minimum spacing between regular probes.
	MinInterval time.Duration `env:"MIN_INTERVAL" envDefault:"10s"`

	// ForceThrottle is the window armed by every forced probe.
	ForceThrottle time.Duration `env:"FORCE_THROTTLE" envDefault:"10s"`

	// MaxConsecutiveFailures is the hard-failure threshold.
	MaxConsecutiveFailures int `env:"MAX_CONSECUTIVE_FAILURES" envDefault:"3"`

	// PeriodicInterval is the base interval of the background checker.
	PeriodicInterval time.Duration `env:"PERIODIC_INTERVAL" envDefault:"30s"`

	// MaxBackoff caps the adaptive interval.
	MaxBackoff time.Duration `env:"MAX_BACKOFF" envDefault:"5m"`

	// BackoffFactor grows the interval per consecutive failure.
	BackoffFactor float64 `env:"BACKOFF_FACTOR" envDefault:"1.5"`

	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration `env:"PROBE_TIMEOUT" envDefault:"5s"`

	// RateLimitDefault applies when a 429 carries no Retry-After.
	RateLimitDefault time.Duration `env:"RATE_LIMIT_DEFAULT" envDefault:"60s"`
}

// Sanitize applies guardrails to health configuration values.
func (h *HealthConfig) Sanitize() {
	if h.MinInterval < time.Second {
		h.MinInterval = time.Second
	}
	if h.ForceThrottle < 0 {
		h.ForceThrottle = 0
	}
	if h.MaxConsecutiveFailures < 1 {
		h.MaxConsecutiveFailures = 1
	}
	if h.PeriodicInterval < h.MinInterval {
		h.PeriodicInterval = h.MinInterval
	}
	if h.MaxBackoff < h.PeriodicInterval {
		h.MaxBackoff = h.PeriodicInterval
	}
	if h.BackoffFactor < 1 {
		h.BackoffFactor = 1
	}
	if h.ProbeTimeout <= 0 {
		h.ProbeTimeout = 5 * time.Second
	}
	if h.RateLimitDefault <= 0 {
		h.RateLimitDefault = 60 * time.Second
	}
}

// Retry strategies accepted by ObserverConfig.RetryStrategy.
const (
	RetryStrategyExponential = "exponential"
	RetryStrategyLinear      = "linear"
	RetryStrategyNone        = "none"
)

// ObserverConfig configures the observer used by the CLI watch command.
type ObserverConfig struct {
	// CheckInterval is the observer's own polling interval; 0 disables polling.
	CheckInterval time.Duration `env:"CHECK_INTERVAL" envDefault:"60s"`

	// RetryStrategy is exponential, linear or none.
	RetryStrategy string `env:"RETRY_STRATEGY" envDefault:"exponential"`

	// MaxRetries is the failure count after which only heartbeat ticks probe.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"5"`

	// ReconnectDelay is the settle time before checking after the link returns.
	ReconnectDelay time.Duration `env:"RECONNECT_DELAY" envDefault:"1s"`

	NotifyOnReconnect bool `env:"NOTIFY_ON_RECONNECT" envDefault:"true"`
	CheckOnMount      bool `env:"CHECK_ON_MOUNT"      envDefault:"true"`
}

// Sanitize applies guardrails to observer configuration values.
func (o *ObserverConfig) Sanitize() {
	if o.CheckInterval < 0 {
		o.CheckInterval = 0
	}
	switch s := strings.ToLower(strings.TrimSpace(o.RetryStrategy)); s {
	case RetryStrategyExponential, RetryStrategyLinear, RetryStrategyNone:
		o.RetryStrategy = s
	default:
		o.RetryStrategy = RetryStrategyExponential
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = 5
	}
	if o.ReconnectDelay < 0 {
		o.ReconnectDelay = time.Second
	}
}

// ConnectivityConfig drives the platform link monitor used by the watch command.
type ConnectivityConfig struct {
	// ProbeAddr is a host:port dialed to decide online/offline. Empty derives it from the API
	// base URL.
	ProbeAddr   string        `env:"PROBE_ADDR"`
	Interval    time.Duration `env:"INTERVAL"     envDefault:"15s"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"3s"`
}

// Sanitize applies guardrails to connectivity configuration values.
func (c *ConnectivityConfig) Sanitize() {
	c.ProbeAddr = strings.TrimSpace(c.ProbeAddr)
	if c.Interval < time.Second {
		c.Interval = 15 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 3 * time.Second
	}
}
