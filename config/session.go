package config

import "time"

// RefreshConfig tunes the token refresh watcher.
type RefreshConfig struct {
	// LongSleepThreshold: above this remaining lifetime the watcher only re-checks.
	LongSleepThreshold time.Duration `env:"LONG_SLEEP_THRESHOLD" envDefault:"45m"`

	// LongSleepStep is the re-check step used above LongSleepThreshold.
	LongSleepStep time.Duration `env:"LONG_SLEEP_STEP" envDefault:"30m"`

	// MinInterval is the minimum spacing between two refresh attempts.
	MinInterval time.Duration `env:"MIN_INTERVAL" envDefault:"10m"`

	// LifetimeFraction is the share of the remaining lifetime to wait before refreshing.
	LifetimeFraction float64 `env:"LIFETIME_FRACTION" envDefault:"0.8"`

	// MaxAhead caps how far out a refresh is scheduled.
	MaxAhead time.Duration `env:"MAX_AHEAD" envDefault:"30m"`

	// MaxJitter is the upper bound of the random amount subtracted from each wait.
	MaxJitter time.Duration `env:"MAX_JITTER" envDefault:"60s"`

	// FailureBackoff is the wait after a failed refresh.
	FailureBackoff time.Duration `env:"FAILURE_BACKOFF" envDefault:"5m"`

	// ErrorBackoff is the wait after an unexpected panic in the watcher loop.
	ErrorBackoff time.Duration `env:"ERROR_BACKOFF" envDefault:"10m"`

	// MaxFailures consecutive refresh failures end the session.
	MaxFailures int `env:"MAX_FAILURES" envDefault:"3"`
}

// Sanitize applies guardrails to refresh watcher configuration values.
func (r *RefreshConfig) Sanitize() {
	if r.LongSleepStep <= 0 {
		r.LongSleepStep = 30 * time.Minute
	}
	if r.LongSleepThreshold <= 0 {
		r.LongSleepThreshold = 45 * time.Minute
	}
	if r.MinInterval <= 0 {
		r.MinInterval = 10 * time.Minute
	}
	if r.LifetimeFraction <= 0 || r.LifetimeFraction >= 1 {
		r.LifetimeFraction = 0.8
	}
	if r.MaxAhead <= 0 {
		r.MaxAhead = 30 * time.Minute
	}
	if r.MaxJitter < 0 {
		r.MaxJitter = 0
	}
	if r.FailureBackoff <= 0 {
		r.FailureBackoff = 5 * time.Minute
	}
	if r.ErrorBackoff <= 0 {
		r.ErrorBackoff = 10 * time.Minute
	}
	if r.MaxFailures < 1 {
		r.MaxFailures = 3
	}
}

// LockoutConfig controls the local login lockout. It is a UX guard only; the backend
// enforces its own limits.
type LockoutConfig struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	Duration    time.Duration `env:"DURATION"     envDefault:"60s"`
}

// Sanitize applies guardrails to lockout configuration values.
func (l *LockoutConfig) Sanitize() {
	if l.MaxAttempts < 1 {
		l.MaxAttempts = 5
	}
	if l.Duration <= 0 {
		l.Duration = 60 * time.Second
	}
}

// TwoFactorConfig controls the client side of the second-factor login step.
type TwoFactorConfig struct {
	// ChallengeTTL is the client countdown after which a pending challenge is cancelled.
	ChallengeTTL time.Duration `env:"CHALLENGE_TTL" envDefault:"5m"`
}

// Sanitize applies guardrails to 2FA configuration values.
func (t *TwoFactorConfig) Sanitize() {
	if t.ChallengeTTL <= 0 {
		t.ChallengeTTL = 5 * time.Minute
	}
}

// SessionConfig groups throttles and delays of the session manager and recovery monitor.
type SessionConfig struct {
	// InitThrottle is the minimum spacing between two session restores.
	InitThrottle time.Duration `env:"INIT_THROTTLE" envDefault:"2s"`

	// RecoveryThrottle is the minimum spacing between two offline recovery attempts.
	RecoveryThrottle time.Duration `env:"RECOVERY_THROTTLE" envDefault:"60s"`

	// ActivityWindow: user activity refreshes a token expiring within this window.
	ActivityWindow time.Duration `env:"ACTIVITY_WINDOW" envDefault:"15m"`

	MagicLinkJitterMin time.Duration `env:"MAGIC_LINK_JITTER_MIN" envDefault:"100ms"`
	MagicLinkJitterMax time.Duration `env:"MAGIC_LINK_JITTER_MAX" envDefault:"200ms"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.InitThrottle < 0 {
		s.InitThrottle = 0
	}
	if s.RecoveryThrottle < 0 {
		s.RecoveryThrottle = 0
	}
	if s.ActivityWindow <= 0 {
		s.ActivityWindow = 15 * time.Minute
	}
	if s.MagicLinkJitterMin <= 0 && s.MagicLinkJitterMax <= 0 {
		s.MagicLinkJitterMin = 100 * time.Millisecond
		s.MagicLinkJitterMax = 200 * time.Millisecond
	}
	if s.MagicLinkJitterMin < 0 {
		s.MagicLinkJitterMin = 0
	}
	if s.MagicLinkJitterMax < s.MagicLinkJitterMin {
		s.MagicLinkJitterMax = s.MagicLinkJitterMin
	}
}
