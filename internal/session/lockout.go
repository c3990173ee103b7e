package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
	apperrors "github.com/nguyenhoangdanh/dnsecure-sub000/internal/errors"
)

// Lockout is the local failed-login guard. It only shapes the client experience; the
// backend's own rate limiting is what protects accounts.
type Lockout struct {
	store       *Storage
	maxAttempts int
	duration    time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
}

// LockoutOptions configures a Lockout.
type LockoutOptions struct {
	Store  *Storage // required
	Config config.LockoutConfig
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// NewLockout constructs a Lockout.
func NewLockout(opts LockoutOptions) (*Lockout, error) {
	if opts.Store == nil {
		return nil, errors.New("Storage is required")
	}
	cfg := opts.Config
	cfg.Sanitize()
	l := &Lockout{
		store:       opts.Store,
		maxAttempts: cfg.MaxAttempts,
		duration:    cfg.Duration,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l, nil
}

// Check returns a locked error while the lockout is active. Once it has expired the counter
// is reset to zero.
func (l *Lockout) Check(ctx context.Context) error {
	remaining, err := l.Remaining(ctx)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return apperrors.Locked(remaining)
	}
	return nil
}

// Remaining returns the time left on the lockout for countdown display, zero when none.
func (l *Lockout) Remaining(ctx context.Context) (time.Duration, error) {
	until, err := l.store.LockedUntil(ctx)
	if err != nil {
		return 0, err
	}
	if until.IsZero() {
		return 0, nil
	}
	if d := until.Sub(l.clock.Now()); d > 0 {
		return d, nil
	}
	l.logger.Debug("login lockout expired")
	return 0, l.Reset(ctx)
}

// Attempts returns the current failed-attempt count.
func (l *Lockout) Attempts(ctx context.Context) (int, error) {
	return l.store.LoginAttempts(ctx)
}

// RecordFailure counts one failed credential attempt and starts the lockout when the
// threshold is reached. It reports the lockout duration when one was started.
func (l *Lockout) RecordFailure(ctx context.Context) (time.Duration, error) {
	n, err := l.store.LoginAttempts(ctx)
	if err != nil {
		return 0, err
	}
	n++
	if err := l.store.SetLoginAttempts(ctx, n); err != nil {
		return 0, err
	}
	if n < l.maxAttempts {
		return 0, nil
	}
	if err := l.store.SetLockedUntil(ctx, l.clock.Now().Add(l.duration)); err != nil {
		return 0, err
	}
	l.logger.Warn("login locked locally", "attempts", n, "duration", l.duration)
	return l.duration, nil
}

// Reset clears the counter and any lockout.
func (l *Lockout) Reset(ctx context.Context) error {
	return errors.Join(
		l.store.SetLoginAttempts(ctx, 0),
		l.store.SetLockedUntil(ctx, time.Time{}),
	)
}
