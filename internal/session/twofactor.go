package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
	apperrors "github.com/nguyenhoangdanh/dnsecure-sub000/internal/errors"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/metrics"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/statsd"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
)

// TwoFactorOptions configures a TwoFactor.
type TwoFactorOptions struct {
	API     ports.TwoFactorAPI // required
	Metrics statsd.Sink
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// TwoFactor manages enrollment of the account's second factor and performs the login-time
// verification step. Enrollment never changes the session.
type TwoFactor struct {
	api     ports.TwoFactorAPI
	metrics statsd.Sink
	clock   clockwork.Clock
	logger  *slog.Logger

	mu    sync.Mutex
	state domainauth.TwoFactorState
}

// NewTwoFactor constructs a TwoFactor.
func NewTwoFactor(opts TwoFactorOptions) (*TwoFactor, error) {
	if opts.API == nil {
		return nil, errors.New("TwoFactorAPI is required")
	}
	tf := &TwoFactor{
		api:     opts.API,
		metrics: opts.Metrics,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
	if tf.clock == nil {
		tf.clock = clockwork.NewRealClock()
	}
	if tf.logger == nil {
		tf.logger = slog.Default()
	}
	return tf, nil
}

// State returns a copy of the client view.
func (t *TwoFactor) State() domainauth.TwoFactorState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state
	if st.Setup != nil {
		setup := *st.Setup
		st.Setup = &setup
	}
	st.BackupCodes = slices.Clone(st.BackupCodes)
	return st
}

// Enable starts enrollment and returns the secret and QR code URL.
func (t *TwoFactor) Enable(ctx context.Context) (domainauth.TwoFactorSetup, error) {
	start := t.clock.Now()
	setup, err := t.api.Enable(ctx)
	t.emit("2fa_enable", start, err)
	if err != nil {
		return domainauth.TwoFactorSetup{}, err
	}
	t.mu.Lock()
	t.state.Setup = &setup
	t.mu.Unlock()
	return setup, nil
}

// Verify confirms enrollment with a code from the authenticator and then fetches the backup
// codes. A failed backup-code fetch is logged; enrollment has already succeeded.
func (t *TwoFactor) Verify(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return apperrors.ValidationField("code", "Verification code is required.")
	}
	start := t.clock.Now()
	err := t.api.Verify(ctx, code)
	t.emit("2fa_verify", start, err)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.state.Enabled = true
	t.state.Setup = nil
	t.mu.Unlock()

	if _, err := t.BackupCodes(ctx); err != nil {
		t.logger.Warn("fetch backup codes after 2fa verification failed", "error", err)
	}
	return nil
}

// Disable turns the second factor off. The password re-authenticates the user.
func (t *TwoFactor) Disable(ctx context.Context, password string) error {
	if password == "" {
		return apperrors.ValidationField("password", "Password is required.")
	}
	start := t.clock.Now()
	err := t.api.Disable(ctx, password)
	t.emit("2fa_disable", start, err)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.state = domainauth.TwoFactorState{}
	t.mu.Unlock()
	return nil
}

// BackupCodes fetches the current codes, replacing the local list.
func (t *TwoFactor) BackupCodes(ctx context.Context) ([]string, error) {
	return t.replaceCodes(ctx, "2fa_backup_codes", t.api.BackupCodes)
}

// RegenerateBackupCodes issues new codes, replacing the local list.
func (t *TwoFactor) RegenerateBackupCodes(ctx context.Context) ([]string, error) {
	return t.replaceCodes(ctx, "2fa_regenerate_backup_codes", t.api.RegenerateBackupCodes)
}

func (t *TwoFactor) replaceCodes(
	ctx context.Context,
	op string,
	fetch func(context.Context) ([]string, error),
) ([]string, error) {
	start := t.clock.Now()
	codes, err := fetch(ctx)
	t.emit(op, start, err)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.state.BackupCodes = slices.Clone(codes)
	t.mu.Unlock()
	return slices.Clone(codes), nil
}

// Status asks the backend whether 2FA is enabled.
func (t *TwoFactor) Status(ctx context.Context) (bool, error) {
	start := t.clock.Now()
	enabled, err := t.api.Status(ctx)
	t.emit("2fa_status", start, err)
	if err != nil {
		return false, err
	}
	t.mu.Lock()
	t.state.Enabled = enabled
	t.mu.Unlock()
	return enabled, nil
}

// VerifyLogin completes a login that requires a second factor. sessionID must be the id of
// the pending challenge; a missing challenge, an empty id or a mismatch fail before any
// request is sent.
func (t *TwoFactor) VerifyLogin(
	ctx context.Context,
	code, sessionID string,
	pending *domainauth.TwoFactorChallenge,
	info domainauth.SecurityInfo,
) (domainauth.AuthResult, error) {
	switch {
	case pending == nil || pending.SessionID == "":
		return domainauth.AuthResult{}, apperrors.Precondition("No two-factor verification is pending.")
	case sessionID == "":
		return domainauth.AuthResult{}, apperrors.Precondition("Two-factor session id is missing.")
	case sessionID != pending.SessionID:
		return domainauth.AuthResult{}, apperrors.Precondition("Two-factor session id does not match the pending login.")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domainauth.AuthResult{}, apperrors.ValidationField("code", "Verification code is required.")
	}

	start := t.clock.Now()
	res, err := t.api.VerifyLogin(ctx, code, sessionID, info)
	t.emit("2fa_verify_login", start, err)
	if err != nil {
		return domainauth.AuthResult{}, err
	}
	if res.AccessToken == "" {
		return domainauth.AuthResult{}, apperrors.Authentication("Two-factor verification did not return a session.")
	}
	return res, nil
}

func (t *TwoFactor) emit(op string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitAuthOperation(t.metrics, metrics.AuthMetric{
		Operation: op,
		Result:    result,
		Duration:  t.clock.Since(start),
		Err:       err,
	})
}
