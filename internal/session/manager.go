// Package session owns the client-side authentication lifecycle: the session state machine,
// the token refresh watcher, the local login lockout and the second-factor sub-state.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
	apperrors "github.com/nguyenhoangdanh/dnsecure-sub000/internal/errors"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/health"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/metrics"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/statsd"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
)

// DefaultTokenLifetime is assumed when the backend omits the token expiry.
const DefaultTokenLifetime = time.Hour

// Logout reasons.
const (
	ReasonUser           = "user"
	ReasonSessionExpired = "session_expired"
	ReasonTokenExpired   = "token_expired"
	ReasonRefreshFailed  = "refresh_failed"
	ReasonAuthError      = "auth_error"
	ReasonReplaced       = "replaced"
)

const refreshKey = "refresh"

// Options configures a Manager.
type Options struct {
	API ports.AuthAPI       // required
	KV  ports.KeyValueStore // required
	// TwoFactor completes logins that require a second factor. Optional.
	TwoFactor *TwoFactor
	// Coordinator gates watcher refreshes on backend reachability. Optional.
	Coordinator *health.Coordinator

	Refresh         config.RefreshConfig
	Lockout         config.LockoutConfig
	TwoFactorConfig config.TwoFactorConfig
	Session         config.SessionConfig

	// SecurityInfo fills fields the caller leaves empty on logins and password resets.
	SecurityInfo domainauth.SecurityInfo
	// OnLoggedOut runs after every non-silent logout, e.g. to route to a login screen.
	OnLoggedOut func(reason string)
	// Jitter returns a random duration in [0, n). Defaults to math/rand/v2.
	Jitter func(n time.Duration) time.Duration

	Metrics statsd.Sink
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// LogoutOptions controls Logout.
type LogoutOptions struct {
	Reason     string
	AllDevices bool
	// Silent skips the remote call and OnLoggedOut. Used by internal cleanup paths.
	Silent bool
}

// Manager is the session state machine. It is the only writer of the session; callers read
// copies through Session and Subscribe. The mutex is never held across network calls,
// storage calls or listener invocations.
type Manager struct {
	api         ports.AuthAPI
	twoFactor   *TwoFactor
	store       *Storage
	lockout     *Lockout
	coord       *health.Coordinator
	refreshCfg  config.RefreshConfig
	sessionCfg  config.SessionConfig
	challengeTT time.Duration
	info        domainauth.SecurityInfo
	onLoggedOut func(reason string)
	jitter      func(n time.Duration) time.Duration

	metrics statsd.Sink
	clock   clockwork.Clock
	logger  *slog.Logger

	refreshGroup singleflight.Group
	wg           sync.WaitGroup

	// persistMu orders stored-token writes. Taken before mu, never while holding it.
	persistMu sync.Mutex

	mu             sync.Mutex
	session        domainauth.Session
	generation     uint64
	restoreToken   string
	restoreExpiry  time.Time
	pendingEmail   string
	challenge      *domainauth.TwoFactorChallenge
	challengeTimer clockwork.Timer
	lastRefresh    time.Time
	watcherCancel  context.CancelFunc
	listeners      map[uint64]func(domainauth.Session)
	nextID         uint64
	closed         bool
}

// NewManager constructs a Manager in the loading state. Call Init to restore a session.
func NewManager(opts Options) (*Manager, error) {
	if opts.API == nil {
		return nil, errors.New("AuthAPI is required")
	}
	store, err := NewStorage(opts.KV)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session_manager")
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	lockout, err := NewLockout(LockoutOptions{Store: store, Config: opts.Lockout, Clock: clock, Logger: logger})
	if err != nil {
		return nil, err
	}

	refreshCfg := opts.Refresh
	refreshCfg.Sanitize()
	sessionCfg := opts.Session
	sessionCfg.Sanitize()
	tfCfg := opts.TwoFactorConfig
	tfCfg.Sanitize()

	m := &Manager{
		api:         opts.API,
		twoFactor:   opts.TwoFactor,
		store:       store,
		lockout:     lockout,
		coord:       opts.Coordinator,
		refreshCfg:  refreshCfg,
		sessionCfg:  sessionCfg,
		challengeTT: tfCfg.ChallengeTTL,
		info:        opts.SecurityInfo,
		onLoggedOut: opts.OnLoggedOut,
		jitter:      opts.Jitter,
		metrics:     opts.Metrics,
		clock:       clock,
		logger:      logger,
		session:     domainauth.Session{Status: domainauth.StatusLoading},
		listeners:   make(map[uint64]func(domainauth.Session)),
	}
	if m.jitter == nil {
		m.jitter = func(n time.Duration) time.Duration { return rand.N(n) }
	}
	return m, nil
}

// MustNewManager is like NewManager but panics on error.
func MustNewManager(opts Options) *Manager {
	m, err := NewManager(opts)
	if err != nil {
		panic(err)
	}
	return m
}

// Session returns a copy of the current session.
func (m *Manager) Session() domainauth.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// Storage exposes the persisted client state.
func (m *Manager) Storage() *Storage { return m.store }

// Lockout exposes the local login lockout for countdown display.
func (m *Manager) Lockout() *Lockout { return m.lockout }

// TwoFactor returns the second-factor service, nil when none was configured.
func (m *Manager) TwoFactor() *TwoFactor { return m.twoFactor }

// TokenSource adapts the session token for HTTP transports.
func (m *Manager) TokenSource() oauth2.TokenSource { return tokenSource{m: m} }

// bearer returns the token to present to the backend: the session token, or the stored token
// while a session is being restored.
func (m *Manager) bearer() (string, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.AccessToken != "" {
		return m.session.AccessToken, m.session.ExpiresAt
	}
	return m.restoreToken, m.restoreExpiry
}

// Subscribe registers fn for session changes and immediately invokes it with the current
// session. The returned func unsubscribes and is safe to call more than once.
func (m *Manager) Subscribe(fn func(domainauth.Session)) func() {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	snapshot := m.session.Clone()
	m.mu.Unlock()

	m.invoke(fn, snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) invoke(fn func(domainauth.Session), s domainauth.Session) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("session listener panicked", "panic", r)
		}
	}()
	fn(s)
}

// update applies fn to the session under the lock. fn returns false to leave the session
// untouched. Listeners are notified outside the lock when anything visible changed.
func (m *Manager) update(fn func(s *domainauth.Session) bool) bool {
	m.mu.Lock()
	before := m.session
	if !fn(&m.session) {
		m.mu.Unlock()
		return false
	}
	after := m.session.Clone()
	changed := !sameSession(before, m.session)
	var listeners []func(domainauth.Session)
	if changed {
		listeners = make([]func(domainauth.Session), 0, len(m.listeners))
		for _, l := range m.listeners {
			listeners = append(listeners, l)
		}
	}
	m.mu.Unlock()

	if before.Status != after.Status {
		m.logger.Debug("session status changed", "from", before.Status, "to", after.Status)
		metrics.EmitStatusTransition(m.metrics, string(before.Status), string(after.Status))
	}
	for _, l := range listeners {
		m.invoke(l, after.Clone())
	}
	return true
}

// sameSession compares the visible fields. An identical error message is not re-applied,
// so repeated failures with the same text do not notify twice.
func sameSession(a, b domainauth.Session) bool {
	return a.Status == b.Status &&
		a.AccessToken == b.AccessToken &&
		a.ExpiresAt.Equal(b.ExpiresAt) &&
		a.Error == b.Error &&
		a.User == b.User
}

// setError records a user-facing message without changing the status.
func (m *Manager) setError(err error) {
	msg := apperrors.UserMessage(err)
	m.update(func(s *domainauth.Session) bool {
		if s.Error == msg {
			return false
		}
		s.Error = msg
		return true
	})
}

// fail moves to status with the user-facing message for err.
func (m *Manager) fail(status domainauth.Status, err error) {
	msg := apperrors.UserMessage(err)
	m.update(func(s *domainauth.Session) bool {
		s.Status = status
		s.Error = msg
		if !status.HoldsToken() {
			s.AccessToken = ""
			s.ExpiresAt = time.Time{}
		}
		return true
	})
}

// ClearError removes the user-facing error message.
func (m *Manager) ClearError() {
	m.update(func(s *domainauth.Session) bool {
		if s.Error == "" {
			return false
		}
		s.Error = ""
		return true
	})
}

func (m *Manager) setLoading() {
	m.update(func(s *domainauth.Session) bool {
		s.Status = domainauth.StatusLoading
		s.Error = ""
		return true
	})
}

func (m *Manager) emit(op string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitAuthOperation(m.metrics, metrics.AuthMetric{
		Operation: op,
		Result:    result,
		Duration:  m.clock.Since(start),
		Err:       err,
	})
}

func (m *Manager) securityInfo(in domainauth.SecurityInfo) domainauth.SecurityInfo {
	if in.DeviceFingerprint == "" {
		in.DeviceFingerprint = m.info.DeviceFingerprint
	}
	if in.UserAgent == "" {
		in.UserAgent = m.info.UserAgent
	}
	if in.Platform == "" {
		in.Platform = m.info.Platform
	}
	return in
}

// Init restores the session from storage. A missing or expired token yields
// unauthenticated. A stored token is validated with the backend: an authentication error
// clears it, any other failure keeps it and records the error. Repeated calls within the
// init throttle window are ignored once the manager has left the loading state.
func (m *Manager) Init(ctx context.Context) error {
	now := m.clock.Now()
	if m.Session().Status != domainauth.StatusLoading && m.sessionCfg.InitThrottle > 0 {
		last, err := m.store.LastAuthInitTime(ctx)
		if err == nil && !last.IsZero() && now.Sub(last) < m.sessionCfg.InitThrottle {
			m.logger.Debug("session init throttled", "since_last", now.Sub(last))
			return nil
		}
	}
	if err := m.store.SetLastAuthInitTime(ctx, now); err != nil {
		m.logger.Warn("persist last auth init time failed", "error", err)
	}

	token, expiresAt, ok, err := m.store.GetStoredToken(ctx)
	if err != nil {
		m.fail(domainauth.StatusUnauthenticated, err)
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "read stored session")
	}
	if !ok || expiresAt.IsZero() || !now.Before(expiresAt) {
		if ok {
			m.clearStored(ctx)
		}
		m.update(func(s *domainauth.Session) bool {
			*s = domainauth.Session{Status: domainauth.StatusUnauthenticated}
			return true
		})
		return nil
	}

	m.mu.Lock()
	m.restoreToken, m.restoreExpiry = token, expiresAt
	m.mu.Unlock()

	start := m.clock.Now()
	user, err := m.api.Me(ctx)
	m.emit("init", start, err)

	m.mu.Lock()
	m.restoreToken, m.restoreExpiry = "", time.Time{}
	m.mu.Unlock()

	switch {
	case err == nil:
		m.establish(ctx, domainauth.AuthResult{User: user, AccessToken: token, ExpiresAt: expiresAt}, false)
	case apperrors.IsAuthentication(err):
		m.logger.Info("stored session rejected by backend")
		m.clearStored(ctx)
		m.update(func(s *domainauth.Session) bool {
			*s = domainauth.Session{Status: domainauth.StatusUnauthenticated}
			return true
		})
	default:
		m.logger.Warn("validate stored session failed, keeping token", "error", err)
		m.establish(ctx, domainauth.AuthResult{AccessToken: token, ExpiresAt: expiresAt}, false)
		m.setError(err)
	}
	return nil
}

// establish enters the authenticated state for res and arms a fresh refresh watcher.
func (m *Manager) establish(ctx context.Context, res domainauth.AuthResult, persist bool) {
	expiresAt := res.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = m.clock.Now().Add(DefaultTokenLifetime)
	}
	if err := m.lockout.Reset(ctx); err != nil {
		m.logger.Warn("reset login attempts failed", "error", err)
	}

	var gen uint64
	m.update(func(s *domainauth.Session) bool {
		m.generation++
		gen = m.generation
		m.pendingEmail = ""
		m.lastRefresh = time.Time{}
		m.clearChallengeLocked()
		*s = domainauth.Session{
			User:        res.User.Clone(),
			AccessToken: res.AccessToken,
			ExpiresAt:   expiresAt,
			Status:      domainauth.StatusAuthenticated,
		}
		return true
	})
	if persist {
		written, err := m.persistFor(gen, func() error {
			return m.store.SetStoredToken(ctx, res.AccessToken, expiresAt)
		})
		if err != nil {
			m.logger.Warn("persist access token failed", "error", err)
		}
		if !written {
			m.logger.Debug("session replaced before token was stored", "generation", gen)
			return
		}
	}
	m.armWatcher(gen)
}

// Login authenticates with email and password. Credential failures are counted toward the
// local lockout; transport failures are not.
func (m *Manager) Login(ctx context.Context, in ports.LoginInput) error {
	start := m.clock.Now()
	err := m.login(ctx, in)
	m.emit("login", start, err)
	return err
}

func (m *Manager) login(ctx context.Context, in ports.LoginInput) error {
	if err := m.lockout.Check(ctx); err != nil {
		m.setError(err)
		return err
	}
	if err := validateCredentials(in.Email, in.Password); err != nil {
		m.setError(err)
		return err
	}

	// A new sign-in replaces the current session whatever its outcome.
	if m.Session().Status.HoldsToken() {
		m.clearLocal(ctx, ReasonReplaced, 0)
	}
	m.setLoading()
	in.SecurityInfo = m.securityInfo(in.SecurityInfo)
	res, err := m.api.Login(ctx, in)
	if err != nil {
		if apperrors.IsAuthentication(err) {
			locked, lerr := m.lockout.RecordFailure(ctx)
			if lerr != nil {
				m.logger.Warn("record failed login attempt failed", "error", lerr)
			}
			if locked > 0 {
				m.logger.Info("login attempts exhausted", "lockout", locked)
			}
		}
		m.fail(domainauth.StatusFailed, err)
		return err
	}

	if res.Requires2FA {
		if res.SessionID == "" {
			err := apperrors.Internal("Two-factor login started without a session id.")
			m.fail(domainauth.StatusFailed, err)
			return err
		}
		m.beginChallenge(res.SessionID)
		return nil
	}
	if res.AccessToken == "" {
		err := apperrors.Authentication("Login did not return a session.")
		m.fail(domainauth.StatusFailed, err)
		return err
	}
	m.establish(ctx, res, true)
	return nil
}

// Register creates an account. It never authenticates; the account must be verified with
// the emailed code.
func (m *Manager) Register(ctx context.Context, in ports.RegisterInput) error {
	start := m.clock.Now()
	err := m.register(ctx, in)
	m.emit("register", start, err)
	return err
}

func (m *Manager) register(ctx context.Context, in ports.RegisterInput) error {
	if err := validateCredentials(in.Email, in.Password); err != nil {
		m.setError(err)
		return err
	}
	m.setLoading()
	if err := m.api.Register(ctx, in); err != nil {
		m.fail(domainauth.StatusFailed, err)
		return err
	}
	m.update(func(s *domainauth.Session) bool {
		m.pendingEmail = in.Email
		*s = domainauth.Session{Status: domainauth.StatusRegistrationSuccess}
		return true
	})
	return nil
}

// VerifyAccount confirms the registered email with a 6-digit code. On success it behaves like
// a login; a failure leaves the account unverified so the code can be retried.
func (m *Manager) VerifyAccount(ctx context.Context, code string) error {
	start := m.clock.Now()
	err := m.verifyAccount(ctx, code)
	m.emit("verify_account", start, err)
	return err
}

func (m *Manager) verifyAccount(ctx context.Context, code string) error {
	if !isVerificationCode(code) {
		err := apperrors.ValidationField("code", "Verification code must be 6 digits.")
		m.setError(err)
		return err
	}
	m.mu.Lock()
	email := m.pendingEmail
	m.mu.Unlock()
	if email == "" {
		err := apperrors.Precondition("No registration is awaiting verification.")
		m.setError(err)
		return err
	}

	m.setLoading()
	res, err := m.api.VerifyAccount(ctx, email, code)
	if err != nil {
		m.fail(domainauth.StatusUnverified, err)
		return err
	}
	if res.AccessToken == "" {
		m.update(func(s *domainauth.Session) bool {
			m.pendingEmail = ""
			*s = domainauth.Session{Status: domainauth.StatusUnauthenticated}
			return true
		})
		return nil
	}
	m.establish(ctx, res, true)
	return nil
}

// AwaitVerification resumes a registration started elsewhere, e.g. by an earlier process, so
// VerifyAccount can confirm email. The current session is replaced.
func (m *Manager) AwaitVerification(email string) error {
	if err := validateEmail(email); err != nil {
		m.setError(err)
		return err
	}
	m.update(func(s *domainauth.Session) bool {
		m.stopWatcherLocked()
		m.generation++
		m.clearChallengeLocked()
		m.pendingEmail = strings.TrimSpace(email)
		*s = domainauth.Session{Status: domainauth.StatusRegistrationSuccess}
		return true
	})
	return nil
}

// Logout always clears local state. A failing remote call is logged and never blocks it.
func (m *Manager) Logout(ctx context.Context, opts LogoutOptions) {
	start := m.clock.Now()
	reason := opts.Reason
	if reason == "" {
		reason = ReasonUser
	}

	var remoteErr error
	if !opts.Silent {
		if remoteErr = m.api.Logout(ctx, opts.AllDevices); remoteErr != nil {
			m.logger.Warn("remote logout failed, clearing local session anyway", "error", remoteErr)
		}
	}
	m.clearLocal(ctx, reason, 0)
	m.emit("logout", start, remoteErr)

	if !opts.Silent && m.onLoggedOut != nil {
		m.onLoggedOut(reason)
	}
}

// clearLocal drops the session. When gen is non-zero it only applies if the session still
// belongs to that generation.
func (m *Manager) clearLocal(ctx context.Context, reason string, gen uint64) bool {
	var cleared uint64
	applied := m.update(func(s *domainauth.Session) bool {
		if gen != 0 && m.generation != gen {
			return false
		}
		m.generation++
		cleared = m.generation
		m.stopWatcherLocked()
		m.clearChallengeLocked()
		m.restoreToken, m.restoreExpiry = "", time.Time{}
		*s = domainauth.Session{Status: domainauth.StatusUnauthenticated}
		return true
	})
	if !applied {
		return false
	}
	m.logger.Info("session cleared", "reason", reason)
	if _, err := m.persistFor(cleared, func() error { return m.store.ClearStoredToken(ctx) }); err != nil {
		m.logger.Warn("clear stored token failed", "error", err)
	}
	return true
}

func (m *Manager) clearStored(ctx context.Context) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if err := m.store.ClearStoredToken(ctx); err != nil {
		m.logger.Warn("clear stored token failed", "error", err)
	}
}

// persistFor runs write under persistMu unless the session has moved past gen. A write for a
// superseded generation can therefore never land after the newer one's. written is false
// when the write was skipped.
func (m *Manager) persistFor(gen uint64, write func() error) (written bool, err error) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.mu.Lock()
	current := m.generation == gen
	m.mu.Unlock()
	if !current {
		return false, nil
	}
	return true, write()
}

// HandleAuthError logs out silently when err is an authentication failure, e.g. a 401 seen
// by some other request. It reports whether a logout happened.
func (m *Manager) HandleAuthError(ctx context.Context, err error) bool {
	if !apperrors.IsAuthentication(err) {
		return false
	}
	if m.Session().Status == domainauth.StatusUnauthenticated {
		return false
	}
	m.Logout(ctx, LogoutOptions{Reason: ReasonAuthError, Silent: true})
	return true
}

// SendMagicLink asks the backend to email a sign-in link.
func (m *Manager) SendMagicLink(ctx context.Context, email string) error {
	start := m.clock.Now()
	err := validateEmail(email)
	if err == nil {
		err = m.api.SendMagicLink(ctx, email)
	}
	if err != nil {
		m.setError(err)
	}
	m.emit("send_magic_link", start, err)
	return err
}

// VerifyMagicLink signs in with a magic-link token. A random delay precedes the request so
// response timing says less about the token.
func (m *Manager) VerifyMagicLink(ctx context.Context, token string) error {
	start := m.clock.Now()
	err := m.verifyMagicLink(ctx, token)
	m.emit("verify_magic_link", start, err)
	return err
}

func (m *Manager) verifyMagicLink(ctx context.Context, token string) error {
	if token == "" {
		err := apperrors.ValidationField("token", "Sign-in link is invalid.")
		m.setError(err)
		return err
	}
	lo, hi := m.sessionCfg.MagicLinkJitterMin, m.sessionCfg.MagicLinkJitterMax
	delay := lo
	if hi > lo {
		delay += m.jitter(hi - lo)
	}
	if !m.sleep(ctx, delay) {
		return ctx.Err()
	}

	m.setLoading()
	res, err := m.api.VerifyMagicLink(ctx, token)
	if err == nil && res.AccessToken == "" {
		err = apperrors.Authentication("Sign-in link did not return a session.")
	}
	if err != nil {
		m.fail(domainauth.StatusFailed, err)
		return err
	}
	m.establish(ctx, res, true)
	return nil
}

// ResetPassword completes a password reset. The backend validates the token and password.
func (m *Manager) ResetPassword(ctx context.Context, token, password, deviceFingerprint string) error {
	start := m.clock.Now()
	var err error
	switch {
	case token == "":
		err = apperrors.ValidationField("token", "Reset token is required.")
	case password == "":
		err = apperrors.ValidationField("password", "Password is required.")
	default:
		info := m.securityInfo(domainauth.SecurityInfo{DeviceFingerprint: deviceFingerprint})
		err = m.api.ResetPassword(ctx, ports.ResetPasswordInput{Token: token, Password: password, SecurityInfo: info})
	}
	if err != nil {
		m.setError(err)
	}
	m.emit("reset_password", start, err)
	return err
}

// UpdateUser changes profile fields. The session is updated only with the server's answer.
func (m *Manager) UpdateUser(ctx context.Context, in ports.UpdateUserInput) error {
	start := m.clock.Now()
	err := m.updateUser(ctx, in)
	m.emit("update_user", start, err)
	return err
}

func (m *Manager) updateUser(ctx context.Context, in ports.UpdateUserInput) error {
	m.mu.Lock()
	gen, status := m.generation, m.session.Status
	m.mu.Unlock()
	if !status.HoldsToken() {
		return apperrors.Precondition("Sign in to update your profile.")
	}

	user, err := m.api.UpdateUser(ctx, in)
	if err != nil {
		if !m.HandleAuthError(ctx, err) {
			m.setError(err)
		}
		return err
	}
	m.update(func(s *domainauth.Session) bool {
		if m.generation != gen || user == nil {
			return false
		}
		s.User = user.Clone()
		return true
	})
	return nil
}

// beginChallenge enters 2fa_needed with a client countdown. Only the short-lived challenge id
// is kept; nothing is persisted.
func (m *Manager) beginChallenge(sessionID string) {
	now := m.clock.Now()
	challenge := &domainauth.TwoFactorChallenge{
		SessionID:   sessionID,
		Requires2FA: true,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.challengeTT),
	}
	m.update(func(s *domainauth.Session) bool {
		m.clearChallengeLocked()
		m.challenge = challenge
		m.challengeTimer = m.clock.AfterFunc(m.challengeTT, func() { m.expireChallenge(sessionID) })
		*s = domainauth.Session{Status: domainauth.StatusTwoFactorNeeded}
		return true
	})
}

func (m *Manager) expireChallenge(sessionID string) {
	expired := m.update(func(s *domainauth.Session) bool {
		if m.challenge == nil || m.challenge.SessionID != sessionID {
			return false
		}
		m.challenge = nil
		m.challengeTimer = nil
		*s = domainauth.Session{
			Status: domainauth.StatusUnauthenticated,
			Error:  "Two-factor verification timed out. Please sign in again.",
		}
		return true
	})
	if expired {
		m.logger.Info("two-factor challenge expired")
	}
}

func (m *Manager) clearChallengeLocked() {
	if m.challengeTimer != nil {
		m.challengeTimer.Stop()
		m.challengeTimer = nil
	}
	m.challenge = nil
}

// ChallengeRemaining returns the client countdown of the pending 2FA challenge.
func (m *Manager) ChallengeRemaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.challenge == nil {
		return 0
	}
	return m.challenge.Remaining(m.clock.Now())
}

// PendingChallenge returns a copy of the pending 2FA challenge, if any.
func (m *Manager) PendingChallenge() (domainauth.TwoFactorChallenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.challenge == nil {
		return domainauth.TwoFactorChallenge{}, false
	}
	return *m.challenge, true
}

// CancelTwoFactor abandons the pending second-factor step.
func (m *Manager) CancelTwoFactor() {
	m.update(func(s *domainauth.Session) bool {
		if s.Status != domainauth.StatusTwoFactorNeeded {
			return false
		}
		m.clearChallengeLocked()
		*s = domainauth.Session{Status: domainauth.StatusUnauthenticated}
		return true
	})
}

// VerifyTwoFactorLogin completes a pending 2FA login with code. It fails before any request
// when no challenge is pending.
func (m *Manager) VerifyTwoFactorLogin(ctx context.Context, code string) error {
	start := m.clock.Now()
	err := m.verifyTwoFactorLogin(ctx, code)
	m.emit("verify_2fa_login", start, err)
	return err
}

func (m *Manager) verifyTwoFactorLogin(ctx context.Context, code string) error {
	if m.twoFactor == nil {
		return apperrors.Precondition("Two-factor verification is not configured.")
	}
	m.mu.Lock()
	var pending *domainauth.TwoFactorChallenge
	if m.challenge != nil {
		cp := *m.challenge
		pending = &cp
	}
	m.mu.Unlock()

	var sessionID string
	if pending != nil {
		sessionID = pending.SessionID
	}
	res, err := m.twoFactor.VerifyLogin(ctx, code, sessionID, pending, m.securityInfo(domainauth.SecurityInfo{}))
	if err != nil {
		m.setError(err)
		return err
	}

	m.mu.Lock()
	still := m.challenge != nil && m.challenge.SessionID == sessionID
	m.mu.Unlock()
	if !still {
		err := apperrors.Precondition("Two-factor verification expired. Please sign in again.")
		m.setError(err)
		return err
	}
	m.establish(ctx, res, true)
	return nil
}

// Refresh performs one token refresh. Concurrent calls share a single request. It never
// returns an error: failures become state transitions. A 401 ends the session; other
// failures keep an unexpired token. Results arriving after a logout or a new login are
// discarded.
func (m *Manager) Refresh(ctx context.Context) bool {
	refreshCtx := context.WithoutCancel(ctx)
	ch := m.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return m.refresh(refreshCtx), nil
	})
	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

// RefreshIfDue refreshes unless the last attempt is more recent than the minimum refresh
// interval.
func (m *Manager) RefreshIfDue(ctx context.Context) bool {
	m.mu.Lock()
	last := m.lastRefresh
	m.mu.Unlock()
	if !last.IsZero() && m.clock.Since(last) < m.refreshCfg.MinInterval {
		return false
	}
	return m.Refresh(ctx)
}

// LastRefresh returns when the last refresh attempt started.
func (m *Manager) LastRefresh() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRefresh
}

func (m *Manager) refresh(ctx context.Context) bool {
	start := m.clock.Now()

	var gen uint64
	began := m.update(func(s *domainauth.Session) bool {
		if !s.Status.HoldsToken() {
			return false
		}
		gen = m.generation
		m.lastRefresh = start
		s.Status = domainauth.StatusRefreshNeeded
		return true
	})
	if !began {
		return false
	}

	res, err := m.api.Refresh(ctx)
	if err == nil && res.AccessToken == "" {
		err = apperrors.Internal("Refresh did not return a token.")
	}
	m.emit("refresh", start, err)
	if err != nil {
		m.refreshFailed(ctx, gen, err)
		return false
	}

	expiresAt := res.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = m.clock.Now().Add(DefaultTokenLifetime)
	}
	applied := m.update(func(s *domainauth.Session) bool {
		if m.generation != gen {
			return false
		}
		s.Status = domainauth.StatusAuthenticated
		s.AccessToken = res.AccessToken
		s.ExpiresAt = expiresAt
		s.Error = ""
		if res.User != nil {
			s.User = res.User.Clone()
		}
		return true
	})
	if !applied {
		m.logger.Debug("discarding stale refresh result", "generation", gen)
		return false
	}

	written, err := m.persistFor(gen, func() error {
		return m.store.SetStoredToken(ctx, res.AccessToken, expiresAt)
	})
	if err != nil {
		m.logger.Warn("persist refreshed token failed", "error", err)
	}
	if !written {
		m.logger.Debug("session replaced before refreshed token was stored", "generation", gen)
		return false
	}
	m.logger.Debug("token refreshed", "expires_at", expiresAt)
	return true
}

func (m *Manager) refreshFailed(ctx context.Context, gen uint64, err error) {
	if apperrors.IsAuthentication(err) {
		m.logger.Info("refresh rejected, ending session")
		m.clearLocal(ctx, ReasonSessionExpired, gen)
		return
	}

	now := m.clock.Now()
	msg := apperrors.UserMessage(err)
	expired := false
	m.update(func(s *domainauth.Session) bool {
		if m.generation != gen {
			return false
		}
		if s.AccessToken != "" && now.Before(s.ExpiresAt) {
			s.Status = domainauth.StatusAuthenticated
			s.Error = msg
			return true
		}
		expired = true
		return false
	})
	m.logger.Warn("token refresh failed", "error", err, "token_expired", expired)
	if expired {
		m.clearLocal(ctx, ReasonTokenExpired, gen)
	}
}

// Close stops the watcher and the 2FA countdown and waits for background work.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopWatcherLocked()
	m.clearChallengeLocked()
	m.mu.Unlock()
	m.wg.Wait()
}
