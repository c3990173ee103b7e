// Package recovery keeps the session usable across sleep, activity gaps and outages: it
// refreshes on user activity, refreshes once after connectivity returns, drives backoff
// reconnection while the backend is unreachable and emits user-visible status notices.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/health"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/network"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/metrics"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/notify"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/statsd"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/session"
)

const (
	DefaultReconnectInitial = 2 * time.Second
	DefaultReconnectMax     = 5 * time.Minute
	reconnectMultiplier     = 2
	noticeQueueSize         = 8

	ActionActivityRefresh = "activity_refresh"
	ActionOfflineRecovery = "offline_recovery"
	ActionReconnect       = "reconnect"
)

// Options configures a Monitor.
type Options struct {
	Sessions    *session.Manager    // required
	Coordinator *health.Coordinator // required
	Config      config.SessionConfig
	// Notices receives status notices. Defaults to a log sink.
	Notices notify.Sink

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	Metrics statsd.Sink
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// Monitor reacts to coordinator transitions and user activity on behalf of the session.
type Monitor struct {
	sessions *session.Manager
	coord    *health.Coordinator
	cfg      config.SessionConfig
	notices  notify.Sink
	initial  time.Duration
	maxWait  time.Duration
	metrics  statsd.Sink
	clock    clockwork.Clock
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	queue chan notify.StatusNotice

	mu              sync.Mutex
	online          bool
	level           notify.Level
	reconnectCancel context.CancelFunc
	closed          bool
	unsubscribe     func()
}

// NewMonitor subscribes to the coordinator. A backend already known to be unreachable starts
// reconnection right away.
func NewMonitor(opts Options) (*Monitor, error) {
	if opts.Sessions == nil {
		return nil, errors.New("session Manager is required")
	}
	if opts.Coordinator == nil {
		return nil, errors.New("Coordinator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "recovery_monitor")
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg := opts.Config
	cfg.Sanitize()
	notices := opts.Notices
	if notices == nil {
		notices = notify.LogSink{Logger: logger}
	}

	m := &Monitor{
		sessions: opts.Sessions,
		coord:    opts.Coordinator,
		cfg:      cfg,
		notices:  notices,
		initial:  opts.ReconnectInitial,
		maxWait:  opts.ReconnectMax,
		metrics:  opts.Metrics,
		clock:    clock,
		logger:   logger,
		online:   opts.Coordinator.Status().IsOnline,
		level:    notify.LevelRestored,
		queue:    make(chan notify.StatusNotice, noticeQueueSize),
	}
	if m.initial <= 0 {
		m.initial = DefaultReconnectInitial
	}
	if m.maxWait < m.initial {
		m.maxWait = max(DefaultReconnectMax, m.initial)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.goRun(m.deliverLoop)

	unsubscribe := opts.Coordinator.Subscribe(m.onStatus)
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
	return m, nil
}

func (m *Monitor) goRun(fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(m.ctx)
	}()
}

// NotifyActivity reports user activity. When the token expires within the activity window
// the session is refreshed, subject to the manager's minimum refresh spacing.
func (m *Monitor) NotifyActivity(ctx context.Context) bool {
	s := m.sessions.Session()
	if !s.IsAuthenticated() {
		return false
	}
	if s.TimeUntilExpiry(m.clock.Now()) > m.cfg.ActivityWindow {
		return false
	}
	ok := m.sessions.RefreshIfDue(ctx)
	m.emit(ActionActivityRefresh, ok)
	return ok
}

// RetryNow is the user-initiated retry from the outage notice.
func (m *Monitor) RetryNow(ctx context.Context) bool {
	ok := m.coord.ForceCheck(ctx)
	m.emit(ActionReconnect, ok)
	return ok
}

func (m *Monitor) onStatus(online bool, kind network.Kind) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	if online {
		if wasOnline {
			return
		}
		m.stopReconnect()
		m.publish(notify.LevelRestored, kind)
		m.goRun(m.recoverSession)
		return
	}

	level := notify.LevelDegraded
	if m.coord.Status().ConsecutiveFailures >= m.coord.MaxConsecutiveFailures() {
		level = notify.LevelDown
	}
	m.publish(level, kind)
	m.startReconnect()
}

// publish queues a notice for level unless it was already the last level published.
func (m *Monitor) publish(level notify.Level, kind network.Kind) {
	m.mu.Lock()
	if m.level == level {
		m.mu.Unlock()
		return
	}
	m.level = level
	m.mu.Unlock()

	n := notify.StatusNotice{
		Level:               level,
		ErrorKind:           string(kind),
		ConsecutiveFailures: m.coord.Status().ConsecutiveFailures,
		OccurredAt:          m.clock.Now(),
	}
	switch level {
	case notify.LevelDegraded:
		n.Title = "Connection problems"
		n.Message = kindMessage(kind)
	case notify.LevelDown:
		n.Title = "Service unavailable"
		n.Message = kindMessage(kind)
		n.Retryable = true
	case notify.LevelRestored:
		n.Title = "Connection restored"
		n.Message = "The service is reachable again."
		n.ErrorKind = ""
	}
	select {
	case m.queue <- n:
	default:
		m.logger.Warn("status notice dropped", "level", level)
	}
}

// deliverLoop sends notices in order, off the coordinator's listener path.
func (m *Monitor) deliverLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-m.queue:
			if err := m.notices.SendStatusNotice(ctx, n); err != nil {
				m.logger.Warn("send status notice failed", "level", n.Level, "error", err)
			}
		}
	}
}

func kindMessage(kind network.Kind) string {
	if kind == "" {
		kind = network.KindUnknown
	}
	return kind.DefaultMessage()
}

// recoverSession refreshes once after connectivity returns, at most once per recovery
// throttle window across restarts.
func (m *Monitor) recoverSession(ctx context.Context) {
	if !m.sessions.Session().Status.HoldsToken() {
		return
	}
	store := m.sessions.Storage()
	now := m.clock.Now()
	last, err := store.LastRecoveryAttemptTime(ctx)
	if err != nil {
		m.logger.Warn("read last recovery attempt failed", "error", err)
	}
	if !last.IsZero() && now.Sub(last) < m.cfg.RecoveryThrottle {
		m.logger.Debug("offline recovery throttled", "since_last", now.Sub(last))
		metrics.EmitRecovery(m.metrics, ActionOfflineRecovery, metrics.ResultNoop)
		return
	}
	if err := store.SetLastRecoveryAttemptTime(ctx, now); err != nil {
		m.logger.Warn("persist recovery attempt failed", "error", err)
	}
	ok := m.sessions.Refresh(ctx)
	m.logger.Info("offline recovery refresh", "success", ok)
	m.emit(ActionOfflineRecovery, ok)
}

func (m *Monitor) startReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.reconnectCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.reconnectCancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reconnect(ctx)
		m.mu.Lock()
		if ctx.Err() == nil {
			m.reconnectCancel = nil
		}
		m.mu.Unlock()
		cancel()
	}()
}

func (m *Monitor) stopReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reconnectCancel != nil {
		m.reconnectCancel()
		m.reconnectCancel = nil
	}
}

// reconnect force-checks on an exponential schedule until the backend answers.
func (m *Monitor) reconnect(ctx context.Context) {
	b := &backoff.ExponentialBackOff{
		InitialInterval: m.initial,
		Multiplier:      reconnectMultiplier,
		MaxInterval:     m.maxWait,
	}
	b.Reset()
	m.logger.Debug("reconnection started")
	for attempt := 1; ; attempt++ {
		wait := b.NextBackOff()
		timer := m.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
		if m.coord.Status().IsOnline {
			return
		}
		ok := m.coord.ForceCheck(ctx)
		m.emit(ActionReconnect, ok)
		if ok {
			m.logger.Info("reconnected", "attempts", attempt)
			return
		}
		m.logger.Debug("reconnection attempt failed", "attempt", attempt)
	}
}

func (m *Monitor) emit(action string, ok bool) {
	result := metrics.ResultSuccess
	if !ok {
		result = metrics.ResultError
	}
	metrics.EmitRecovery(m.metrics, action, result)
}

// Close unsubscribes and stops background work. Safe to call more than once.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.cancel()
	m.wg.Wait()
}
