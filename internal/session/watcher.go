package session

import (
	"context"
	"time"

	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
)

// watchState is the refresh watcher's private bookkeeping for one session generation.
type watchState struct {
	gen uint64
	due bool
	// dueAfter is the last refresh time seen when the target was scheduled. A different
	// value on wake means another caller refreshed and the target is stale.
	dueAfter time.Time
	failures int
}

// armWatcher replaces any running watcher with one bound to gen.
func (m *Manager) armWatcher(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopWatcherLocked()
	if m.closed || m.generation != gen {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.watcherCancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watch(ctx, gen)
	}()
}

// stopWatcherLocked cancels the watcher without waiting: the watcher itself may be the caller
// via a silent logout.
func (m *Manager) stopWatcherLocked() {
	if m.watcherCancel != nil {
		m.watcherCancel()
		m.watcherCancel = nil
	}
}

// watch keeps the token fresh until the context ends or the session leaves gen. Each step
// returns how long to sleep before the next one; a negative value stops the loop.
func (m *Manager) watch(ctx context.Context, gen uint64) {
	m.logger.Debug("refresh watcher started", "generation", gen)
	defer m.logger.Debug("refresh watcher stopped", "generation", gen)

	st := &watchState{gen: gen}
	for {
		wait := m.safeStep(ctx, st)
		if wait < 0 {
			return
		}
		if wait > 0 && !m.sleep(ctx, wait) {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// safeStep keeps the loop alive through a panicking dependency and backs off instead.
func (m *Manager) safeStep(ctx context.Context, st *watchState) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("refresh watcher step panicked", "panic", r)
			wait = m.refreshCfg.ErrorBackoff
		}
	}()
	return m.watchStep(ctx, st)
}

func (m *Manager) watchStep(ctx context.Context, st *watchState) time.Duration {
	m.mu.Lock()
	gen, status := m.generation, m.session.Status
	expiresAt, lastRefresh := m.session.ExpiresAt, m.lastRefresh
	m.mu.Unlock()

	if gen != st.gen || !status.HoldsToken() {
		return -1
	}

	if st.due && !lastRefresh.Equal(st.dueAfter) {
		m.logger.Debug("token refreshed elsewhere, rescheduling")
		st.due = false
	}

	cfg := m.refreshCfg
	now := m.clock.Now()
	remaining := expiresAt.Sub(now)

	if remaining > cfg.LongSleepThreshold {
		st.due = false
		return cfg.LongSleepStep
	}
	if !lastRefresh.IsZero() {
		if since := now.Sub(lastRefresh); since < cfg.MinInterval {
			return cfg.MinInterval - since
		}
	}
	if !st.due {
		target := min(time.Duration(float64(remaining)*cfg.LifetimeFraction), cfg.MaxAhead)
		if cfg.MaxJitter > 0 {
			target -= m.jitter(cfg.MaxJitter)
		}
		st.due = true
		st.dueAfter = lastRefresh
		if target > 0 {
			return target
		}
	}
	return m.watchRefresh(ctx, st)
}

func (m *Manager) watchRefresh(ctx context.Context, st *watchState) time.Duration {
	cfg := m.refreshCfg
	if m.coord != nil && !m.coord.CheckHealth(ctx) {
		m.logger.Debug("backend unreachable, deferring refresh")
		return cfg.FailureBackoff
	}

	ok := m.Refresh(ctx)
	st.dueAfter = m.LastRefresh()
	if ok {
		st.failures = 0
		st.due = false
		return 0
	}
	if ctx.Err() != nil {
		return -1
	}

	m.mu.Lock()
	gen, status := m.generation, m.session.Status
	m.mu.Unlock()
	if gen != st.gen || status != domainauth.StatusAuthenticated {
		return -1
	}

	st.failures++
	if st.failures >= cfg.MaxFailures {
		m.logger.Warn("token refresh failed repeatedly, ending session", "failures", st.failures)
		m.clearLocal(context.WithoutCancel(ctx), ReasonRefreshFailed, st.gen)
		return -1
	}
	m.logger.Info("token refresh failed, retrying", "failures", st.failures, "retry_in", cfg.FailureBackoff)
	return cfg.FailureBackoff
}

// sleep waits d on the manager clock. It reports false when ctx ended first.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := m.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
