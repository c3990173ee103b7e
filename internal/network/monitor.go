package network

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MonitorOptions configures a connectivity Monitor.
type MonitorOptions struct {
	// ProbeAddr is a host:port dialed by Run to detect link state. Empty disables Run.
	ProbeAddr string
	// Interval between dial probes in Run.
	Interval time.Duration
	// DialTimeout bounds each dial probe.
	DialTimeout time.Duration
	Dialer      func(ctx context.Context, network, addr string) (net.Conn, error)
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Monitor is the platform-level online/offline signal. It starts optimistic (online) and
// notifies subscribers only when the state flips. Embedders either drive it with SetOnline
// from their own platform events or let Run derive it from TCP reachability.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners map[uint64]func(online bool)
	nextID    uint64

	probeAddr   string
	interval    time.Duration
	dialTimeout time.Duration
	dial        func(ctx context.Context, network, addr string) (net.Conn, error)
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewMonitor creates a Monitor in the online state.
func NewMonitor(opts MonitorOptions) *Monitor {
	m := &Monitor{
		online:      true,
		listeners:   make(map[uint64]func(bool)),
		probeAddr:   opts.ProbeAddr,
		interval:    opts.Interval,
		dialTimeout: opts.DialTimeout,
		dial:        opts.Dialer,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
	if m.interval <= 0 {
		m.interval = 15 * time.Second
	}
	if m.dialTimeout <= 0 {
		m.dialTimeout = 3 * time.Second
	}
	if m.dial == nil {
		m.dial = (&net.Dialer{}).DialContext
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Online reports the last known platform connectivity.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records the platform state and notifies subscribers when it changed.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	m.logger.Debug("platform connectivity changed", "online", online)
	for _, fn := range listeners {
		fn(online)
	}
}

// Subscribe registers fn for online/offline transitions and returns its unsubscribe func.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Run dials ProbeAddr every Interval and updates the online state until ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	if m.probeAddr == "" {
		<-ctx.Done()
		return nil
	}

	for {
		online := m.probe(ctx)
		// A dial cut short by shutdown says nothing about the link.
		if ctx.Err() == nil {
			m.SetOnline(online)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-m.clock.After(m.interval):
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()

	conn, err := m.dial(dialCtx, "tcp", m.probeAddr)
	if err != nil {
		m.logger.Debug("connectivity probe failed", "addr", m.probeAddr, "error", err)
		return false
	}
	if cerr := conn.Close(); cerr != nil {
		m.logger.Debug("close connectivity probe", "error", cerr)
	}
	return true
}
