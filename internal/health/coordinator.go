// Package health arbitrates backend reachability checks for the whole client. A single
// Coordinator owns the health status and is the only component that issues probes; Observers
// give individual consumers their own view and polling cadence on top of it.
package health

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/nguyenhoangdanh/dnsecure-sub000/internal/errors"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/network"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/metrics"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/statsd"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
)

// Named throttle windows consulted by regular and forced checks.
const (
	ThrottleRegular = "regular"
	ThrottleForce   = "force"
)

const probeKey = "probe"

// Default tuning.
const (
	DefaultMinInterval            = 10 * time.Second
	DefaultForceThrottle          = 10 * time.Second
	DefaultMaxConsecutiveFailures = 3
	DefaultPeriodicInterval       = 30 * time.Second
	DefaultMaxBackoff             = 5 * time.Minute
	DefaultBackoffFactor          = 1.5
	DefaultProbeTimeout           = 5 * time.Second
)

// Listener receives reachability changes. kind is empty while reachable.
type Listener func(online bool, kind network.Kind)

// Status is a snapshot of the coordinator's view of the backend.
type Status struct {
	IsOnline            bool
	LastCheckTime       time.Time
	IsChecking          bool
	ConsecutiveFailures int
	LastErrorType       network.Kind
	RateLimitedUntil    time.Time
}

// Options configures a Coordinator.
type Options struct {
	Prober ports.HealthProber // required
	// Connectivity is the platform link signal. Nil means always online.
	Connectivity ports.Connectivity

	MinInterval            time.Duration
	ForceThrottle          time.Duration
	MaxConsecutiveFailures int
	MaxBackoff             time.Duration
	BackoffFactor          float64
	ProbeTimeout           time.Duration
	// DefaultRateLimit applies when a 429 carries no Retry-After.
	DefaultRateLimit time.Duration

	Metrics statsd.Sink
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// Coordinator deduplicates, throttles and records reachability probes. All methods are safe
// for concurrent use; the mutex is never held across a probe or a listener call.
type Coordinator struct {
	prober ports.HealthProber
	conn   ports.Connectivity
	group  singleflight.Group

	minInterval      time.Duration
	forceThrottle    time.Duration
	maxFailures      int
	maxBackoff       time.Duration
	backoffFactor    float64
	probeTimeout     time.Duration
	defaultRateLimit time.Duration

	metrics statsd.Sink
	clock   clockwork.Clock
	logger  *slog.Logger

	mu        sync.Mutex
	status    Status
	throttles map[string]time.Time
	listeners map[uint64]Listener
	nextID    uint64

	periodicCancel context.CancelFunc
	periodicDone   chan struct{}
}

// NewCoordinator creates a Coordinator in the optimistic online state.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Prober == nil {
		return nil, errors.New("HealthProber is required")
	}
	c := &Coordinator{
		prober:           opts.Prober,
		conn:             opts.Connectivity,
		minInterval:      durationOr(opts.MinInterval, DefaultMinInterval),
		forceThrottle:    durationOr(opts.ForceThrottle, DefaultForceThrottle),
		maxFailures:      opts.MaxConsecutiveFailures,
		maxBackoff:       durationOr(opts.MaxBackoff, DefaultMaxBackoff),
		backoffFactor:    opts.BackoffFactor,
		probeTimeout:     durationOr(opts.ProbeTimeout, DefaultProbeTimeout),
		defaultRateLimit: durationOr(opts.DefaultRateLimit, network.DefaultRetryAfter),
		metrics:          opts.Metrics,
		clock:            opts.Clock,
		logger:           opts.Logger,
		status:           Status{IsOnline: true},
		throttles:        make(map[string]time.Time),
		listeners:        make(map[uint64]Listener),
	}
	if c.maxFailures <= 0 {
		c.maxFailures = DefaultMaxConsecutiveFailures
	}
	if c.backoffFactor < 1 {
		c.backoffFactor = DefaultBackoffFactor
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// MustNewCoordinator is like NewCoordinator but panics on error.
func MustNewCoordinator(opts Options) *Coordinator {
	c, err := NewCoordinator(opts)
	if err != nil {
		panic(err)
	}
	return c
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Status returns a snapshot of the current health status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// MaxConsecutiveFailures returns the configured hard-failure threshold.
func (c *Coordinator) MaxConsecutiveFailures() int { return c.maxFailures }

// CheckHealth reports whether the backend is reachable, probing only when no guard applies.
// Callers arriving while a probe is in flight share its result. If ctx ends first the last
// known value is returned; the shared probe keeps running for the other callers.
func (c *Coordinator) CheckHealth(ctx context.Context) bool {
	return c.check(ctx, false)
}

// ForceCheck bypasses the minimum interval but still honours rate limiting and the force
// throttle window, which every executed forced probe re-arms.
func (c *Coordinator) ForceCheck(ctx context.Context) bool {
	return c.check(ctx, true)
}

func (c *Coordinator) check(ctx context.Context, force bool) bool {
	probeCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(probeKey, func() (any, error) {
		return c.run(probeCtx, force), nil
	})
	select {
	case res := <-ch:
		online, _ := res.Val.(bool)
		return online
	case <-ctx.Done():
		return c.Status().IsOnline
	}
}

// run evaluates the guards and, when none applies, performs one probe. It only ever executes
// inside the singleflight group, so at most one instance runs at a time.
func (c *Coordinator) run(ctx context.Context, force bool) bool {
	now := c.clock.Now()

	c.mu.Lock()
	if force {
		c.status.LastCheckTime = time.Time{}
	}
	if reason := c.guardLocked(now, force); reason != "" {
		last := c.status.IsOnline
		c.mu.Unlock()
		c.logger.Debug("health check skipped", "reason", reason, "forced", force, "online", last)
		metrics.EmitHealthCheck(c.metrics, metrics.HealthCheckMetric{Result: metrics.ResultNoop, Forced: force})
		return last
	}
	if force {
		c.throttles[ThrottleForce] = now.Add(c.forceThrottle)
	}
	c.status.IsChecking = true
	c.mu.Unlock()

	if c.conn != nil && !c.conn.Online() {
		c.record(network.KindOffline, true, force, 0)
		return false
	}

	start := c.clock.Now()
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	err := c.probe(probeCtx)
	cancel()
	elapsed := c.clock.Since(start)

	if err == nil {
		c.record("", false, force, elapsed)
		return true
	}

	kind := c.classify(err)
	c.logger.Debug("health probe failed", "error", err, "error_kind", kind)
	c.record(kind, false, force, elapsed)
	return false
}

// probe shields the coordinator from a panicking prober.
func (c *Coordinator) probe(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("health prober panicked", "panic", r)
			err = &network.Error{Kind: network.KindUnknown, Message: "health prober panicked"}
		}
	}()
	return c.prober.Probe(ctx)
}

func (c *Coordinator) guardLocked(now time.Time, force bool) string {
	if !force && !c.status.LastCheckTime.IsZero() {
		since := now.Sub(c.status.LastCheckTime)
		if since < c.minInterval {
			return "min_interval"
		}
		if since < c.failureBackoffLocked() {
			return "failure_backoff"
		}
	}
	if now.Before(c.status.RateLimitedUntil) {
		return "rate_limited"
	}
	name := ThrottleRegular
	if force {
		name = ThrottleForce
	}
	if until, ok := c.throttles[name]; ok {
		if now.Before(until) {
			return "throttled"
		}
		delete(c.throttles, name)
	}
	return ""
}

// classify maps a probe failure to a kind. A 429 is reported as server_error and suppresses
// checking for the Retry-After window.
func (c *Coordinator) classify(err error) network.Kind {
	online := c.conn == nil || c.conn.Online()
	kind := network.Classify(err, online)
	if kind == "" {
		kind = apperrors.KindOf(err)
	}
	if kind != network.KindRateLimited {
		return kind
	}

	wait := c.defaultRateLimit
	var netErr *network.Error
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &netErr) && netErr.RetryAfter > 0:
		wait = netErr.RetryAfter
	case errors.As(err, &appErr) && appErr.RetryAfter > 0:
		wait = appErr.RetryAfter
	}
	c.SetRateLimited(wait)
	return network.KindServerError
}

// record applies a probe outcome and notifies listeners when warranted. alwaysNotify is set
// for the platform-offline short circuit.
func (c *Coordinator) record(kind network.Kind, alwaysNotify, force bool, elapsed time.Duration) {
	c.mu.Lock()
	prev := c.status.IsOnline
	ok := kind == ""
	c.status.IsChecking = false
	c.status.LastCheckTime = c.clock.Now()
	if ok {
		c.status.ConsecutiveFailures = 0
		c.status.LastErrorType = ""
		c.status.IsOnline = true
	} else {
		c.status.ConsecutiveFailures++
		c.status.LastErrorType = kind
		c.status.IsOnline = false
	}
	snapshot := c.status
	notify := alwaysNotify || prev != snapshot.IsOnline || snapshot.ConsecutiveFailures == c.maxFailures
	var listeners []Listener
	if notify {
		listeners = c.listenersLocked()
	}
	c.mu.Unlock()

	result := metrics.ResultSuccess
	if !ok {
		result = metrics.ResultError
	}
	metrics.EmitHealthCheck(c.metrics, metrics.HealthCheckMetric{
		Result:              result,
		ErrorKind:           string(kind),
		Forced:              force,
		ConsecutiveFailures: snapshot.ConsecutiveFailures,
		Duration:            elapsed,
	})

	if prev != snapshot.IsOnline {
		c.logger.Info("backend reachability changed",
			"online", snapshot.IsOnline,
			"error_kind", kind,
			"consecutive_failures", snapshot.ConsecutiveFailures)
	}
	for _, l := range listeners {
		c.invoke(l, snapshot.IsOnline, snapshot.LastErrorType)
	}
}

func (c *Coordinator) listenersLocked() []Listener {
	out := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l)
	}
	return out
}

func (c *Coordinator) invoke(l Listener, online bool, kind network.Kind) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("health listener panicked", "panic", r)
		}
	}()
	l(online, kind)
}

// Subscribe registers l and immediately invokes it with the current status. The returned
// func unsubscribes and is safe to call more than once.
func (c *Coordinator) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	online, kind := c.status.IsOnline, c.status.LastErrorType
	c.mu.Unlock()

	c.invoke(l, online, kind)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// ThrottleChecks suppresses checks consulting the named window for d. A longer existing
// window is kept.
func (c *Coordinator) ThrottleChecks(name string, d time.Duration) {
	if name == "" || d <= 0 {
		return
	}
	until := c.clock.Now().Add(d)
	c.mu.Lock()
	if cur, ok := c.throttles[name]; !ok || until.After(cur) {
		c.throttles[name] = until
	}
	c.mu.Unlock()
}

// SetRateLimited suppresses all checking for d.
func (c *Coordinator) SetRateLimited(d time.Duration) {
	if d <= 0 {
		return
	}
	until := c.clock.Now().Add(d)
	c.mu.Lock()
	if until.After(c.status.RateLimitedUntil) {
		c.status.RateLimitedUntil = until
	}
	c.mu.Unlock()
	c.logger.Warn("health checks rate limited", "duration", d)
}

// Reset clears counters, timestamps and throttles. Listeners and the periodic loop are kept.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.status = Status{IsOnline: true}
	c.throttles = make(map[string]time.Time)
	c.mu.Unlock()
}

// failureBackoffLocked is the minimum spacing between regular probes once the failure
// threshold is reached: the min interval grown geometrically per failure past it.
func (c *Coordinator) failureBackoffLocked() time.Duration {
	over := c.status.ConsecutiveFailures - c.maxFailures
	if over < 0 {
		return 0
	}
	return c.grow(c.minInterval, over+1)
}

func (c *Coordinator) grow(base time.Duration, steps int) time.Duration {
	if steps <= 0 {
		return base
	}
	wait := float64(base) * math.Pow(c.backoffFactor, float64(steps))
	if wait >= float64(c.maxBackoff) || math.IsInf(wait, 1) {
		return c.maxBackoff
	}
	return time.Duration(wait)
}

// NextInterval returns the adaptive wait for the periodic loop: base grown by the backoff
// factor per consecutive failure, capped at the max backoff.
func (c *Coordinator) NextInterval(base time.Duration) time.Duration {
	return c.grow(base, c.Status().ConsecutiveFailures)
}

// StartPeriodicChecks runs CheckHealth on an adaptive interval in one background goroutine.
// Calling it while a loop is running is a no-op.
func (c *Coordinator) StartPeriodicChecks(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPeriodicInterval
	}
	c.mu.Lock()
	if c.periodicCancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.periodicCancel = cancel
	c.periodicDone = done
	c.mu.Unlock()

	go c.periodicLoop(ctx, interval, done)
}

// StopPeriodicChecks stops the background loop and waits for it to exit.
func (c *Coordinator) StopPeriodicChecks() {
	c.mu.Lock()
	cancel, done := c.periodicCancel, c.periodicDone
	c.periodicCancel, c.periodicDone = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Coordinator) periodicLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	c.logger.Debug("periodic health checks started", "interval", interval)
	for {
		wait := c.NextInterval(interval)
		timer := c.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Debug("periodic health checks stopped")
			return
		case <-timer.Chan():
		}
		c.CheckHealth(ctx)
	}
}
