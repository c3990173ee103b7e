package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/network"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
)

// RetryStrategy controls how an Observer's polling interval grows with failures.
type RetryStrategy string

const (
	RetryExponential RetryStrategy = "exponential"
	RetryLinear      RetryStrategy = "linear"
	RetryNone        RetryStrategy = "none"
)

// Valid reports whether s is a known strategy.
func (s RetryStrategy) Valid() bool {
	return s == RetryExponential || s == RetryLinear || s == RetryNone
}

const (
	exponentialCap = 5 * time.Minute
	linearCap      = 2 * time.Minute
	linearStep     = 10 * time.Second

	// heartbeatEvery is the fraction of ticks that still probe once MaxRetries is reached.
	heartbeatEvery = 5

	DefaultMaxRetries     = 5
	DefaultReconnectDelay = time.Second
)

// RetryInterval returns the wait before the next tick for the given strategy.
func RetryInterval(strategy RetryStrategy, base time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return base
	}
	switch strategy {
	case RetryExponential:
		wait := base
		for range failures {
			wait *= 2
			if wait >= exponentialCap || wait <= 0 {
				return exponentialCap
			}
		}
		return wait
	case RetryLinear:
		wait := base + time.Duration(failures)*linearStep
		if wait > linearCap {
			return linearCap
		}
		return wait
	default:
		return base
	}
}

// ObserverState is one consumer's view of connectivity.
type ObserverState struct {
	// IsOnline is the platform link state.
	IsOnline bool
	// IsAPIReachable is the coordinator's backend reachability.
	IsAPIReachable      bool
	IsChecking          bool
	NetworkErrorType    network.Kind
	ConsecutiveFailures int
}

// ObserverOptions configures an Observer.
type ObserverOptions struct {
	NotifyOnReconnect bool
	CheckOnMount      bool
	// CheckInterval enables the observer's own polling when positive.
	CheckInterval  time.Duration
	RetryStrategy  RetryStrategy
	MaxRetries     int
	ReconnectDelay time.Duration
	// OnChange is called outside any lock after each state change.
	OnChange func(ObserverState)

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Observer is a per-consumer facade over the Coordinator. It contributes no probes of its own
// beyond what it funnels through the coordinator's deduplicated checks.
type Observer struct {
	coord *Coordinator
	conn  ports.Connectivity

	notifyOnReconnect bool
	interval          time.Duration
	strategy          RetryStrategy
	maxRetries        int
	reconnectDelay    time.Duration
	onChange          func(ObserverState)
	clock             clockwork.Clock
	logger            *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	state          ObserverState
	closed         bool
	heartbeat      *rate.Sometimes
	reconnectTimer clockwork.Timer
	unsubscribe    []func()
}

// NewObserver subscribes to coord and conn and starts the optional polling loop.
// conn may be nil when the embedder has no platform link signal.
func NewObserver(coord *Coordinator, conn ports.Connectivity, opts ObserverOptions) (*Observer, error) {
	if coord == nil {
		return nil, errors.New("Coordinator is required")
	}
	o := &Observer{
		coord:             coord,
		conn:              conn,
		notifyOnReconnect: opts.NotifyOnReconnect,
		interval:          opts.CheckInterval,
		strategy:          opts.RetryStrategy,
		maxRetries:        opts.MaxRetries,
		reconnectDelay:    durationOr(opts.ReconnectDelay, DefaultReconnectDelay),
		onChange:          opts.OnChange,
		clock:             opts.Clock,
		logger:            opts.Logger,
		heartbeat:         &rate.Sometimes{Every: heartbeatEvery},
	}
	if !o.strategy.Valid() {
		o.strategy = RetryExponential
	}
	if o.maxRetries <= 0 {
		o.maxRetries = DefaultMaxRetries
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())

	st := coord.Status()
	o.state = ObserverState{
		IsOnline:            conn == nil || conn.Online(),
		IsAPIReachable:      st.IsOnline,
		NetworkErrorType:    st.LastErrorType,
		ConsecutiveFailures: st.ConsecutiveFailures,
	}

	o.unsubscribe = append(o.unsubscribe, coord.Subscribe(o.onCoordinator))
	if conn != nil {
		o.unsubscribe = append(o.unsubscribe, conn.Subscribe(o.onPlatform))
	}

	if opts.CheckOnMount {
		o.goRun(func(ctx context.Context) { o.checkHealth(ctx) })
	}
	if o.interval > 0 {
		o.goRun(o.pollLoop)
	}
	return o, nil
}

func (o *Observer) goRun(fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(o.ctx)
	}()
}

// State returns a snapshot of the observer's view.
func (o *Observer) State() ObserverState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// update applies fn to the state unless the observer is closed and reports the change.
func (o *Observer) update(fn func(*ObserverState)) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	before := o.state
	fn(&o.state)
	if o.state.ConsecutiveFailures == 0 && before.ConsecutiveFailures > 0 {
		o.heartbeat = &rate.Sometimes{Every: heartbeatEvery}
	}
	after := o.state
	onChange := o.onChange
	o.mu.Unlock()

	if onChange != nil && after != before {
		onChange(after)
	}
}

func (o *Observer) onCoordinator(online bool, kind network.Kind) {
	failures := o.coord.Status().ConsecutiveFailures
	o.update(func(s *ObserverState) {
		s.IsAPIReachable = online
		s.NetworkErrorType = kind
		s.ConsecutiveFailures = failures
	})
}

func (o *Observer) onPlatform(online bool) {
	if !online {
		o.logger.Debug("platform offline")
		o.update(func(s *ObserverState) {
			s.IsOnline = false
			s.IsAPIReachable = false
			s.NetworkErrorType = network.KindOffline
		})
		return
	}

	o.update(func(s *ObserverState) { s.IsOnline = true })
	if !o.notifyOnReconnect {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if o.reconnectTimer != nil {
		o.reconnectTimer.Stop()
	}
	o.reconnectTimer = o.clock.AfterFunc(o.reconnectDelay, func() {
		o.mu.Lock()
		closed := o.closed
		o.mu.Unlock()
		if closed {
			return
		}
		o.logger.Debug("platform reconnected, checking backend")
		o.CheckNow(o.ctx)
	})
}

// CheckNow forces a coordinator check and returns reachability.
func (o *Observer) CheckNow(ctx context.Context) bool {
	return o.runCheck(ctx, o.coord.ForceCheck)
}

func (o *Observer) checkHealth(ctx context.Context) bool {
	return o.runCheck(ctx, o.coord.CheckHealth)
}

func (o *Observer) runCheck(ctx context.Context, check func(context.Context) bool) bool {
	o.update(func(s *ObserverState) { s.IsChecking = true })
	ok := check(ctx)
	st := o.coord.Status()
	o.update(func(s *ObserverState) {
		s.IsChecking = false
		s.IsAPIReachable = ok
		s.ConsecutiveFailures = st.ConsecutiveFailures
		s.NetworkErrorType = st.LastErrorType
		if !s.IsOnline && s.NetworkErrorType == "" {
			s.NetworkErrorType = network.KindOffline
		}
	})
	return ok
}

func (o *Observer) pollLoop(ctx context.Context) {
	for {
		wait := RetryInterval(o.strategy, o.interval, o.State().ConsecutiveFailures)
		timer := o.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
		o.tick(ctx)
	}
}

func (o *Observer) tick(ctx context.Context) {
	o.mu.Lock()
	failures := o.state.ConsecutiveFailures
	heartbeat := o.heartbeat
	o.mu.Unlock()

	if failures < o.maxRetries {
		o.checkHealth(ctx)
		return
	}
	probed := false
	heartbeat.Do(func() {
		probed = true
		o.checkHealth(ctx)
	})
	if !probed {
		o.logger.Debug("heartbeat tick skipped", "consecutive_failures", failures)
	}
}

// ResetStatus clears the local view and the coordinator's counters.
func (o *Observer) ResetStatus() {
	o.coord.Reset()
	online := o.conn == nil || o.conn.Online()
	o.update(func(s *ObserverState) {
		*s = ObserverState{IsOnline: online, IsAPIReachable: true}
	})
	o.mu.Lock()
	o.heartbeat = &rate.Sometimes{Every: heartbeatEvery}
	o.mu.Unlock()
}

// Close unsubscribes, stops timers and waits for background work. Later state writes are
// ignored. Safe to call more than once.
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	if o.reconnectTimer != nil {
		o.reconnectTimer.Stop()
	}
	o.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	o.cancel()
	o.wg.Wait()
}
