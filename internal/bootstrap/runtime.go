package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/adapters/httpapi"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/health"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/network"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/notify"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/statsd"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/recovery"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/session"
)

// RuntimeDeps groups dependencies for building a Runtime.
type RuntimeDeps struct {
	Config *config.AppConfig   // required
	KV     ports.KeyValueStore // required

	Metrics statsd.Sink
	Notices notify.Sink
	// HTTPClient overrides the API transport, e.g. in tests.
	HTTPClient *http.Client
	// OnLoggedOut runs after every non-silent logout.
	OnLoggedOut func(reason string)
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Runtime owns the process-wide client stack: one API client, one connectivity monitor, one
// health coordinator and one session manager. Observer and recovery monitor are started by
// Run for the components that ask for them.
type Runtime struct {
	Config       *config.AppConfig
	API          *httpapi.Client
	Connectivity *network.Monitor
	Coordinator  *health.Coordinator
	TwoFactor    *session.TwoFactor
	Sessions     *session.Manager

	notices notify.Sink
	metrics statsd.Sink
	clock   clockwork.Clock
	logger  *slog.Logger

	closeOnce sync.Once
}

// NewRuntime wires the client stack. Nothing runs in the background until Run, except the
// refresh watcher of a session established through Sessions.
func NewRuntime(deps RuntimeDeps) (*Runtime, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.KV == nil {
		return nil, errors.New("KeyValueStore is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	conn := network.NewMonitor(network.MonitorOptions{
		ProbeAddr:   ProbeAddr(cfg),
		Interval:    cfg.Connectivity.Interval,
		DialTimeout: cfg.Connectivity.DialTimeout,
		Clock:       clock,
		Logger:      logger.With("component", "connectivity"),
	})

	api, err := httpapi.NewClient(httpapi.Options{
		BaseURL:      cfg.API.BaseURL,
		HealthPath:   cfg.API.HealthPath,
		UserAgent:    cfg.API.UserAgent,
		Timeout:      cfg.API.Timeout,
		HTTPClient:   deps.HTTPClient,
		Connectivity: conn,
		Clock:        clock,
		Logger:       logger.With("component", "api_client"),
	})
	if err != nil {
		return nil, fmt.Errorf("build api client: %w", err)
	}

	coord, err := health.NewCoordinator(health.Options{
		Prober:                 api,
		Connectivity:           conn,
		MinInterval:            cfg.Health.MinInterval,
		ForceThrottle:          cfg.Health.ForceThrottle,
		MaxConsecutiveFailures: cfg.Health.MaxConsecutiveFailures,
		MaxBackoff:             cfg.Health.MaxBackoff,
		BackoffFactor:          cfg.Health.BackoffFactor,
		ProbeTimeout:           cfg.Health.ProbeTimeout,
		DefaultRateLimit:       cfg.Health.RateLimitDefault,
		Metrics:                deps.Metrics,
		Clock:                  clock,
		Logger:                 logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build health coordinator: %w", err)
	}

	tf, err := session.NewTwoFactor(session.TwoFactorOptions{
		API:     api,
		Metrics: deps.Metrics,
		Clock:   clock,
		Logger:  logger.With("component", "two_factor"),
	})
	if err != nil {
		return nil, fmt.Errorf("build two-factor: %w", err)
	}

	onLoggedOut := deps.OnLoggedOut
	if onLoggedOut == nil {
		onLoggedOut = func(reason string) { logger.Info("logged out", "reason", reason) }
	}
	sessions, err := session.NewManager(session.Options{
		API:             api,
		KV:              deps.KV,
		TwoFactor:       tf,
		Coordinator:     coord,
		Refresh:         cfg.Refresh,
		Lockout:         cfg.Lockout,
		TwoFactorConfig: cfg.TwoFactor,
		Session:         cfg.Session,
		SecurityInfo:    session.DefaultSecurityInfo(cfg.API.UserAgent, session.NewDeviceFingerprint()),
		OnLoggedOut:     onLoggedOut,
		Metrics:         deps.Metrics,
		Clock:           clock,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build session manager: %w", err)
	}
	api.SetTokenSource(sessions.TokenSource())

	return &Runtime{
		Config:       cfg,
		API:          api,
		Connectivity: conn,
		Coordinator:  coord,
		TwoFactor:    tf,
		Sessions:     sessions,
		notices:      deps.Notices,
		metrics:      deps.Metrics,
		clock:        clock,
		logger:       logger,
	}, nil
}

// ProbeAddr returns the host:port dialed by the connectivity monitor: the configured address,
// or the API host with its scheme's default port.
func ProbeAddr(cfg *config.AppConfig) string {
	if cfg.Connectivity.ProbeAddr != "" {
		return cfg.Connectivity.ProbeAddr
	}
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	if port := u.Port(); port != "" {
		return net.JoinHostPort(u.Hostname(), port)
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// Run starts the enabled components and blocks until ctx ends or one of them fails.
// Background components are stopped before Run returns.
func (r *Runtime) Run(ctx context.Context, components map[config.Component]bool) error {
	if len(components) == 0 {
		return errors.New("no components enabled")
	}
	// Build everything first so a construction error leaves nothing running.
	var (
		obs *health.Observer
		mon *recovery.Monitor
		err error
	)
	if components[config.ComponentObserver] {
		if obs, err = r.newObserver(); err != nil {
			return err
		}
	}
	if components[config.ComponentRecovery] {
		mon, err = recovery.NewMonitor(recovery.Options{
			Sessions:     r.Sessions,
			Coordinator:  r.Coordinator,
			Config:       r.Config.Session,
			Notices:      r.notices,
			ReconnectMax: r.Config.Health.MaxBackoff,
			Metrics:      r.metrics,
			Clock:        r.clock,
			Logger:       r.logger,
		})
		if err != nil {
			if obs != nil {
				obs.Close()
			}
			return fmt.Errorf("build recovery monitor: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if components[config.ComponentConnectivity] {
		g.Go(func() error {
			r.logger.InfoContext(ctx, "component started", "component", config.ComponentConnectivity)
			return r.Connectivity.Run(ctx)
		})
	}

	if components[config.ComponentHealth] {
		r.Coordinator.StartPeriodicChecks(r.Config.Health.PeriodicInterval)
		r.logger.InfoContext(ctx, "component started", "component", config.ComponentHealth)
		g.Go(func() error {
			<-ctx.Done()
			r.Coordinator.StopPeriodicChecks()
			return nil
		})
	}

	if obs != nil {
		r.logger.InfoContext(ctx, "component started", "component", config.ComponentObserver)
		g.Go(func() error {
			<-ctx.Done()
			obs.Close()
			return nil
		})
	}

	if mon != nil {
		r.logger.InfoContext(ctx, "component started", "component", config.ComponentRecovery)
		g.Go(func() error {
			<-ctx.Done()
			mon.Close()
			return nil
		})
	}

	if components[config.ComponentRefresh] {
		g.Go(func() error {
			// The watcher is armed by a restored session; a failed restore is not fatal.
			if err := r.Sessions.Init(ctx); err != nil {
				r.logger.WarnContext(ctx, "session restore failed", "error", err)
			}
			r.logger.InfoContext(ctx, "component started", "component", config.ComponentRefresh,
				"status", string(r.Sessions.Session().Status))
			<-ctx.Done()
			return nil
		})
	}

	return g.Wait()
}

func (r *Runtime) newObserver() (*health.Observer, error) {
	cfg := r.Config.Observer
	logger := r.logger.With("component", "observer")
	obs, err := health.NewObserver(r.Coordinator, r.Connectivity, health.ObserverOptions{
		NotifyOnReconnect: cfg.NotifyOnReconnect,
		CheckOnMount:      cfg.CheckOnMount,
		CheckInterval:     cfg.CheckInterval,
		RetryStrategy:     health.RetryStrategy(cfg.RetryStrategy),
		MaxRetries:        cfg.MaxRetries,
		ReconnectDelay:    cfg.ReconnectDelay,
		OnChange: func(s health.ObserverState) {
			logger.Debug("connectivity view changed",
				"online", s.IsOnline,
				"api_reachable", s.IsAPIReachable,
				"error_kind", string(s.NetworkErrorType),
				"consecutive_failures", s.ConsecutiveFailures)
		},
		Clock:  r.clock,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build observer: %w", err)
	}
	return obs, nil
}

// Clock returns the clock shared by the runtime's components.
//
//nolint:ireturn // clockwork.Clock is the clock port.
func (r *Runtime) Clock() clockwork.Clock { return r.clock }

// Close stops the session manager's background work and the periodic checks.
// Safe to call more than once.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.Coordinator.StopPeriodicChecks()
		r.Sessions.Close()
	})
}
