package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/adapters/httpapi"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/mocks"
	mockauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/mocks/auth"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/network"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/statsd"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
)

type coordFixture struct {
	coord   *Coordinator
	clock   *clockwork.FakeClock
	conn    *mockauth.StaticConnectivity
	metrics *statsd.Recorder
}

func newTestCoordinator(t *testing.T, prober ports.HealthProber) coordFixture {
	t.Helper()
	f := coordFixture{
		clock:   clockwork.NewFakeClock(),
		conn:    mockauth.NewStaticConnectivity(true),
		metrics: &statsd.Recorder{},
	}
	c, err := NewCoordinator(Options{
		Prober:       prober,
		Connectivity: f.conn,
		Metrics:      f.metrics,
		Clock:        f.clock,
	})
	require.NoError(t, err)
	f.coord = c
	t.Cleanup(c.StopPeriodicChecks)
	return f
}

func TestNewCoordinator_RequiredDependency(t *testing.T) {
	c, err := NewCoordinator(Options{})
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "HealthProber is required")

	assert.Panics(t, func() { MustNewCoordinator(Options{}) })
}

func TestCoordinator_DefaultsOptimistic(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newTestCoordinator(t, mocks.NewMockHealthProber(ctrl))

	st := f.coord.Status()
	assert.True(t, st.IsOnline)
	assert.Zero(t, st.ConsecutiveFailures)
	assert.True(t, st.LastCheckTime.IsZero())
}

func TestCoordinator_ConcurrentChecksShareOneProbe(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	prober.EXPECT().Probe(gomock.Any()).DoAndReturn(func(context.Context) error {
		close(started)
		<-release
		return nil
	}).Times(1)

	f := newTestCoordinator(t, prober)
	ctx := context.Background()

	const callers = 25
	results := make([]bool, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = f.coord.CheckHealth(ctx)
	}()
	<-started
	assert.True(t, f.coord.Status().IsChecking)

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.coord.CheckHealth(ctx)
		}()
	}
	close(release)
	wg.Wait()

	for i, r := range results {
		assert.True(t, r, "caller %d", i)
	}
	assert.False(t, f.coord.Status().IsChecking)
}

func TestCoordinator_CallerContextEndsReturnsLastKnown(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)

	release := make(chan struct{})
	prober.EXPECT().Probe(gomock.Any()).DoAndReturn(func(context.Context) error {
		<-release
		return errors.New("down")
	}).Times(1)

	f := newTestCoordinator(t, prober)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Last known value is the optimistic default.
	assert.True(t, f.coord.CheckHealth(ctx))
	close(release)
	require.Eventually(t, func() bool { return !f.coord.Status().IsOnline }, time.Second, 5*time.Millisecond)
}

func TestCoordinator_MinIntervalGuard(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)
	prober.EXPECT().Probe(gomock.Any()).Return(nil).Times(2)

	f := newTestCoordinator(t, prober)
	ctx := context.Background()

	assert.True(t, f.coord.CheckHealth(ctx))
	f.clock.Advance(9 * time.Second)
	assert.True(t, f.coord.CheckHealth(ctx))
	f.clock.Advance(time.Second)
	assert.True(t, f.coord.CheckHealth(ctx))

	assert.Equal(t, 1.0, f.metrics.Sum("health.check", map[string]string{"result": "noop"}))
	assert.Equal(t, 2.0, f.metrics.Sum("health.check", map[string]string{"result": "success"}))
}

func TestCoordinator_ForceCheckBypassesIntervalButHonoursForceThrottle(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)
	prober.EXPECT().Probe(gomock.Any()).Return(nil).Times(3)

	f := newTestCoordinator(t, prober)
	ctx := context.Background()

	assert.True(t, f.coord.CheckHealth(ctx))
	assert.True(t, f.coord.ForceCheck(ctx)) // bypasses min interval
	assert.True(t, f.coord.ForceCheck(ctx)) // force throttle
	f.clock.Advance(5 * time.Second)
	assert.True(t, f.coord.ForceCheck(ctx)) // still throttled
	f.clock.Advance(5 * time.Second)
	assert.True(t, f.coord.ForceCheck(ctx))
}

func TestCoordinator_NamedThrottle(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)
	prober.EXPECT().Probe(gomock.Any()).Return(nil).Times(2)

	f := newTestCoordinator(t, prober)
	ctx := context.Background()

	f.coord.ThrottleChecks(ThrottleRegular, 30*time.Second)
	f.coord.ThrottleChecks(ThrottleRegular, time.Second) // shorter window ignored
	assert.True(t, f.coord.CheckHealth(ctx))
	f.clock.Advance(29 * time.Second)
	assert.True(t, f.coord.CheckHealth(ctx))

	// A forced check is not subject to the regular window.
	assert.True(t, f.coord.ForceCheck(ctx))

	f.clock.Advance(11 * time.Second)
	assert.True(t, f.coord.CheckHealth(ctx))
}

func TestCoordinator_OfflineShortCircuit(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)
	prober.EXPECT().Probe(gomock.Any()).Times(0)

	f := newTestCoordinator(t, prober)
	f.conn.Set(false)

	var events []network.Kind
	f.coord.Subscribe(func(online bool, kind network.Kind) {
		if !online {
			events = append(events, kind)
		}
	})

	assert.False(t, f.coord.CheckHealth(context.Background()))
	st := f.coord.Status()
	assert.False(t, st.IsOnline)
	assert.Equal(t, network.KindOffline, st.LastErrorType)
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.Equal(t, []network.Kind{network.KindOffline}, events)
}

func TestCoordinator_SubscribeInvokedImmediately(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newTestCoordinator(t, mocks.NewMockHealthProber(ctrl))

	var calls int
	var lastOnline bool
	unsubscribe := f.coord.Subscribe(func(online bool, _ network.Kind) {
		calls++
		lastOnline = online
	})
	assert.Equal(t, 1, calls)
	assert.True(t, lastOnline)

	unsubscribe()
	unsubscribe()
	assert.NotPanics(t, func() { f.coord.Subscribe(nil)() })
}

func TestCoordinator_NotifiesOnFlipOrThreshold(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)
	down := errors.New("connection reset")
	gomock.InOrder(
		prober.EXPECT().Probe(gomock.Any()).Return(down),
		prober.EXPECT().Probe(gomock.Any()).Return(down),
		prober.EXPECT().Probe(gomock.Any()).Return(down),
		prober.EXPECT().Probe(gomock.Any()).Return(down),
		prober.EXPECT().Probe(gomock.Any()).Return(nil),
	)

	f := newTestCoordinator(t, prober)
	ctx := context.Background()

	type event struct {
		online bool
		kind   network.Kind
	}
	var events []event
	f.coord.Subscribe(func(online bool, kind network.Kind) { events = append(events, event{online, kind}) })
	events = nil

	for range 5 {
		f.clock.Advance(10 * time.Minute)
		f.coord.CheckHealth(ctx)
	}

	// flip to offline, threshold reached at 3, flip back online
	require.Len(t, events, 3)
	assert.False(t, events[0].online)
	assert.Equal(t, network.KindUnknown, events[0].kind)
	assert.False(t, events[1].online)
	assert.True(t, events[2].online)
	assert.Empty(t, events[2].kind)
	assert.Zero(t, f.coord.Status().ConsecutiveFailures)
}

func TestCoordinator_FailureBackoffAfterThreshold(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)
	var probes atomic.Int32
	prober.EXPECT().Probe(gomock.Any()).DoAndReturn(func(context.Context) error {
		probes.Add(1)
		return context.DeadlineExceeded
	}).AnyTimes()

	f := newTestCoordinator(t, prober)
	ctx := context.Background()

	for range 3 {
		f.coord.CheckHealth(ctx)
		f.clock.Advance(10 * time.Second)
	}
	require.Equal(t, int32(3), probes.Load())
	assert.Equal(t, network.KindTimeout, f.coord.Status().LastErrorType)

	// 10s after the third failure the backoff window (10s * 1.5) has not elapsed.
	f.coord.CheckHealth(ctx)
	assert.Equal(t, int32(3), probes.Load())

	f.clock.Advance(5 * time.Second)
	f.coord.CheckHealth(ctx)
	assert.Equal(t, int32(4), probes.Load())
}

func TestCoordinator_RateLimitedProbe(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)
	prober.EXPECT().Probe(gomock.Any()).
		Return(&network.Error{Kind: network.KindRateLimited, StatusCode: 429, RetryAfter: 30 * time.Second}).
		Times(1)
	prober.EXPECT().Probe(gomock.Any()).Return(nil).Times(1)

	f := newTestCoordinator(t, prober)
	ctx := context.Background()

	assert.False(t, f.coord.CheckHealth(ctx))
	st := f.coord.Status()
	assert.Equal(t, network.KindServerError, st.LastErrorType)
	assert.Equal(t, f.clock.Now().Add(30*time.Second), st.RateLimitedUntil)

	f.clock.Advance(20 * time.Second)
	assert.False(t, f.coord.ForceCheck(ctx))

	f.clock.Advance(10 * time.Second)
	assert.True(t, f.coord.ForceCheck(ctx))
}

func TestCoordinator_RateLimitMessageFallsBackToDefault(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)
	prober.EXPECT().Probe(gomock.Any()).Return(errors.New("unexpected status 429")).Times(1)

	f := newTestCoordinator(t, prober)
	assert.False(t, f.coord.CheckHealth(context.Background()))
	assert.Equal(t, f.clock.Now().Add(60*time.Second), f.coord.Status().RateLimitedUntil)
}

func TestCoordinator_HealthEndpoint429RecordsAuthPattern(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	clock := clockwork.NewFakeClock()
	tracker := network.NewRateLimitTracker(clock.Now)
	client, err := httpapi.NewClient(httpapi.Options{
		BaseURL:    srv.URL,
		HealthPath: "/auth/health",
		RateLimits: tracker,
		Clock:      clock,
	})
	require.NoError(t, err)

	coord := MustNewCoordinator(Options{Prober: client, Clock: clock})
	ctx := context.Background()

	assert.False(t, coord.CheckHealth(ctx))
	assert.True(t, tracker.IsRateLimited("/auth/*"))
	assert.True(t, tracker.IsRateLimited("/auth/login"))

	clock.Advance(29 * time.Second)
	assert.True(t, tracker.IsRateLimited("/auth/*"))
	assert.False(t, coord.ForceCheck(ctx))
	assert.Equal(t, int32(1), hits.Load())

	clock.Advance(time.Second)
	assert.False(t, tracker.IsRateLimited("/auth/*"))
}

func TestCoordinator_Reset(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)
	prober.EXPECT().Probe(gomock.Any()).Return(errors.New("down")).Times(1)

	f := newTestCoordinator(t, prober)
	f.coord.CheckHealth(context.Background())
	f.coord.SetRateLimited(time.Minute)
	f.coord.ThrottleChecks(ThrottleRegular, time.Minute)

	f.coord.Reset()
	st := f.coord.Status()
	assert.True(t, st.IsOnline)
	assert.Zero(t, st.ConsecutiveFailures)
	assert.True(t, st.RateLimitedUntil.IsZero())
	assert.Empty(t, st.LastErrorType)
}

func TestCoordinator_NextInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)
	prober.EXPECT().Probe(gomock.Any()).Return(errors.New("down")).AnyTimes()

	f := newTestCoordinator(t, prober)
	base := 30 * time.Second
	assert.Equal(t, base, f.coord.NextInterval(base))

	want := []time.Duration{45 * time.Second, 67500 * time.Millisecond, 101250 * time.Millisecond}
	for _, w := range want {
		f.clock.Advance(10 * time.Minute)
		f.coord.CheckHealth(context.Background())
		assert.Equal(t, w, f.coord.NextInterval(base))
	}

	for range 10 {
		f.clock.Advance(10 * time.Minute)
		f.coord.CheckHealth(context.Background())
	}
	assert.Equal(t, DefaultMaxBackoff, f.coord.NextInterval(base))
}

func TestCoordinator_PeriodicChecks(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockHealthProber(ctrl)
	probed := make(chan struct{}, 10)
	prober.EXPECT().Probe(gomock.Any()).DoAndReturn(func(context.Context) error {
		probed <- struct{}{}
		return errors.New("down")
	}).Times(2)

	f := newTestCoordinator(t, prober)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f.coord.StartPeriodicChecks(30 * time.Second)
	f.coord.StartPeriodicChecks(30 * time.Second) // idempotent

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(30 * time.Second)
	<-probed

	// After one failure the loop waits 45s.
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(44 * time.Second)
	select {
	case <-probed:
		t.Fatal("probed before adaptive interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}
	f.clock.Advance(time.Second)
	<-probed

	f.coord.StopPeriodicChecks()
	f.coord.StopPeriodicChecks()
}
