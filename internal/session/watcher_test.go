package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
	apperrors "github.com/nguyenhoangdanh/dnsecure-sub000/internal/errors"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/health"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/mocks"
	mockauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/mocks/auth"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/network"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/testutil"
)

func (f *managerFixture) advance(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1), "watcher is not waiting")
	f.clock.Advance(d)
}

func (f *managerFixture) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1), "watcher is not waiting")
}

func TestWatcher_SchedulesRefreshBeforeExpiry(t *testing.T) {
	ctx := context.Background()
	f := newTestManager(t)
	f.api.RefreshFunc = func(context.Context) (domainauth.AuthResult, error) {
		return testutil.NewAuthResult().WithToken("mock-token-2", f.clock.Now().Add(time.Hour)).Build(), nil
	}
	f.login(t)

	// 60m left: long sleep.
	f.advance(t, 29*time.Minute)
	f.waitIdle(t)
	assert.Zero(t, f.api.Calls("Refresh"))
	f.clock.Advance(time.Minute)

	// 30m left: refresh at 80% of the remaining lifetime.
	f.advance(t, 23*time.Minute)
	f.waitIdle(t)
	assert.Zero(t, f.api.Calls("Refresh"))
	f.clock.Advance(time.Minute)

	f.waitIdle(t)
	assert.Equal(t, 1, f.api.Calls("Refresh"))

	s := f.m.Session()
	assert.Equal(t, domainauth.StatusAuthenticated, s.Status)
	assert.Equal(t, "mock-token-2", s.AccessToken)
	token, expiresAt, ok, err := f.m.Storage().GetStoredToken(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mock-token-2", token)
	assert.True(t, expiresAt.Equal(f.clock.Now().Add(time.Hour)))

	// New token: back to long sleeps.
	f.advance(t, 29*time.Minute)
	f.waitIdle(t)
	assert.Equal(t, 1, f.api.Calls("Refresh"))
}

func TestWatcher_RefreshSpacing(t *testing.T) {
	f := newTestManager(t)
	var mu sync.Mutex
	var at []time.Time
	f.api.DefaultResult.ExpiresAt = f.clock.Now().Add(time.Minute)
	f.api.RefreshFunc = func(context.Context) (domainauth.AuthResult, error) {
		now := f.clock.Now()
		mu.Lock()
		at = append(at, now)
		mu.Unlock()
		return domainauth.AuthResult{AccessToken: "short", ExpiresAt: now.Add(time.Minute)}, nil
	}
	f.login(t)

	for range 35 {
		f.advance(t, time.Minute)
	}
	f.waitIdle(t)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(at), 3)
	for i := 1; i < len(at); i++ {
		assert.GreaterOrEqual(t, at[i].Sub(at[i-1]), 10*time.Minute, "refresh %d", i)
	}
}

func TestWatcher_RepeatedFailuresEndSession(t *testing.T) {
	ctx := context.Background()
	f := newTestManager(t, func(o *Options) {
		o.Refresh = config.RefreshConfig{MinInterval: time.Minute, FailureBackoff: time.Minute, MaxFailures: 3}
	})
	f.api.RefreshFunc = func(context.Context) (domainauth.AuthResult, error) {
		return domainauth.AuthResult{}, &network.Error{Kind: network.KindServerError, StatusCode: 503}
	}
	f.login(t)

	f.advance(t, 30*time.Minute)
	f.advance(t, 24*time.Minute)

	f.waitIdle(t)
	assert.Equal(t, 1, f.api.Calls("Refresh"))
	s := f.m.Session()
	assert.Equal(t, domainauth.StatusAuthenticated, s.Status, "unexpired token survives a failed refresh")
	assert.Equal(t, "mock-token-1", s.AccessToken)
	assert.NotEmpty(t, s.Error)

	f.advance(t, time.Minute)
	f.advance(t, time.Minute)

	require.Eventually(t, func() bool {
		return f.m.Session().Status == domainauth.StatusUnauthenticated
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, f.api.Calls("Refresh"))
	assert.Zero(t, f.api.Calls("Logout"), "watcher logout is silent")
	assert.Empty(t, f.logouts())
	_, _, ok, err := f.m.Storage().GetStoredToken(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWatcher_WaitsForHealthyBackend(t *testing.T) {
	conn := mockauth.NewStaticConnectivity(false)
	prober := mocks.NewMockHealthProber(gomock.NewController(t))
	prober.EXPECT().Probe(gomock.Any()).Return(nil).AnyTimes()

	f := newTestManager(t, func(o *Options) {
		o.Coordinator = health.MustNewCoordinator(health.Options{
			Prober:       prober,
			Connectivity: conn,
			Clock:        o.Clock,
		})
	})
	f.login(t)

	f.advance(t, 30*time.Minute)
	f.advance(t, 24*time.Minute)
	f.waitIdle(t)
	assert.Zero(t, f.api.Calls("Refresh"), "offline backend defers the refresh")
	assert.Equal(t, domainauth.StatusAuthenticated, f.m.Session().Status)

	conn.Set(true)
	f.advance(t, 5*time.Minute)
	f.waitIdle(t)
	assert.Equal(t, 1, f.api.Calls("Refresh"))
}

func TestWatcher_StopsOnLogout(t *testing.T) {
	f := newTestManager(t)
	f.login(t)
	f.waitIdle(t)
	f.m.Logout(context.Background(), LogoutOptions{Silent: true})

	f.clock.Advance(2 * time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.api.Calls("Refresh"))
}

func TestRefresh_AuthErrorEndsSession(t *testing.T) {
	f := newTestManager(t)
	f.login(t)
	f.api.RefreshFunc = func(context.Context) (domainauth.AuthResult, error) {
		return domainauth.AuthResult{}, apperrors.Authentication("Session expired")
	}

	assert.False(t, f.m.Refresh(context.Background()))
	assert.Equal(t, domainauth.StatusUnauthenticated, f.m.Session().Status)
	assert.Empty(t, f.logouts(), "refresh rejection logs out silently")
}

func TestRefresh_ExpiredTokenFailureClearsSession(t *testing.T) {
	f := newTestManager(t)
	f.login(t)
	f.api.RefreshFunc = func(context.Context) (domainauth.AuthResult, error) {
		return domainauth.AuthResult{}, &network.Error{Kind: network.KindOffline}
	}

	f.clock.Advance(2 * time.Hour)
	assert.False(t, f.m.Refresh(context.Background()))
	assert.Equal(t, domainauth.StatusUnauthenticated, f.m.Session().Status)
}

func TestRefresh_RequiresToken(t *testing.T) {
	f := newTestManager(t)
	assert.False(t, f.m.Refresh(context.Background()))
	assert.Zero(t, f.api.Calls("Refresh"))
}

func TestRefresh_ConcurrentCallsShareRequest(t *testing.T) {
	f := newTestManager(t)
	f.login(t)

	release := make(chan struct{})
	entered := make(chan struct{}, 10)
	f.api.RefreshFunc = func(context.Context) (domainauth.AuthResult, error) {
		entered <- struct{}{}
		<-release
		return domainauth.AuthResult{AccessToken: "shared", ExpiresAt: f.clock.Now().Add(time.Hour)}, nil
	}

	var wg sync.WaitGroup
	results := make([]bool, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.m.Refresh(context.Background())
		}()
	}
	<-entered
	assert.Equal(t, domainauth.StatusRefreshNeeded, f.m.Session().Status)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, f.api.Calls("Refresh"))
	for _, ok := range results {
		assert.True(t, ok)
	}
	assert.Equal(t, "shared", f.m.Session().AccessToken)
}

func TestRefresh_StaleResultDiscardedAfterLogout(t *testing.T) {
	ctx := context.Background()
	f := newTestManager(t)
	f.login(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	f.api.RefreshFunc = func(context.Context) (domainauth.AuthResult, error) {
		close(entered)
		<-release
		return domainauth.AuthResult{AccessToken: "late", ExpiresAt: f.clock.Now().Add(time.Hour)}, nil
	}

	done := make(chan bool, 1)
	go func() { done <- f.m.Refresh(ctx) }()
	<-entered

	f.m.Logout(ctx, LogoutOptions{})
	close(release)

	assert.False(t, <-done)
	s := f.m.Session()
	assert.Equal(t, domainauth.StatusUnauthenticated, s.Status)
	assert.Empty(t, s.AccessToken)
	_, _, ok, err := f.m.Storage().GetStoredToken(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefresh_StaleResultDiscardedAfterNewLogin(t *testing.T) {
	ctx := context.Background()
	f := newTestManager(t)
	f.login(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	f.api.RefreshFunc = func(context.Context) (domainauth.AuthResult, error) {
		close(entered)
		<-release
		return domainauth.AuthResult{AccessToken: "late", ExpiresAt: f.clock.Now().Add(time.Hour)}, nil
	}

	done := make(chan bool, 1)
	go func() { done <- f.m.Refresh(ctx) }()
	<-entered

	f.api.DefaultResult.AccessToken = "fresh-login"
	f.login(t)
	close(release)

	assert.False(t, <-done)
	assert.Equal(t, "fresh-login", f.m.Session().AccessToken)
	token, _, ok, err := f.m.Storage().GetStoredToken(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh-login", token)
}

func TestRefreshIfDue_RespectsMinInterval(t *testing.T) {
	f := newTestManager(t)
	f.login(t)

	assert.True(t, f.m.RefreshIfDue(context.Background()))
	assert.False(t, f.m.RefreshIfDue(context.Background()))
	assert.Equal(t, 1, f.api.Calls("Refresh"))

	f.clock.Advance(10 * time.Minute)
	assert.True(t, f.m.RefreshIfDue(context.Background()))
	assert.Equal(t, 2, f.api.Calls("Refresh"))
}

func TestWatcher_ReschedulesAfterOutsideRefresh(t *testing.T) {
	ctx := context.Background()
	f := newTestManager(t)
	start := f.clock.Now()
	f.api.DefaultResult.ExpiresAt = start.Add(40 * time.Minute)

	var mu sync.Mutex
	var at []time.Duration
	f.api.RefreshFunc = func(context.Context) (domainauth.AuthResult, error) {
		now := f.clock.Now()
		mu.Lock()
		at = append(at, now.Sub(start))
		mu.Unlock()
		return testutil.NewAuthResult().WithToken("mock-token-2", now.Add(40*time.Minute)).Build(), nil
	}
	calls := func() []time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return append([]time.Duration(nil), at...)
	}
	f.login(t)

	// The watcher targets t=30m; a manual refresh lands first with a token valid until 65m.
	f.advance(t, 25*time.Minute)
	require.True(t, f.m.Refresh(ctx))

	f.advance(t, 5*time.Minute)
	f.advance(t, 5*time.Minute)
	f.waitIdle(t)
	assert.Equal(t, []time.Duration{25 * time.Minute}, calls(), "no refresh before the new target")

	// New target: 80% of the 30m left at t=35m.
	f.advance(t, 24*time.Minute)
	f.waitIdle(t)
	assert.Equal(t, []time.Duration{25 * time.Minute, 59 * time.Minute}, calls())
}
