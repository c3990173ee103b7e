package session

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/adapters/memory"
	apperrors "github.com/nguyenhoangdanh/dnsecure-sub000/internal/errors"
)

func newTestLockout(t *testing.T) (*Lockout, *clockwork.FakeClock) {
	t.Helper()
	store, err := NewStorage(memory.NewStore())
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	l, err := NewLockout(LockoutOptions{
		Store:  store,
		Config: config.LockoutConfig{MaxAttempts: 5, Duration: 60 * time.Second},
		Clock:  clock,
	})
	require.NoError(t, err)
	return l, clock
}

func TestNewLockout_RequiresStorage(t *testing.T) {
	_, err := NewLockout(LockoutOptions{})
	require.Error(t, err)
}

func TestLockout_LocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLockout(t)

	for i := 1; i <= 4; i++ {
		require.NoError(t, l.Check(ctx), "attempt %d", i)
		d, err := l.RecordFailure(ctx)
		require.NoError(t, err)
		assert.Zero(t, d)
	}
	require.NoError(t, l.Check(ctx))
	d, err := l.RecordFailure(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, d)

	err = l.Check(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsLocked(err))

	clock.Advance(59 * time.Second)
	remaining, err := l.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Second, remaining)

	clock.Advance(time.Second)
	require.NoError(t, l.Check(ctx))
	n, err := l.Attempts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "expired lockout resets the counter")
}

func TestLockout_Reset(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLockout(t)

	for range 5 {
		_, err := l.RecordFailure(ctx)
		require.NoError(t, err)
	}
	require.Error(t, l.Check(ctx))

	require.NoError(t, l.Reset(ctx))
	require.NoError(t, l.Check(ctx))
	n, err := l.Attempts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
