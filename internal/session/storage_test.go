package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/adapters/memory"
)

func TestNewStorage_RequiresStore(t *testing.T) {
	_, err := NewStorage(nil)
	require.Error(t, err)
}

func TestStorage_TokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	s, err := NewStorage(kv)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, _, ok, err := s.GetStoredToken(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	expired, err := s.IsTokenExpired(ctx, now)
	require.NoError(t, err)
	assert.True(t, expired, "missing expiry counts as expired")

	require.NoError(t, s.SetStoredToken(ctx, "tok", now.Add(time.Hour)))
	token, expiresAt, ok, err := s.GetStoredToken(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
	assert.True(t, expiresAt.Equal(now.Add(time.Hour)))

	expired, err = s.IsTokenExpired(ctx, now)
	require.NoError(t, err)
	assert.False(t, expired)

	expired, err = s.IsTokenExpired(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, expired)

	require.NoError(t, s.ClearStoredToken(ctx))
	_, _, ok, err = s.GetStoredToken(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, kv.Snapshot())
}

func TestStorage_Bookkeeping(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(memory.NewStore())
	require.NoError(t, err)

	n, err := s.LoginAttempts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, s.SetLoginAttempts(ctx, 3))
	n, err = s.LoginAttempts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	at := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	require.NoError(t, s.SetLockedUntil(ctx, at))
	got, err := s.LockedUntil(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	require.NoError(t, s.SetLockedUntil(ctx, time.Time{}))
	got, err = s.LockedUntil(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	require.NoError(t, s.SetLastAuthInitTime(ctx, at))
	got, err = s.LastAuthInitTime(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	require.NoError(t, s.SetLastRecoveryAttemptTime(ctx, at))
	got, err = s.LastRecoveryAttemptTime(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
}
