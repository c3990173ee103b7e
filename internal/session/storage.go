package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
)

// Keys of the client-persisted state.
const (
	KeyAccessToken             = "accessToken"
	KeyTokenExpiresAt          = "tokenExpiresAt"
	KeyLoginAttempts           = "loginAttempts"
	KeyLoginLockedUntil        = "loginLockedUntil"
	KeyLastAuthInitTime        = "lastAuthInitTime"
	KeyLastRecoveryAttemptTime = "lastRecoveryAttemptTime"
)

// Storage is a typed view over the durable client store. The bearer token kept here is a
// fallback; HTTP-only cookies held by the transport are the primary credential.
type Storage struct {
	kv ports.KeyValueStore
}

// NewStorage wraps kv.
func NewStorage(kv ports.KeyValueStore) (*Storage, error) {
	if kv == nil {
		return nil, errors.New("KeyValueStore is required")
	}
	return &Storage{kv: kv}, nil
}

// SetStoredToken persists the token and its expiry.
func (s *Storage) SetStoredToken(ctx context.Context, token string, expiresAt time.Time) error {
	if err := s.kv.Set(ctx, KeyAccessToken, token); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	return s.setTime(ctx, KeyTokenExpiresAt, expiresAt)
}

// GetStoredToken returns the persisted token. ok is false when none is stored.
func (s *Storage) GetStoredToken(ctx context.Context) (token string, expiresAt time.Time, ok bool, err error) {
	token, ok, err = s.kv.Get(ctx, KeyAccessToken)
	if err != nil || !ok || token == "" {
		return "", time.Time{}, false, err
	}
	expiresAt, err = s.getTime(ctx, KeyTokenExpiresAt)
	if err != nil {
		return "", time.Time{}, false, err
	}
	return token, expiresAt, true, nil
}

// IsTokenExpired reports whether the stored token is missing or expired at now. A token
// without a recorded expiry is treated as expired.
func (s *Storage) IsTokenExpired(ctx context.Context, now time.Time) (bool, error) {
	_, expiresAt, ok, err := s.GetStoredToken(ctx)
	if err != nil {
		return true, err
	}
	return !ok || expiresAt.IsZero() || !now.Before(expiresAt), nil
}

// ClearStoredToken removes the token and its expiry.
func (s *Storage) ClearStoredToken(ctx context.Context) error {
	return errors.Join(
		s.kv.Delete(ctx, KeyAccessToken),
		s.kv.Delete(ctx, KeyTokenExpiresAt),
	)
}

// LoginAttempts returns the persisted failed-login counter.
func (s *Storage) LoginAttempts(ctx context.Context) (int, error) {
	raw, ok, err := s.kv.Get(ctx, KeyLoginAttempts)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// SetLoginAttempts persists the failed-login counter.
func (s *Storage) SetLoginAttempts(ctx context.Context, n int) error {
	return s.kv.Set(ctx, KeyLoginAttempts, strconv.Itoa(n))
}

// LockedUntil returns the end of the local login lockout, zero when none.
func (s *Storage) LockedUntil(ctx context.Context) (time.Time, error) {
	return s.getTime(ctx, KeyLoginLockedUntil)
}

// SetLockedUntil persists the lockout end; a zero time clears it.
func (s *Storage) SetLockedUntil(ctx context.Context, t time.Time) error {
	return s.setTime(ctx, KeyLoginLockedUntil, t)
}

// LastAuthInitTime returns when the session was last restored.
func (s *Storage) LastAuthInitTime(ctx context.Context) (time.Time, error) {
	return s.getTime(ctx, KeyLastAuthInitTime)
}

// SetLastAuthInitTime records a session restore.
func (s *Storage) SetLastAuthInitTime(ctx context.Context, t time.Time) error {
	return s.setTime(ctx, KeyLastAuthInitTime, t)
}

// LastRecoveryAttemptTime returns when offline recovery last refreshed the session.
func (s *Storage) LastRecoveryAttemptTime(ctx context.Context) (time.Time, error) {
	return s.getTime(ctx, KeyLastRecoveryAttemptTime)
}

// SetLastRecoveryAttemptTime records an offline recovery attempt.
func (s *Storage) SetLastRecoveryAttemptTime(ctx context.Context, t time.Time) error {
	return s.setTime(ctx, KeyLastRecoveryAttemptTime, t)
}

func (s *Storage) setTime(ctx context.Context, key string, t time.Time) error {
	if t.IsZero() {
		return s.kv.Delete(ctx, key)
	}
	return s.kv.Set(ctx, key, t.UTC().Format(time.RFC3339Nano))
}

// getTime returns the zero time for missing or unparseable values.
func (s *Storage) getTime(ctx context.Context, key string) (time.Time, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok || raw == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}
