package auth

// Package auth contains domain-level types for the client-side authentication session.
// It is pure and free of transport/storage concerns.

import (
	"slices"
	"time"
)

// Status is the lifecycle state of the client session.
// Keep string form for easy logging and persistence.
type Status string

const (
	StatusLoading             Status = "loading"
	StatusUnauthenticated     Status = "unauthenticated"
	StatusAuthenticated       Status = "authenticated"
	StatusFailed              Status = "failed"
	StatusUnverified          Status = "unverified"
	StatusTwoFactorNeeded     Status = "2fa_needed"
	StatusRegistrationSuccess Status = "registration_success"
	StatusRefreshNeeded       Status = "refresh_needed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusLoading, StatusUnauthenticated, StatusAuthenticated, StatusFailed,
		StatusUnverified, StatusTwoFactorNeeded, StatusRegistrationSuccess, StatusRefreshNeeded:
		return true
	}
	return false
}

// HoldsToken reports whether a session in this status may carry an access token.
// refresh_needed may hold a stale token while a new one is fetched.
func (s Status) HoldsToken() bool {
	return s == StatusAuthenticated || s == StatusRefreshNeeded
}

// User is the authenticated principal as returned by the backend.
type User struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	FullName      string   `json:"fullName"`
	EmailVerified bool     `json:"emailVerified"`
	Roles         []string `json:"roles,omitempty"`
	Permissions   []string `json:"permissions,omitempty"`
	AvatarURL     string   `json:"avatarUrl,omitempty"`
}

// HasRole reports whether the user carries role.
func (u *User) HasRole(role string) bool {
	return u != nil && slices.Contains(u.Roles, role)
}

// HasPermission reports whether the user carries permission.
func (u *User) HasPermission(permission string) bool {
	return u != nil && slices.Contains(u.Permissions, permission)
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Roles = slices.Clone(u.Roles)
	cp.Permissions = slices.Clone(u.Permissions)
	return &cp
}

// Session is a snapshot of the client session. Only the session manager produces these;
// callers always receive copies.
type Session struct {
	User        *User
	AccessToken string
	ExpiresAt   time.Time
	Status      Status
	Error       string
}

// IsAuthenticated reports whether the session currently carries a usable token.
func (s Session) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.AccessToken != ""
}

// TimeUntilExpiry returns the remaining token lifetime relative to now.
// Zero when no token is held or it already expired.
func (s Session) TimeUntilExpiry(now time.Time) time.Duration {
	if s.AccessToken == "" || s.ExpiresAt.IsZero() {
		return 0
	}
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Clone returns a deep copy of the snapshot.
func (s Session) Clone() Session {
	s.User = s.User.Clone()
	return s
}

// AuthResult is the shape shared by login, verification, magic-link and refresh responses.
type AuthResult struct {
	User        *User     `json:"user"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Requires2FA bool      `json:"requires2FA"`
	SessionID   string    `json:"sessionId"`
}

// SecurityInfo describes the device performing a sensitive operation.
type SecurityInfo struct {
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
	UserAgent         string `json:"userAgent,omitempty"`
	Platform          string `json:"platform,omitempty"`
}

// TwoFactorChallenge is the pending second-factor step of a single login attempt.
// SessionID is the short-lived challenge identifier, never a persisted session token.
type TwoFactorChallenge struct {
	SessionID   string
	Requires2FA bool
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Remaining returns the client-side time left on the challenge.
func (c TwoFactorChallenge) Remaining(now time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// TwoFactorSetup carries enrollment material for a new authenticator.
type TwoFactorSetup struct {
	Secret    string `json:"secret"`
	QRCodeURL string `json:"qrCodeUrl"`
}

// TwoFactorState is the client view of the account's second factor.
type TwoFactorState struct {
	Enabled     bool
	Setup       *TwoFactorSetup
	BackupCodes []string
}
