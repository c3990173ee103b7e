package ports

// Package ports defines interfaces (hexagonal ports) for the auth session client.
// Implementations live in internal/adapters; orchestration in internal/session and internal/health.

import (
	"context"

	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
)

// LoginInput carries first-factor credentials.
type LoginInput struct {
	Email        string
	Password     string
	SecurityInfo domainauth.SecurityInfo
}

// RegisterInput carries new-account fields.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

// UpdateUserInput is a partial profile update; nil fields are left unchanged.
type UpdateUserInput struct {
	FullName  *string
	AvatarURL *string
}

// ResetPasswordInput completes a password reset started out of band.
type ResetPasswordInput struct {
	Token        string
	Password     string
	SecurityInfo domainauth.SecurityInfo
}

// AuthAPI is the token-issuing backend. Requests that need a bearer token obtain it from the
// transport; the port itself is token-agnostic.
type AuthAPI interface {
	Login(ctx context.Context, in LoginInput) (domainauth.AuthResult, error)
	Register(ctx context.Context, in RegisterInput) error
	VerifyAccount(ctx context.Context, email, code string) (domainauth.AuthResult, error)
	Me(ctx context.Context) (*domainauth.User, error)
	UpdateUser(ctx context.Context, in UpdateUserInput) (*domainauth.User, error)
	Logout(ctx context.Context, allDevices bool) error
	Refresh(ctx context.Context) (domainauth.AuthResult, error)
	SendMagicLink(ctx context.Context, email string) error
	VerifyMagicLink(ctx context.Context, token string) (domainauth.AuthResult, error)
	ResetPassword(ctx context.Context, in ResetPasswordInput) error
}

// TwoFactorAPI manages the account's second factor and completes 2FA logins.
type TwoFactorAPI interface {
	Enable(ctx context.Context) (domainauth.TwoFactorSetup, error)
	Verify(ctx context.Context, code string) error
	Disable(ctx context.Context, password string) error
	BackupCodes(ctx context.Context) ([]string, error)
	RegenerateBackupCodes(ctx context.Context) ([]string, error)
	Status(ctx context.Context) (bool, error)
	VerifyLogin(
		ctx context.Context,
		code, sessionID string,
		info domainauth.SecurityInfo,
	) (domainauth.AuthResult, error)
}

// HealthProber performs one reachability probe. A nil error means the backend answered 2xx.
type HealthProber interface {
	Probe(ctx context.Context) error
}

// KeyValueStore is the durable client store for small string values.
type KeyValueStore interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Connectivity is the platform-level online/offline signal.
type Connectivity interface {
	Online() bool
	// Subscribe registers fn for transitions and returns an idempotent unsubscribe func.
	Subscribe(fn func(online bool)) func()
}
