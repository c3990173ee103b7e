package testutil

import (
	"time"

	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
)

// UserBuilder provides a fluent interface for building domain users for testing.
type UserBuilder struct {
	user *domainauth.User
}

// NewUser creates a UserBuilder with sensible defaults.
func NewUser() *UserBuilder {
	return &UserBuilder{
		user: &domainauth.User{
			ID:            "user-1",
			Email:         "user@example.com",
			FullName:      "Test User",
			EmailVerified: true,
			Roles:         []string{"user"},
		},
	}
}

// WithID sets the user ID.
func (b *UserBuilder) WithID(id string) *UserBuilder {
	b.user.ID = id
	return b
}

// WithEmail sets the email.
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.user.Email = email
	return b
}

// WithRoles replaces the roles.
func (b *UserBuilder) WithRoles(roles ...string) *UserBuilder {
	b.user.Roles = roles
	return b
}

// WithPermissions replaces the permissions.
func (b *UserBuilder) WithPermissions(perms ...string) *UserBuilder {
	b.user.Permissions = perms
	return b
}

// Unverified marks the email as not verified.
func (b *UserBuilder) Unverified() *UserBuilder {
	b.user.EmailVerified = false
	return b
}

// Build returns the constructed user.
func (b *UserBuilder) Build() *domainauth.User {
	return b.user.Clone()
}

// AuthResultBuilder provides a fluent interface for building AuthResult values for testing.
type AuthResultBuilder struct {
	res domainauth.AuthResult
}

// NewAuthResult creates an AuthResultBuilder for a token valid for one hour after TestTime.
func NewAuthResult() *AuthResultBuilder {
	return &AuthResultBuilder{
		res: domainauth.AuthResult{
			User:        NewUser().Build(),
			AccessToken: "access-token-1",
			ExpiresAt:   TestTime().Add(time.Hour),
		},
	}
}

// WithToken sets the access token and its expiry.
func (b *AuthResultBuilder) WithToken(token string, expiresAt time.Time) *AuthResultBuilder {
	b.res.AccessToken = token
	b.res.ExpiresAt = expiresAt
	return b
}

// WithUser sets the user.
func (b *AuthResultBuilder) WithUser(u *domainauth.User) *AuthResultBuilder {
	b.res.User = u
	return b
}

// RequiringTwoFactor turns the result into a first-factor response demanding 2FA.
func (b *AuthResultBuilder) RequiringTwoFactor(sessionID string) *AuthResultBuilder {
	b.res.Requires2FA = true
	b.res.SessionID = sessionID
	b.res.AccessToken = ""
	b.res.ExpiresAt = time.Time{}
	return b
}

// Build returns the constructed result.
func (b *AuthResultBuilder) Build() domainauth.AuthResult {
	out := b.res
	out.User = b.res.User.Clone()
	return out
}
