package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"sync"
	"time"

	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthAPI      = (*FakeAuthAPI)(nil)
	_ ports.Connectivity = (*StaticConnectivity)(nil)
)

// FakeAuthAPI simulates the auth backend. Each method delegates to its Func field when set and
// otherwise answers from DefaultResult/DefaultUser. Calls are counted per method.
type FakeAuthAPI struct {
	LoginFunc           func(ctx context.Context, in ports.LoginInput) (domainauth.AuthResult, error)
	RegisterFunc        func(ctx context.Context, in ports.RegisterInput) error
	VerifyAccountFunc   func(ctx context.Context, email, code string) (domainauth.AuthResult, error)
	MeFunc              func(ctx context.Context) (*domainauth.User, error)
	UpdateUserFunc      func(ctx context.Context, in ports.UpdateUserInput) (*domainauth.User, error)
	LogoutFunc          func(ctx context.Context, allDevices bool) error
	RefreshFunc         func(ctx context.Context) (domainauth.AuthResult, error)
	SendMagicLinkFunc   func(ctx context.Context, email string) error
	VerifyMagicLinkFunc func(ctx context.Context, token string) (domainauth.AuthResult, error)
	ResetPasswordFunc   func(ctx context.Context, in ports.ResetPasswordInput) error

	// Deterministic values for predictable testing
	DefaultUser   *domainauth.User
	DefaultResult domainauth.AuthResult

	mu    sync.Mutex
	calls map[string]int
}

// NewFakeAuthAPI creates a FakeAuthAPI whose default result is a token valid for an hour
// after now.
func NewFakeAuthAPI(now time.Time) *FakeAuthAPI {
	user := &domainauth.User{
		ID:            "mock-user-1",
		Email:         "mock.user@example.com",
		FullName:      "Mock User",
		EmailVerified: true,
		Roles:         []string{"user"},
	}
	return &FakeAuthAPI{
		DefaultUser: user,
		DefaultResult: domainauth.AuthResult{
			User:        user,
			AccessToken: "mock-token-1",
			ExpiresAt:   now.Add(time.Hour),
		},
	}
}

func (f *FakeAuthAPI) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
}

// Calls returns how many times method was invoked.
func (f *FakeAuthAPI) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FakeAuthAPI) result() domainauth.AuthResult {
	res := f.DefaultResult
	res.User = res.User.Clone()
	return res
}

func (f *FakeAuthAPI) Login(ctx context.Context, in ports.LoginInput) (domainauth.AuthResult, error) {
	f.record("Login")
	if f.LoginFunc != nil {
		return f.LoginFunc(ctx, in)
	}
	return f.result(), nil
}

func (f *FakeAuthAPI) Register(ctx context.Context, in ports.RegisterInput) error {
	f.record("Register")
	if f.RegisterFunc != nil {
		return f.RegisterFunc(ctx, in)
	}
	return nil
}

func (f *FakeAuthAPI) VerifyAccount(ctx context.Context, email, code string) (domainauth.AuthResult, error) {
	f.record("VerifyAccount")
	if f.VerifyAccountFunc != nil {
		return f.VerifyAccountFunc(ctx, email, code)
	}
	return f.result(), nil
}

func (f *FakeAuthAPI) Me(ctx context.Context) (*domainauth.User, error) {
	f.record("Me")
	if f.MeFunc != nil {
		return f.MeFunc(ctx)
	}
	if f.DefaultUser == nil {
		return nil, errors.New("no default user")
	}
	return f.DefaultUser.Clone(), nil
}

func (f *FakeAuthAPI) UpdateUser(ctx context.Context, in ports.UpdateUserInput) (*domainauth.User, error) {
	f.record("UpdateUser")
	if f.UpdateUserFunc != nil {
		return f.UpdateUserFunc(ctx, in)
	}
	u := f.DefaultUser.Clone()
	if u == nil {
		u = &domainauth.User{}
	}
	if in.FullName != nil {
		u.FullName = *in.FullName
	}
	if in.AvatarURL != nil {
		u.AvatarURL = *in.AvatarURL
	}
	return u, nil
}

func (f *FakeAuthAPI) Logout(ctx context.Context, allDevices bool) error {
	f.record("Logout")
	if f.LogoutFunc != nil {
		return f.LogoutFunc(ctx, allDevices)
	}
	return nil
}

func (f *FakeAuthAPI) Refresh(ctx context.Context) (domainauth.AuthResult, error) {
	f.record("Refresh")
	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx)
	}
	return f.result(), nil
}

func (f *FakeAuthAPI) SendMagicLink(ctx context.Context, email string) error {
	f.record("SendMagicLink")
	if f.SendMagicLinkFunc != nil {
		return f.SendMagicLinkFunc(ctx, email)
	}
	return nil
}

func (f *FakeAuthAPI) VerifyMagicLink(ctx context.Context, token string) (domainauth.AuthResult, error) {
	f.record("VerifyMagicLink")
	if f.VerifyMagicLinkFunc != nil {
		return f.VerifyMagicLinkFunc(ctx, token)
	}
	return f.result(), nil
}

func (f *FakeAuthAPI) ResetPassword(ctx context.Context, in ports.ResetPasswordInput) error {
	f.record("ResetPassword")
	if f.ResetPasswordFunc != nil {
		return f.ResetPasswordFunc(ctx, in)
	}
	return nil
}

// StaticConnectivity is a Connectivity whose state tests flip with Set.
type StaticConnectivity struct {
	mu        sync.Mutex
	online    bool
	listeners []func(bool)
}

// NewStaticConnectivity creates a StaticConnectivity in the given state.
func NewStaticConnectivity(online bool) *StaticConnectivity {
	return &StaticConnectivity{online: online}
}

func (s *StaticConnectivity) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set changes the state and synchronously notifies subscribers, even when unchanged.
func (s *StaticConnectivity) Set(online bool) {
	s.mu.Lock()
	s.online = online
	listeners := append(make([]func(bool), 0, len(s.listeners)), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(online)
		}
	}
}

func (s *StaticConnectivity) Subscribe(fn func(online bool)) func() {
	s.mu.Lock()
	idx := len(s.listeners)
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if idx < len(s.listeners) {
			s.listeners[idx] = nil
		}
		s.mu.Unlock()
	}
}
