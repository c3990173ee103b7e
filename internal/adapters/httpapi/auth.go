package httpapi

import (
	"context"
	"net/http"
	"net/url"

	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
)

// Auth endpoint paths relative to the base URL.
const (
	PathLogin           = "/auth/login"
	PathRegister        = "/auth/register"
	PathVerifyAccount   = "/auth/verify-account"
	PathMe              = "/auth/me"
	PathLogout          = "/auth/logout"
	PathRefresh         = "/auth/refresh"
	PathMagicLink       = "/auth/magic-link"
	PathVerifyMagicLink = "/auth/verify-magic-link/"
	PathResetPassword   = "/auth/reset-password"
	PathTwoFactorLogin  = "/auth/2fa/verify"
)

func (c *Client) authResult(ctx context.Context, r request) (domainauth.AuthResult, error) {
	var wire authResultWire
	r.out = &wire
	if err := c.do(ctx, r); err != nil {
		return domainauth.AuthResult{}, err
	}
	return wire.toDomain(c.clock.Now()), nil
}

func (c *Client) Login(ctx context.Context, in ports.LoginInput) (domainauth.AuthResult, error) {
	return c.authResult(ctx, request{
		method: http.MethodPost,
		path:   PathLogin,
		body: loginBody{
			Email:        in.Email,
			Password:     in.Password,
			SecurityInfo: securityInfoPtr(in.SecurityInfo),
		},
	})
}

func (c *Client) Register(ctx context.Context, in ports.RegisterInput) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   PathRegister,
		body:   registerBody(in),
	})
}

func (c *Client) VerifyAccount(ctx context.Context, email, code string) (domainauth.AuthResult, error) {
	return c.authResult(ctx, request{
		method: http.MethodPost,
		path:   PathVerifyAccount,
		body:   verifyAccountBody{Email: email, Code: code},
	})
}

func (c *Client) Me(ctx context.Context) (*domainauth.User, error) {
	var u domainauth.User
	if err := c.do(ctx, request{method: http.MethodGet, path: PathMe, out: &u, bearer: true}); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) UpdateUser(ctx context.Context, in ports.UpdateUserInput) (*domainauth.User, error) {
	var u domainauth.User
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   PathMe,
		body:   updateUserBody(in),
		out:    &u,
		bearer: true,
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Logout(ctx context.Context, allDevices bool) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   PathLogout,
		body:   logoutBody{AllDevices: allDevices},
		bearer: true,
	})
}

func (c *Client) Refresh(ctx context.Context) (domainauth.AuthResult, error) {
	return c.authResult(ctx, request{method: http.MethodPost, path: PathRefresh, bearer: true})
}

func (c *Client) SendMagicLink(ctx context.Context, email string) error {
	return c.do(ctx, request{method: http.MethodPost, path: PathMagicLink, body: emailBody{Email: email}})
}

func (c *Client) VerifyMagicLink(ctx context.Context, token string) (domainauth.AuthResult, error) {
	return c.authResult(ctx, request{method: http.MethodGet, path: PathVerifyMagicLink + url.PathEscape(token)})
}

func (c *Client) ResetPassword(ctx context.Context, in ports.ResetPasswordInput) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   PathResetPassword,
		body:   resetPasswordBody{Token: in.Token, Password: in.Password, SecurityInfo: in.SecurityInfo},
	})
}
