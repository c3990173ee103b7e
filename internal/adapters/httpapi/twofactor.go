package httpapi

import (
	"context"
	"net/http"

	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
)

// Two-factor management paths.
const (
	PathTwoFactorEnable     = "/two-factor/enable"
	PathTwoFactorVerify     = "/two-factor/verify"
	PathTwoFactorDisable    = "/two-factor/disable"
	PathTwoFactorBackup     = "/two-factor/backup-codes"
	PathTwoFactorRegenerate = "/two-factor/regenerate-backup-codes"
	PathTwoFactorStatus     = "/two-factor/status"
)

func (c *Client) Enable(ctx context.Context) (domainauth.TwoFactorSetup, error) {
	var setup domainauth.TwoFactorSetup
	err := c.do(ctx, request{method: http.MethodPost, path: PathTwoFactorEnable, out: &setup, bearer: true})
	return setup, err
}

func (c *Client) Verify(ctx context.Context, code string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   PathTwoFactorVerify,
		body:   codeBody{Token: code},
		bearer: true,
	})
}

func (c *Client) Disable(ctx context.Context, password string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   PathTwoFactorDisable,
		body:   passwordBody{Password: password},
		bearer: true,
	})
}

func (c *Client) BackupCodes(ctx context.Context) ([]string, error) {
	var wire backupCodesWire
	if err := c.do(ctx, request{method: http.MethodGet, path: PathTwoFactorBackup, out: &wire, bearer: true}); err != nil {
		return nil, err
	}
	return wire.BackupCodes, nil
}

func (c *Client) RegenerateBackupCodes(ctx context.Context) ([]string, error) {
	var wire backupCodesWire
	if err := c.do(ctx, request{method: http.MethodPost, path: PathTwoFactorRegenerate, out: &wire, bearer: true}); err != nil {
		return nil, err
	}
	return wire.BackupCodes, nil
}

func (c *Client) Status(ctx context.Context) (bool, error) {
	var wire twoFactorStatusWire
	if err := c.do(ctx, request{method: http.MethodGet, path: PathTwoFactorStatus, out: &wire, bearer: true}); err != nil {
		return false, err
	}
	return wire.Enabled, nil
}

func (c *Client) VerifyLogin(
	ctx context.Context,
	code, sessionID string,
	info domainauth.SecurityInfo,
) (domainauth.AuthResult, error) {
	return c.authResult(ctx, request{
		method: http.MethodPost,
		path:   PathTwoFactorLogin,
		body:   twoFactorLoginBody{Token: code, SessionID: sessionID, SecurityInfo: info},
	})
}
