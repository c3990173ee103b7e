package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
)

// epochMillisThreshold separates second and millisecond unix timestamps.
const epochMillisThreshold = 1_000_000_000_000

// flexTime accepts RFC3339 strings and unix timestamps in seconds or milliseconds.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = parsed
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse expiresAt %q: %w", s, err)
		}
		t.Time = fromUnix(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	i, err := n.Int64()
	if err != nil {
		return fmt.Errorf("parse expiresAt %s: %w", n, err)
	}
	t.Time = fromUnix(i)
	return nil
}

func fromUnix(n int64) time.Time {
	if n >= epochMillisThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// authResultWire is the response shape shared by login, verification and refresh.
type authResultWire struct {
	User        *domainauth.User `json:"user"`
	AccessToken string           `json:"accessToken"`
	ExpiresAt   flexTime         `json:"expiresAt"`
	// ExpiresIn (seconds) is honoured when expiresAt is absent.
	ExpiresIn   int64  `json:"expiresIn"`
	Requires2FA bool   `json:"requires2FA"`
	SessionID   string `json:"sessionId"`
}

func (w authResultWire) toDomain(now time.Time) domainauth.AuthResult {
	expires := w.ExpiresAt.Time
	if expires.IsZero() && w.ExpiresIn > 0 && w.AccessToken != "" {
		expires = now.Add(time.Duration(w.ExpiresIn) * time.Second)
	}
	return domainauth.AuthResult{
		User:        w.User,
		AccessToken: w.AccessToken,
		ExpiresAt:   expires,
		Requires2FA: w.Requires2FA,
		SessionID:   w.SessionID,
	}
}

type loginBody struct {
	Email        string                   `json:"email"`
	Password     string                   `json:"password"`
	SecurityInfo *domainauth.SecurityInfo `json:"securityInfo,omitempty"`
}

type registerBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type verifyAccountBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type updateUserBody struct {
	FullName  *string `json:"fullName,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

type logoutBody struct {
	AllDevices bool `json:"allDevices,omitempty"`
}

type emailBody struct {
	Email string `json:"email"`
}

type resetPasswordBody struct {
	Token        string                  `json:"token"`
	Password     string                  `json:"password"`
	SecurityInfo domainauth.SecurityInfo `json:"securityInfo"`
}

type twoFactorLoginBody struct {
	Token        string                  `json:"token"`
	SessionID    string                  `json:"sessionId"`
	SecurityInfo domainauth.SecurityInfo `json:"securityInfo"`
}

type codeBody struct {
	Token string `json:"token"`
}

type passwordBody struct {
	Password string `json:"password"`
}

type backupCodesWire struct {
	BackupCodes []string `json:"backupCodes"`
}

type twoFactorStatusWire struct {
	Enabled bool `json:"enabled"`
}

func securityInfoPtr(info domainauth.SecurityInfo) *domainauth.SecurityInfo {
	if info == (domainauth.SecurityInfo{}) {
		return nil
	}
	return &info
}
