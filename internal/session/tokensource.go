package session

import (
	"errors"

	"golang.org/x/oauth2"
)

// errNoToken is returned by the token source while no session token is held.
var errNoToken = errors.New("session: no access token")

type tokenSource struct {
	m *Manager
}

// Token implements oauth2.TokenSource from the current session.
func (ts tokenSource) Token() (*oauth2.Token, error) {
	token, expiresAt := ts.m.bearer()
	if token == "" {
		return nil, errNoToken
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      expiresAt,
	}, nil
}
