package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
)

type fakeBackend struct {
	srv         *httptest.Server
	twoFactor   atomic.Bool
	healthy     atomic.Bool
	logoutCalls atomic.Int64
	lastBody    atomic.Value
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}
	b.healthy.Store(true)
	b.lastBody.Store(map[string]any{})

	signedIn := map[string]any{
		"user":        map[string]any{"id": "u-1", "email": "ada@example.com"},
		"accessToken": "tok-cli",
		"expiresIn":   3600,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !b.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		if b.twoFactor.Load() {
			writeJSON(w, map[string]any{"requires2FA": true, "sessionId": "sess-1"})
			return
		}
		writeJSON(w, signedIn)
	})
	mux.HandleFunc("/auth/2fa/verify", func(w http.ResponseWriter, r *http.Request) {
		b.recordBody(r)
		writeJSON(w, signedIn)
	})
	mux.HandleFunc("/auth/verify-account", func(w http.ResponseWriter, r *http.Request) {
		b.recordBody(r)
		writeJSON(w, signedIn)
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-cli" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]any{"message": "not signed in"})
			return
		}
		writeJSON(w, map[string]any{"data": map[string]any{"id": "u-1", "email": "ada@example.com"}})
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		b.logoutCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) recordBody(r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	b.lastBody.Store(body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestContext(t *testing.T, b *fakeBackend, stateFile, stdin string) (*commandContext, *bytes.Buffer) {
	t.Helper()
	cfg := config.AppConfig{
		API: config.APIConfig{BaseURL: b.srv.URL},
		Store: config.StoreConfig{
			Backend:  config.StoreBackendFile,
			FilePath: stateFile,
		},
		Components: "refresh",
	}
	cfg.Sanitize()

	out := &bytes.Buffer{}
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.DiscardHandler),
		Config: cfg,
		In:     strings.NewReader(stdin),
		Out:    out,
	}, out
}

func TestLoginStatusLogout(t *testing.T) {
	b := newFakeBackend(t)
	stateFile := filepath.Join(t.TempDir(), "state.json")

	cmdCtx, out := newTestContext(t, b, stateFile, "")
	require.NoError(t, runLogin(cmdCtx, []string{"--email", "ada@example.com", "--password", "pw"}))
	assert.Contains(t, out.String(), "Signed in as ada@example.com")

	// A later invocation restores the session from the state file.
	cmdCtx, out = newTestContext(t, b, stateFile, "")
	require.NoError(t, runStatus(cmdCtx, nil))
	assert.Contains(t, out.String(), "authenticated")
	assert.Contains(t, out.String(), "ada@example.com")

	cmdCtx, out = newTestContext(t, b, stateFile, "")
	require.NoError(t, runLogout(cmdCtx, []string{"--all-devices"}))
	assert.Contains(t, out.String(), "Signed out")
	assert.Equal(t, int64(1), b.logoutCalls.Load())

	cmdCtx, out = newTestContext(t, b, stateFile, "")
	require.NoError(t, runStatus(cmdCtx, nil))
	assert.Contains(t, out.String(), "unauthenticated")

	cmdCtx, out = newTestContext(t, b, stateFile, "")
	require.NoError(t, runLogout(cmdCtx, nil))
	assert.Contains(t, out.String(), "No active session")
}

func TestLogin_PromptsForPasswordAndTwoFactor(t *testing.T) {
	b := newFakeBackend(t)
	b.twoFactor.Store(true)
	stateFile := filepath.Join(t.TempDir(), "state.json")
	t.Setenv(passwordEnv, "")

	cmdCtx, out := newTestContext(t, b, stateFile, "pw\n123456\n")
	require.NoError(t, runLogin(cmdCtx, []string{"--email", "ada@example.com"}))

	assert.Contains(t, out.String(), "Password: ")
	assert.Contains(t, out.String(), "Two-factor code")
	assert.Contains(t, out.String(), "Signed in as ada@example.com")
	body, _ := b.lastBody.Load().(map[string]any)
	assert.Equal(t, "sess-1", body["sessionId"])
}

func TestVerify_ResumesRegistration(t *testing.T) {
	b := newFakeBackend(t)
	stateFile := filepath.Join(t.TempDir(), "state.json")

	cmdCtx, out := newTestContext(t, b, stateFile, "")
	require.NoError(t, runVerify(cmdCtx, []string{"--email", "ada@example.com", "--code", "123456"}))
	assert.Contains(t, out.String(), "Signed in as ada@example.com")
	body, _ := b.lastBody.Load().(map[string]any)
	assert.Equal(t, "ada@example.com", body["email"])
}

func TestHealth(t *testing.T) {
	b := newFakeBackend(t)
	stateFile := filepath.Join(t.TempDir(), "state.json")

	cmdCtx, out := newTestContext(t, b, stateFile, "")
	require.NoError(t, runHealth(cmdCtx, nil))
	assert.Contains(t, out.String(), "ONLINE")
	assert.Contains(t, out.String(), "true")

	b.healthy.Store(false)
	cmdCtx, out = newTestContext(t, b, stateFile, "")
	require.ErrorIs(t, runHealth(cmdCtx, nil), errBackendUnreachable)
	assert.Contains(t, out.String(), "false")
}

func TestWatch_StopsOnCancel(t *testing.T) {
	b := newFakeBackend(t)
	stateFile := filepath.Join(t.TempDir(), "state.json")

	cmdCtx, _ := newTestContext(t, b, stateFile, "")
	ctx, cancel := context.WithCancel(context.Background())
	cmdCtx.Ctx = ctx

	done := make(chan error, 1)
	go func() { done <- runWatch(cmdCtx, []string{"--components", "refresh,health"}) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatch_RejectsUnknownComponent(t *testing.T) {
	b := newFakeBackend(t)
	cmdCtx, _ := newTestContext(t, b, filepath.Join(t.TempDir(), "state.json"), "")
	require.Error(t, runWatch(cmdCtx, []string{"--components", "scheduler"}))
}

func TestFlagValidation(t *testing.T) {
	tests := []struct {
		name  string
		parse func() error
	}{
		{"login without email", func() error { _, err := parseLoginFlags(nil); return err }},
		{"verify without code", func() error {
			_, err := parseVerifyFlags([]string{"--email", "ada@example.com"})
			return err
		}},
		{"magic link with neither", func() error { _, err := parseMagicLinkFlags(nil); return err }},
		{"magic link with both", func() error {
			_, err := parseMagicLinkFlags([]string{"--email", "a@b.c", "--token", "t"})
			return err
		}},
		{"reset without token", func() error { _, err := parseResetPasswordFlags(nil); return err }},
		{"register without email", func() error { _, err := parseRegisterFlags(nil); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.parse())
		})
	}
}

func TestPrintUsageListsCommands(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printUsage(&out))
	for name := range commands() {
		assert.Contains(t, out.String(), name)
	}
}
