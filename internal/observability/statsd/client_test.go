package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		" health.check ":          "health.check",
		"auth..operation":         "auth.operation",
		".recovery.action.":       "recovery.action",
		"auth/operation duration": "auth_operation_duration",
		"health:check|c":          "health_check_c",
		"":                        "",
	}
	for input, want := range tests {
		assert.Equal(t, want, cleanName(input), "cleanName(%q)", input)
	}
}

func TestClientLine(t *testing.T) {
	c, err := NewClient(Config{Tags: map[string]string{"env": "prod", " host ": " cli-1 "}})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input func() string
		want  string
	}{
		{
			name: "count with operation tags",
			input: func() string {
				return c.line("auth.operation", "1", "c", map[string]string{"operation": "login", "result": "success"})
			},
			want: "authsession.auth.operation:1|c|#app:authsession,env:prod,host:cli-1,operation:login,result:success",
		},
		{
			name: "per-call tags win",
			input: func() string {
				return c.line("health.check", "1", "c", map[string]string{"env": "stage"})
			},
			want: "authsession.health.check:1|c|#app:authsession,env:stage,host:cli-1",
		},
		{
			name: "reserved characters in tags",
			input: func() string {
				return c.line("recovery.action", "1", "c", map[string]string{"action": "offline,recovery", "a:b": "", "": "x"})
			},
			want: "authsession.recovery.action:1|c|#a_b,action:offline_recovery,app:authsession,env:prod,host:cli-1",
		},
		{
			name:  "empty name",
			input: func() string { return c.line(" . ", "1", "c", nil) },
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.input())
		})
	}
}

func TestNewClientPrefix(t *testing.T) {
	c, err := NewClient(Config{Prefix: " desktop.auth. "})
	require.NoError(t, err)
	assert.Equal(t, "desktop.auth.health.probe.duration:1.5|ms|#app:desktop.auth",
		c.line("health.probe.duration", formatFloat(1.5), "ms", nil))

	c, err = NewClient(Config{Prefix: "x", Tags: map[string]string{"app": "cli"}})
	require.NoError(t, err)
	assert.Equal(t, "x.auth.status_transition:1|c|#app:cli", c.line("auth.status_transition", "1", "c", nil))
}

func TestClientEnabledAndClose(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	c := &Client{prefix: DefaultPrefix, conn: clientConn}
	assert.True(t, c.Enabled())
	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	require.NoError(t, c.Close())
	c.Count("health.check", 1, nil)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	require.NoError(t, nilClient.Close())
	nilClient.Timing("auth.operation.duration", time.Second, nil)
}

func TestNewClientDisabled(t *testing.T) {
	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	c, err = NewClient(Config{Address: "127.0.0.1:8125"})
	require.NoError(t, err)
	assert.False(t, c.Enabled(), "an address alone does not enable metrics")
}

func TestNewClientDialError(t *testing.T) {
	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}
