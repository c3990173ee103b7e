package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "y"} {
		t.Setenv("TESTUTIL_FLAG", v)
		assert.True(t, envBool("TESTUTIL_FLAG"), v)
	}
	for _, v := range []string{"", "0", "false", "no"} {
		t.Setenv("TESTUTIL_FLAG", v)
		assert.False(t, envBool("TESTUTIL_FLAG"), v)
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("TESTUTIL_VALUE", "")
	assert.Equal(t, "fallback", getEnvOrDefault("TESTUTIL_VALUE", "fallback"))
	t.Setenv("TESTUTIL_VALUE", "set")
	assert.Equal(t, "set", getEnvOrDefault("TESTUTIL_VALUE", "fallback"))
}

func TestFixedTimeFunc(t *testing.T) {
	now := TestTime()
	fn := FixedTimeFunc(now)
	assert.Equal(t, now, fn())
	assert.Equal(t, now, fn())
}

func TestSetupMiniRedis(t *testing.T) {
	client := SetupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "v", time.Minute).Err())
	got, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestBuilders(t *testing.T) {
	u := NewUser().WithID("u-9").WithRoles("admin").WithPermissions("users:write").Unverified().Build()
	assert.Equal(t, "u-9", u.ID)
	assert.True(t, u.HasRole("admin"))
	assert.True(t, u.HasPermission("users:write"))
	assert.False(t, u.EmailVerified)

	res := NewAuthResult().RequiringTwoFactor("challenge-1").Build()
	assert.True(t, res.Requires2FA)
	assert.Equal(t, "challenge-1", res.SessionID)
	assert.Empty(t, res.AccessToken)
}
