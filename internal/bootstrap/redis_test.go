package bootstrap

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
)

func TestConnectRedis_Direct(t *testing.T) {
	server := miniredis.RunT(t)
	ctx := context.Background()

	for _, uri := range []string{server.Addr(), "redis://" + server.Addr() + "/0"} {
		client, err := ConnectRedis(RedisDeps{RedisConfig: config.RedisConfig{URI: uri}})
		require.NoError(t, err, uri)
		require.NoError(t, client.Set(ctx, "authsession:accessToken", "tok", 0).Err())

		name, err := client.ClientGetName(ctx).Result()
		require.NoError(t, err)
		assert.Equal(t, sessionRedisName, name)
		require.NoError(t, client.Close())
	}
	got, err := server.Get("authsession:accessToken")
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
}

func TestConnectRedis_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.RedisConfig
	}{
		{name: "direct without uri", cfg: config.RedisConfig{URI: " "}},
		{name: "cluster without nodes", cfg: config.RedisConfig{UseCluster: true}},
		{name: "sentinel without nodes", cfg: config.RedisConfig{UseSentinel: true, SentinelNodes: []string{" "}}},
		{name: "sentinel without master", cfg: config.RedisConfig{UseSentinel: true, SentinelNodes: []string{"s:26379"}}},
		{name: "malformed url", cfg: config.RedisConfig{URI: "redis://:bad@host:port:extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConnectRedis(RedisDeps{RedisConfig: tt.cfg})
			require.Error(t, err)
		})
	}
}

func TestConnectRedis_Unreachable(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	_, err := ConnectRedis(RedisDeps{RedisConfig: config.RedisConfig{URI: addr}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis "+addr)
}

func TestSessionRedisOptions(t *testing.T) {
	t.Run("url credentials override config and stay out of target", func(t *testing.T) {
		opts, target, err := sessionRedisOptions(config.RedisConfig{
			URI:      "rediss://bob:pw@cache.internal:6380/2",
			Password: "configured",
		})
		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6380", target)
		assert.Equal(t, []string{"cache.internal:6380"}, opts.Addrs)
		assert.Equal(t, "bob", opts.Username)
		assert.Equal(t, "pw", opts.Password)
		assert.Equal(t, 2, opts.DB)
		assert.NotNil(t, opts.TLSConfig)
		assert.Equal(t, sessionRedisName, opts.ClientName)
		assert.Equal(t, redisPoolSize, opts.PoolSize)
	})

	t.Run("plain address keeps configured password", func(t *testing.T) {
		opts, _, err := sessionRedisOptions(config.RedisConfig{URI: " cache:6379 ", Password: "configured", DB: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"cache:6379"}, opts.Addrs)
		assert.Equal(t, "configured", opts.Password)
		assert.Equal(t, 3, opts.DB)
	})

	t.Run("cluster falls back to uri", func(t *testing.T) {
		opts, target, err := sessionRedisOptions(config.RedisConfig{
			UseCluster: true,
			URI:        "redis://:pw@cfg-endpoint:6379",
		})
		require.NoError(t, err)
		assert.True(t, opts.IsClusterMode)
		assert.Equal(t, []string{"cfg-endpoint:6379"}, opts.Addrs)
		assert.Equal(t, "pw", opts.Password)
		assert.Equal(t, "cluster:cfg-endpoint:6379", target)
	})

	t.Run("cluster nodes win over uri", func(t *testing.T) {
		opts, target, err := sessionRedisOptions(config.RedisConfig{
			UseCluster:   true,
			URI:          "ignored:6379",
			ClusterNodes: []string{" a:1 ", "", "b:2"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a:1", "b:2"}, opts.Addrs)
		assert.Equal(t, "cluster:a:1,b:2", target)
	})

	t.Run("sentinel", func(t *testing.T) {
		opts, target, err := sessionRedisOptions(config.RedisConfig{
			UseSentinel:        true,
			SentinelNodes:      []string{"s1:26379", "s2:26379"},
			SentinelMasterName: "sessions",
			SentinelPassword:   "spw",
		})
		require.NoError(t, err)
		assert.Equal(t, "sessions", opts.MasterName)
		assert.Equal(t, "spw", opts.SentinelPassword)
		assert.Equal(t, "sentinel:sessions", target)
	})
}
