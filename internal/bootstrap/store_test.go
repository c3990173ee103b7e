package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
)

func TestOpenStore(t *testing.T) {
	server := miniredis.RunT(t)

	tests := []struct {
		name string
		deps StoreDeps
	}{
		{
			name: "memory",
			deps: StoreDeps{Store: config.StoreConfig{Backend: config.StoreBackendMemory}},
		},
		{
			name: "file",
			deps: StoreDeps{Store: config.StoreConfig{
				Backend:  config.StoreBackendFile,
				FilePath: filepath.Join(t.TempDir(), "state.json"),
			}},
		},
		{
			name: "redis",
			deps: StoreDeps{
				Store: config.StoreConfig{Backend: config.StoreBackendRedis, KeyPrefix: "authsession:test:"},
				Redis: config.RedisConfig{URI: server.Addr()},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := OpenStore(tt.deps)
			require.NoError(t, err)
			defer func() { require.NoError(t, store.Close()) }()
			assert.Equal(t, tt.deps.Store.Backend, store.Backend)

			ctx := context.Background()
			require.NoError(t, store.KV.Set(ctx, "accessToken", "tok"))
			got, ok, err := store.KV.Get(ctx, "accessToken")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "tok", got)
		})
	}

	assert.True(t, server.Exists("authsession:test:accessToken"))
}

func TestOpenStore_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	deps := StoreDeps{Store: config.StoreConfig{Backend: config.StoreBackendFile, FilePath: path}}
	ctx := context.Background()

	first, err := OpenStore(deps)
	require.NoError(t, err)
	require.NoError(t, first.KV.Set(ctx, "loginAttempts", "2"))

	second, err := OpenStore(deps)
	require.NoError(t, err)
	got, ok, err := second.KV.Get(ctx, "loginAttempts")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", got)
}

func TestOpenStore_Errors(t *testing.T) {
	_, err := OpenStore(StoreDeps{Store: config.StoreConfig{Backend: "floppy"}})
	require.Error(t, err)

	_, err = OpenStore(StoreDeps{
		Store: config.StoreConfig{Backend: config.StoreBackendRedis},
		Redis: config.RedisConfig{},
	})
	require.Error(t, err)

	var nilStore *Store
	assert.NoError(t, nilStore.Close())
}
