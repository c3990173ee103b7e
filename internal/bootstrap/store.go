package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/adapters/filestore"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/adapters/memory"
	redisstore "github.com/nguyenhoangdanh/dnsecure-sub000/internal/adapters/redis"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
)

// StoreDeps groups the configuration needed to open the client state store.
type StoreDeps struct {
	Store  config.StoreConfig
	Redis  config.RedisConfig
	Logger *slog.Logger
}

// Store is an opened client state store plus the func releasing its resources.
type Store struct {
	KV      ports.KeyValueStore
	Backend config.StoreBackend
	closeFn func() error
}

// Close releases the store's connections. Safe on stores without resources.
func (s *Store) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// OpenStore opens the configured KeyValueStore backend.
func OpenStore(deps StoreDeps) (*Store, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch deps.Store.Backend {
	case config.StoreBackendMemory:
		return &Store{KV: memory.NewStore(), Backend: config.StoreBackendMemory}, nil

	case config.StoreBackendFile, "":
		path := deps.Store.FilePath
		if path == "" {
			p, err := filestore.DefaultPath()
			if err != nil {
				return nil, fmt.Errorf("resolve state file path: %w", err)
			}
			path = p
		}
		fs, err := filestore.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("open state file: %w", err)
		}
		logger.Debug("state store opened", "backend", config.StoreBackendFile, "path", fs.Path())
		return &Store{KV: fs, Backend: config.StoreBackendFile}, nil

	case config.StoreBackendRedis:
		client, err := ConnectRedis(RedisDeps{RedisConfig: deps.Redis, Logger: logger})
		if err != nil {
			return nil, err
		}
		return &Store{
			KV:      redisstore.NewStoreWithPrefix(client, deps.Store.KeyPrefix),
			Backend: config.StoreBackendRedis,
			closeFn: client.Close,
		}, nil

	default:
		return nil, errors.New("unknown store backend: " + string(deps.Store.Backend))
	}
}
