package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
)

// sessionRedisName is sent with CLIENT SETNAME so state-store connections are easy to spot.
const sessionRedisName = "authsession"

// The state store holds a few small keys per client, so the pool stays small and the
// timeouts short enough that a dead server fails the command rather than the session.
const (
	redisPoolSize    = 4
	redisDialTimeout = 3 * time.Second
	redisIOTimeout   = 2 * time.Second
	redisPingTimeout = 5 * time.Second
)

// RedisDeps contains configuration for the Redis connection backing the shared store.
type RedisDeps struct {
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// ConnectRedis opens the session state client for a direct, sentinel or cluster deployment
// and pings it before returning.
//
//nolint:ireturn // the topology decides between single, failover and cluster clients.
func ConnectRedis(deps RedisDeps) (redis.UniversalClient, error) {
	opts, target, err := sessionRedisOptions(deps.RedisConfig)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis %s: %w", target, pingErr)
	}

	if deps.Logger != nil {
		deps.Logger.Info("session store connected", "backend", "redis", "target", target)
	}
	return client, nil
}

// sessionRedisOptions maps the store config onto go-redis options. target describes the
// deployment for logs and errors and never carries credentials.
func sessionRedisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	opts := &redis.UniversalOptions{
		ClientName:   sessionRedisName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     redisPoolSize,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
	}

	switch {
	case cfg.UseCluster:
		opts.IsClusterMode = true
		opts.Addrs = trimAddrs(cfg.ClusterNodes)
		if len(opts.Addrs) == 0 && strings.TrimSpace(cfg.URI) != "" {
			if err := applyRedisURI(opts, cfg.URI); err != nil {
				return nil, "", fmt.Errorf("redis cluster: %w", err)
			}
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis cluster configuration requires at least one address")
		}
		return opts, "cluster:" + strings.Join(opts.Addrs, ","), nil

	case cfg.UseSentinel:
		opts.Addrs = trimAddrs(cfg.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		opts.MasterName = strings.TrimSpace(cfg.SentinelMasterName)
		if opts.MasterName == "" {
			return nil, "", errors.New("redis sentinel configuration requires a master name")
		}
		opts.SentinelPassword = cfg.SentinelPassword
		return opts, "sentinel:" + opts.MasterName, nil

	default:
		if strings.TrimSpace(cfg.URI) == "" {
			return nil, "", errors.New("redis direct configuration requires a URI")
		}
		if err := applyRedisURI(opts, cfg.URI); err != nil {
			return nil, "", err
		}
		return opts, opts.Addrs[0], nil
	}
}

// applyRedisURI sets the address from uri. A redis:// or rediss:// URL also supplies the
// username, a password that overrides the configured one, the DB and TLS.
func applyRedisURI(opts *redis.UniversalOptions, uri string) error {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		opts.Addrs = []string{uri}
		return nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	return nil
}

func trimAddrs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		if a := strings.TrimSpace(addr); a != "" {
			out = append(out, a)
		}
	}
	return out
}
