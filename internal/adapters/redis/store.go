package redis

// Package redis provides a Redis-backed client store for the auth session client.

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
)

var _ ports.KeyValueStore = (*Store)(nil)

// DefaultPrefix namespaces keys written by the store.
const DefaultPrefix = "authsession:"

// Store is a Redis-based KeyValueStore. Values never expire on their own; expiry semantics
// (token lifetime, lockout windows) are encoded in the values and evaluated by the caller.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// NewStore creates a new Redis-based store with the default key prefix.
func NewStore(client redis.UniversalClient) *Store {
	return NewStoreWithPrefix(client, DefaultPrefix)
}

// NewStoreWithPrefix creates a Redis store with a custom key prefix.
func NewStoreWithPrefix(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		client: client,
		prefix: prefix,
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil // Nothing to delete
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
