// Package redis provides a Redis-backed KVStore for key pool rotation state
// shared across service instances.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KVStore = (*KVStore)(nil)

// KVStore is the Redis implementation of the KVStore port interface.
type KVStore struct {
	client goredis.UniversalClient
}

// NewKVStore connects to the Redis instance at url (redis:// or rediss://)
// and verifies the connection with a PING.
func NewKVStore(ctx context.Context, url string) (*KVStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &KVStore{client: client}, nil
}

// NewKVStoreFromClient wraps an existing client.
func NewKVStoreFromClient(client goredis.UniversalClient) *KVStore {
	return &KVStore{client: client}
}

// Get returns the value stored under key.
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key without expiry.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// MultiSet writes all pairs in a single MULTI/EXEC transaction.
func (s *KVStore) MultiSet(ctx context.Context, pairs map[string]string) error {
	if len(pairs) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for key, value := range pairs {
			pipe.Set(ctx, key, value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis multi set: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *KVStore) Close() error {
	return s.client.Close()
}
