package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by KV.
const DefaultPrefix = "openid:"

// KV is a Redis-backed ephemeral key-value store with TTL support.
type KV struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewKV(rdb redis.UniversalClient) *KV {
	return &KV{rdb: rdb, prefix: DefaultPrefix}
}

// NewKVFromURL parses a redis:// URL and checks connectivity.
func NewKVFromURL(ctx context.Context, rawURL string) (*KV, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewKV(rdb), nil
}

// WithPrefix replaces the key prefix.
func (k *KV) WithPrefix(prefix string) *KV {
	k.prefix = prefix
	return k
}

func (k *KV) key(key string) string { return k.prefix + key }

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return bytesResult(k.rdb.Get(ctx, k.key(key)))
}

// Take reads and deletes key with GETDEL.
func (k *KV) Take(ctx context.Context, key string) ([]byte, bool, error) {
	return bytesResult(k.rdb.GetDel(ctx, k.key(key)))
}

func (k *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return k.rdb.Set(ctx, k.key(key), value, ttl).Err()
}

func (k *KV) Del(ctx context.Context, key string) error {
	return k.rdb.Del(ctx, k.key(key)).Err()
}

// Close closes the underlying client.
func (k *KV) Close() error { return k.rdb.Close() }

func bytesResult(cmd *redis.StringCmd) ([]byte, bool, error) {
	b, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}
