package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type EphemeralMode string

const (
	EphemeralMemory EphemeralMode = "memory"
	EphemeralRedis  EphemeralMode = "redis"
)

// EphemeralStore is a minimal key-value interface used for sessions and
// pending OAuth state. Implementations should honor TTL on Set and treat
// missing keys as (found=false, err=nil).
type EphemeralStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Taker is implemented by stores that can read and delete a key atomically.
type Taker interface {
	Take(ctx context.Context, key string) ([]byte, bool, error)
}

var errNoStore = errors.New("ephemeral store unavailable")

// PutJSON stores v as JSON under key.
func PutJSON(ctx context.Context, store EphemeralStore, key string, v any, ttl time.Duration) error {
	if store == nil {
		return errNoStore
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, b, ttl)
}

// GetJSON decodes the value under key into out.
func GetJSON(ctx context.Context, store EphemeralStore, key string, out any) (bool, error) {
	if store == nil {
		return false, errNoStore
	}
	b, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return true, json.Unmarshal(b, out)
}

// TakeJSON is GetJSON followed by a delete. It is atomic when the store
// implements Taker.
func TakeJSON(ctx context.Context, store EphemeralStore, key string, out any) (bool, error) {
	if store == nil {
		return false, errNoStore
	}
	var (
		b   []byte
		ok  bool
		err error
	)
	if t, isTaker := store.(Taker); isTaker {
		b, ok, err = t.Take(ctx, key)
	} else {
		b, ok, err = store.Get(ctx, key)
		if err == nil && ok {
			err = store.Del(ctx, key)
		}
	}
	if err != nil || !ok {
		return false, err
	}
	return true, json.Unmarshal(b, out)
}
