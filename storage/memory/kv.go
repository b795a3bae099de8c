package memorystore

import (
	"context"
	"sync"
	"time"
)

type kvItem struct {
	value   []byte
	expires time.Time
}

func (it kvItem) expired(now time.Time) bool {
	return !it.expires.IsZero() && now.After(it.expires)
}

// KV is a simple in-memory key-value store with TTL support. Expired entries
// are dropped when read; there is no background sweeper.
// It is only safe for single-process deployments.
type KV struct {
	mu    sync.Mutex
	items map[string]kvItem
	now   func() time.Time
}

func NewKV() *KV {
	return &KV{items: make(map[string]kvItem), now: time.Now}
}

// WithClock replaces the time source, for tests.
func (k *KV) WithClock(now func() time.Time) *KV {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.now = now
	return k
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lookup(key)
}

// Take returns the value and removes the key in one step.
func (k *KV) Take(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok, err := k.lookup(key)
	delete(k.items, key)
	return b, ok, err
}

func (k *KV) lookup(key string) ([]byte, bool, error) {
	it, ok := k.items[key]
	if !ok {
		return nil, false, nil
	}
	if it.expired(k.now()) {
		delete(k.items, key)
		return nil, false, nil
	}
	return append([]byte(nil), it.value...), true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = ctx
	k.mu.Lock()
	defer k.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = k.now().Add(ttl)
	}
	k.items[key] = kvItem{value: append([]byte(nil), value...), expires: exp}
	return nil
}

func (k *KV) Del(ctx context.Context, key string) error {
	_ = ctx
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.items, key)
	return nil
}

// Len counts live entries.
func (k *KV) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.now()
	n := 0
	for _, it := range k.items {
		if !it.expired(now) {
			n++
		}
	}
	return n
}
