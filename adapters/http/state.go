package authhttp

import (
	"context"
	"time"

	core "github.com/open-rails/openidkit/core"
	oidckit "github.com/open-rails/openidkit/oidc"
)

// DefaultStateTTL is how long a login may take between redirect and callback.
const DefaultStateTTL = 15 * time.Minute

// kvStateCache keeps pending logins in an ephemeral store.
type kvStateCache struct {
	store core.EphemeralStore
	ttl   time.Duration
}

func newStateCache(store core.EphemeralStore) *kvStateCache {
	return &kvStateCache{store: store, ttl: DefaultStateTTL}
}

func stateKey(state string) string { return "oauth_state:" + state }

func (c *kvStateCache) Put(ctx context.Context, state string, data oidckit.StateData) error {
	return core.PutJSON(ctx, c.store, stateKey(state), data, c.ttl)
}

func (c *kvStateCache) Get(ctx context.Context, state string) (oidckit.StateData, bool, error) {
	var sd oidckit.StateData
	ok, err := core.GetJSON(ctx, c.store, stateKey(state), &sd)
	return sd, ok, err
}

func (c *kvStateCache) Del(ctx context.Context, state string) error {
	return c.store.Del(ctx, stateKey(state))
}

// Take consumes state.
func (c *kvStateCache) Take(ctx context.Context, state string) (oidckit.StateData, bool, error) {
	var sd oidckit.StateData
	ok, err := core.TakeJSON(ctx, c.store, stateKey(state), &sd)
	return sd, ok, err
}

// takeState reads and removes state from cache, atomically when supported.
func takeState(ctx context.Context, cache oidckit.StateCache, state string) (oidckit.StateData, bool, error) {
	type taker interface {
		Take(ctx context.Context, state string) (oidckit.StateData, bool, error)
	}
	if t, ok := cache.(taker); ok {
		return t.Take(ctx, state)
	}
	sd, ok, err := cache.Get(ctx, state)
	_ = cache.Del(ctx, state)
	return sd, ok, err
}
