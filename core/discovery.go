package core

import (
	"context"
	"net/http"
	"sync"

	oidckit "github.com/open-rails/openidkit/oidc"
)

// DiscoverFunc fetches an issuer's discovery document.
type DiscoverFunc func(ctx context.Context, client *http.Client, issuer string) (oidckit.Discovery, error)

// DiscoveryHandle is a start-once cell holding one issuer's discovery
// result. The first Start launches the fetch; every Await observes the same
// document or the same error.
type DiscoveryHandle struct {
	issuer string
	once   sync.Once
	done   chan struct{}
	doc    oidckit.Discovery
	err    error
}

// NewDiscoveryHandle returns a handle that is not started yet.
func NewDiscoveryHandle(issuer string) *DiscoveryHandle {
	return &DiscoveryHandle{issuer: issuer, done: make(chan struct{})}
}

// Issuer returns the issuer this handle resolves.
func (h *DiscoveryHandle) Issuer() string { return h.issuer }

// Start runs fetch in its own goroutine on ctx. Later calls are no-ops.
func (h *DiscoveryHandle) Start(ctx context.Context, fetch func(context.Context) (oidckit.Discovery, error)) {
	h.once.Do(func() {
		go func() {
			defer close(h.done)
			h.doc, h.err = fetch(ctx)
		}()
	})
}

// Await blocks until the fetch has finished or ctx is done. Cancelling ctx
// abandons the wait only; the fetch keeps running for other waiters.
func (h *DiscoveryHandle) Await(ctx context.Context) (oidckit.Discovery, error) {
	select {
	case <-h.done:
		return h.doc, h.err
	default:
	}
	select {
	case <-h.done:
		return h.doc, h.err
	case <-ctx.Done():
		return oidckit.Discovery{}, ctx.Err()
	}
}

// Ready reports whether the result is available without blocking.
func (h *DiscoveryHandle) Ready() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
