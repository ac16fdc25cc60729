package cache

import (
	"context"

	"github.com/erp/docflow/internal/domain/workflow"
	lru "github.com/hashicorp/golang-lru"
)

// CachedStateStore fronts a workflow.StateStore with an ARC cache of current
// states. Writes go through to the store before the cache is updated. The
// cache serves reads only; transitions read through GetLatest.
type CachedStateStore struct {
	inner workflow.StateStore
	arc   *lru.ARCCache
}

// NewCachedStateStore wraps inner with a cache of size entries
func NewCachedStateStore(inner workflow.StateStore, size int) (*CachedStateStore, error) {
	arc, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &CachedStateStore{inner: inner, arc: arc}, nil
}

var (
	_ workflow.StateStore        = (*CachedStateStore)(nil)
	_ workflow.LatestStateReader = (*CachedStateStore)(nil)
)

// Get serves from the cache and falls back to the store
func (c *CachedStateStore) Get(ctx context.Context, ref workflow.DocumentRef) (workflow.State, bool, error) {
	if v, ok := c.arc.Get(ref.Key()); ok {
		return v.(workflow.State), true, nil
	}
	state, found, err := c.inner.Get(ctx, ref)
	if err != nil || !found {
		return state, found, err
	}
	c.arc.Add(ref.Key(), state)
	return state, true, nil
}

// GetLatest reads the store and refreshes the cache
func (c *CachedStateStore) GetLatest(ctx context.Context, ref workflow.DocumentRef) (workflow.State, bool, error) {
	state, found, err := c.inner.Get(ctx, ref)
	if err != nil || !found {
		c.arc.Remove(ref.Key())
		return state, found, err
	}
	c.arc.Add(ref.Key(), state)
	return state, true, nil
}

// CompareAndSet writes through and caches the new state. Any failure,
// including a conflict, evicts the entry.
func (c *CachedStateStore) CompareAndSet(ctx context.Context, ref workflow.DocumentRef, from, to workflow.State) error {
	if err := c.inner.CompareAndSet(ctx, ref, from, to); err != nil {
		c.arc.Remove(ref.Key())
		return err
	}
	c.arc.Add(ref.Key(), to)
	return nil
}

// Observe applies a transition committed elsewhere, e.g. relayed from
// another instance.
func (c *CachedStateStore) Observe(event workflow.Event) {
	ref := workflow.DocumentRef{Domain: event.Domain, Number: event.DocumentNumber}
	c.arc.Add(ref.Key(), event.ToState)
}

// Len returns the number of cached entries
func (c *CachedStateStore) Len() int {
	return c.arc.Len()
}
