package esq

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// IndexRegistry remembers which indices are known to exist.
//
// Entries are added lazily on first write to an index and never evicted.
// Concurrent first writes to the same index share a single
// exists-then-create sequence.
type IndexRegistry struct {
	mu    sync.RWMutex
	known map[string]bool
	group singleflight.Group
}

// DefaultIndexRegistry is the process wide registry used by repositories
// that are not given one explicitly.
var DefaultIndexRegistry = NewIndexRegistry()

// NewIndexRegistry returns an empty registry.
func NewIndexRegistry() *IndexRegistry {
	return &IndexRegistry{
		known: make(map[string]bool),
	}
}

// Known reports whether the registry has seen the index.
func (r *IndexRegistry) Known(index string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.known[index]
}

// Ensure creates the index with the given settings unless it is already
// known or already exists in the cluster.
func (r *IndexRegistry) Ensure(ctx context.Context, manager IndexManager, index string, settings IndexSettings) error {
	if r.Known(index) {
		return nil
	}

	// The shared call outlives the cancellation of any one caller.
	ctx = context.WithoutCancel(ctx)
	_, err, _ := r.group.Do(index, func() (any, error) {
		if r.Known(index) {
			return nil, nil
		}

		exists, err := manager.IndexExists(ctx, index)
		if err != nil {
			return nil, err
		}
		if !exists {
			if err := manager.CreateIndex(ctx, index, settings); err != nil {
				return nil, err
			}
		}

		r.mu.Lock()
		r.known[index] = true
		r.mu.Unlock()
		return nil, nil
	})
	return err
}
