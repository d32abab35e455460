package retrieval

import (
	"context"
	"sync"

	"github.com/kirillkom/museum-docent/internal/core/ports"
)

// Registry owns one Collection per name for the lifetime of the process.
// It is built once at startup and passed to every consumer.
type Registry struct {
	embedder ports.Embedder
	store    ports.CollectionStore

	mu          sync.Mutex
	collections map[string]*Collection
}

func NewRegistry(embedder ports.Embedder, store ports.CollectionStore) *Registry {
	return &Registry{
		embedder:    embedder,
		store:       store,
		collections: make(map[string]*Collection),
	}
}

// Collection returns the shared instance for name, creating it unloaded on first use.
func (r *Registry) Collection(name string) *Collection {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.collections[name]; ok {
		return c
	}
	c := NewCollection(name, r.embedder, r.store)
	r.collections[name] = c
	return c
}

// Load eagerly loads the named collections, stopping at the first failure.
func (r *Registry) Load(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := r.Collection(name).Load(ctx); err != nil {
			return err
		}
	}
	return nil
}
