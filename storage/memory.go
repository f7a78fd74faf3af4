package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/c360studio/agora/governance"
)

// MemoryRegistry is an in-memory governance.Registry used by tests and
// embedded deployments. Collections are stored as JSON so reads return
// independent copies, matching KV semantics.
type MemoryRegistry struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{items: make(map[string][]byte)}
}

// Create stores a new collection, failing if the ID already exists.
func (r *MemoryRegistry) Create(_ context.Context, c *governance.Collection) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal collection: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[c.ID]; ok {
		return fmt.Errorf("%w: collection %s", governance.ErrAlreadyExists, c.ID)
	}
	r.items[c.ID] = data
	return nil
}

// Get retrieves a copy of the collection by ID.
func (r *MemoryRegistry) Get(_ context.Context, id string) (*governance.Collection, error) {
	r.mu.RLock()
	data, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", governance.ErrNotFound, id)
	}

	var c governance.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal collection: %w", err)
	}
	if c.Proposals == nil {
		c.Proposals = make(map[string]*governance.Proposal)
	}
	return &c, nil
}

// Put overwrites an existing collection.
func (r *MemoryRegistry) Put(_ context.Context, c *governance.Collection) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal collection: %w", err)
	}

	r.mu.Lock()
	r.items[c.ID] = data
	r.mu.Unlock()
	return nil
}

// Delete removes a collection.
func (r *MemoryRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("%w: collection %s", governance.ErrNotFound, id)
	}
	delete(r.items, id)
	return nil
}

// List returns copies of all stored collections.
func (r *MemoryRegistry) List(_ context.Context) ([]*governance.Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	collections := make([]*governance.Collection, 0, len(r.items))
	for _, data := range r.items {
		var c governance.Collection
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}
		if c.Proposals == nil {
			c.Proposals = make(map[string]*governance.Proposal)
		}
		collections = append(collections, &c)
	}
	return collections, nil
}
