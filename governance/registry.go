package governance

import (
	"context"
	"sync"
)

// Registry persists collections. Implementations return ErrNotFound for
// missing collections and ErrAlreadyExists on duplicate creation.
type Registry interface {
	Create(ctx context.Context, c *Collection) error
	Get(ctx context.Context, id string) (*Collection, error)
	Put(ctx context.Context, c *Collection) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Collection, error)
}

// collectionLocks serializes mutating operations per collection within the
// process. External calls happen under the lock and state is still re-read
// from the registry after them, so the lock is an optimization for local
// consistency, not the only line of defense.
type collectionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCollectionLocks() *collectionLocks {
	return &collectionLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for the given collection and returns its unlock.
func (l *collectionLocks) lock(id string) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// sharedLocks is process-wide so every engine instance, regardless of which
// component constructed it, serializes on the same per-collection mutexes.
var sharedLocks = newCollectionLocks()
