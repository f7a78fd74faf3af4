// Package storage provides collection persistence for agora using NATS KV.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/agora/governance"
)

// BucketCollections is the KV bucket holding governed collections.
const BucketCollections = "AGORA_COLLECTIONS"

// KVRegistry implements governance.Registry over a NATS JetStream KV bucket.
// One KV entry per collection, JSON encoded, keyed by collection ID.
type KVRegistry struct {
	kv jetstream.KeyValue
}

// NewKVRegistry creates a registry backed by the collections bucket,
// creating the bucket if it does not exist.
func NewKVRegistry(ctx context.Context, js jetstream.JetStream) (*KVRegistry, error) {
	kv, err := getOrCreateBucket(ctx, js, BucketCollections)
	if err != nil {
		return nil, fmt.Errorf("create collections bucket: %w", err)
	}
	return &KVRegistry{kv: kv}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Agora %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// Create stores a new collection, failing if the ID already exists.
func (r *KVRegistry) Create(ctx context.Context, c *governance.Collection) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal collection: %w", err)
	}
	if _, err := r.kv.Create(ctx, c.ID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("%w: collection %s", governance.ErrAlreadyExists, c.ID)
		}
		return fmt.Errorf("store collection: %w", err)
	}
	return nil
}

// Get retrieves a collection by ID.
func (r *KVRegistry) Get(ctx context.Context, id string) (*governance.Collection, error) {
	entry, err := r.kv.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: collection %s", governance.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get collection: %w", err)
	}

	var c governance.Collection
	if err := json.Unmarshal(entry.Value(), &c); err != nil {
		return nil, fmt.Errorf("unmarshal collection: %w", err)
	}
	if c.Proposals == nil {
		c.Proposals = make(map[string]*governance.Proposal)
	}
	return &c, nil
}

// Put overwrites an existing collection.
func (r *KVRegistry) Put(ctx context.Context, c *governance.Collection) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal collection: %w", err)
	}
	if _, err := r.kv.Put(ctx, c.ID, data); err != nil {
		return fmt.Errorf("update collection: %w", err)
	}
	return nil
}

// Delete removes a collection.
func (r *KVRegistry) Delete(ctx context.Context, id string) error {
	if err := r.kv.Delete(ctx, id); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: collection %s", governance.ErrNotFound, id)
		}
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

// List returns all collections. Entries that fail to load or decode are
// skipped rather than failing the whole listing.
func (r *KVRegistry) List(ctx context.Context) ([]*governance.Collection, error) {
	keys, err := r.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list collection keys: %w", err)
	}

	collections := make([]*governance.Collection, 0, len(keys))
	for _, key := range keys {
		entry, err := r.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var c governance.Collection
		if err := json.Unmarshal(entry.Value(), &c); err != nil {
			continue
		}
		if c.Proposals == nil {
			c.Proposals = make(map[string]*governance.Proposal)
		}
		collections = append(collections, &c)
	}
	return collections, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
