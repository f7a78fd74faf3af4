// Package credits tracks the local compute-credit budget that gates
// embedding execution and funds the archive service.
package credits

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// balanceKey is the single KV key holding the local credit balance.
const balanceKey = "local"

// BucketCredits is the KV bucket holding the credit ledger.
const BucketCredits = "AGORA_CREDITS"

// BalanceStore persists the local credit balance.
type BalanceStore interface {
	Load(ctx context.Context) (uint64, error)
	Store(ctx context.Context, balance uint64) error
}

// KVBalanceStore stores the balance in a NATS KV bucket as a decimal string.
type KVBalanceStore struct {
	kv jetstream.KeyValue
}

// NewKVBalanceStore creates the credits bucket if needed and returns a store
// over it.
func NewKVBalanceStore(ctx context.Context, js jetstream.JetStream) (*KVBalanceStore, error) {
	kv, err := js.KeyValue(ctx, BucketCredits)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      BucketCredits,
			Description: "Agora credit ledger",
			History:     5,
		})
		if err != nil {
			return nil, fmt.Errorf("create credits bucket: %w", err)
		}
	}
	return &KVBalanceStore{kv: kv}, nil
}

// Load returns the stored balance, zero when unset.
func (s *KVBalanceStore) Load(ctx context.Context) (uint64, error) {
	entry, err := s.kv.Get(ctx, balanceKey)
	if err != nil {
		if strings.Contains(err.Error(), "key not found") {
			return 0, nil
		}
		return 0, fmt.Errorf("load balance: %w", err)
	}
	balance, err := strconv.ParseUint(string(entry.Value()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance: %w", err)
	}
	return balance, nil
}

// Store writes the balance.
func (s *KVBalanceStore) Store(ctx context.Context, balance uint64) error {
	if _, err := s.kv.Put(ctx, balanceKey, []byte(strconv.FormatUint(balance, 10))); err != nil {
		return fmt.Errorf("store balance: %w", err)
	}
	return nil
}

// MemoryBalanceStore is an in-memory BalanceStore for tests and embedded
// mode.
type MemoryBalanceStore struct {
	mu      sync.Mutex
	balance uint64
}

// NewMemoryBalanceStore creates a store with the given starting balance.
func NewMemoryBalanceStore(balance uint64) *MemoryBalanceStore {
	return &MemoryBalanceStore{balance: balance}
}

// Load implements BalanceStore.
func (s *MemoryBalanceStore) Load(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

// Store implements BalanceStore.
func (s *MemoryBalanceStore) Store(_ context.Context, balance uint64) error {
	s.mu.Lock()
	s.balance = balance
	s.mu.Unlock()
	return nil
}
