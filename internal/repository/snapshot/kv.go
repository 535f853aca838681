package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/facereg/internal/db"
	"github.com/kailas-cloud/facereg/internal/domain"
)

// kvStore is the consumer interface for the remote backend (ISP).
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
}

// KVStore keeps the snapshot under a single Redis/Valkey key.
type KVStore struct {
	store       kvStore
	key         string
	compression Compression
}

// NewKVStore creates a key-value backed snapshot store.
func NewKVStore(s kvStore, key string, c Compression) *KVStore {
	return &KVStore{store: s, key: key, compression: c}
}

// Load fetches the snapshot. A missing key yields domain.ErrNotFound.
func (s *KVStore) Load(ctx context.Context) (Data, error) {
	b, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("snapshot %s: %w", s.key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get snapshot %s: %w", s.key, err)
	}
	data, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.key, err)
	}
	return data, nil
}

// Save replaces the snapshot value.
func (s *KVStore) Save(ctx context.Context, data Data) error {
	b, err := Encode(data, s.compression)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.key, b); err != nil {
		return fmt.Errorf("set snapshot %s: %w", s.key, err)
	}
	return nil
}

// Ping checks the backend.
func (s *KVStore) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping snapshot backend: %w", err)
	}
	return nil
}
