// Package registry holds tenant-scoped identity embeddings in memory and
// writes the whole registry through to a snapshot after every mutation.
//
// Tenants never contend with each other. Within a tenant, writers are
// serialized per identity key through striped locks, and the tenant map lock
// is held only for a single map access, so scans copying the candidate set
// and writers on other keys interleave freely.
package registry

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/facereg/internal/domain"
	"github.com/kailas-cloud/facereg/internal/metrics"
	"github.com/kailas-cloud/facereg/internal/repository/snapshot"
)

const keyStripes = 64

// Store is the durable snapshot backend.
type Store interface {
	Load(ctx context.Context) (snapshot.Data, error)
	Save(ctx context.Context, data snapshot.Data) error
}

type tenant struct {
	mu    sync.RWMutex
	ids   map[string][]float32
	locks [keyStripes]sync.Mutex
}

func newTenant(ids map[string][]float32) *tenant {
	if ids == nil {
		ids = make(map[string][]float32)
	}
	return &tenant{ids: ids}
}

func (t *tenant) keyLock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.locks[h.Sum32()%keyStripes]
}

func (t *tenant) get(key string) ([]float32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.ids[key]
	return v, ok
}

// Registry is the process-wide feature registry.
type Registry struct {
	store  Store
	logger *zap.Logger

	mu      sync.RWMutex
	tenants map[string]*tenant

	identities atomic.Int64

	// generation counts applied mutations; persisted is the generation
	// captured by the last successful flush.
	generation atomic.Uint64
	flushMu    sync.Mutex
	persisted  uint64
}

// New creates an empty registry backed by store.
func New(store Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:   store,
		logger:  logger,
		tenants: make(map[string]*tenant),
	}
}

// Open creates a registry seeded from the latest snapshot.
// A missing snapshot starts empty; an unreadable one, or one holding an
// embedding that fails validation against dims, is returned as an error.
func Open(ctx context.Context, store Store, dims int, logger *zap.Logger) (*Registry, error) {
	r := New(store, logger)

	data, err := store.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		r.logger.Info("No registry snapshot found, starting empty")
		return r, nil
	case err != nil:
		return nil, domain.NewPersistenceError("load", err)
	}
	if err := validateSnapshot(data, dims); err != nil {
		return nil, domain.NewPersistenceError("load", err)
	}

	var n int64
	for tenantKey, ids := range data {
		r.tenants[tenantKey] = newTenant(ids)
		n += int64(len(ids))
	}
	r.identities.Store(n)
	r.updateGauges()

	r.logger.Info("Registry snapshot loaded",
		zap.Int("tenants", len(data)),
		zap.Int64("identities", n),
	)
	return r, nil
}

func validateSnapshot(data snapshot.Data, dims int) error {
	for tenantKey, ids := range data {
		for key, emb := range ids {
			if err := domain.ValidateEmbedding(emb, dims); err != nil {
				return fmt.Errorf("tenant %q identity %q: %w", tenantKey, key, err)
			}
		}
	}
	return nil
}

func (r *Registry) lookupTenant(key string) (*tenant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[key]
	return t, ok
}

func (r *Registry) tenantForWrite(key string) *tenant {
	if t, ok := r.lookupTenant(key); ok {
		return t
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[key]
	if !ok {
		t = newTenant(nil)
		r.tenants[key] = t
	}
	return t
}

// Get returns a copy of the embedding stored for (tenantKey, identityKey).
func (r *Registry) Get(_ context.Context, tenantKey, identityKey string) ([]float32, error) {
	t, ok := r.lookupTenant(tenantKey)
	if !ok {
		return nil, domain.ErrNotFound
	}
	v, ok := t.get(identityKey)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return domain.CloneEmbedding(v), nil
}

// Put inserts an identity unless the key is already present in the tenant.
// On a flush failure the insert stays applied and a persistence error is returned.
func (r *Registry) Put(ctx context.Context, tenantKey, identityKey string, embedding []float32) error {
	t := r.tenantForWrite(tenantKey)
	stored := domain.CloneEmbedding(embedding)

	lock := t.keyLock(identityKey)
	lock.Lock()
	if _, exists := t.get(identityKey); exists {
		lock.Unlock()
		return domain.ErrAlreadyExists
	}
	t.mu.Lock()
	t.ids[identityKey] = stored
	t.mu.Unlock()
	gen := r.generation.Add(1)
	lock.Unlock()

	r.identities.Add(1)
	r.updateGauges()

	return r.flush(ctx, gen)
}

// Remove deletes an identity. Missing keys yield domain.ErrNotFound and skip the flush.
func (r *Registry) Remove(ctx context.Context, tenantKey, identityKey string) error {
	t, ok := r.lookupTenant(tenantKey)
	if !ok {
		return domain.ErrNotFound
	}

	lock := t.keyLock(identityKey)
	lock.Lock()
	t.mu.Lock()
	_, exists := t.ids[identityKey]
	delete(t.ids, identityKey)
	t.mu.Unlock()
	if !exists {
		lock.Unlock()
		return domain.ErrNotFound
	}
	gen := r.generation.Add(1)
	lock.Unlock()

	r.identities.Add(-1)
	r.updateGauges()

	return r.flush(ctx, gen)
}

// ListKeys returns the identity keys of a tenant at call time, sorted.
func (r *Registry) ListKeys(_ context.Context, tenantKey string) ([]string, error) {
	t, ok := r.lookupTenant(tenantKey)
	if !ok {
		return []string{}, nil
	}

	t.mu.RLock()
	keys := make([]string, 0, len(t.ids))
	for k := range t.ids {
		keys = append(keys, k)
	}
	t.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// ListAll returns the tenant's identities at call time. The slice is private to
// the caller; the embeddings are shared with the registry and must not be mutated.
func (r *Registry) ListAll(_ context.Context, tenantKey string) ([]domain.Identity, error) {
	t, ok := r.lookupTenant(tenantKey)
	if !ok {
		return []domain.Identity{}, nil
	}

	t.mu.RLock()
	out := make([]domain.Identity, 0, len(t.ids))
	for k, v := range t.ids {
		out = append(out, domain.Identity{Key: k, Embedding: v})
	}
	t.mu.RUnlock()

	return out, nil
}

// Stats reports the number of tenants and identities held in memory.
func (r *Registry) Stats() (tenants, identities int) {
	r.mu.RLock()
	tenants = len(r.tenants)
	r.mu.RUnlock()
	return tenants, int(r.identities.Load())
}

// Dirty reports whether in-memory state is ahead of the last successful flush.
func (r *Registry) Dirty() bool {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()
	return r.persisted != r.generation.Load()
}

// Flush persists the current state if it is not already durable.
func (r *Registry) Flush(ctx context.Context) error {
	return r.flush(ctx, r.generation.Load())
}

// flush serializes snapshot writes. The snapshot is captured while holding
// flushMu, so the last writer always persists the newest state, and a flush
// whose generation is already covered by an earlier success is skipped.
func (r *Registry) flush(ctx context.Context, gen uint64) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	if r.persisted >= gen {
		metrics.RegistryFlushTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	current := r.generation.Load()
	data := r.snapshot()

	start := time.Now()
	err := r.store.Save(ctx, data)
	metrics.RegistryFlushDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RegistryFlushTotal.WithLabelValues("error").Inc()
		r.logger.Error("Registry flush failed, in-memory state is ahead of the snapshot",
			zap.Uint64("generation", current),
			zap.Uint64("persisted", r.persisted),
			zap.Error(err),
		)
		return domain.NewPersistenceError("flush", err)
	}

	metrics.RegistryFlushTotal.WithLabelValues("ok").Inc()
	r.persisted = current
	return nil
}

// snapshot copies every non-empty tenant. Each tenant is read under its own
// read lock, so the copy never observes a half-applied mutation.
func (r *Registry) snapshot() snapshot.Data {
	r.mu.RLock()
	tenants := make(map[string]*tenant, len(r.tenants))
	for k, t := range r.tenants {
		tenants[k] = t
	}
	r.mu.RUnlock()

	data := make(snapshot.Data, len(tenants))
	for k, t := range tenants {
		t.mu.RLock()
		if len(t.ids) > 0 {
			ids := make(map[string][]float32, len(t.ids))
			for id, v := range t.ids {
				ids[id] = v
			}
			data[k] = ids
		}
		t.mu.RUnlock()
	}
	return data
}

func (r *Registry) updateGauges() {
	tenants, identities := r.Stats()
	metrics.RegistryTenants.Set(float64(tenants))
	metrics.RegistryIdentities.Set(float64(identities))
}

// Close performs a final flush.
func (r *Registry) Close(ctx context.Context) error {
	if err := r.Flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}
