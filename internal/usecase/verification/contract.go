package verification

import (
	"context"

	"github.com/kailas-cloud/facereg/internal/domain"
	"github.com/kailas-cloud/facereg/internal/matching"
)

// Registry is the per-tenant identity store.
type Registry interface {
	Get(ctx context.Context, tenant, key string) ([]float32, error)
	Put(ctx context.Context, tenant, key string, embedding []float32) error
	Remove(ctx context.Context, tenant, key string) error
	ListKeys(ctx context.Context, tenant string) ([]string, error)
	ListAll(ctx context.Context, tenant string) ([]domain.Identity, error)
}

// Matcher scans candidates for a probe and compares embedding pairs.
type Matcher interface {
	Scan(ctx context.Context, probe []float32, candidates []domain.Identity) (matching.Match, bool, error)
	Compare(a, b []float32) (matching.Comparison, error)
}
