// Package verification implements register, unregister, verify, list and
// compare on top of the identity registry and the matching engine.
package verification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/facereg/internal/domain"
	"github.com/kailas-cloud/facereg/internal/logger"
	"github.com/kailas-cloud/facereg/internal/matching"
)

// Outcome is the result of a verify call. A miss is a valid outcome, not an error.
type Outcome struct {
	Matched      bool
	Key          string
	Similarity   float64
	Distance     float64
	NoCandidates bool
}

// Service orchestrates registry lookups, dedup checks and matching.
type Service struct {
	registry   Registry
	matcher    Matcher
	extractor  domain.FaceExtractor
	dimensions int
}

// New creates a verification service.
func New(registry Registry, matcher Matcher) *Service {
	return &Service{registry: registry, matcher: matcher}
}

// WithDimensions pins the embedding length. Zero accepts any length.
func (s *Service) WithDimensions(dims int) *Service {
	if dims > 0 {
		s.dimensions = dims
	}
	return s
}

// WithExtractor enables image intake.
func (s *Service) WithExtractor(e domain.FaceExtractor) *Service {
	s.extractor = e
	return s
}

// AcceptsImages reports whether a face extractor is configured.
func (s *Service) AcceptsImages() bool { return s.extractor != nil }

// Extract turns an image into an embedding using the configured extractor.
func (s *Service) Extract(ctx context.Context, image []byte) ([]float32, error) {
	if s.extractor == nil {
		return nil, fmt.Errorf("image intake is not configured: %w", domain.ErrNotImplemented)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image: %w", domain.ErrInvalidRequest)
	}
	emb, err := s.extractor.Extract(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("extract face: %w", err)
	}
	return emb, nil
}

// Register stores a new identity. It fails with domain.ErrAlreadyRegistered when
// the key is taken and with domain.ErrDuplicatePerson when the face is already
// registered under another key.
func (s *Service) Register(ctx context.Context, tenant, key string, embedding []float32) error {
	if key == "" {
		return fmt.Errorf("identity key is required: %w", domain.ErrInvalidRequest)
	}
	if err := domain.ValidateEmbedding(embedding, s.dimensions); err != nil {
		return err
	}

	if _, err := s.registry.Get(ctx, tenant, key); err == nil {
		return fmt.Errorf("identity %q: %w", key, domain.ErrAlreadyRegistered)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("get identity: %w", err)
	}

	candidates, err := s.registry.ListAll(ctx, tenant)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}
	// A concurrent registration of the same key may land between Get and
	// ListAll. Put reports that as AlreadyExists.
	candidates = withoutKey(candidates, key)
	if len(candidates) > 0 {
		match, found, scanErr := s.matcher.Scan(ctx, embedding, candidates)
		if scanErr != nil {
			return fmt.Errorf("dedup scan: %w", scanErr)
		}
		if found {
			logger.FromContext(ctx).Info("Register rejected, face already registered",
				zap.String("key", key),
				zap.String("existing_key", match.Key),
				zap.Float64("similarity", match.Similarity),
			)
			return fmt.Errorf("matches identity %q: %w", match.Key, domain.ErrDuplicatePerson)
		}
	}

	if err := s.registry.Put(ctx, tenant, key, embedding); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return fmt.Errorf("identity %q: %w", key, domain.ErrAlreadyRegistered)
		}
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}

// Unregister removes an identity. Missing keys are a no-op.
func (s *Service) Unregister(ctx context.Context, tenant, key string) error {
	if key == "" {
		return fmt.Errorf("identity key is required: %w", domain.ErrInvalidRequest)
	}
	if err := s.registry.Remove(ctx, tenant, key); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("remove identity: %w", err)
	}
	return nil
}

// Verify looks for a registered identity matching the probe. An empty tenant
// yields an outcome with NoCandidates set and no error.
func (s *Service) Verify(ctx context.Context, tenant string, probe []float32) (Outcome, error) {
	if err := domain.ValidateEmbedding(probe, s.dimensions); err != nil {
		return Outcome{}, err
	}

	candidates, err := s.registry.ListAll(ctx, tenant)
	if err != nil {
		return Outcome{}, fmt.Errorf("list identities: %w", err)
	}

	match, found, err := s.matcher.Scan(ctx, probe, candidates)
	switch {
	case errors.Is(err, domain.ErrNoCandidates):
		return Outcome{NoCandidates: true}, nil
	case err != nil:
		return Outcome{}, fmt.Errorf("verify scan: %w", err)
	case !found:
		return Outcome{}, nil
	}

	return Outcome{
		Matched:    true,
		Key:        match.Key,
		Similarity: match.Similarity,
		Distance:   domain.Distance(match.Similarity),
	}, nil
}

// List returns the tenant's identity keys.
func (s *Service) List(ctx context.Context, tenant string) ([]string, error) {
	keys, err := s.registry.ListKeys(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Compare scores two embeddings against the threshold without touching the registry.
func (s *Service) Compare(_ context.Context, a, b []float32) (matching.Comparison, error) {
	if err := domain.ValidateEmbedding(a, s.dimensions); err != nil {
		return matching.Comparison{}, fmt.Errorf("first embedding: %w", err)
	}
	if err := domain.ValidateEmbedding(b, s.dimensions); err != nil {
		return matching.Comparison{}, fmt.Errorf("second embedding: %w", err)
	}
	if len(a) != len(b) {
		return matching.Comparison{}, fmt.Errorf("got %d and %d: %w", len(a), len(b), domain.ErrVectorDimMismatch)
	}
	c, err := s.matcher.Compare(a, b)
	if err != nil {
		return matching.Comparison{}, fmt.Errorf("compare: %w", err)
	}
	return c, nil
}

func withoutKey(candidates []domain.Identity, key string) []domain.Identity {
	for i, c := range candidates {
		if c.Key != key {
			continue
		}
		out := make([]domain.Identity, 0, len(candidates)-1)
		out = append(out, candidates[:i]...)
		return append(out, candidates[i+1:]...)
	}
	return candidates
}
