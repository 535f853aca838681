package domain

import (
	"context"
	"fmt"
	"math"
	"slices"
)

// FaceExtractor turns an image into a face embedding. The vision engine behind
// it is opaque; exactly one face is expected per image.
type FaceExtractor interface {
	Extract(ctx context.Context, image []byte) ([]float32, error)
}

// HealthChecker verifies extractor availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Identity is one registered person within a tenant scope.
// Embedding is shared with the registry and must not be mutated.
type Identity struct {
	Key       string
	Embedding []float32
}

// ValidateEmbedding rejects empty, zero-norm and non-finite vectors.
// dims > 0 additionally pins the vector length.
func ValidateEmbedding(v []float32, dims int) error {
	if len(v) == 0 {
		return fmt.Errorf("empty vector: %w", ErrInvalidEmbedding)
	}
	if dims > 0 && len(v) != dims {
		return fmt.Errorf("got %d, want %d: %w", len(v), dims, ErrVectorDimMismatch)
	}
	var norm float64
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite value at %d: %w", i, ErrInvalidEmbedding)
		}
		norm += f * f
	}
	if norm == 0 {
		return fmt.Errorf("zero vector: %w", ErrInvalidEmbedding)
	}
	return nil
}

// CosineSimilarity returns the cosine similarity of a and b clamped to [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%d vs %d: %w", len(a), len(b), ErrVectorDimMismatch)
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vector: %w", ErrInvalidEmbedding)
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero vector: %w", ErrInvalidEmbedding)
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Floating point error can push the ratio slightly outside [-1, 1].
	return min(max(sim, -1), 1), nil
}

// Distance converts a cosine similarity into a distance in [0, 2].
func Distance(similarity float64) float64 {
	return min(max(1-similarity, 0), 2)
}

// CloneEmbedding returns a private copy of v.
func CloneEmbedding(v []float32) []float32 {
	return slices.Clone(v)
}
