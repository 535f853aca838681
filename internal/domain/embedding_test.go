package domain

import (
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarity_Identical(t *testing.T) {
	v := []float32{0.1, 0.2, 0.3}
	sim, err := CosineSimilarity(v, v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(sim-1) > 1e-6 {
		t.Errorf("expected 1, got %f", sim)
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(sim) > 1e-9 {
		t.Errorf("expected 0, got %f", sim)
	}
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 2}, []float32{-1, -2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim < -1 || math.Abs(sim+1) > 1e-6 {
		t.Errorf("expected -1, got %f", sim)
	}
}

func TestCosineSimilarity_DimMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	if !errors.Is(err, ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	_, err := CosineSimilarity([]float32{0, 0}, []float32{1, 2})
	if !errors.Is(err, ErrInvalidEmbedding) {
		t.Fatalf("expected ErrInvalidEmbedding, got %v", err)
	}
}

func TestDistance_Clamped(t *testing.T) {
	tests := []struct {
		sim  float64
		want float64
	}{
		{1, 0},
		{0.7, 0.3},
		{0, 1},
		{-1, 2},
		{1.0000001, 0},
		{-1.5, 2},
	}
	for _, tc := range tests {
		got := Distance(tc.sim)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Distance(%v) = %v, want %v", tc.sim, got, tc.want)
		}
	}
}

func TestValidateEmbedding(t *testing.T) {
	tests := []struct {
		name string
		v    []float32
		dims int
		want error
	}{
		{"ok", []float32{0.1, 0.2}, 0, nil},
		{"ok pinned", []float32{0.1, 0.2}, 2, nil},
		{"empty", nil, 0, ErrInvalidEmbedding},
		{"zero", []float32{0, 0}, 0, ErrInvalidEmbedding},
		{"nan", []float32{float32(math.NaN()), 1}, 0, ErrInvalidEmbedding},
		{"inf", []float32{float32(math.Inf(1)), 1}, 0, ErrInvalidEmbedding},
		{"wrong dims", []float32{0.1, 0.2}, 3, ErrVectorDimMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEmbedding(tc.v, tc.dims)
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPersistenceError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewPersistenceError("flush", cause)
	if !errors.Is(err, ErrPersistence) {
		t.Error("expected ErrPersistence")
	}
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause")
	}
	if err.Error() != "persistence failure: flush: disk full" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestCloneEmbedding_Independent(t *testing.T) {
	src := []float32{1, 2, 3}
	dst := CloneEmbedding(src)
	dst[0] = 9
	if src[0] != 1 {
		t.Error("clone shares backing array")
	}
}
