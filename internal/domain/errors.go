package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing identity in a tenant scope.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a registry-level key collision.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAlreadyRegistered signals that the identity key is already taken in the tenant.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrDuplicatePerson signals that the same face is registered under another key.
	ErrDuplicatePerson = errors.New("duplicate person")
	// ErrNoCandidates signals an empty search space.
	ErrNoCandidates = errors.New("no candidates")
	// ErrPersistence signals a snapshot flush or load failure.
	ErrPersistence = errors.New("persistence failure")
	// ErrEngineFailure signals an aborted scan.
	ErrEngineFailure = errors.New("matching engine failure")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidEmbedding signals an empty or non-finite embedding.
	ErrInvalidEmbedding = errors.New("invalid embedding")
	// ErrInvalidRequest signals malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmbeddingProviderError signals a face extractor failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrNoFace signals that no face was found in the image.
	ErrNoFace = errors.New("no face detected")
	// ErrMultipleFaces signals more than one face in the image.
	ErrMultipleFaces = errors.New("multiple faces detected")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotImplemented signals an unconfigured feature.
	ErrNotImplemented = errors.New("not implemented")
)

// PersistenceError wraps ErrPersistence with the failed operation.
// The in-memory mutation that triggered a failed flush is not rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence.Error(), e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// NewPersistenceError creates a persistence error for op.
func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
