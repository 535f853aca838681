package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/facereg/internal/db"
	"github.com/kailas-cloud/facereg/internal/domain"
)

// mockKV implements the consumer interface for tests.
type mockKV struct {
	getFn  func(ctx context.Context, key string) ([]byte, error)
	setFn  func(ctx context.Context, key string, value []byte) error
	pingFn func(ctx context.Context) error
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKV) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func (m *mockKV) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func TestKVStore_RoundTrip(t *testing.T) {
	var stored []byte
	ms := &mockKV{
		setFn: func(_ context.Context, key string, value []byte) error {
			if key != "facereg:snapshot" {
				t.Errorf("unexpected key: %s", key)
			}
			stored = value
			return nil
		},
		getFn: func(_ context.Context, _ string) ([]byte, error) {
			return stored, nil
		},
	}
	s := NewKVStore(ms, "facereg:snapshot", CompressionZstd)

	if err := s.Save(context.Background(), testData()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assertDataEqual(t, got, testData())
}

func TestKVStore_MissingKey(t *testing.T) {
	s := NewKVStore(&mockKV{}, "facereg:snapshot", CompressionNone)
	_, err := s.Load(context.Background())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKVStore_GetError(t *testing.T) {
	ms := &mockKV{getFn: func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}}
	s := NewKVStore(ms, "k", CompressionNone)
	_, err := s.Load(context.Background())
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestKVStore_SetError(t *testing.T) {
	setErr := errors.New("READONLY")
	ms := &mockKV{setFn: func(_ context.Context, _ string, _ []byte) error { return setErr }}
	s := NewKVStore(ms, "k", CompressionNone)
	if err := s.Save(context.Background(), testData()); !errors.Is(err, setErr) {
		t.Fatalf("expected wrapped set error, got %v", err)
	}
}

func TestKVStore_Ping(t *testing.T) {
	pingErr := errors.New("down")
	s := NewKVStore(&mockKV{pingFn: func(context.Context) error { return pingErr }}, "k", CompressionNone)
	if err := s.Ping(context.Background()); !errors.Is(err, pingErr) {
		t.Fatalf("expected ping error, got %v", err)
	}
}
