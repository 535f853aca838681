// Package redis stores the registry snapshot in Redis or Valkey through rueidis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/facereg/internal/db"
)

var _ db.Store = (*Store)(nil)

const readinessPollInterval = 100 * time.Millisecond

// Config describes the snapshot backend connection.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// ReadinessTimeout bounds Connect's wait for the first successful PING.
	ReadinessTimeout time.Duration
}

// Store is a KV store over a single rueidis client.
type Store struct {
	client rueidis.Client
}

// NewStore creates a client without checking connectivity.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis: at least one address is required")
	}

	// Snapshot reads must observe the latest SET, so client-side caching stays off.
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis client %v: %w", cfg.Addrs, err)
	}
	return &Store{client: client}, nil
}

// Connect creates a client and waits until it answers PING.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	s, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.WaitForReady(ctx, cfg.ReadinessTimeout); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady pings until the backend answers or timeout expires. On timeout
// the last ping failure is reported alongside the deadline.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()

	for {
		lastErr := s.Ping(ctx)
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis not ready after %s: %w", timeout, errors.Join(ctx.Err(), lastErr))
		case <-ticker.C:
		}
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}
