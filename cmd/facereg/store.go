package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/facereg/internal/config"
	dbRedis "github.com/kailas-cloud/facereg/internal/db/redis"
	"github.com/kailas-cloud/facereg/internal/repository/snapshot"
)

// snapshotStore is what the registry persists to and health pings.
type snapshotStore interface {
	Load(ctx context.Context) (snapshot.Data, error)
	Save(ctx context.Context, data snapshot.Data) error
	Ping(ctx context.Context) error
}

// openSnapshotStore builds the configured snapshot backend. The returned
// closer releases backend connections.
func openSnapshotStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (snapshotStore, func(), error) {
	compression := snapshot.Compression(cfg.Registry.Compression)

	switch cfg.Registry.Backend {
	case config.BackendRedis:
		store, err := dbRedis.Connect(ctx, dbRedis.Config{
			Addrs:            cfg.Database.Addrs,
			Username:         cfg.Database.Username,
			Password:         cfg.Database.Password,
			DB:               cfg.Database.DB,
			ReadinessTimeout: time.Duration(cfg.Database.ReadinessTimeout) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect snapshot backend: %w", err)
		}
		logger.Info("Connected to redis snapshot backend",
			zap.Strings("addrs", cfg.Database.Addrs),
			zap.String("key", cfg.Registry.Key),
		)
		return snapshot.NewKVStore(store, cfg.Registry.Key, compression), store.Close, nil

	default:
		logger.Info("Using file snapshot backend", zap.String("path", cfg.Registry.Path))
		return snapshot.NewFileStore(cfg.Registry.Path, compression), func() {}, nil
	}
}
