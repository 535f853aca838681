package health

import "context"

// SnapshotPinger checks snapshot backend availability.
type SnapshotPinger interface {
	Ping(ctx context.Context) error
}

// ExtractorChecker checks face extractor availability.
type ExtractorChecker interface {
	HealthCheck(ctx context.Context) error
}
