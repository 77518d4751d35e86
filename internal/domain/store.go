package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// InsightStore persists generated insights. Writes are fire-and-forget from
// the generator's perspective: a failed save is logged, not propagated.
type InsightStore interface {
	Save(ctx context.Context, insight Insight) error
	GetByID(ctx context.Context, id string) (Insight, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]Insight, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UsageStore persists append-only API usage records.
type UsageStore interface {
	Append(ctx context.Context, record UsageRecord) error
	StatsForPeriod(ctx context.Context, service APIService, from, to time.Time) (UsageStats, error)
}

// SnapshotStore persists portfolio snapshots for history computation.
type SnapshotStore interface {
	Save(ctx context.Context, snap PortfolioSnapshot) error
	ListByWallet(ctx context.Context, wallet string, since time.Time) ([]PortfolioSnapshot, error)
	ListBefore(ctx context.Context, before time.Time) ([]PortfolioSnapshot, error)
}

// RateLimiter gates expensive operations (insight generation) per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads serialized objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
