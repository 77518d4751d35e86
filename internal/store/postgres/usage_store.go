package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avalens/avalens/internal/domain"
)

// UsageStore implements domain.UsageStore using PostgreSQL. The table is
// append-only.
type UsageStore struct {
	pool *pgxpool.Pool
}

// NewUsageStore creates a UsageStore backed by the given pool.
func NewUsageStore(pool *pgxpool.Pool) *UsageStore {
	return &UsageStore{pool: pool}
}

// Append writes one usage record.
func (s *UsageStore) Append(ctx context.Context, r domain.UsageRecord) error {
	const query = `
		INSERT INTO usage_records (
			id, wallet_address, service, endpoint, method,
			requested_at, response_status, response_time_ms,
			tokens_used, cost_usd, error, retry_count, model
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.WalletAddress, string(r.Service), r.Endpoint, r.Method,
		r.RequestedAt, r.ResponseStatus, r.ResponseTimeMs,
		r.TokensUsed, r.CostUSD, r.Error, r.RetryCount, r.Model,
	)
	if err != nil {
		return fmt.Errorf("postgres: append usage record: %w", err)
	}
	return nil
}

// StatsForPeriod aggregates cost, request count and mean latency for one
// service over [from, to).
func (s *UsageStore) StatsForPeriod(ctx context.Context, service domain.APIService, from, to time.Time) (domain.UsageStats, error) {
	const query = `
		SELECT
			COALESCE(SUM(cost_usd), 0),
			COUNT(*),
			COALESCE(AVG(response_time_ms), 0)
		FROM usage_records
		WHERE service = $1 AND requested_at >= $2 AND requested_at < $3`

	var stats domain.UsageStats
	err := s.pool.QueryRow(ctx, query, string(service), from, to).Scan(
		&stats.TotalCostUSD, &stats.TotalRequests, &stats.AvgResponseTimeMs,
	)
	if err != nil {
		return domain.UsageStats{}, fmt.Errorf("postgres: usage stats for %s: %w", service, err)
	}
	return stats, nil
}
