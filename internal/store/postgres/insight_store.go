package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avalens/avalens/internal/domain"
)

// InsightStore implements domain.InsightStore using PostgreSQL.
type InsightStore struct {
	pool *pgxpool.Pool
}

// NewInsightStore creates an InsightStore backed by the given pool.
func NewInsightStore(pool *pgxpool.Pool) *InsightStore {
	return &InsightStore{pool: pool}
}

const insightCols = `id, wallet_address, type, severity, status,
	title, summary, detailed_analysis, recommendations, confidence, tags,
	snapshot, tokens_used, generation_time_ms, cost_usd, created_at, expires_at`

// Save inserts one insight. Insights are immutable; a duplicate ID is an
// error.
func (s *InsightStore) Save(ctx context.Context, ins domain.Insight) error {
	recs, err := json.Marshal(ins.Recommendations)
	if err != nil {
		return fmt.Errorf("postgres: marshal recommendations: %w", err)
	}
	snap, err := json.Marshal(ins.Snapshot)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot: %w", err)
	}

	const query = `
		INSERT INTO insights (` + insightCols + `)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17
		)`

	_, err = s.pool.Exec(ctx, query,
		ins.ID, ins.WalletAddress, string(ins.Type), string(ins.Severity), string(ins.Status),
		ins.Title, ins.Summary, ins.DetailedAnalysis, recs, ins.Confidence, ins.Tags,
		snap, ins.TokensUsed, ins.GenerationTimeMs, ins.CostUSD, ins.CreatedAt, ins.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save insight %s: %w", ins.ID, err)
	}
	return nil
}

// GetByID retrieves an insight by its primary key.
func (s *InsightStore) GetByID(ctx context.Context, id string) (domain.Insight, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+insightCols+` FROM insights WHERE id = $1`, id)
	ins, err := scanInsight(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Insight{}, domain.ErrNotFound
		}
		return domain.Insight{}, fmt.Errorf("postgres: get insight %s: %w", id, err)
	}
	return ins, nil
}

// ListByWallet returns a wallet's insights, newest first.
func (s *InsightStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Insight, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+insightCols+` FROM insights
		 WHERE wallet_address = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		wallet, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list insights for %s: %w", wallet, err)
	}
	defer rows.Close()

	var out []domain.Insight
	for rows.Next() {
		ins, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan insight: %w", err)
		}
		out = append(out, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list insights for %s: %w", wallet, err)
	}
	return out, nil
}

// DeleteExpired removes insights whose expiry is at or before now.
func (s *InsightStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM insights WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired insights: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanInsight scans a single insight row.
func scanInsight(row pgx.Row) (domain.Insight, error) {
	var (
		ins                   domain.Insight
		typ, severity, status string
		recs, snap            []byte
	)
	err := row.Scan(
		&ins.ID, &ins.WalletAddress, &typ, &severity, &status,
		&ins.Title, &ins.Summary, &ins.DetailedAnalysis, &recs, &ins.Confidence, &ins.Tags,
		&snap, &ins.TokensUsed, &ins.GenerationTimeMs, &ins.CostUSD, &ins.CreatedAt, &ins.ExpiresAt,
	)
	if err != nil {
		return domain.Insight{}, err
	}
	ins.Type = domain.InsightType(typ)
	ins.Severity = domain.InsightSeverity(severity)
	ins.Status = domain.InsightStatus(status)
	if err := json.Unmarshal(recs, &ins.Recommendations); err != nil {
		return domain.Insight{}, fmt.Errorf("unmarshal recommendations: %w", err)
	}
	if err := json.Unmarshal(snap, &ins.Snapshot); err != nil {
		return domain.Insight{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return ins, nil
}
