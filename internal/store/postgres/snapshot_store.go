package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avalens/avalens/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotCols = `id, wallet_address, chain_id, total_value_usd,
	token_count, position_count, taken_at`

// Save inserts one snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.PortfolioSnapshot) error {
	const query = `
		INSERT INTO portfolio_snapshots (` + snapshotCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		snap.ID, snap.WalletAddress, snap.ChainID, snap.TotalValueUSD,
		snap.TokenCount, snap.PositionCount, snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save snapshot for %s: %w", snap.WalletAddress, err)
	}
	return nil
}

// ListByWallet returns a wallet's snapshots taken at or after since, oldest
// first.
func (s *SnapshotStore) ListByWallet(ctx context.Context, wallet string, since time.Time) ([]domain.PortfolioSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotCols+` FROM portfolio_snapshots
		 WHERE wallet_address = $1 AND taken_at >= $2
		 ORDER BY taken_at ASC`,
		wallet, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots for %s: %w", wallet, err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// ListBefore returns every snapshot taken before the given time, used by the
// retention sweep.
func (s *SnapshotStore) ListBefore(ctx context.Context, before time.Time) ([]domain.PortfolioSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotCols+` FROM portfolio_snapshots
		 WHERE taken_at < $1
		 ORDER BY taken_at ASC`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots before %s: %w", before, err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

func collectSnapshots(rows pgx.Rows) ([]domain.PortfolioSnapshot, error) {
	var out []domain.PortfolioSnapshot
	for rows.Next() {
		var snap domain.PortfolioSnapshot
		err := rows.Scan(
			&snap.ID, &snap.WalletAddress, &snap.ChainID, &snap.TotalValueUSD,
			&snap.TokenCount, &snap.PositionCount, &snap.TakenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate snapshots: %w", err)
	}
	return out, nil
}
