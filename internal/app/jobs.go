package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	pruneInterval   = time.Hour
	archiveInterval = 24 * time.Hour

	// snapshotRetention is how long snapshots stay queryable in Postgres
	// before the archiver moves them to blob storage.
	snapshotRetention = 30 * 24 * time.Hour
)

// startJobs launches the periodic maintenance goroutines: expired-insight
// pruning and, when blob storage is configured, snapshot archival. Job
// failures are logged and retried on the next tick; they never bring the
// process down.
func (a *App) startJobs(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				n, err := deps.Generator.PruneExpired(ctx)
				if err != nil {
					a.logger.WarnContext(ctx, "insight prune failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if n > 0 {
					a.logger.InfoContext(ctx, "pruned expired insights",
						slog.Int64("count", n),
					)
				}
			}
		}
	})

	if deps.Archiver == nil {
		return
	}
	g.Go(func() error {
		ticker := time.NewTicker(archiveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-snapshotRetention)
				n, err := deps.Archiver.ArchiveSnapshots(ctx, cutoff)
				if err != nil {
					a.logger.WarnContext(ctx, "snapshot archival failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if n > 0 {
					a.logger.InfoContext(ctx, "archived portfolio snapshots",
						slog.Int64("count", n),
						slog.Time("before", cutoff),
					)
				}
			}
		}
	})
}
