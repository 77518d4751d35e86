package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avalens/avalens/internal/domain"
)

// SnapshotArchiveStore is the narrow read interface the archiver needs. The
// Postgres snapshot store satisfies it.
type SnapshotArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.PortfolioSnapshot, error)
}

// Archiver moves aged portfolio snapshots into cold storage as JSONL files.
// Deleting the archived rows from the primary store is intentionally a
// separate, explicit step, to be run after the archive has been verified.
type Archiver struct {
	writer domain.BlobWriter
	snaps  SnapshotArchiveStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, snaps SnapshotArchiveStore) *Archiver {
	return &Archiver{writer: writer, snaps: snaps}
}

// ArchiveSnapshots uploads every snapshot taken before the cutoff to
// archive/snapshots/YYYY-MM.jsonl and returns the archived count.
func (a *Archiver) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.snaps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
	}

	path := fmt.Sprintf("archive/snapshots/%s.jsonl", before.Format("2006-01"))
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots upload: %w", err)
	}

	return int64(len(snaps)), nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON, one
// compact line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
