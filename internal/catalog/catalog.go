// Package catalog persists the segment registry and the document key to
// docid mapping in PostgreSQL. The builder registers flushed segments here
// and atomically swaps merged-away segments for their replacement.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/meridiansearch/fulltext-platform/pkg/postgres"
	"github.com/meridiansearch/fulltext-platform/pkg/resilience"
)

// Segment is one catalog row.
type Segment struct {
	Base      string
	BaseDocID uint32
	DocCount  uint32
	Flag      uint32
}

// Store wraps the catalog tables.
type Store struct {
	client *postgres.Client
	logger *slog.Logger
}

// New creates a Store over an open postgres client.
func New(client *postgres.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "segment-catalog"),
	}
}

// EnsureSchema creates the catalog tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS segments (
    base_name   TEXT PRIMARY KEY,
    base_doc_id BIGINT NOT NULL,
    doc_count   BIGINT NOT NULL,
    option_flag BIGINT NOT NULL,
    state       TEXT NOT NULL DEFAULT 'ACTIVE',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS documents (
    doc_key TEXT PRIMARY KEY,
    doc_id  BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_doc_id ON documents (doc_id);`
	if _, err := s.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating catalog schema: %w", err)
	}
	return nil
}

// RegisterSegment inserts a freshly flushed segment, retrying transient
// failures.
func (s *Store) RegisterSegment(ctx context.Context, seg Segment) error {
	return resilience.CatalogPolicy().Do(ctx, "register-segment", func() error {
		_, err := s.client.DB.ExecContext(ctx,
			`INSERT INTO segments (base_name, base_doc_id, doc_count, option_flag) VALUES ($1, $2, $3, $4)`,
			seg.Base, int64(seg.BaseDocID), int64(seg.DocCount), int64(seg.Flag),
		)
		if err != nil {
			return fmt.Errorf("registering segment %s: %w", seg.Base, err)
		}
		return nil
	})
}

// SwapSegments atomically retires the named segments and registers their
// merged replacement.
func (s *Store) SwapSegments(ctx context.Context, retired []string, merged Segment) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		for _, base := range retired {
			if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE base_name = $1`, base); err != nil {
				return fmt.Errorf("retiring segment %s: %w", base, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO segments (base_name, base_doc_id, doc_count, option_flag) VALUES ($1, $2, $3, $4)`,
			merged.Base, int64(merged.BaseDocID), int64(merged.DocCount), int64(merged.Flag),
		); err != nil {
			return fmt.Errorf("registering merged segment %s: %w", merged.Base, err)
		}
		s.logger.Info("catalog swap",
			"retired", len(retired),
			"merged", merged.Base,
			"base_doc_id", merged.BaseDocID,
		)
		return nil
	})
}

// ListSegments returns the active segments in base docid order.
func (s *Store) ListSegments(ctx context.Context) ([]Segment, error) {
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT base_name, base_doc_id, doc_count, option_flag FROM segments WHERE state = 'ACTIVE' ORDER BY base_doc_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	defer rows.Close()
	var segs []Segment
	for rows.Next() {
		var seg Segment
		var base, docs, flag int64
		if err := rows.Scan(&seg.Base, &base, &docs, &flag); err != nil {
			return nil, fmt.Errorf("scanning segment row: %w", err)
		}
		seg.BaseDocID = uint32(base)
		seg.DocCount = uint32(docs)
		seg.Flag = uint32(flag)
		segs = append(segs, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	return segs, nil
}

// RecordDocuments maps a batch of document keys to their assigned docids,
// sequential from startDocID.
func (s *Store) RecordDocuments(ctx context.Context, keys []string, startDocID uint32) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO documents (doc_key, doc_id) VALUES ($1, $2)
			 ON CONFLICT (doc_key) DO UPDATE SET doc_id = EXCLUDED.doc_id`,
		)
		if err != nil {
			return fmt.Errorf("preparing document insert: %w", err)
		}
		defer stmt.Close()
		for i, key := range keys {
			if _, err := stmt.ExecContext(ctx, key, int64(startDocID)+int64(i)); err != nil {
				return fmt.Errorf("recording document %s: %w", key, err)
			}
		}
		return nil
	})
}
