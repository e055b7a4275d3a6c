package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dunamismax/pixelproxy/internal/domain"
	_ "github.com/lib/pq"
)

const recordSchemaSQL = `
CREATE TABLE IF NOT EXISTS transcode_records (
	id BIGSERIAL PRIMARY KEY,
	request_id TEXT NOT NULL,
	method TEXT NOT NULL,
	path TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL DEFAULT '',
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL,
	failed_stage TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT '',
	status INTEGER NOT NULL,
	source_bytes BIGINT NOT NULL DEFAULT 0,
	output_bytes BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transcode_records_created_at_idx ON transcode_records (created_at DESC);
`

type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgresRecordStore(ctx context.Context, dsn string) (*PostgresRecordStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresRecordStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresRecordStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, recordSchemaSQL); err != nil {
		return fmt.Errorf("ensure transcode_records schema: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Close() error {
	return s.db.Close()
}

func (s *PostgresRecordStore) Record(ctx context.Context, rec domain.TranscodeRecord) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO transcode_records
		 (request_id, method, path, source_url, format, width, height, outcome, failed_stage, kind, status, source_bytes, output_bytes, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.RequestID,
		rec.Method,
		rec.Path,
		rec.SourceURL,
		rec.Format,
		rec.Width,
		rec.Height,
		rec.Outcome,
		rec.FailedStage,
		rec.Kind,
		rec.Status,
		rec.SourceBytes,
		rec.OutputBytes,
		rec.DurationMS,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transcode record: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Recent(ctx context.Context, limit int) ([]domain.TranscodeRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT request_id, method, path, source_url, format, width, height, outcome, failed_stage, kind, status, source_bytes, output_bytes, duration_ms, created_at
		 FROM transcode_records
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query transcode records: %w", err)
	}
	defer rows.Close()

	var out []domain.TranscodeRecord
	for rows.Next() {
		var rec domain.TranscodeRecord
		if err := rows.Scan(
			&rec.RequestID,
			&rec.Method,
			&rec.Path,
			&rec.SourceURL,
			&rec.Format,
			&rec.Width,
			&rec.Height,
			&rec.Outcome,
			&rec.FailedStage,
			&rec.Kind,
			&rec.Status,
			&rec.SourceBytes,
			&rec.OutputBytes,
			&rec.DurationMS,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transcode record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcode records: %w", err)
	}
	return out, nil
}
