package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
	_ "modernc.org/sqlite"
)

const sqliteRecordSchemaSQL = `
CREATE TABLE IF NOT EXISTS transcode_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
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
	source_bytes INTEGER NOT NULL DEFAULT 0,
	output_bytes INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS transcode_records_created_at_idx ON transcode_records (created_at_ms DESC);
`

// SQLiteRecordStore is the single-node record store; it needs no cgo.
type SQLiteRecordStore struct {
	db *sql.DB
}

func NewSQLiteRecordStore(ctx context.Context, path string) (*SQLiteRecordStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteRecordSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure transcode_records schema: %w", err)
	}
	return &SQLiteRecordStore{db: db}, nil
}

func (s *SQLiteRecordStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteRecordStore) Record(ctx context.Context, rec domain.TranscodeRecord) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO transcode_records
		 (request_id, method, path, source_url, format, width, height, outcome, failed_stage, kind, status, source_bytes, output_bytes, duration_ms, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert transcode record: %w", err)
	}
	return nil
}

func (s *SQLiteRecordStore) Recent(ctx context.Context, limit int) ([]domain.TranscodeRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT request_id, method, path, source_url, format, width, height, outcome, failed_stage, kind, status, source_bytes, output_bytes, duration_ms, created_at_ms
		 FROM transcode_records
		 ORDER BY created_at_ms DESC, id DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query transcode records: %w", err)
	}
	defer rows.Close()

	var out []domain.TranscodeRecord
	for rows.Next() {
		var (
			rec         domain.TranscodeRecord
			createdAtMS int64
		)
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
			&createdAtMS,
		); err != nil {
			return nil, fmt.Errorf("scan transcode record: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAtMS).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcode records: %w", err)
	}
	return out, nil
}
