package store

import (
	"context"

	"github.com/dunamismax/pixelproxy/internal/domain"
)

type RecordStore interface {
	Record(ctx context.Context, rec domain.TranscodeRecord) error
	Recent(ctx context.Context, limit int) ([]domain.TranscodeRecord, error)
	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
