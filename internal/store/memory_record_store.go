package store

import (
	"context"
	"sync"

	"github.com/dunamismax/pixelproxy/internal/domain"
)

const defaultMemoryCapacity = 1024

// MemoryRecordStore keeps the most recent records in a fixed-size ring.
type MemoryRecordStore struct {
	mu       sync.RWMutex
	records  []domain.TranscodeRecord
	next     int
	full     bool
	capacity int
}

func NewMemoryRecordStore(capacity int) *MemoryRecordStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryRecordStore{
		records:  make([]domain.TranscodeRecord, capacity),
		capacity: capacity,
	}
}

func (s *MemoryRecordStore) Record(_ context.Context, rec domain.TranscodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[s.next] = rec
	s.next = (s.next + 1) % s.capacity
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *MemoryRecordStore) Recent(_ context.Context, limit int) ([]domain.TranscodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = s.capacity
	}
	limit = clampLimit(limit)
	if limit > size {
		limit = size
	}

	out := make([]domain.TranscodeRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + s.capacity) % s.capacity
		out = append(out, s.records[idx])
	}
	return out, nil
}

func (s *MemoryRecordStore) Close() error {
	return nil
}
