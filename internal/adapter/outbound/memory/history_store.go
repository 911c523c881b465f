// Package memory provides in-memory adapter implementations for
// development, dry runs, and tests.
package memory

import (
	"context"
	"sync"

	"github.com/tagmill/tagmill/internal/domain/tagging"
)

// defaultHistoryCapacity bounds the in-memory record ring.
const defaultHistoryCapacity = 10000

// HistoryStore implements tagging.HistoryStore with a bounded
// in-memory ring. Thread-safe for concurrent access.
type HistoryStore struct {
	mu       sync.RWMutex
	records  []tagging.Record
	capacity int
}

// NewHistoryStore creates an in-memory history store. capacity <= 0
// uses the default.
func NewHistoryStore(capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &HistoryStore{capacity: capacity}
}

// Append stores records, evicting the oldest when over capacity.
func (s *HistoryStore) Append(ctx context.Context, records ...tagging.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	if over := len(s.records) - s.capacity; over > 0 {
		s.records = append([]tagging.Record(nil), s.records[over:]...)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]tagging.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]tagging.Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Size returns the number of stored records.
func (s *HistoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close releases nothing for the memory store.
func (s *HistoryStore) Close() error {
	return nil
}

// Compile-time interface verification.
var _ tagging.HistoryStore = (*HistoryStore)(nil)
