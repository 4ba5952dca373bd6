package credibility

import (
	"context"
	"sync"

	id "naturewatch/pkg/domain"
	"naturewatch/pkg/platform/sentinel"
)

// InMemoryStore keeps ledgers in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.UserID]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.UserID]*Record)}
}

func (s *InMemoryStore) Get(_ context.Context, userID id.UserID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRecord(record), nil
}

func (s *InMemoryStore) Create(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.UserID]; exists {
		return sentinel.ErrConflict
	}
	cp := copyRecord(record)
	cp.Version = 1
	s.records[record.UserID] = cp
	record.Version = 1
	return nil
}

func (s *InMemoryStore) Append(_ context.Context, userID id.UserID, entry Entry, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if record.Version != expectedVersion {
		return sentinel.ErrVersionMismatch
	}
	record.History = append(record.History, entry)
	record.Score = entry.Score
	record.Version++
	return nil
}

func copyRecord(r *Record) *Record {
	cp := *r
	cp.History = append([]Entry{}, r.History...)
	return &cp
}
