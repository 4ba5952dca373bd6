package verification

import (
	"context"
	"sync"

	id "naturewatch/pkg/domain"
	"naturewatch/pkg/platform/sentinel"
)

// InMemoryStore keeps records per observation under a RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[id.VerificationID]*Record
	byObs   map[id.ObservationID][]id.VerificationID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:  make(map[id.VerificationID]*Record),
		byObs: make(map[id.ObservationID][]id.VerificationID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.byID[rec.ID] = &cp
	s.byObs[rec.ObservationID] = append(s.byObs[rec.ObservationID], rec.ID)
	return nil
}

func (s *InMemoryStore) ListByObservation(_ context.Context, obsID id.ObservationID) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byObs[obsID]
	out := make([]*Record, 0, len(ids))
	for _, recID := range ids {
		cp := *s.byID[recID]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) Supersede(_ context.Context, recID id.VerificationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[recID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Superseded = true
	return nil
}
