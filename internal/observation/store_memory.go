package observation

import (
	"context"
	"sync"
	"time"

	id "naturewatch/pkg/domain"
	"naturewatch/pkg/platform/sentinel"
)

// cellDecimals used for the in-memory neighbor index. Matches the detector's
// default; the postgres store stores the cell key column computed the same way.
const cellDecimals = 3

// InMemoryStore keeps observations in maps guarded by a RWMutex. Used in
// tests and single-node development deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[id.ObservationID]*Observation
	byIdem map[string]id.ObservationID // owner|key -> observation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[id.ObservationID]*Observation),
		byIdem: make(map[string]id.ObservationID),
	}
}

func idemKey(owner id.UserID, key string) string {
	return owner.String() + "|" + key
}

func (s *InMemoryStore) Create(_ context.Context, obs *Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[obs.ID]; exists {
		return sentinel.ErrConflict
	}
	if obs.IdempotencyKey != "" {
		if _, exists := s.byIdem[idemKey(obs.OwnerID, obs.IdempotencyKey)]; exists {
			return sentinel.ErrConflict
		}
		s.byIdem[idemKey(obs.OwnerID, obs.IdempotencyKey)] = obs.ID
	}
	cp := *obs
	cp.Version = 1
	s.byID[obs.ID] = &cp
	obs.Version = 1
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, obsID id.ObservationID) (*Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.byID[obsID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *obs
	return &cp, nil
}

func (s *InMemoryStore) GetByIdempotencyKey(_ context.Context, owner id.UserID, key string) (*Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obsID, ok := s.byIdem[idemKey(owner, key)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[obsID]
	return &cp, nil
}

func (s *InMemoryStore) ListNeighbors(_ context.Context, owner id.UserID, cellKey string, day time.Time) ([]*Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dayKey := day.UTC().Format("2006-01-02")
	var out []*Observation
	for _, obs := range s.byID {
		if obs.OwnerID != owner || obs.Superseded {
			continue
		}
		if obs.CellKey(cellDecimals) != cellKey || obs.ObservedDay() != dayKey {
			continue
		}
		cp := *obs
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, obs *Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[obs.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != obs.Version {
		return sentinel.ErrVersionMismatch
	}
	cp := *obs
	cp.Version = stored.Version + 1
	s.byID[obs.ID] = &cp
	obs.Version = cp.Version
	return nil
}
