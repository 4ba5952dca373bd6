package dispute

import (
	"context"
	"sync"
	"time"

	id "naturewatch/pkg/domain"
	"naturewatch/pkg/platform/sentinel"
)

// InMemoryStore keeps disputes and votes in maps guarded by a RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	disputes map[id.DisputeID]*Dispute
	votes    map[id.DisputeID][]*Vote
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		disputes: make(map[id.DisputeID]*Dispute),
		votes:    make(map[id.DisputeID][]*Vote),
	}
}

func (s *InMemoryStore) Create(_ context.Context, d *Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.disputes[d.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := copyDispute(d)
	cp.Version = 1
	s.disputes[d.ID] = cp
	d.Version = 1
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, disputeID id.DisputeID) (*Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.disputes[disputeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyDispute(d), nil
}

func (s *InMemoryStore) Update(_ context.Context, d *Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.disputes[d.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != d.Version {
		return sentinel.ErrVersionMismatch
	}
	cp := copyDispute(d)
	cp.Version++
	s.disputes[d.ID] = cp
	d.Version = cp.Version
	return nil
}

func (s *InMemoryStore) AddVote(_ context.Context, v *Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disputes[v.DisputeID]; !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range s.votes[v.DisputeID] {
		if existing.VoterID == v.VoterID {
			return sentinel.ErrConflict
		}
	}
	cp := *v
	s.votes[v.DisputeID] = append(s.votes[v.DisputeID], &cp)
	return nil
}

func (s *InMemoryStore) ListVotes(_ context.Context, disputeID id.DisputeID) ([]*Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	votes := s.votes[disputeID]
	out := make([]*Vote, 0, len(votes))
	for _, v := range votes {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) ListVotingBefore(_ context.Context, cutoff time.Time) ([]*Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Dispute
	for _, d := range s.disputes {
		if d.Status == StatusVoting && !d.OpenedAt.After(cutoff) {
			out = append(out, copyDispute(d))
		}
	}
	return out, nil
}

func copyDispute(d *Dispute) *Dispute {
	cp := *d
	cp.Evidence = append([]string{}, d.Evidence...)
	return &cp
}
