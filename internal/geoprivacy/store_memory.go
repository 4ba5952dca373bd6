package geoprivacy

import (
	"context"
	"sync"
)

// InMemoryZoneStore serves a fixed zone list, loadable at startup or from tests.
type InMemoryZoneStore struct {
	mu    sync.RWMutex
	zones []Zone
}

func NewInMemoryZoneStore(zones ...Zone) *InMemoryZoneStore {
	return &InMemoryZoneStore{zones: zones}
}

func (s *InMemoryZoneStore) ListZones(_ context.Context) ([]Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Zone{}, s.zones...), nil
}

// Replace swaps the zone list wholesale, e.g. on registry refresh.
func (s *InMemoryZoneStore) Replace(zones []Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones = append([]Zone{}, zones...)
}
