package observation

import (
	"context"
	"time"

	id "naturewatch/pkg/domain"
)

// Store persists observations.
//
// Errors follow pkg/platform/sentinel: ErrNotFound for missing rows,
// ErrConflict for idempotency-key duplicates on Create, ErrVersionMismatch
// when an Update loses the optimistic version race.
type Store interface {
	// Create inserts a new observation. The (owner, idempotency key) pair is
	// unique when the key is non-empty.
	Create(ctx context.Context, obs *Observation) error

	// Get returns an observation by id.
	Get(ctx context.Context, obsID id.ObservationID) (*Observation, error)

	// GetByIdempotencyKey returns the owner's observation carrying the key.
	GetByIdempotencyKey(ctx context.Context, owner id.UserID, key string) (*Observation, error)

	// ListNeighbors returns the owner's non-superseded observations in the
	// given cell on the given UTC day, including still-pending queued ones.
	ListNeighbors(ctx context.Context, owner id.UserID, cellKey string, day time.Time) ([]*Observation, error)

	// Update persists a mutation. The stored row's version must equal
	// obs.Version; on success the version is incremented. This is the
	// serialization point for state transitions.
	Update(ctx context.Context, obs *Observation) error
}
