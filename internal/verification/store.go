package verification

import (
	"context"

	id "naturewatch/pkg/domain"
)

// Store persists verification records. Missing rows surface as
// sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, rec *Record) error

	// ListByObservation returns all records for the observation, active and
	// superseded, in creation order.
	ListByObservation(ctx context.Context, obsID id.ObservationID) ([]*Record, error)

	// Supersede marks a record inactive.
	Supersede(ctx context.Context, recID id.VerificationID) error
}
