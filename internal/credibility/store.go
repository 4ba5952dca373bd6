package credibility

import (
	"context"

	id "naturewatch/pkg/domain"
)

// Store persists credibility ledgers.
//
// Errors follow pkg/platform/sentinel: ErrNotFound for unknown users,
// ErrConflict when Create races another create, ErrVersionMismatch when
// Append loses the per-user serialization race.
type Store interface {
	// Get returns the user's ledger.
	Get(ctx context.Context, userID id.UserID) (*Record, error)

	// Create inserts a fresh ledger (initial entry included).
	Create(ctx context.Context, record *Record) error

	// Append adds one history entry and sets the new score atomically,
	// guarded by the record's version.
	Append(ctx context.Context, userID id.UserID, entry Entry, expectedVersion int64) error
}
