package dispute

import (
	"context"
	"time"

	id "naturewatch/pkg/domain"
)

// Store persists disputes and their votes.
//
// Errors follow pkg/platform/sentinel: ErrNotFound for missing rows,
// ErrConflict when a voter votes twice, ErrVersionMismatch when Update loses
// the optimistic version race.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, disputeID id.DisputeID) (*Dispute, error)

	// Update persists a mutation against d.Version and increments it. This is
	// the serialization point that makes resolution happen exactly once.
	Update(ctx context.Context, d *Dispute) error

	// AddVote records a vote. The (dispute, voter) pair is unique.
	AddVote(ctx context.Context, v *Vote) error
	ListVotes(ctx context.Context, disputeID id.DisputeID) ([]*Vote, error)

	// ListVotingBefore returns unresolved disputes opened at or before the
	// cutoff, for the window sweeper.
	ListVotingBefore(ctx context.Context, cutoff time.Time) ([]*Dispute, error)
}
