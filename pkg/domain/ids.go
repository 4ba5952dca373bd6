// Package domain holds domain primitives shared across the observation core.
// Typed IDs prevent accidental cross-wiring of entity references (an
// ObservationID can never be passed where a UserID is expected).
package domain

import (
	"github.com/google/uuid"

	dErrors "naturewatch/pkg/domain-errors"
)

// Typed UUID identifiers for the core entities.
//
// Invariant: IDs must be valid, non-nil UUIDs. Construct via the Parse
// functions at trust boundaries; direct casting bypasses validation.
type (
	UserID         uuid.UUID
	ObservationID  uuid.UUID
	SpeciesID      uuid.UUID
	ZoneID         uuid.UUID
	VerificationID uuid.UUID
	DisputeID      uuid.UUID
	VoteID         uuid.UUID
)

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.NewField(dErrors.CodeValidation, what, "must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.NewField(dErrors.CodeValidation, what, "must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.NewField(dErrors.CodeValidation, what, "must not be the nil UUID")
	}
	return u, nil
}

// ParseUserID constructs a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

// ParseObservationID constructs an ObservationID from external input.
func ParseObservationID(s string) (ObservationID, error) {
	u, err := parseUUID(s, "observation_id")
	return ObservationID(u), err
}

// ParseSpeciesID constructs a SpeciesID from external input.
func ParseSpeciesID(s string) (SpeciesID, error) {
	u, err := parseUUID(s, "species_id")
	return SpeciesID(u), err
}

// ParseDisputeID constructs a DisputeID from external input.
func ParseDisputeID(s string) (DisputeID, error) {
	u, err := parseUUID(s, "dispute_id")
	return DisputeID(u), err
}

// NewObservationID returns a fresh random observation id.
func NewObservationID() ObservationID { return ObservationID(uuid.New()) }

// NewVerificationID returns a fresh random verification record id.
func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }

// NewDisputeID returns a fresh random dispute id.
func NewDisputeID() DisputeID { return DisputeID(uuid.New()) }

// NewVoteID returns a fresh random vote id.
func NewVoteID() VoteID { return VoteID(uuid.New()) }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ObservationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SpeciesID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ZoneID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id VerificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DisputeID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id VoteID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id ObservationID) String() string  { return uuid.UUID(id).String() }
func (id SpeciesID) String() string      { return uuid.UUID(id).String() }
func (id ZoneID) String() string         { return uuid.UUID(id).String() }
func (id VerificationID) String() string { return uuid.UUID(id).String() }
func (id DisputeID) String() string      { return uuid.UUID(id).String() }
func (id VoteID) String() string         { return uuid.UUID(id).String() }
