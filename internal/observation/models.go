package observation

import (
	"time"

	"naturewatch/internal/geoprivacy"
	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
)

// State is the verification lifecycle state of an observation.
//
// Invariant: transitions happen only through the table below, driven by the
// verification service and the dispute coordinator. Resolved states are
// terminal; there is no path back to pending.
type State string

const (
	StatePending            State = "pending"
	StateVerified           State = "verified"
	StateDisputed           State = "disputed"
	StateUnderReview        State = "under_review"
	StateResolvedUpheld     State = "resolved_upheld"
	StateResolvedOverturned State = "resolved_overturned"
)

// validTransitions is the single source of truth for the state machine.
var validTransitions = map[State][]State{
	StatePending:     {StateVerified, StateDisputed},
	StateVerified:    {StateDisputed}, // a later, higher-tier verifier may contest
	StateDisputed:    {StateUnderReview},
	StateUnderReview: {StateResolvedUpheld, StateResolvedOverturned},
	// resolved states are terminal
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave the state.
func (s State) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// IsValid checks the state is one of the enumerated values.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateVerified, StateDisputed, StateUnderReview,
		StateResolvedUpheld, StateResolvedOverturned:
		return true
	}
	return false
}

// ConflictResolution is a contributor's choice for a flagged conflict.
type ConflictResolution string

const (
	ResolutionKeepExisting ConflictResolution = "keep_existing"
	ResolutionKeepNew      ConflictResolution = "keep_new"
	ResolutionMerge        ConflictResolution = "merge"
)

// ConflictResolutionOptions is the choice list surfaced with every conflict.
var ConflictResolutionOptions = []ConflictResolution{
	ResolutionKeepExisting, ResolutionKeepNew, ResolutionMerge,
}

// ParseConflictResolution validates external input.
func ParseConflictResolution(s string) (ConflictResolution, error) {
	r := ConflictResolution(s)
	switch r {
	case ResolutionKeepExisting, ResolutionKeepNew, ResolutionMerge:
		return r, nil
	}
	return "", dErrors.NewField(dErrors.CodeValidation, "resolution",
		"must be one of keep_existing, keep_new, merge")
}

// Observation is the core persisted record. The raw coordinate is never
// exposed once a protected zone applies; reads serve the disclosed coordinate
// stored at write time. Records are superseded, never hard-deleted, to
// preserve the audit trail.
type Observation struct {
	ID      id.ObservationID
	OwnerID id.UserID
	Species id.SpeciesID

	Raw             geoprivacy.Coordinate
	Disclosed       geoprivacy.Coordinate
	PrecisionMeters float64
	ZoneStatus      geoprivacy.ZoneStatus

	ObservedAt  time.Time // contributor-asserted, UTC-normalized
	SubmittedAt time.Time // server-assigned, immutable

	IsPrivate       bool
	IsRetrospective bool
	Justification   string // required iff retrospective

	MediaRefs      []string
	IdempotencyKey string

	State State

	ConflictDetected bool
	ConflictsWith    []id.ObservationID

	Superseded   bool
	SupersededBy id.ObservationID

	// RefreshedAt is the freshness marker reset by the owner when the record
	// outlives the retention window.
	RefreshedAt time.Time

	// Version backs the optimistic per-observation serialization of state
	// transitions.
	Version int64
}

// Publishable returns the observation's coordinate view for external readers:
// the stored disclosed coordinate, never the raw one.
func (o *Observation) Publishable() geoprivacy.Coordinate {
	return o.Disclosed
}

// CellKey buckets the raw coordinate for conflict lookups by rounding both
// axes to the configured number of decimals.
func (o *Observation) CellKey(decimals int) string {
	return CellKey(o.Raw, decimals)
}

// ObservedDay is the UTC calendar day of the asserted timestamp.
func (o *Observation) ObservedDay() string {
	return o.ObservedAt.UTC().Format("2006-01-02")
}
