package httptransport

import (
	"time"

	"naturewatch/internal/geoprivacy"
	"naturewatch/internal/ingest"
	id "naturewatch/pkg/domain"
)

// SubmitObservationRequest is the wire form of one submission, live or queued.
type SubmitObservationRequest struct {
	SpeciesID                string    `json:"species_id"`
	Lat                      float64   `json:"lat"`
	Lon                      float64   `json:"lon"`
	ObservedAt               time.Time `json:"observed_at"`
	TZOffsetMinutes          int       `json:"tz_offset_minutes"`
	RequestedPrecisionMeters float64   `json:"requested_precision_meters,omitempty"`
	ConfirmReducedPrecision  bool      `json:"confirm_reduced_precision,omitempty"`
	Justification            string    `json:"justification,omitempty"`
	MediaRefs                []string  `json:"media_refs,omitempty"`
	IdempotencyKey           string    `json:"idempotency_key,omitempty"`
	Private                  bool      `json:"private,omitempty"`
}

func (r SubmitObservationRequest) toDomain(owner id.UserID) (ingest.SubmitRequest, error) {
	species, err := id.ParseSpeciesID(r.SpeciesID)
	if err != nil {
		return ingest.SubmitRequest{}, err
	}
	return ingest.SubmitRequest{
		OwnerID:                  owner,
		Species:                  species,
		Coordinate:               geoprivacy.Coordinate{Lat: r.Lat, Lon: r.Lon},
		RequestedPrecisionMeters: r.RequestedPrecisionMeters,
		ConfirmReducedPrecision:  r.ConfirmReducedPrecision,
		ObservedAt:               r.ObservedAt,
		TZOffsetMinutes:          r.TZOffsetMinutes,
		Justification:            r.Justification,
		MediaRefs:                r.MediaRefs,
		IdempotencyKey:           r.IdempotencyKey,
		MarkPrivate:              r.Private,
	}, nil
}

// SyncRequest replays an offline queue in submission order.
type SyncRequest struct {
	Items []SubmitObservationRequest `json:"items"`
}

// ResolveConflictRequest carries the owner's choice for a flagged record.
type ResolveConflictRequest struct {
	Resolution string `json:"resolution"`
}

// SubmitVerificationRequest is a verifier's assessment.
type SubmitVerificationRequest struct {
	Tier       int     `json:"tier"`
	Confidence float64 `json:"confidence"`
	Notes      string  `json:"notes,omitempty"`
}

// RaiseDisputeRequest challenges an observation.
type RaiseDisputeRequest struct {
	Reason   string   `json:"reason"`
	Evidence []string `json:"evidence,omitempty"`
}

// CastVoteRequest is one community member's position.
type CastVoteRequest struct {
	Choice string `json:"choice"`
}

// RefreshObservationRequest resubmits supporting evidence with a freshness
// reset.
type RefreshObservationRequest struct {
	NewEvidence []string `json:"new_evidence,omitempty"`
}
