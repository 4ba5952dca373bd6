package verification

import (
	"time"

	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
)

// Tier is a verifier's standing level. Tier 1 verifies pending observations;
// tier 2 additionally raises disputes against verified ones.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
)

// ParseTier validates external input.
func ParseTier(n int) (Tier, error) {
	switch Tier(n) {
	case Tier1, Tier2:
		return Tier(n), nil
	}
	return 0, dErrors.NewField(dErrors.CodeValidation, "tier", "must be 1 or 2")
}

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	}
	return "unknown"
}

// Record is one verifier's assessment of an observation.
//
// A verifier has at most one active record per observation; resubmitting
// supersedes the earlier one. Superseded records stay in the table for the
// audit trail.
type Record struct {
	ID            id.VerificationID
	ObservationID id.ObservationID
	VerifierID    id.UserID
	Tier          Tier
	Confidence    float64 // 0..1
	Notes         string
	CreatedAt     time.Time
	Superseded    bool
}
