package audit

import (
	"time"

	id "naturewatch/pkg/domain"
)

// Action labels a trust-relevant event.
type Action string

const (
	ActionObservationIngested   Action = "observation_ingested"
	ActionObservationSuperseded Action = "observation_superseded"
	ActionConflictDetected      Action = "conflict_detected"
	ActionConflictResolved      Action = "conflict_resolved"
	ActionVerificationSubmitted Action = "verification_submitted"
	ActionDisputeOpened         Action = "dispute_opened"
	ActionVoteCast              Action = "vote_cast"
	ActionDisputeResolved       Action = "dispute_resolved"
	ActionCredibilityAdjusted   Action = "credibility_adjusted"
	ActionObservationRefreshed  Action = "observation_refreshed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	Action    Action
	ActorID   id.UserID
	Subject   string // entity id the action applies to
	Detail    string
	RequestID string
}
