package dispute

import (
	"time"

	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
)

// Status is the dispute lifecycle. Voting opens immediately when the dispute
// is raised; the window runs from OpenedAt.
type Status string

const (
	StatusVoting   Status = "voting"
	StatusResolved Status = "resolved"
)

// Outcome is the community's decision. Empty until resolved.
type Outcome string

const (
	OutcomeUpheld     Outcome = "upheld"     // the observation stands
	OutcomeOverturned Outcome = "overturned" // the disputant was right
)

// Choice is one voter's position.
type Choice string

const (
	ChoiceUphold   Choice = "uphold"
	ChoiceOverturn Choice = "overturn"
)

// ParseChoice validates external input.
func ParseChoice(s string) (Choice, error) {
	c := Choice(s)
	switch c {
	case ChoiceUphold, ChoiceOverturn:
		return c, nil
	}
	return "", dErrors.NewField(dErrors.CodeValidation, "choice", "must be uphold or overturn")
}

// Dispute challenges one observation. Version backs optimistic serialization
// of the resolve step so a dispute resolves exactly once.
type Dispute struct {
	ID            id.DisputeID
	ObservationID id.ObservationID
	RaisedBy      id.UserID
	Reason        string
	Evidence      []string

	Status  Status
	Outcome Outcome

	OpenedAt   time.Time
	ResolvedAt time.Time

	Version int64
}

// VotingClosed reports whether the window has elapsed at the given instant.
func (d *Dispute) VotingClosed(now time.Time, window time.Duration) bool {
	return now.Sub(d.OpenedAt) >= window
}

// Vote is one eligible community member's position on a dispute.
type Vote struct {
	ID        id.VoteID
	DisputeID id.DisputeID
	VoterID   id.UserID
	Choice    Choice
	CreatedAt time.Time
}

// Tally counts votes by choice.
type Tally struct {
	Uphold   int
	Overturn int
}

// Decide applies simple majority with ties breaking toward the status quo.
// The second return is false when there are no votes to decide on.
func (t Tally) Decide() (Outcome, bool) {
	if t.Uphold+t.Overturn == 0 {
		return "", false
	}
	if t.Overturn > t.Uphold {
		return OutcomeOverturned, true
	}
	return OutcomeUpheld, true
}
