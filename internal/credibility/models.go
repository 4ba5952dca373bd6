package credibility

import (
	"time"

	id "naturewatch/pkg/domain"
)

// Score bounds. New users start at the configured base, which must sit in
// [0, NewUserMaxScore].
const (
	MinScore        = 0
	MaxScore        = 100
	NewUserMaxScore = 20
)

// Reason labels a ledger entry. Score changes originate only from
// verification and dispute outcomes, never from direct user action.
type Reason string

const (
	ReasonInitialScore          Reason = "initial_score"
	ReasonObservationVerified   Reason = "observation_verified"
	ReasonObservationUpheld     Reason = "observation_upheld"
	ReasonObservationOverturned Reason = "observation_overturned"
	ReasonVerifierOverturned    Reason = "verifier_overturned"
	ReasonVerifierParticipation Reason = "verifier_participation"
	ReasonVoterParticipation    Reason = "voter_participation"
	ReasonDisputantConfirmed    Reason = "disputant_confirmed"
	ReasonDisputantRejected     Reason = "disputant_rejected"
)

// Entry is one append-only history item. Score is the value after applying
// Delta, so replaying the history always reproduces the current score.
type Entry struct {
	At     time.Time `json:"at"`
	Delta  int       `json:"delta"`
	Score  int       `json:"score"`
	Reason Reason    `json:"reason"`
}

// Record is a user's ledger: current score plus the full ordered history.
//
// Invariant: Score always equals the fold of History; History is append-only.
// Version backs per-user optimistic serialization of appends.
type Record struct {
	UserID  id.UserID
	Score   int
	History []Entry
	Version int64
}

// Replay folds the history and reports whether it reproduces Score.
func (r *Record) Replay() (int, bool) {
	score := 0
	for i, e := range r.History {
		if i == 0 {
			score = e.Score
			continue
		}
		score = clamp(score + e.Delta)
	}
	return score, score == r.Score
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Component is one named contributor to the score explanation shown to users.
// Components are derived from the history on read, never stored, so they can
// never drift from it.
type Component struct {
	Name         string  `json:"name"`
	Score        float64 `json:"score"`  // 0..1
	Weight       float64 `json:"weight"` // fractions summing to 1
	Contribution float64 `json:"contribution"`
}

// Summary is the read view: score plus weighted component breakdown.
type Summary struct {
	UserID     id.UserID   `json:"user_id"`
	Score      int         `json:"score"`
	Components []Component `json:"components"`
}

// Suggestion is a ranked improvement hint derived from the weakest components.
type Suggestion struct {
	Component string `json:"component"`
	Hint      string `json:"hint"`
}
