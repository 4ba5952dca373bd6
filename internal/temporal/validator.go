// Package temporal validates contributor-asserted observation timestamps
// against the server clock, the contributor's stated timezone, and the
// configured retention window.
package temporal

import (
	"fmt"
	"time"

	dErrors "naturewatch/pkg/domain-errors"
)

// Status is the outcome class of a timestamp check.
type Status string

const (
	StatusOK        Status = "ok"
	StatusCorrected Status = "corrected"
	StatusRejected  Status = "rejected"
)

// Result reports the validator's decision. Corrected results carry the
// server's proposed timestamp; the contributor may accept it or explicitly
// override, both are valid.
type Result struct {
	Status                Status     `json:"status"`
	CorrectedTimestamp    *time.Time `json:"corrected_timestamp,omitempty"`
	RequiresJustification bool       `json:"requires_justification"`
	TimezoneMismatch      bool       `json:"timezone_mismatch"`
	Message               string     `json:"message,omitempty"`
}

// MaxJustificationLen bounds retrospective justification text.
const MaxJustificationLen = 500

// Validator applies the temporal acceptance rules with a configured retention
// window W in days.
type Validator struct {
	windowDays int
}

func NewValidator(windowDays int) *Validator {
	return &Validator{windowDays: windowDays}
}

// Check evaluates an asserted timestamp. tzOffsetMinutes is the contributor's
// stated UTC offset. Rules apply in order: future rejection, retention-window
// justification, timezone date mismatch.
func (v *Validator) Check(asserted time.Time, tzOffsetMinutes int, now time.Time) Result {
	asserted = asserted.UTC()
	now = now.UTC()

	// Rule 1: future timestamps are always invalid, no tolerance, regardless
	// of the window. The contributor's offset only shifts how the instant is
	// displayed, not the instant itself.
	if asserted.After(now) {
		return Result{
			Status:  StatusRejected,
			Message: "observation timestamp is in the future",
		}
	}

	result := Result{Status: StatusOK}

	// Rule 2: outside the retention window, justification is required and is
	// stored on the observation.
	window := time.Duration(v.windowDays) * 24 * time.Hour
	if now.Sub(asserted) > window {
		result.RequiresJustification = true
		result.Message = fmt.Sprintf("observation older than %d days requires justification", v.windowDays)
	}

	// Rule 3: if the contributor-local calendar date disagrees with the
	// server-derived date, propose the server's timezone-adjusted instant.
	contributorZone := time.FixedZone("contributor", tzOffsetMinutes*60)
	localDate := asserted.In(contributorZone).Format("2006-01-02")
	serverDate := asserted.Format("2006-01-02")
	if localDate != serverDate {
		corrected := asserted.In(contributorZone)
		result.Status = StatusCorrected
		result.TimezoneMismatch = true
		result.CorrectedTimestamp = &corrected
		if result.Message == "" {
			result.Message = "asserted date differs across timezones; correction proposed"
		}
	}

	return result
}

// ValidateJustification enforces the retrospective invariant: non-empty and at
// most MaxJustificationLen characters.
func ValidateJustification(justification string) error {
	if justification == "" {
		return dErrors.NewField(dErrors.CodeValidation, "justification",
			"required for retrospective observations")
	}
	if len([]rune(justification)) > MaxJustificationLen {
		return dErrors.NewField(dErrors.CodeValidation, "justification",
			fmt.Sprintf("must be at most %d characters", MaxJustificationLen))
	}
	return nil
}
