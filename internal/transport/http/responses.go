package httptransport

import (
	"time"

	"naturewatch/internal/credibility"
	"naturewatch/internal/dispute"
	"naturewatch/internal/ingest"
	"naturewatch/internal/observation"
	"naturewatch/internal/verification"
)

// ObservationResponse is the public view of an observation. It always carries
// the stored disclosed coordinate; the raw one never crosses the transport.
type ObservationResponse struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	SpeciesID       string     `json:"species_id"`
	Lat             float64    `json:"lat"`
	Lon             float64    `json:"lon"`
	PrecisionMeters float64    `json:"precision_meters,omitempty"`
	ZoneStatus      string     `json:"zone_status"`
	ObservedAt      time.Time  `json:"observed_at"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	State           string     `json:"state"`
	Private         bool       `json:"private"`
	Retrospective   bool       `json:"retrospective"`
	MediaRefs       []string   `json:"media_refs,omitempty"`
	ConflictPending bool       `json:"conflict_pending"`
	ConflictsWith   []string   `json:"conflicts_with,omitempty"`
	Superseded      bool       `json:"superseded"`
	SupersededBy    string     `json:"superseded_by,omitempty"`
	RefreshedAt     *time.Time `json:"refreshed_at,omitempty"`
}

func fromObservation(obs *observation.Observation) ObservationResponse {
	resp := ObservationResponse{
		ID:              obs.ID.String(),
		OwnerID:         obs.OwnerID.String(),
		SpeciesID:       obs.Species.String(),
		Lat:             obs.Publishable().Lat,
		Lon:             obs.Publishable().Lon,
		PrecisionMeters: obs.PrecisionMeters,
		ZoneStatus:      string(obs.ZoneStatus),
		ObservedAt:      obs.ObservedAt,
		SubmittedAt:     obs.SubmittedAt,
		State:           string(obs.State),
		Private:         obs.IsPrivate,
		Retrospective:   obs.IsRetrospective,
		MediaRefs:       obs.MediaRefs,
		ConflictPending: obs.ConflictDetected,
		Superseded:      obs.Superseded,
	}
	for _, other := range obs.ConflictsWith {
		resp.ConflictsWith = append(resp.ConflictsWith, other.String())
	}
	if !obs.SupersededBy.IsNil() {
		resp.SupersededBy = obs.SupersededBy.String()
	}
	if !obs.RefreshedAt.IsZero() {
		t := obs.RefreshedAt
		resp.RefreshedAt = &t
	}
	return resp
}

// ConflictResponse surfaces a flagged conflict and the resolution choices.
type ConflictResponse struct {
	Against []string `json:"against"`
	Options []string `json:"options"`
}

// SubmitResponse is the intake decision for one submission.
type SubmitResponse struct {
	Observation ObservationResponse `json:"observation"`
	Retried     bool                `json:"retried,omitempty"`
	Conflict    *ConflictResponse   `json:"conflict,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
}

func fromSubmitResult(res *ingest.SubmitResult) SubmitResponse {
	resp := SubmitResponse{
		Observation: fromObservation(res.Observation),
		Retried:     res.Retried(),
		Warnings:    res.Warnings,
	}
	if res.Conflict != nil && len(res.Conflict.Against) > 0 {
		cr := &ConflictResponse{}
		for _, other := range res.Conflict.Against {
			cr.Against = append(cr.Against, other.String())
		}
		for _, opt := range res.Conflict.Options {
			cr.Options = append(cr.Options, string(opt))
		}
		resp.Conflict = cr
	}
	return resp
}

// SyncItemResponse is the per-item outcome of a batch replay, in input order.
type SyncItemResponse struct {
	Index  int             `json:"index"`
	Status string          `json:"status"`
	Result *SubmitResponse `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// SyncResponse summarizes a replayed batch.
type SyncResponse struct {
	Items []SyncItemResponse `json:"items"`
}

func fromSyncResults(results []ingest.ItemResult) SyncResponse {
	resp := SyncResponse{Items: make([]SyncItemResponse, 0, len(results))}
	for _, item := range results {
		out := SyncItemResponse{
			Index:  item.Index,
			Status: string(item.Status),
			Error:  item.Error,
		}
		if item.Result != nil {
			sub := fromSubmitResult(item.Result)
			out.Result = &sub
		}
		resp.Items = append(resp.Items, out)
	}
	return resp
}

// VerificationResponse is the stored assessment.
type VerificationResponse struct {
	ID            string    `json:"id"`
	ObservationID string    `json:"observation_id"`
	VerifierID    string    `json:"verifier_id"`
	Tier          int       `json:"tier"`
	Confidence    float64   `json:"confidence"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func fromVerification(rec *verification.Record) VerificationResponse {
	return VerificationResponse{
		ID:            rec.ID.String(),
		ObservationID: rec.ObservationID.String(),
		VerifierID:    rec.VerifierID.String(),
		Tier:          int(rec.Tier),
		Confidence:    rec.Confidence,
		Notes:         rec.Notes,
		CreatedAt:     rec.CreatedAt,
	}
}

// DisputeResponse is a dispute with its running tally.
type DisputeResponse struct {
	ID            string     `json:"id"`
	ObservationID string     `json:"observation_id"`
	RaisedBy      string     `json:"raised_by"`
	Reason        string     `json:"reason"`
	Evidence      []string   `json:"evidence,omitempty"`
	Status        string     `json:"status"`
	Outcome       string     `json:"outcome,omitempty"`
	OpenedAt      time.Time  `json:"opened_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	VotesUphold   int        `json:"votes_uphold"`
	VotesOverturn int        `json:"votes_overturn"`
}

func fromDispute(d *dispute.Dispute, tally dispute.Tally) DisputeResponse {
	resp := DisputeResponse{
		ID:            d.ID.String(),
		ObservationID: d.ObservationID.String(),
		RaisedBy:      d.RaisedBy.String(),
		Reason:        d.Reason,
		Evidence:      d.Evidence,
		Status:        string(d.Status),
		Outcome:       string(d.Outcome),
		OpenedAt:      d.OpenedAt,
		VotesUphold:   tally.Uphold,
		VotesOverturn: tally.Overturn,
	}
	if !d.ResolvedAt.IsZero() {
		t := d.ResolvedAt
		resp.ResolvedAt = &t
	}
	return resp
}

// VoteResponse acknowledges a recorded vote.
type VoteResponse struct {
	ID        string    `json:"id"`
	DisputeID string    `json:"dispute_id"`
	Choice    string    `json:"choice"`
	CreatedAt time.Time `json:"created_at"`
}

func fromVote(v *dispute.Vote) VoteResponse {
	return VoteResponse{
		ID:        v.ID.String(),
		DisputeID: v.DisputeID.String(),
		Choice:    string(v.Choice),
		CreatedAt: v.CreatedAt,
	}
}

// CredibilityResponse explains a user's score.
type CredibilityResponse struct {
	UserID     string              `json:"user_id"`
	Score      int                 `json:"score"`
	Components []ComponentResponse `json:"components"`
}

// ComponentResponse is one weighted contributor to the score.
type ComponentResponse struct {
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

func fromSummary(summary *credibility.Summary) CredibilityResponse {
	resp := CredibilityResponse{
		UserID: summary.UserID.String(),
		Score:  summary.Score,
	}
	for _, c := range summary.Components {
		resp.Components = append(resp.Components, ComponentResponse{
			Name:         c.Name,
			Score:        c.Score,
			Weight:       c.Weight,
			Contribution: c.Contribution,
		})
	}
	return resp
}

// SuggestionResponse is one ranked improvement hint.
type SuggestionResponse struct {
	Component string `json:"component"`
	Hint      string `json:"hint"`
}

func fromSuggestions(suggestions []credibility.Suggestion) []SuggestionResponse {
	out := make([]SuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, SuggestionResponse{Component: s.Component, Hint: s.Hint})
	}
	return out
}
