// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services, and encode; no trust policy lives here.
package httptransport

import (
	"context"
	"log/slog"

	"naturewatch/internal/credibility"
	"naturewatch/internal/dispute"
	"naturewatch/internal/ingest"
	"naturewatch/internal/observation"
	"naturewatch/internal/verification"
	id "naturewatch/pkg/domain"
)

// IngestService is the intake pipeline surface.
type IngestService interface {
	ValidateAndIngest(ctx context.Context, req ingest.SubmitRequest) (*ingest.SubmitResult, error)
	SyncBatch(ctx context.Context, items []ingest.SubmitRequest) ([]ingest.ItemResult, error)
	ResolveConflict(ctx context.Context, obsID id.ObservationID, callerID id.UserID, resolution observation.ConflictResolution) (*observation.Observation, error)
	Get(ctx context.Context, obsID id.ObservationID, callerID id.UserID) (*observation.Observation, error)
}

// VerificationService is the lifecycle surface.
type VerificationService interface {
	SubmitVerification(ctx context.Context, obsID id.ObservationID, verifierID id.UserID, tier verification.Tier, confidence float64, notes string) (*verification.Record, error)
	RaiseDispute(ctx context.Context, obsID id.ObservationID, disputantID id.UserID, reason string, evidence []string) (*dispute.Dispute, error)
	RefreshExpired(ctx context.Context, obsID id.ObservationID, callerID id.UserID, newEvidence []string) (*observation.Observation, error)
}

// DisputeService is the voting surface.
type DisputeService interface {
	Get(ctx context.Context, disputeID id.DisputeID) (*dispute.Dispute, dispute.Tally, error)
	CastVote(ctx context.Context, disputeID id.DisputeID, voterID id.UserID, choice dispute.Choice) (*dispute.Vote, error)
}

// CredibilityService is the score read surface.
type CredibilityService interface {
	Current(ctx context.Context, userID id.UserID) (*credibility.Summary, error)
	ImprovementSuggestions(ctx context.Context, userID id.UserID) ([]credibility.Suggestion, error)
}

// Handler wires the trust engine endpoints to their services.
type Handler struct {
	ingest        IngestService
	verifications VerificationService
	disputes      DisputeService
	credibility   CredibilityService
	logger        *slog.Logger
}

// New constructs the handler with its dependencies.
func New(
	ingestSvc IngestService,
	verifications VerificationService,
	disputes DisputeService,
	credibilitySvc CredibilityService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		ingest:        ingestSvc,
		verifications: verifications,
		disputes:      disputes,
		credibility:   credibilitySvc,
		logger:        logger,
	}
}
