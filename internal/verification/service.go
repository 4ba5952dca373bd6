package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"naturewatch/internal/audit"
	"naturewatch/internal/credibility"
	"naturewatch/internal/dispute"
	"naturewatch/internal/observation"
	"naturewatch/internal/platform/config"
	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
	"naturewatch/pkg/platform/sentinel"
	pkgstrings "naturewatch/pkg/platform/strings"
	"naturewatch/pkg/requestcontext"
)

// CredibilityLedger is the slice of the credibility service the verification
// flow needs: standing checks and outcome recording.
type CredibilityLedger interface {
	Current(ctx context.Context, userID id.UserID) (*credibility.Summary, error)
	RecordOutcome(ctx context.Context, userID id.UserID, reason credibility.Reason, delta int) (int, error)
}

// AuditPublisher emits audit events for lifecycle transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Metrics is the narrow counter surface the service touches.
type Metrics interface {
	IncVerificationsSubmitted(tier string)
	IncDisputesOpened()
}

// Service drives the observation verification lifecycle: peer verification,
// dispute raising, and owner freshness resets. All state transitions go
// through the observation store's version check, retried a bounded number of
// times before surfacing a concurrent-modification error.
type Service struct {
	verifications Store
	observations  observation.Store
	disputes      dispute.Store
	ledger        CredibilityLedger

	policy config.Trust

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(
	verifications Store,
	observations observation.Store,
	disputes dispute.Store,
	ledger CredibilityLedger,
	policy config.Trust,
	opts ...Option,
) (*Service, error) {
	if verifications == nil || observations == nil || disputes == nil || ledger == nil {
		return nil, fmt.Errorf("verification service requires all stores and the credibility ledger")
	}
	svc := &Service{
		verifications: verifications,
		observations:  observations,
		disputes:      disputes,
		ledger:        ledger,
		policy:        policy,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SubmitVerification records a verifier's assessment. The first verification
// moves a pending observation to verified and credits the owner. Verifiers
// need tier standing and may not verify their own observations; resubmitting
// supersedes the verifier's earlier record.
func (s *Service) SubmitVerification(
	ctx context.Context,
	obsID id.ObservationID,
	verifierID id.UserID,
	tier Tier,
	confidence float64,
	notes string,
) (*Record, error) {
	if confidence < 0 || confidence > 1 {
		return nil, dErrors.NewField(dErrors.CodeValidation, "confidence", "must be in [0,1]")
	}

	obs, err := s.loadObservation(ctx, obsID)
	if err != nil {
		return nil, err
	}
	if obs.OwnerID == verifierID {
		return nil, dErrors.New(dErrors.CodeNotEligible, "cannot verify your own observation")
	}
	if err := s.requireStanding(ctx, verifierID, tier); err != nil {
		return nil, err
	}
	switch obs.State {
	case observation.StatePending, observation.StateVerified:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("observation in state %q does not accept verifications", obs.State))
	}

	now := requestcontext.Now(ctx)
	if err := s.supersedePrior(ctx, obsID, verifierID); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:            id.NewVerificationID(),
		ObservationID: obsID,
		VerifierID:    verifierID,
		Tier:          tier,
		Confidence:    confidence,
		Notes:         notes,
		CreatedAt:     now,
	}
	if err := s.verifications.Create(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store verification")
	}

	// First verification promotes the observation and credits the owner.
	if obs.State == observation.StatePending {
		if err := s.transition(ctx, obsID, observation.StateVerified); err != nil {
			return nil, err
		}
		if _, err := s.ledger.RecordOutcome(ctx, obs.OwnerID,
			credibility.ReasonObservationVerified, s.policy.Deltas.OwnerVerified); err != nil {
			s.logger.ErrorContext(ctx, "owner credit failed", "observation_id", obsID, "error", err)
		}
	}
	if _, err := s.ledger.RecordOutcome(ctx, verifierID,
		credibility.ReasonVerifierParticipation, s.policy.Deltas.VerifierParticipation); err != nil {
		s.logger.ErrorContext(ctx, "verifier credit failed", "verifier_id", verifierID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.IncVerificationsSubmitted(tier.String())
	}
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			Action:  audit.ActionVerificationSubmitted,
			ActorID: verifierID,
			Subject: obsID.String(),
			Detail:  fmt.Sprintf("%s confidence=%.2f", tier, confidence),
		})
	}
	s.logger.InfoContext(ctx, "verification submitted",
		"observation_id", obsID,
		"verifier_id", verifierID,
		"tier", tier.String(),
	)
	return rec, nil
}

// RaiseDispute challenges a pending or verified observation. Requires tier-2
// standing and a non-owner; opens a dispute with voting running from now.
func (s *Service) RaiseDispute(
	ctx context.Context,
	obsID id.ObservationID,
	disputantID id.UserID,
	reason string,
	evidence []string,
) (*dispute.Dispute, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.NewField(dErrors.CodeValidation, "reason", "must not be empty")
	}

	obs, err := s.loadObservation(ctx, obsID)
	if err != nil {
		return nil, err
	}
	if obs.OwnerID == disputantID {
		return nil, dErrors.New(dErrors.CodeNotEligible, "cannot dispute your own observation")
	}
	if err := s.requireStanding(ctx, disputantID, Tier2); err != nil {
		return nil, err
	}
	if !observation.CanTransition(obs.State, observation.StateDisputed) {
		return nil, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("observation in state %q cannot be disputed", obs.State))
	}

	if err := s.transition(ctx, obsID, observation.StateDisputed); err != nil {
		return nil, err
	}

	d := &dispute.Dispute{
		ID:            id.NewDisputeID(),
		ObservationID: obsID,
		RaisedBy:      disputantID,
		Reason:        reason,
		Evidence:      evidence,
		Status:        dispute.StatusVoting,
		OpenedAt:      requestcontext.Now(ctx),
	}
	if err := s.disputes.Create(ctx, d); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open dispute")
	}

	if s.metrics != nil {
		s.metrics.IncDisputesOpened()
	}
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			Action:  audit.ActionDisputeOpened,
			ActorID: disputantID,
			Subject: obsID.String(),
			Detail:  reason,
		})
	}
	s.logger.InfoContext(ctx, "dispute opened",
		"observation_id", obsID,
		"dispute_id", d.ID,
		"raised_by", disputantID,
	)
	return d, nil
}

// RefreshExpired resets the freshness marker on an observation that outlived
// the retention window and folds any resubmitted evidence into the record's
// media refs. Owner-only; the verification state is untouched.
func (s *Service) RefreshExpired(ctx context.Context, obsID id.ObservationID, callerID id.UserID, newEvidence []string) (*observation.Observation, error) {
	now := requestcontext.Now(ctx)
	var refreshed *observation.Observation
	err := s.withRetry(ctx, func() error {
		obs, err := s.loadObservation(ctx, obsID)
		if err != nil {
			return err
		}
		if obs.OwnerID != callerID {
			return dErrors.New(dErrors.CodeNotOwner, "only the owner can refresh an observation")
		}
		obs.RefreshedAt = now
		obs.MediaRefs = pkgstrings.DedupeAndTrim(append(obs.MediaRefs, newEvidence...))
		if err := s.observations.Update(ctx, obs); err != nil {
			return err
		}
		refreshed = obs
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			Action:  audit.ActionObservationRefreshed,
			ActorID: callerID,
			Subject: obsID.String(),
		})
	}
	return refreshed, nil
}

// ActiveVerifiers returns the distinct verifiers with a live record on the
// observation. The dispute coordinator uses it for vote eligibility and for
// debiting verifiers when a call is reversed.
func (s *Service) ActiveVerifiers(ctx context.Context, obsID id.ObservationID) ([]id.UserID, error) {
	records, err := s.verifications.ListByObservation(ctx, obsID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	seen := make(map[id.UserID]struct{})
	var out []id.UserID
	for _, rec := range records {
		if rec.Superseded {
			continue
		}
		if _, ok := seen[rec.VerifierID]; ok {
			continue
		}
		seen[rec.VerifierID] = struct{}{}
		out = append(out, rec.VerifierID)
	}
	return out, nil
}

func (s *Service) loadObservation(ctx context.Context, obsID id.ObservationID) (*observation.Observation, error) {
	obs, err := s.observations.Get(ctx, obsID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "observation not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}
	return obs, nil
}

func (s *Service) requireStanding(ctx context.Context, userID id.UserID, tier Tier) error {
	summary, err := s.ledger.Current(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credibility")
	}
	threshold := s.policy.Tier1MinScore
	if tier == Tier2 {
		threshold = s.policy.Tier2MinScore
	}
	if summary.Score < threshold {
		return dErrors.New(dErrors.CodeInsufficientCredibility,
			fmt.Sprintf("score %d below the %s threshold of %d", summary.Score, tier, threshold))
	}
	return nil
}

func (s *Service) supersedePrior(ctx context.Context, obsID id.ObservationID, verifierID id.UserID) error {
	records, err := s.verifications.ListByObservation(ctx, obsID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	for _, rec := range records {
		if rec.VerifierID != verifierID || rec.Superseded {
			continue
		}
		if err := s.verifications.Supersede(ctx, rec.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to supersede verification")
		}
	}
	return nil
}

// transition moves the observation to the target state, reloading and
// revalidating after every lost version race.
func (s *Service) transition(ctx context.Context, obsID id.ObservationID, to observation.State) error {
	return s.withRetry(ctx, func() error {
		obs, err := s.loadObservation(ctx, obsID)
		if err != nil {
			return err
		}
		if obs.State == to {
			return nil
		}
		if !observation.CanTransition(obs.State, to) {
			return dErrors.New(dErrors.CodeInvalidState,
				fmt.Sprintf("cannot move observation from %q to %q", obs.State, to))
		}
		obs.State = to
		return s.observations.Update(ctx, obs)
	})
}

func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	retries := s.policy.MaxTransitionRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		err := fn()
		if errors.Is(err, sentinel.ErrVersionMismatch) {
			lastErr = err
			continue
		}
		if err != nil {
			var de *dErrors.Error
			if errors.As(err, &de) {
				return err
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update observation")
		}
		return nil
	}
	return dErrors.Wrap(lastErr, dErrors.CodeConcurrentModification,
		"observation update lost the serialization race")
}
