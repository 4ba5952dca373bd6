package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"naturewatch/internal/audit"
	"naturewatch/internal/credibility"
	"naturewatch/internal/observation"
	"naturewatch/internal/platform/config"
	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
	"naturewatch/pkg/platform/sentinel"
	"naturewatch/pkg/requestcontext"
)

// CredibilityLedger is the slice of the credibility service the coordinator
// needs: standing checks and outcome recording.
type CredibilityLedger interface {
	Current(ctx context.Context, userID id.UserID) (*credibility.Summary, error)
	RecordOutcome(ctx context.Context, userID id.UserID, reason credibility.Reason, delta int) (int, error)
}

// VerifierDirectory names the users with a live verification on an
// observation. They are excluded from voting and debited when overturned.
type VerifierDirectory interface {
	ActiveVerifiers(ctx context.Context, obsID id.ObservationID) ([]id.UserID, error)
}

// AuditPublisher emits audit events for votes and resolutions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Metrics is the narrow counter surface the coordinator touches.
type Metrics interface {
	IncVotesCast()
	IncDisputesResolved(outcome string)
}

// Service coordinates dispute voting and resolution. A dispute resolves when
// the vote count reaches quorum or the voting window elapses, whichever comes
// first; resolution fans credibility deltas out to everyone involved.
type Service struct {
	disputes     Store
	observations observation.Store
	ledger       CredibilityLedger
	verifiers    VerifierDirectory

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
	disputes Store,
	observations observation.Store,
	ledger CredibilityLedger,
	verifiers VerifierDirectory,
	policy config.Trust,
	opts ...Option,
) (*Service, error) {
	if disputes == nil || observations == nil || ledger == nil || verifiers == nil {
		return nil, fmt.Errorf("dispute service requires all stores and the credibility ledger")
	}
	svc := &Service{
		disputes:     disputes,
		observations: observations,
		ledger:       ledger,
		verifiers:    verifiers,
		policy:       policy,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Get returns the dispute with its current tally.
func (s *Service) Get(ctx context.Context, disputeID id.DisputeID) (*Dispute, Tally, error) {
	d, err := s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, Tally{}, err
	}
	tally, _, err := s.tally(ctx, disputeID)
	if err != nil {
		return nil, Tally{}, err
	}
	return d, tally, nil
}

// CastVote records an eligible member's vote. The owner, the disputant, and
// the observation's active verifiers may not vote; everyone else needs tier-2
// standing. Reaching quorum resolves the dispute immediately; a vote arriving
// after the window closes forces resolution of whatever is on the table and
// is itself rejected.
func (s *Service) CastVote(ctx context.Context, disputeID id.DisputeID, voterID id.UserID, choice Choice) (*Vote, error) {
	d, err := s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusVoting {
		return nil, dErrors.New(dErrors.CodeInvalidState, "dispute is already resolved")
	}

	now := requestcontext.Now(ctx)
	if d.VotingClosed(now, s.policy.VotingWindow) {
		if err := s.resolve(ctx, d); err != nil && !dErrors.HasCode(err, dErrors.CodeInvalidState) {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodeInvalidState, "voting window has closed")
	}

	if err := s.checkEligibility(ctx, d, voterID); err != nil {
		return nil, err
	}

	vote := &Vote{
		ID:        id.NewVoteID(),
		DisputeID: disputeID,
		VoterID:   voterID,
		Choice:    choice,
		CreatedAt: now,
	}
	err = s.disputes.AddVote(ctx, vote)
	if errors.Is(err, sentinel.ErrConflict) {
		return nil, dErrors.New(dErrors.CodeAlreadyVoted, "you have already voted on this dispute")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record vote")
	}

	// First vote moves the observation into review.
	if err := s.markUnderReview(ctx, d.ObservationID); err != nil {
		return nil, err
	}

	if _, err := s.ledger.RecordOutcome(ctx, voterID,
		credibility.ReasonVoterParticipation, s.policy.Deltas.VoterParticipation); err != nil {
		s.logger.ErrorContext(ctx, "voter credit failed", "voter_id", voterID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.IncVotesCast()
	}
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			Action:  audit.ActionVoteCast,
			ActorID: voterID,
			Subject: d.ObservationID.String(),
			Detail:  string(choice),
		})
	}

	_, count, err := s.tally(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if count >= s.policy.DisputeQuorum {
		if err := s.resolve(ctx, d); err != nil {
			return nil, err
		}
	}
	return vote, nil
}

// SweepExpired force-resolves every dispute whose voting window elapsed.
// Disputes with no votes stay open; there is nothing to decide on.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	cutoff := requestcontext.Now(ctx).Add(-s.policy.VotingWindow)
	expired, err := s.disputes.ListVotingBefore(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired disputes")
	}
	resolved := 0
	for _, d := range expired {
		err := s.resolve(ctx, d)
		if dErrors.HasCode(err, dErrors.CodeInvalidState) {
			continue // no votes yet, or lost the race to another resolver
		}
		if err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

func (s *Service) loadDispute(ctx context.Context, disputeID id.DisputeID) (*Dispute, error) {
	d, err := s.disputes.Get(ctx, disputeID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "dispute not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load dispute")
	}
	return d, nil
}

func (s *Service) checkEligibility(ctx context.Context, d *Dispute, voterID id.UserID) error {
	obs, err := s.observations.Get(ctx, d.ObservationID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}
	if obs.OwnerID == voterID {
		return dErrors.New(dErrors.CodeNotEligible, "the observation owner cannot vote")
	}
	if d.RaisedBy == voterID {
		return dErrors.New(dErrors.CodeNotEligible, "the disputant cannot vote")
	}
	verifiers, err := s.verifiers.ActiveVerifiers(ctx, d.ObservationID)
	if err != nil {
		return err
	}
	for _, v := range verifiers {
		if v == voterID {
			return dErrors.New(dErrors.CodeNotEligible, "verifiers of the observation cannot vote")
		}
	}
	summary, err := s.ledger.Current(ctx, voterID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credibility")
	}
	if summary.Score < s.policy.Tier2MinScore {
		return dErrors.New(dErrors.CodeInsufficientCredibility,
			fmt.Sprintf("score %d below the voting threshold of %d", summary.Score, s.policy.Tier2MinScore))
	}
	return nil
}

func (s *Service) tally(ctx context.Context, disputeID id.DisputeID) (Tally, int, error) {
	votes, err := s.disputes.ListVotes(ctx, disputeID)
	if err != nil {
		return Tally{}, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list votes")
	}
	var t Tally
	for _, v := range votes {
		switch v.Choice {
		case ChoiceUphold:
			t.Uphold++
		case ChoiceOverturn:
			t.Overturn++
		}
	}
	return t, len(votes), nil
}

// resolve decides the dispute from the current tally, moves the observation
// to its terminal state, and fans out credibility deltas. The dispute's
// version check makes the fan-out happen exactly once even when quorum and
// the sweeper race.
func (s *Service) resolve(ctx context.Context, d *Dispute) error {
	tally, _, err := s.tally(ctx, d.ID)
	if err != nil {
		return err
	}
	outcome, ok := tally.Decide()
	if !ok {
		return dErrors.New(dErrors.CodeInvalidState, "cannot resolve a dispute with no votes")
	}

	now := requestcontext.Now(ctx)
	d.Status = StatusResolved
	d.Outcome = outcome
	d.ResolvedAt = now
	err = s.disputes.Update(ctx, d)
	if errors.Is(err, sentinel.ErrVersionMismatch) {
		// Another resolver won; the deltas are already recorded.
		return dErrors.New(dErrors.CodeInvalidState, "dispute already resolved")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve dispute")
	}

	target := observation.StateResolvedUpheld
	if outcome == OutcomeOverturned {
		target = observation.StateResolvedOverturned
	}
	if err := s.transitionObservation(ctx, d.ObservationID, target); err != nil {
		return err
	}
	if err := s.applyDeltas(ctx, d, outcome); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncDisputesResolved(string(outcome))
	}
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			Action:  audit.ActionDisputeResolved,
			ActorID: d.RaisedBy,
			Subject: d.ObservationID.String(),
			Detail:  fmt.Sprintf("%s (uphold %d, overturn %d)", outcome, tally.Uphold, tally.Overturn),
		})
	}
	s.logger.InfoContext(ctx, "dispute resolved",
		"dispute_id", d.ID,
		"observation_id", d.ObservationID,
		"outcome", outcome,
		"uphold", tally.Uphold,
		"overturn", tally.Overturn,
	)
	return nil
}

// applyDeltas fans resolution credits and debits out to the owner, the
// disputant, and, on overturn, each distinct active verifier exactly once.
func (s *Service) applyDeltas(ctx context.Context, d *Dispute, outcome Outcome) error {
	obs, err := s.observations.Get(ctx, d.ObservationID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}

	record := func(userID id.UserID, reason credibility.Reason, delta int) {
		if _, err := s.ledger.RecordOutcome(ctx, userID, reason, delta); err != nil {
			s.logger.ErrorContext(ctx, "resolution delta failed",
				"user_id", userID, "reason", reason, "error", err)
		}
	}

	switch outcome {
	case OutcomeUpheld:
		record(obs.OwnerID, credibility.ReasonObservationUpheld, s.policy.Deltas.OwnerUpheld)
		record(d.RaisedBy, credibility.ReasonDisputantRejected, s.policy.Deltas.DisputantRejected)
	case OutcomeOverturned:
		record(obs.OwnerID, credibility.ReasonObservationOverturned, s.policy.Deltas.OwnerOverturned)
		record(d.RaisedBy, credibility.ReasonDisputantConfirmed, s.policy.Deltas.DisputantConfirmed)
		verifiers, err := s.verifiers.ActiveVerifiers(ctx, d.ObservationID)
		if err != nil {
			return err
		}
		for _, verifierID := range verifiers {
			record(verifierID, credibility.ReasonVerifierOverturned, s.policy.Deltas.VerifierOverturned)
		}
	}
	return nil
}

func (s *Service) markUnderReview(ctx context.Context, obsID id.ObservationID) error {
	return s.transitionObservation(ctx, obsID, observation.StateUnderReview)
}

func (s *Service) transitionObservation(ctx context.Context, obsID id.ObservationID, to observation.State) error {
	retries := s.policy.MaxTransitionRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		obs, err := s.observations.Get(ctx, obsID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
		}
		if obs.State == to {
			return nil
		}
		if !observation.CanTransition(obs.State, to) {
			return dErrors.New(dErrors.CodeInvalidState,
				fmt.Sprintf("cannot move observation from %q to %q", obs.State, to))
		}
		obs.State = to
		err = s.observations.Update(ctx, obs)
		if errors.Is(err, sentinel.ErrVersionMismatch) {
			lastErr = err
			continue
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update observation")
		}
		return nil
	}
	return dErrors.Wrap(lastErr, dErrors.CodeConcurrentModification,
		"observation update lost the serialization race")
}
