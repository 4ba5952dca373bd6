package verification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"naturewatch/internal/audit"
	"naturewatch/internal/credibility"
	"naturewatch/internal/dispute"
	"naturewatch/internal/geoprivacy"
	"naturewatch/internal/observation"
	"naturewatch/internal/platform/config"
	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
	"naturewatch/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	verifications *InMemoryStore
	observations  *observation.InMemoryStore
	disputes      *dispute.InMemoryStore
	ledger        *credibility.Service
	ledgerStore   *credibility.InMemoryStore
	auditStore    *audit.InMemoryStore
	service       *Service
	ctx           context.Context
	now           time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.verifications = NewInMemoryStore()
	s.observations = observation.NewInMemoryStore()
	s.disputes = dispute.NewInMemoryStore()
	s.ledgerStore = credibility.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()

	ledger, err := credibility.New(s.ledgerStore, 10, 3)
	s.Require().NoError(err)
	s.ledger = ledger

	policy := config.Trust{
		Tier1MinScore:        20,
		Tier2MinScore:        70,
		MaxTransitionRetries: 3,
		Deltas: config.DeltaTable{
			OwnerVerified:         2,
			VerifierParticipation: 1,
		},
	}
	svc, err := New(s.verifications, s.observations, s.disputes, s.ledger, policy,
		WithAuditPublisher(audit.NewPublisher(s.auditStore)))
	s.Require().NoError(err)
	s.service = svc

	s.now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) seedObservation(state observation.State) *observation.Observation {
	obs := &observation.Observation{
		ID:          id.NewObservationID(),
		OwnerID:     id.UserID(uuid.New()),
		Species:     id.SpeciesID(uuid.New()),
		Raw:         geoprivacy.Coordinate{Lat: 47.37, Lon: 8.54},
		Disclosed:   geoprivacy.Coordinate{Lat: 47.37, Lon: 8.54},
		ObservedAt:  s.now.Add(-24 * time.Hour),
		SubmittedAt: s.now,
		State:       state,
	}
	s.Require().NoError(s.observations.Create(s.ctx, obs))
	return obs
}

// raiseScore drives a user's ledger up through verified-outcome credits so
// standing checks read a realistic score.
func (s *ServiceSuite) raiseScore(userID id.UserID, target int) {
	summary, err := s.ledger.Current(s.ctx, userID)
	s.Require().NoError(err)
	if summary.Score < target {
		_, err := s.ledger.RecordOutcome(s.ctx, userID,
			credibility.ReasonObservationVerified, target-summary.Score)
		s.Require().NoError(err)
	}
}

func (s *ServiceSuite) TestSubmitVerification_PromotesPendingAndCreditsOwner() {
	obs := s.seedObservation(observation.StatePending)
	verifier := id.UserID(uuid.New())
	s.raiseScore(verifier, 25)

	rec, err := s.service.SubmitVerification(s.ctx, obs.ID, verifier, Tier1, 0.9, "clear photo, correct habitat")
	s.Require().NoError(err)
	s.Equal(Tier1, rec.Tier)

	stored, err := s.observations.Get(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(observation.StateVerified, stored.State)

	ownerSummary, err := s.ledger.Current(s.ctx, obs.OwnerID)
	s.Require().NoError(err)
	s.Equal(12, ownerSummary.Score, "base 10 plus verified credit 2")

	verifierSummary, err := s.ledger.Current(s.ctx, verifier)
	s.Require().NoError(err)
	s.Equal(26, verifierSummary.Score, "participation credit on top of standing")
}

// A contributor below the tier-1 threshold cannot verify; after enough
// verified outcomes of their own push the score over the line, they can.
func (s *ServiceSuite) TestSubmitVerification_StandingGatesThenAdmits() {
	obs := s.seedObservation(observation.StatePending)
	verifier := id.UserID(uuid.New())
	s.raiseScore(verifier, 15)

	_, err := s.service.SubmitVerification(s.ctx, obs.ID, verifier, Tier1, 0.8, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientCredibility))

	stored, err := s.observations.Get(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(observation.StatePending, stored.State, "rejected attempts must not transition")

	s.raiseScore(verifier, 25)
	_, err = s.service.SubmitVerification(s.ctx, obs.ID, verifier, Tier1, 0.8, "")
	s.NoError(err)
}

func (s *ServiceSuite) TestSubmitVerification_OwnerCannotSelfVerify() {
	obs := s.seedObservation(observation.StatePending)
	s.raiseScore(obs.OwnerID, 90)

	_, err := s.service.SubmitVerification(s.ctx, obs.ID, obs.OwnerID, Tier1, 1, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotEligible))
}

func (s *ServiceSuite) TestSubmitVerification_ResubmitSupersedesPrior() {
	obs := s.seedObservation(observation.StatePending)
	verifier := id.UserID(uuid.New())
	s.raiseScore(verifier, 25)

	first, err := s.service.SubmitVerification(s.ctx, obs.ID, verifier, Tier1, 0.6, "tentative")
	s.Require().NoError(err)
	second, err := s.service.SubmitVerification(s.ctx, obs.ID, verifier, Tier1, 0.95, "confirmed on revisit")
	s.Require().NoError(err)

	records, err := s.verifications.ListByObservation(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Len(records, 2)
	byID := map[id.VerificationID]*Record{}
	for _, r := range records {
		byID[r.ID] = r
	}
	s.True(byID[first.ID].Superseded)
	s.False(byID[second.ID].Superseded)

	active, err := s.service.ActiveVerifiers(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal([]id.UserID{verifier}, active)
}

func (s *ServiceSuite) TestSubmitVerification_RejectsResolvedObservation() {
	obs := s.seedObservation(observation.StateResolvedUpheld)
	verifier := id.UserID(uuid.New())
	s.raiseScore(verifier, 25)

	_, err := s.service.SubmitVerification(s.ctx, obs.ID, verifier, Tier1, 0.8, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestRaiseDispute_RequiresTier2Standing() {
	obs := s.seedObservation(observation.StateVerified)
	disputant := id.UserID(uuid.New())
	s.raiseScore(disputant, 50)

	_, err := s.service.RaiseDispute(s.ctx, obs.ID, disputant, "wrong species", nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientCredibility))
}

func (s *ServiceSuite) TestRaiseDispute_OpensVotingAndMovesState() {
	obs := s.seedObservation(observation.StateVerified)
	disputant := id.UserID(uuid.New())
	s.raiseScore(disputant, 75)

	d, err := s.service.RaiseDispute(s.ctx, obs.ID, disputant,
		"habitat impossible for this species", []string{"range map"})
	s.Require().NoError(err)
	s.Equal(dispute.StatusVoting, d.Status)
	s.Equal(s.now, d.OpenedAt)

	stored, err := s.observations.Get(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(observation.StateDisputed, stored.State)

	events, err := s.auditStore.ListBySubject(s.ctx, obs.ID.String())
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	s.Equal(audit.ActionDisputeOpened, events[len(events)-1].Action)
}

func (s *ServiceSuite) TestRaiseDispute_OwnerCannotDisputeOwn() {
	obs := s.seedObservation(observation.StateVerified)
	s.raiseScore(obs.OwnerID, 90)

	_, err := s.service.RaiseDispute(s.ctx, obs.ID, obs.OwnerID, "changed my mind", nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotEligible))
}

func (s *ServiceSuite) TestRaiseDispute_TerminalStateRejected() {
	obs := s.seedObservation(observation.StateResolvedOverturned)
	disputant := id.UserID(uuid.New())
	s.raiseScore(disputant, 80)

	_, err := s.service.RaiseDispute(s.ctx, obs.ID, disputant, "still wrong", nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestRefreshExpired_OwnerOnly() {
	obs := s.seedObservation(observation.StateVerified)

	refreshed, err := s.service.RefreshExpired(s.ctx, obs.ID, obs.OwnerID, nil)
	s.Require().NoError(err)
	s.Equal(s.now, refreshed.RefreshedAt)

	stranger := id.UserID(uuid.New())
	_, err = s.service.RefreshExpired(s.ctx, obs.ID, stranger, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotOwner))
}

// Resubmitted evidence folds into the record's media refs alongside the
// freshness reset; duplicates collapse and the state is untouched.
func (s *ServiceSuite) TestRefreshExpired_FoldsNewEvidence() {
	obs := s.seedObservation(observation.StateVerified)
	obs.MediaRefs = []string{"photo-1.jpg"}
	s.Require().NoError(s.observations.Update(s.ctx, obs))

	refreshed, err := s.service.RefreshExpired(s.ctx, obs.ID, obs.OwnerID,
		[]string{"photo-2.jpg", " photo-1.jpg ", "audio-1.ogg"})
	s.Require().NoError(err)
	s.Equal(s.now, refreshed.RefreshedAt)
	s.Equal([]string{"photo-1.jpg", "photo-2.jpg", "audio-1.ogg"}, refreshed.MediaRefs)
	s.Equal(observation.StateVerified, refreshed.State)

	stored, err := s.observations.Get(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(refreshed.MediaRefs, stored.MediaRefs)
}

func (s *ServiceSuite) TestSubmitVerification_UnknownObservation() {
	verifier := id.UserID(uuid.New())
	s.raiseScore(verifier, 25)

	_, err := s.service.SubmitVerification(s.ctx, id.NewObservationID(), verifier, Tier1, 0.8, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
