package credibility

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
	"naturewatch/pkg/platform/sentinel"
	"naturewatch/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *InMemoryStore
	service *Service
	ctx     context.Context
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	svc, err := New(s.store, 10, 3)
	s.Require().NoError(err)
	s.service = svc
	s.now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) TestNew_RejectsBaseScoreOutsideNewUserBand() {
	_, err := New(s.store, 21, 3)
	s.Error(err, "new users must start in [0,20]")

	_, err = New(s.store, -1, 3)
	s.Error(err)
}

func (s *ServiceSuite) TestRecordOutcome_CreatesLedgerAtBase() {
	userID := id.UserID(uuid.New())

	score, err := s.service.RecordOutcome(s.ctx, userID, ReasonObservationVerified, 2)
	s.Require().NoError(err)
	s.Equal(12, score, "base 10 plus delta 2")

	record, err := s.store.Get(s.ctx, userID)
	s.Require().NoError(err)
	s.Len(record.History, 2, "initial entry plus outcome")
	s.Equal(ReasonInitialScore, record.History[0].Reason)
}

func (s *ServiceSuite) TestRecordOutcome_ClampsToBounds() {
	userID := id.UserID(uuid.New())

	score, err := s.service.RecordOutcome(s.ctx, userID, ReasonObservationOverturned, -50)
	s.Require().NoError(err)
	s.Equal(0, score, "clamped at the floor")

	score, err = s.service.RecordOutcome(s.ctx, userID, ReasonObservationVerified, 500)
	s.Require().NoError(err)
	s.Equal(100, score, "clamped at the ceiling")
}

// Replaying the history in order always reproduces the current score: there
// is no independent mutation path.
func (s *ServiceSuite) TestRecordOutcome_HistoryReplaysToScore() {
	userID := id.UserID(uuid.New())
	deltas := []struct {
		reason Reason
		delta  int
	}{
		{ReasonObservationVerified, 2},
		{ReasonVerifierParticipation, 1},
		{ReasonObservationOverturned, -5},
		{ReasonObservationVerified, 2},
		{ReasonDisputantConfirmed, 2},
	}
	for _, d := range deltas {
		_, err := s.service.RecordOutcome(s.ctx, userID, d.reason, d.delta)
		s.Require().NoError(err)
	}

	record, err := s.store.Get(s.ctx, userID)
	s.Require().NoError(err)
	replayed, ok := record.Replay()
	s.True(ok, "fold of history must equal current score")
	s.Equal(record.Score, replayed)
}

// Concurrent outcomes for the same user must not lose updates.
func (s *ServiceSuite) TestRecordOutcome_ConcurrentAppendsAllLand() {
	userID := id.UserID(uuid.New())
	_, err := s.service.RecordOutcome(s.ctx, userID, ReasonObservationVerified, 1)
	s.Require().NoError(err)

	svc, err := New(s.store, 10, 50)
	s.Require().NoError(err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordOutcome(s.ctx, userID, ReasonVerifierParticipation, 1)
			assert.NoError(s.T(), err)
		}()
	}
	wg.Wait()

	record, err := s.store.Get(s.ctx, userID)
	s.Require().NoError(err)
	// initial + first outcome + 20 concurrent outcomes
	s.Len(record.History, writers+2)
	s.Equal(31, record.Score)
}

func (s *ServiceSuite) TestCurrent_UnknownUserReportsBaseWithoutCreating() {
	userID := id.UserID(uuid.New())

	summary, err := s.service.Current(s.ctx, userID)
	s.Require().NoError(err)
	s.Equal(10, summary.Score)
	s.Len(summary.Components, 4)

	_, err = s.store.Get(s.ctx, userID)
	s.ErrorIs(err, sentinel.ErrNotFound, "read path must be side-effect-free")
}

func (s *ServiceSuite) TestCurrent_ComponentsReflectHistory() {
	userID := id.UserID(uuid.New())
	_, err := s.service.RecordOutcome(s.ctx, userID, ReasonObservationVerified, 2)
	s.Require().NoError(err)
	_, err = s.service.RecordOutcome(s.ctx, userID, ReasonObservationVerified, 2)
	s.Require().NoError(err)

	summary, err := s.service.Current(s.ctx, userID)
	s.Require().NoError(err)

	byName := map[string]Component{}
	total := 0.0
	for _, c := range summary.Components {
		byName[c.Name] = c
		total += c.Weight
	}
	s.InDelta(1.0, total, 1e-9, "weights sum to 1")
	s.Equal(1.0, byName[ComponentAccuracy].Score, "two verifications, no overturns")
	s.Equal(0.0, byName[ComponentParticipation].Score)
}

func (s *ServiceSuite) TestImprovementSuggestions_WeakestFirst() {
	userID := id.UserID(uuid.New())
	// Strong accuracy, zero participation.
	for i := 0; i < 3; i++ {
		_, err := s.service.RecordOutcome(s.ctx, userID, ReasonObservationVerified, 2)
		s.Require().NoError(err)
	}

	suggestions, err := s.service.ImprovementSuggestions(s.ctx, userID)
	s.Require().NoError(err)
	s.Require().NotEmpty(suggestions)
	s.Equal(ComponentParticipation, suggestions[0].Component,
		"zero participation is the weakest weighted component")
	for _, sg := range suggestions {
		s.NotEmpty(sg.Hint)
	}
}

func (s *ServiceSuite) TestRecordOutcome_RejectsNilUser() {
	_, err := s.service.RecordOutcome(s.ctx, id.UserID{}, ReasonObservationVerified, 1)
	require.Error(s.T(), err)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeValidation))
}
