package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"naturewatch/internal/audit"
	"naturewatch/internal/conflict"
	"naturewatch/internal/credibility"
	"naturewatch/internal/dispute"
	"naturewatch/internal/geoprivacy"
	"naturewatch/internal/ingest"
	"naturewatch/internal/observation"
	"naturewatch/internal/platform/config"
	"naturewatch/internal/platform/logger"
	"naturewatch/internal/temporal"
	"naturewatch/internal/verification"
	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
	"naturewatch/pkg/requestcontext"
)

// staticValidator maps bearer tokens to identities for tests.
type staticValidator struct {
	identities map[string]requestcontext.Identity
}

func (v *staticValidator) ValidateToken(token string) (requestcontext.Identity, error) {
	ident, ok := v.identities[token]
	if !ok {
		return requestcontext.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "unknown token")
	}
	return ident, nil
}

type HandlerSuite struct {
	suite.Suite
	server    *httptest.Server
	validator *staticValidator

	observations *observation.InMemoryStore
	zones        *geoprivacy.InMemoryZoneStore
	ledger       *credibility.Service
	disputes     *dispute.InMemoryStore
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	log := logger.New()
	policy := config.Trust{
		RetentionWindowDays:      90,
		Tier1MinScore:            20,
		Tier2MinScore:            70,
		NewUserBaseScore:         10,
		DisputeQuorum:            3,
		VotingWindow:             72 * time.Hour,
		ConflictCellDecimals:     3,
		BufferPrecisionMinMeters: 100,
		BufferPrecisionMaxMeters: 5000,
		MaxTransitionRetries:     3,
		SyncWorkers:              4,
		Deltas: config.DeltaTable{
			OwnerVerified:         2,
			OwnerOverturned:       -5,
			OwnerUpheld:           1,
			VerifierOverturned:    -4,
			VerifierParticipation: 1,
			VoterParticipation:    1,
			DisputantConfirmed:    2,
			DisputantRejected:     -2,
		},
	}

	s.observations = observation.NewInMemoryStore()
	s.zones = geoprivacy.NewInMemoryZoneStore()
	s.disputes = dispute.NewInMemoryStore()
	verifications := verification.NewInMemoryStore()
	auditPub := audit.NewPublisher(audit.NewInMemoryStore())

	ledger, err := credibility.New(credibility.NewInMemoryStore(), policy.NewUserBaseScore, policy.MaxTransitionRetries)
	s.Require().NoError(err)
	s.ledger = ledger

	ingestSvc, err := ingest.New(
		s.observations,
		s.zones,
		geoprivacy.NewTransformer(float64(policy.BufferPrecisionMinMeters), float64(policy.BufferPrecisionMaxMeters), 7),
		temporal.NewValidator(policy.RetentionWindowDays),
		conflict.NewDetector(s.observations, policy.ConflictCellDecimals),
		policy,
		ingest.WithAuditPublisher(auditPub),
	)
	s.Require().NoError(err)

	verificationSvc, err := verification.New(verifications, s.observations, s.disputes, ledger, policy,
		verification.WithAuditPublisher(auditPub))
	s.Require().NoError(err)

	disputeSvc, err := dispute.New(s.disputes, s.observations, ledger, verificationSvc, policy,
		dispute.WithAuditPublisher(auditPub))
	s.Require().NoError(err)

	s.validator = &staticValidator{identities: map[string]requestcontext.Identity{}}
	handler := New(ingestSvc, verificationSvc, disputeSvc, ledger, log)
	s.server = httptest.NewServer(NewRouter(handler, s.validator, log, nil))
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
}

func (s *HandlerSuite) newUser(token string) id.UserID {
	userID := id.UserID(uuid.New())
	s.validator.identities[token] = requestcontext.Identity{UserID: userID}
	return userID
}

func (s *HandlerSuite) do(method, path, token string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlerSuite) decode(resp *http.Response, v any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

func (s *HandlerSuite) submitBody() SubmitObservationRequest {
	return SubmitObservationRequest{
		SpeciesID:  uuid.NewString(),
		Lat:        47.3769,
		Lon:        8.5417,
		ObservedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
}

func (s *HandlerSuite) TestSubmit_RequiresAuth() {
	resp := s.do(http.MethodPost, "/observations", "", s.submitBody())
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlerSuite) TestSubmit_CreatesObservation() {
	s.newUser("alice")

	resp := s.do(http.MethodPost, "/observations", "alice", s.submitBody())
	s.Equal(http.StatusCreated, resp.StatusCode)

	var body SubmitResponse
	s.decode(resp, &body)
	s.Equal("pending", body.Observation.State)
	s.Equal("none", body.Observation.ZoneStatus)
	s.False(body.Retried)
	s.Nil(body.Conflict)
}

func (s *HandlerSuite) TestSubmit_ValidationErrorNamesField() {
	s.newUser("alice")
	body := s.submitBody()
	body.Lat = 95

	resp := s.do(http.MethodPost, "/observations", "alice", body)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	var envelope map[string]string
	s.decode(resp, &envelope)
	s.Equal("validation", envelope["error"])
	s.Equal("lat", envelope["field"])
}

func (s *HandlerSuite) TestSubmit_ConflictSurfacesOptions() {
	s.newUser("alice")
	first := s.submitBody()
	resp := s.do(http.MethodPost, "/observations", "alice", first)
	resp.Body.Close()
	s.Equal(http.StatusCreated, resp.StatusCode)

	second := first
	second.SpeciesID = uuid.NewString()
	resp = s.do(http.MethodPost, "/observations", "alice", second)
	s.Equal(http.StatusCreated, resp.StatusCode)

	var body SubmitResponse
	s.decode(resp, &body)
	s.Require().NotNil(body.Conflict)
	s.Len(body.Conflict.Against, 1)
	s.ElementsMatch([]string{"keep_existing", "keep_new", "merge"}, body.Conflict.Options)
	s.True(body.Observation.ConflictPending)
}

func (s *HandlerSuite) TestResolveConflict_EndToEnd() {
	s.newUser("alice")
	first := s.submitBody()
	var firstResp SubmitResponse
	resp := s.do(http.MethodPost, "/observations", "alice", first)
	s.decode(resp, &firstResp)

	second := first
	second.SpeciesID = uuid.NewString()
	var secondResp SubmitResponse
	resp = s.do(http.MethodPost, "/observations", "alice", second)
	s.decode(resp, &secondResp)
	s.Require().NotNil(secondResp.Conflict)

	resp = s.do(http.MethodPost, "/observations/"+secondResp.Observation.ID+"/resolve", "alice",
		ResolveConflictRequest{Resolution: "keep_new"})
	s.Equal(http.StatusOK, resp.StatusCode)

	var resolved ObservationResponse
	s.decode(resp, &resolved)
	s.False(resolved.ConflictPending)

	resp = s.do(http.MethodGet, "/observations/"+firstResp.Observation.ID, "alice", nil)
	var loser ObservationResponse
	s.decode(resp, &loser)
	s.True(loser.Superseded)
}

func (s *HandlerSuite) TestVerification_InsufficientCredibilityIs403() {
	s.newUser("alice")
	var created SubmitResponse
	resp := s.do(http.MethodPost, "/observations", "alice", s.submitBody())
	s.decode(resp, &created)

	s.newUser("newbie") // base score 10 < tier-1 threshold 20
	resp = s.do(http.MethodPost, "/observations/"+created.Observation.ID+"/verifications", "newbie",
		SubmitVerificationRequest{Tier: 1, Confidence: 0.9})
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HandlerSuite) TestVerificationDisputeVote_FullLifecycle() {
	s.newUser("alice")
	var created SubmitResponse
	resp := s.do(http.MethodPost, "/observations", "alice", s.submitBody())
	s.decode(resp, &created)

	verifier := s.newUser("verifier")
	s.grantScore(verifier, 30)
	resp = s.do(http.MethodPost, "/observations/"+created.Observation.ID+"/verifications", "verifier",
		SubmitVerificationRequest{Tier: 1, Confidence: 0.9, Notes: "matches the call recording"})
	s.Equal(http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	expert := s.newUser("expert")
	s.grantScore(expert, 80)
	resp = s.do(http.MethodPost, "/observations/"+created.Observation.ID+"/disputes", "expert",
		RaiseDisputeRequest{Reason: "range map excludes this valley"})
	s.Equal(http.StatusCreated, resp.StatusCode)
	var d DisputeResponse
	s.decode(resp, &d)
	s.Equal("voting", d.Status)

	for i := 0; i < 3; i++ {
		voter := s.newUser(fmt.Sprintf("voter-%d", i))
		s.grantScore(voter, 75)
		resp = s.do(http.MethodPost, "/disputes/"+d.ID+"/votes", fmt.Sprintf("voter-%d", i),
			CastVoteRequest{Choice: "overturn"})
		s.Equal(http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp = s.do(http.MethodGet, "/disputes/"+d.ID, "alice", nil)
	var resolved DisputeResponse
	s.decode(resp, &resolved)
	s.Equal("resolved", resolved.Status)
	s.Equal("overturned", resolved.Outcome)
	s.Equal(3, resolved.VotesOverturn)

	resp = s.do(http.MethodGet, "/observations/"+created.Observation.ID, "alice", nil)
	var obs ObservationResponse
	s.decode(resp, &obs)
	s.Equal("resolved_overturned", obs.State)
}

func (s *HandlerSuite) TestVote_DuplicateIs409() {
	d := s.openDispute()
	voter := s.newUser("voter")
	s.grantScore(voter, 75)

	resp := s.do(http.MethodPost, "/disputes/"+d+"/votes", "voter", CastVoteRequest{Choice: "uphold"})
	s.Equal(http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodPost, "/disputes/"+d+"/votes", "voter", CastVoteRequest{Choice: "uphold"})
	defer resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)
}

// Verification standing is not voting standing: a tier-1-qualified member is
// still below the voting bar.
func (s *HandlerSuite) TestVote_RequiresTier2StandingIs403() {
	d := s.openDispute()
	voter := s.newUser("voter")
	s.grantScore(voter, 25)

	resp := s.do(http.MethodPost, "/disputes/"+d+"/votes", "voter", CastVoteRequest{Choice: "uphold"})
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HandlerSuite) TestRefresh_FoldsEvidenceAndResetsFreshness() {
	s.newUser("alice")
	var created SubmitResponse
	resp := s.do(http.MethodPost, "/observations", "alice", s.submitBody())
	s.decode(resp, &created)

	resp = s.do(http.MethodPost, "/observations/"+created.Observation.ID+"/refresh", "alice",
		RefreshObservationRequest{NewEvidence: []string{"photo-2.jpg", "audio-1.ogg"}})
	s.Equal(http.StatusOK, resp.StatusCode)

	var refreshed ObservationResponse
	s.decode(resp, &refreshed)
	s.NotNil(refreshed.RefreshedAt)
	s.Equal([]string{"photo-2.jpg", "audio-1.ogg"}, refreshed.MediaRefs)

	// Owner-only.
	s.newUser("bob")
	resp = s.do(http.MethodPost, "/observations/"+created.Observation.ID+"/refresh", "bob", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HandlerSuite) TestCredibility_ReadAndSuggestions() {
	userID := s.newUser("alice")
	s.grantScore(userID, 40)

	resp := s.do(http.MethodGet, "/users/"+userID.String()+"/credibility", "alice", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	var summary CredibilityResponse
	s.decode(resp, &summary)
	s.Equal(40, summary.Score)
	s.Len(summary.Components, 4)

	resp = s.do(http.MethodGet, "/users/"+userID.String()+"/credibility/suggestions", "alice", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	var suggestions []SuggestionResponse
	s.decode(resp, &suggestions)
	s.NotEmpty(suggestions)

	// Someone else's suggestions are off limits.
	s.newUser("bob")
	resp = s.do(http.MethodGet, "/users/"+userID.String()+"/credibility/suggestions", "bob", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HandlerSuite) TestSync_MixedBatch() {
	s.newUser("alice")
	good := s.submitBody()
	bad := s.submitBody()
	bad.ObservedAt = time.Now().UTC().Add(2 * time.Hour)

	resp := s.do(http.MethodPost, "/observations/sync", "alice", SyncRequest{
		Items: []SubmitObservationRequest{good, bad},
	})
	s.Equal(http.StatusOK, resp.StatusCode)

	var body SyncResponse
	s.decode(resp, &body)
	s.Require().Len(body.Items, 2)
	s.Equal("accepted", body.Items[0].Status)
	s.Equal("rejected", body.Items[1].Status)
	s.NotEmpty(body.Items[1].Error)
}

func (s *HandlerSuite) TestHealthz_Public() {
	resp, err := s.server.Client().Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

// openDispute submits an observation and disputes it, returning the dispute id.
func (s *HandlerSuite) openDispute() string {
	s.newUser("owner")
	var created SubmitResponse
	resp := s.do(http.MethodPost, "/observations", "owner", s.submitBody())
	s.decode(resp, &created)

	expert := s.newUser("disputant")
	s.grantScore(expert, 80)
	resp = s.do(http.MethodPost, "/observations/"+created.Observation.ID+"/disputes", "disputant",
		RaiseDisputeRequest{Reason: "implausible sighting"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var d DisputeResponse
	s.decode(resp, &d)
	return d.ID
}

// grantScore drives a ledger to the target score through verified outcomes.
func (s *HandlerSuite) grantScore(userID id.UserID, target int) {
	ctx := requestcontext.WithTime(context.Background(), time.Now().UTC())
	summary, err := s.ledger.Current(ctx, userID)
	s.Require().NoError(err)
	if summary.Score < target {
		_, err = s.ledger.RecordOutcome(ctx, userID,
			credibility.ReasonObservationVerified, target-summary.Score)
		s.Require().NoError(err)
	}
}
