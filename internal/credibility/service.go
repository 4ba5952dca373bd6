package credibility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"naturewatch/internal/audit"
	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
	"naturewatch/pkg/platform/sentinel"
	"naturewatch/pkg/requestcontext"
)

// AuditPublisher emits audit events for ledger mutations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Metrics is the narrow counter surface the service touches.
type Metrics interface {
	IncCredibilityAdjusted()
}

// Service is the single source of truth for user trust scores. Scores mutate
// only through RecordOutcome, driven by the verification state machine and
// the dispute coordinator.
type Service struct {
	store          Store
	baseScore      int
	maxRetries     int
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

func New(store Store, baseScore, maxRetries int, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("credibility store is required")
	}
	if baseScore < MinScore || baseScore > NewUserMaxScore {
		return nil, fmt.Errorf("base score %d outside [%d,%d]", baseScore, MinScore, NewUserMaxScore)
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	svc := &Service{
		store:      store,
		baseScore:  baseScore,
		maxRetries: maxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RecordOutcome appends one history entry for the user and returns the new
// score. Appends serialize per user through the store's version check;
// losing the race retries a bounded number of times.
func (s *Service) RecordOutcome(ctx context.Context, userID id.UserID, reason Reason, delta int) (int, error) {
	if userID.IsNil() {
		return 0, dErrors.NewField(dErrors.CodeValidation, "user_id", "must not be empty")
	}

	now := requestcontext.Now(ctx)
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		record, err := s.getOrCreate(ctx, userID, now)
		if err != nil {
			return 0, err
		}

		entry := Entry{
			At:     now,
			Delta:  delta,
			Score:  clamp(record.Score + delta),
			Reason: reason,
		}
		err = s.store.Append(ctx, userID, entry, record.Version)
		if errors.Is(err, sentinel.ErrVersionMismatch) {
			lastErr = err
			continue
		}
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append credibility entry")
		}

		if s.metrics != nil {
			s.metrics.IncCredibilityAdjusted()
		}
		if s.auditPublisher != nil {
			_ = s.auditPublisher.Emit(ctx, audit.Event{
				Action:  audit.ActionCredibilityAdjusted,
				ActorID: userID,
				Subject: userID.String(),
				Detail:  fmt.Sprintf("%s: %+d -> %d", reason, delta, entry.Score),
			})
		}
		s.logger.InfoContext(ctx, "credibility adjusted",
			"user_id", userID,
			"reason", reason,
			"delta", delta,
			"score", entry.Score,
		)
		return entry.Score, nil
	}
	return 0, dErrors.Wrap(lastErr, dErrors.CodeConcurrentModification,
		"credibility update lost the serialization race")
}

// Current returns the user's score with the weighted component breakdown.
// Unknown users are reported at the new-user base without creating a ledger.
func (s *Service) Current(ctx context.Context, userID id.UserID) (*Summary, error) {
	record, err := s.store.Get(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		record = s.freshRecord(userID, requestcontext.Now(ctx))
	} else if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credibility record")
	}

	return &Summary{
		UserID:     userID,
		Score:      record.Score,
		Components: deriveComponents(record, requestcontext.Now(ctx)),
	}, nil
}

// ImprovementSuggestions ranks hints by weakest weighted component first.
func (s *Service) ImprovementSuggestions(ctx context.Context, userID id.UserID) ([]Suggestion, error) {
	summary, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}

	components := append([]Component{}, summary.Components...)
	sort.Slice(components, func(i, j int) bool {
		return components[i].Contribution < components[j].Contribution
	})

	suggestions := make([]Suggestion, 0, len(components))
	for _, c := range components {
		if c.Score >= 0.9 {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Component: c.Name,
			Hint:      componentHints[c.Name],
		})
	}
	return suggestions, nil
}

func (s *Service) getOrCreate(ctx context.Context, userID id.UserID, now time.Time) (*Record, error) {
	record, err := s.store.Get(ctx, userID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credibility record")
	}

	record = s.freshRecord(userID, now)
	if createErr := s.store.Create(ctx, record); createErr != nil {
		if errors.Is(createErr, sentinel.ErrConflict) {
			// Another writer created it first; reload.
			return s.store.Get(ctx, userID)
		}
		return nil, dErrors.Wrap(createErr, dErrors.CodeInternal, "failed to create credibility record")
	}
	return record, nil
}

func (s *Service) freshRecord(userID id.UserID, now time.Time) *Record {
	return &Record{
		UserID: userID,
		Score:  s.baseScore,
		History: []Entry{{
			At:     now,
			Delta:  s.baseScore,
			Score:  s.baseScore,
			Reason: ReasonInitialScore,
		}},
	}
}

// Component names and weights. Derived from history on every read so the
// breakdown can never drift from the ledger.
const (
	ComponentAccuracy      = "accuracy_rate"
	ComponentParticipation = "verification_participation"
	ComponentConduct       = "dispute_conduct"
	ComponentTenure        = "tenure"
)

var componentWeights = map[string]float64{
	ComponentAccuracy:      0.40,
	ComponentParticipation: 0.25,
	ComponentConduct:       0.20,
	ComponentTenure:        0.15,
}

var componentHints = map[string]string{
	ComponentAccuracy:      "submit observations with clear evidence so they verify rather than get overturned",
	ComponentParticipation: "verify other contributors' observations at your tier",
	ComponentConduct:       "raise disputes only with solid evidence and vote when eligible",
	ComponentTenure:        "keep contributing; tenure accrues with account age",
}

func deriveComponents(record *Record, now time.Time) []Component {
	var (
		verified, overturned, upheld  int
		participation, votes          int
		disputesWon, disputesLost     int
		firstEntry                    time.Time
	)
	for _, e := range record.History {
		if firstEntry.IsZero() {
			firstEntry = e.At
		}
		switch e.Reason {
		case ReasonObservationVerified:
			verified++
		case ReasonObservationOverturned, ReasonVerifierOverturned:
			overturned++
		case ReasonObservationUpheld:
			upheld++
		case ReasonVerifierParticipation:
			participation++
		case ReasonVoterParticipation:
			votes++
		case ReasonDisputantConfirmed:
			disputesWon++
		case ReasonDisputantRejected:
			disputesLost++
		}
	}

	accuracy := 0.5 // no signal yet
	if verified+upheld+overturned > 0 {
		accuracy = float64(verified+upheld) / float64(verified+upheld+overturned)
	}

	// Saturating activity curve: 10 acts of participation max it out.
	participationScore := math.Min(float64(participation+votes)/10, 1)

	conduct := 0.5
	if disputesWon+disputesLost > 0 {
		conduct = float64(disputesWon) / float64(disputesWon+disputesLost)
	}

	tenureDays := 0.0
	if !firstEntry.IsZero() {
		tenureDays = now.Sub(firstEntry).Hours() / 24
	}
	tenureScore := math.Min(tenureDays/365, 1)

	build := func(name string, score float64) Component {
		w := componentWeights[name]
		return Component{Name: name, Score: score, Weight: w, Contribution: score * w}
	}
	return []Component{
		build(ComponentAccuracy, accuracy),
		build(ComponentParticipation, participationScore),
		build(ComponentConduct, conduct),
		build(ComponentTenure, tenureScore),
	}
}
