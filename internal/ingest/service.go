// Package ingest is the observation intake pipeline: temporal validation,
// location privacy, conflict detection, persistence. It runs the same path
// for live submissions and offline-queue replays.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"naturewatch/internal/audit"
	"naturewatch/internal/conflict"
	"naturewatch/internal/geoprivacy"
	"naturewatch/internal/observation"
	"naturewatch/internal/platform/config"
	"naturewatch/internal/temporal"
	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
	"naturewatch/pkg/platform/sentinel"
	pkgstrings "naturewatch/pkg/platform/strings"
	"naturewatch/pkg/requestcontext"
)

// AuditPublisher emits audit events for intake decisions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Metrics is the narrow counter surface the pipeline touches.
type Metrics interface {
	IncObservationsIngested()
	IncObservationsRejected()
	IncConflictsDetected()
}

// SubmitRequest is one observation submission, live or replayed.
type SubmitRequest struct {
	OwnerID id.UserID
	Species id.SpeciesID

	Coordinate               geoprivacy.Coordinate
	RequestedPrecisionMeters float64
	// ConfirmReducedPrecision acknowledges the buffer-zone precision reduction.
	// Required when the coordinate falls in a buffer ring.
	ConfirmReducedPrecision bool

	ObservedAt      time.Time
	TZOffsetMinutes int

	Justification  string
	MediaRefs      []string
	IdempotencyKey string
	MarkPrivate    bool
}

// SubmitResult is the intake decision for one submission.
type SubmitResult struct {
	Observation *observation.Observation
	Temporal    temporal.Result
	Conflict    *conflict.Result // non-nil when flagged or retried
	Warnings    []string
}

// Retried reports whether the submission matched an earlier idempotency key.
func (r *SubmitResult) Retried() bool {
	return r.Conflict != nil && r.Conflict.Outcome == conflict.OutcomeRetry
}

// Service wires the intake pipeline together.
type Service struct {
	store       observation.Store
	zones       geoprivacy.ZoneStore
	transformer *geoprivacy.Transformer
	temporal    *temporal.Validator
	detector    *conflict.Detector

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
	store observation.Store,
	zones geoprivacy.ZoneStore,
	transformer *geoprivacy.Transformer,
	validator *temporal.Validator,
	detector *conflict.Detector,
	policy config.Trust,
	opts ...Option,
) (*Service, error) {
	if store == nil || zones == nil || transformer == nil || validator == nil || detector == nil {
		return nil, fmt.Errorf("ingest service requires all pipeline stages")
	}
	svc := &Service{
		store:       store,
		zones:       zones,
		transformer: transformer,
		temporal:    validator,
		detector:    detector,
		policy:      policy,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ValidateAndIngest runs one submission through the full pipeline. Conflicts
// are not fatal: the record persists flagged, alongside what it conflicts
// with, until the owner resolves.
func (s *Service) ValidateAndIngest(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := s.validate(req); err != nil {
		s.countRejected()
		return nil, err
	}

	now := requestcontext.Now(ctx)
	result := &SubmitResult{}

	// Temporal rules first: a rejected timestamp never reaches the geo stage.
	result.Temporal = s.temporal.Check(req.ObservedAt, req.TZOffsetMinutes, now)
	if result.Temporal.Status == temporal.StatusRejected {
		s.countRejected()
		return nil, dErrors.NewField(dErrors.CodeValidation, "observed_at", result.Temporal.Message)
	}
	if result.Temporal.RequiresJustification {
		if err := temporal.ValidateJustification(req.Justification); err != nil {
			s.countRejected()
			return nil, err
		}
	}
	if result.Temporal.TimezoneMismatch {
		result.Warnings = append(result.Warnings, result.Temporal.Message)
	}

	zones, err := s.zones.ListZones(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load protected zones")
	}
	disclosure := s.transformer.Apply(req.Coordinate, zones, req.RequestedPrecisionMeters)
	if disclosure.RequiresConfirmation && !req.ConfirmReducedPrecision {
		s.countRejected()
		return nil, dErrors.NewField(dErrors.CodeValidation, "confirm_reduced_precision",
			fmt.Sprintf("location is near a protected area; disclosure precision is reduced to %.0fm and must be confirmed", disclosure.PrecisionMeters))
	}
	if disclosure.Status == geoprivacy.ZoneStatusCore {
		result.Warnings = append(result.Warnings,
			"location falls inside a protected area; coordinates are blurred and the record is private")
	}

	obs := &observation.Observation{
		ID:              id.NewObservationID(),
		OwnerID:         req.OwnerID,
		Species:         req.Species,
		Raw:             req.Coordinate,
		Disclosed:       disclosure.Disclosed,
		PrecisionMeters: disclosure.PrecisionMeters,
		ZoneStatus:      disclosure.Status,
		ObservedAt:      req.ObservedAt.UTC(),
		SubmittedAt:     now,
		IsPrivate:       req.MarkPrivate || disclosure.ForcePrivate,
		IsRetrospective: result.Temporal.RequiresJustification,
		Justification:   req.Justification,
		MediaRefs:       req.MediaRefs,
		IdempotencyKey:  req.IdempotencyKey,
		State:           observation.StatePending,
	}

	check, err := s.detector.Check(ctx, obs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "conflict check failed")
	}
	if check.Outcome == conflict.OutcomeRetry {
		result.Observation = check.Existing
		result.Conflict = check
		result.Warnings = append(result.Warnings, "duplicate submission; returning the existing record")
		return result, nil
	}
	if check.Outcome == conflict.OutcomeConflict {
		obs.ConflictDetected = true
		obs.ConflictsWith = check.Against
		result.Conflict = check
	}

	if err := s.store.Create(ctx, obs); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost an idempotency race to a parallel replay of the same item.
			existing, getErr := s.store.GetByIdempotencyKey(ctx, req.OwnerID, req.IdempotencyKey)
			if getErr == nil {
				result.Observation = existing
				result.Conflict = &conflict.Result{Outcome: conflict.OutcomeRetry, Existing: existing}
				result.Warnings = append(result.Warnings, "duplicate submission; returning the existing record")
				return result, nil
			}
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store observation")
	}
	s.detector.MarkIngested(ctx, obs)
	result.Observation = obs

	if s.metrics != nil {
		s.metrics.IncObservationsIngested()
		if obs.ConflictDetected {
			s.metrics.IncConflictsDetected()
		}
	}
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			Action:  audit.ActionObservationIngested,
			ActorID: req.OwnerID,
			Subject: obs.ID.String(),
			Detail:  string(disclosure.Status),
		})
		if obs.ConflictDetected {
			_ = s.auditPublisher.Emit(ctx, audit.Event{
				Action:  audit.ActionConflictDetected,
				ActorID: req.OwnerID,
				Subject: obs.ID.String(),
				Detail:  fmt.Sprintf("against %d record(s)", len(obs.ConflictsWith)),
			})
		}
	}
	s.logger.InfoContext(ctx, "observation ingested",
		"observation_id", obs.ID,
		"owner_id", obs.OwnerID,
		"zone_status", obs.ZoneStatus,
		"conflict", obs.ConflictDetected,
	)
	return result, nil
}

// ItemStatus classifies one replayed batch item.
type ItemStatus string

const (
	ItemAccepted ItemStatus = "accepted"
	ItemConflict ItemStatus = "conflict"
	ItemRetried  ItemStatus = "retried"
	ItemRejected ItemStatus = "rejected"
)

// ItemResult is the per-item outcome of a batch replay, in input order.
type ItemResult struct {
	Index  int
	Status ItemStatus
	Result *SubmitResult // nil when rejected
	Error  string        // set when rejected
}

// SyncBatch replays an offline queue. Items run through the same pipeline as
// live submissions with bounded parallelism; one bad item never fails the
// batch.
func (s *Service) SyncBatch(ctx context.Context, items []SubmitRequest) ([]ItemResult, error) {
	results := make([]ItemResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	workers := s.policy.SyncWorkers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, item := range items {
		g.Go(func() error {
			res, err := s.ValidateAndIngest(gctx, item)
			if err != nil {
				results[i] = ItemResult{Index: i, Status: ItemRejected, Error: err.Error()}
				return nil
			}
			status := ItemAccepted
			switch {
			case res.Retried():
				status = ItemRetried
			case res.Conflict != nil:
				status = ItemConflict
			}
			results[i] = ItemResult{Index: i, Status: status, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "batch replay failed")
	}
	return results, nil
}

// ResolveConflict applies the owner's choice for a flagged record. Nothing is
// deleted: losing records are marked superseded so the audit trail survives.
func (s *Service) ResolveConflict(
	ctx context.Context,
	obsID id.ObservationID,
	callerID id.UserID,
	resolution observation.ConflictResolution,
) (*observation.Observation, error) {
	obs, err := s.load(ctx, obsID)
	if err != nil {
		return nil, err
	}
	if obs.OwnerID != callerID {
		return nil, dErrors.New(dErrors.CodeNotOwner, "only the owner can resolve a conflict")
	}
	if !obs.ConflictDetected {
		return nil, dErrors.New(dErrors.CodeInvalidState, "observation has no unresolved conflict")
	}

	switch resolution {
	case observation.ResolutionKeepExisting:
		// The new record loses; point it at the first surviving sibling.
		obs.Superseded = true
		if len(obs.ConflictsWith) > 0 {
			obs.SupersededBy = obs.ConflictsWith[0]
		}
		obs.ConflictDetected = false
		if err := s.update(ctx, obs); err != nil {
			return nil, err
		}
		s.emitSuperseded(ctx, callerID, obs.ID, obs.SupersededBy)

	case observation.ResolutionKeepNew:
		for _, otherID := range obs.ConflictsWith {
			if err := s.supersede(ctx, otherID, obs.ID); err != nil {
				return nil, err
			}
			s.emitSuperseded(ctx, callerID, otherID, obs.ID)
		}
		obs.ConflictDetected = false
		if err := s.update(ctx, obs); err != nil {
			return nil, err
		}

	case observation.ResolutionMerge:
		// Media folds into the surviving record; the losers are superseded.
		for _, otherID := range obs.ConflictsWith {
			other, err := s.load(ctx, otherID)
			if err != nil {
				return nil, err
			}
			obs.MediaRefs = mergeRefs(obs.MediaRefs, other.MediaRefs)
			if err := s.supersede(ctx, otherID, obs.ID); err != nil {
				return nil, err
			}
			s.emitSuperseded(ctx, callerID, otherID, obs.ID)
		}
		obs.ConflictDetected = false
		if err := s.update(ctx, obs); err != nil {
			return nil, err
		}

	default:
		return nil, dErrors.NewField(dErrors.CodeValidation, "resolution", "unknown resolution")
	}

	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			Action:  audit.ActionConflictResolved,
			ActorID: callerID,
			Subject: obsID.String(),
			Detail:  string(resolution),
		})
	}
	s.logger.InfoContext(ctx, "conflict resolved",
		"observation_id", obsID,
		"resolution", resolution,
	)
	return obs, nil
}

// Get returns one observation with the raw coordinate masked for non-owners.
func (s *Service) Get(ctx context.Context, obsID id.ObservationID, callerID id.UserID) (*observation.Observation, error) {
	obs, err := s.load(ctx, obsID)
	if err != nil {
		return nil, err
	}
	if obs.OwnerID != callerID {
		obs.Raw = obs.Disclosed
	}
	return obs, nil
}

func (s *Service) validate(req SubmitRequest) error {
	if req.OwnerID.IsNil() {
		return dErrors.NewField(dErrors.CodeValidation, "owner_id", "must not be empty")
	}
	if req.Species.IsNil() {
		return dErrors.NewField(dErrors.CodeValidation, "species_id", "must not be empty")
	}
	if req.Coordinate.Lat < -90 || req.Coordinate.Lat > 90 {
		return dErrors.NewField(dErrors.CodeValidation, "lat", "must be in [-90,90]")
	}
	if req.Coordinate.Lon < -180 || req.Coordinate.Lon > 180 {
		return dErrors.NewField(dErrors.CodeValidation, "lon", "must be in [-180,180]")
	}
	if req.ObservedAt.IsZero() {
		return dErrors.NewField(dErrors.CodeValidation, "observed_at", "must not be empty")
	}
	if req.RequestedPrecisionMeters < 0 {
		return dErrors.NewField(dErrors.CodeValidation, "requested_precision_meters", "must not be negative")
	}
	return nil
}

func (s *Service) load(ctx context.Context, obsID id.ObservationID) (*observation.Observation, error) {
	obs, err := s.store.Get(ctx, obsID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "observation not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}
	return obs, nil
}

func (s *Service) update(ctx context.Context, obs *observation.Observation) error {
	retries := s.policy.MaxTransitionRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		err := s.store.Update(ctx, obs)
		if errors.Is(err, sentinel.ErrVersionMismatch) {
			lastErr = err
			fresh, loadErr := s.load(ctx, obs.ID)
			if loadErr != nil {
				return loadErr
			}
			obs.Version = fresh.Version
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

func (s *Service) supersede(ctx context.Context, obsID, by id.ObservationID) error {
	retries := s.policy.MaxTransitionRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		other, err := s.load(ctx, obsID)
		if err != nil {
			return err
		}
		if other.Superseded {
			return nil
		}
		other.Superseded = true
		other.SupersededBy = by
		err = s.store.Update(ctx, other)
		if errors.Is(err, sentinel.ErrVersionMismatch) {
			lastErr = err
			continue
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to supersede observation")
		}
		return nil
	}
	return dErrors.Wrap(lastErr, dErrors.CodeConcurrentModification,
		"observation update lost the serialization race")
}

func (s *Service) emitSuperseded(ctx context.Context, actor id.UserID, subject, by id.ObservationID) {
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Action:  audit.ActionObservationSuperseded,
		ActorID: actor,
		Subject: subject.String(),
		Detail:  "superseded by " + by.String(),
	})
}

func (s *Service) countRejected() {
	if s.metrics != nil {
		s.metrics.IncObservationsRejected()
	}
}

func mergeRefs(a, b []string) []string {
	return pkgstrings.DedupeAndTrim(append(append([]string{}, a...), b...))
}
