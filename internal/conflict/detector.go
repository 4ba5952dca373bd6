// Package conflict detects duplicate and contradictory submissions from the
// same contributor. It runs synchronously at intake and again during
// offline-queue replay.
package conflict

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"naturewatch/internal/observation"
	id "naturewatch/pkg/domain"
	"naturewatch/pkg/platform/sentinel"
)

// Outcome classifies a candidate submission.
type Outcome string

const (
	// OutcomeAccepted: no nearby material inconsistency.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeRetry: the idempotency key is already ingested; return the
	// existing record unchanged.
	OutcomeRetry Outcome = "retry"
	// OutcomeConflict: spatially/temporally close but materially different;
	// both records persist until a human resolves.
	OutcomeConflict Outcome = "conflict"
)

// Result reports the detector's decision for one candidate.
type Result struct {
	Outcome  Outcome
	Existing *observation.Observation   // set for OutcomeRetry
	Against  []id.ObservationID         // set for OutcomeConflict
	Options  []observation.ConflictResolution
}

// Detector compares a candidate against the contributor's recent and queued
// observations within the spatial cell and calendar-day tolerances.
type Detector struct {
	store        observation.Store
	redis        *redis.Client // optional fast path for idempotency keys
	cellDecimals int
	keyTTL       time.Duration
}

// Option configures a Detector.
type Option func(*Detector)

// WithRedis enables the SETNX fast path that short-circuits duplicate
// idempotency keys before hitting the store.
func WithRedis(client *redis.Client) Option {
	return func(d *Detector) { d.redis = client }
}

// WithKeyTTL overrides how long idempotency keys are cached.
func WithKeyTTL(ttl time.Duration) Option {
	return func(d *Detector) { d.keyTTL = ttl }
}

func NewDetector(store observation.Store, cellDecimals int, opts ...Option) *Detector {
	d := &Detector{
		store:        store,
		cellDecimals: cellDecimals,
		keyTTL:       24 * time.Hour,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check classifies the candidate. The candidate is not persisted here; the
// caller persists it (with the conflict flag when applicable) so that both
// sides of a conflict survive until resolution.
func (d *Detector) Check(ctx context.Context, candidate *observation.Observation) (*Result, error) {
	// Idempotent retry: same key means same logical submission.
	if candidate.IdempotencyKey != "" {
		existing, err := d.lookupByKey(ctx, candidate.OwnerID, candidate.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &Result{Outcome: OutcomeRetry, Existing: existing}, nil
		}
	}

	neighbors, err := d.store.ListNeighbors(ctx, candidate.OwnerID,
		candidate.CellKey(d.cellDecimals), candidate.ObservedAt)
	if err != nil {
		return nil, err
	}

	// Any same-cell, same-day record from the same contributor needs a human
	// choice: a different species is contradictory, an identical one is a
	// duplicate without a retry key. Either way both records persist until
	// resolution.
	var against []id.ObservationID
	for _, other := range neighbors {
		if other.ID == candidate.ID {
			continue
		}
		against = append(against, other.ID)
	}
	if len(against) > 0 {
		return &Result{
			Outcome: OutcomeConflict,
			Against: against,
			Options: observation.ConflictResolutionOptions,
		}, nil
	}
	return &Result{Outcome: OutcomeAccepted}, nil
}

// MarkIngested records the idempotency key after a successful create so
// replayed batches hit the fast path.
func (d *Detector) MarkIngested(ctx context.Context, obs *observation.Observation) {
	if d.redis == nil || obs.IdempotencyKey == "" {
		return
	}
	// Best effort; the store's unique constraint is the source of truth.
	d.redis.SetNX(ctx, d.redisKey(obs.OwnerID, obs.IdempotencyKey), obs.ID.String(), d.keyTTL)
}

func (d *Detector) lookupByKey(ctx context.Context, owner id.UserID, key string) (*observation.Observation, error) {
	if d.redis != nil {
		val, err := d.redis.Get(ctx, d.redisKey(owner, key)).Result()
		if err == nil && val != "" {
			if obsID, parseErr := id.ParseObservationID(val); parseErr == nil {
				if obs, getErr := d.store.Get(ctx, obsID); getErr == nil {
					return obs, nil
				}
			}
		}
		// Cache miss or redis trouble falls through to the store.
	}

	existing, err := d.store.GetByIdempotencyKey(ctx, owner, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (d *Detector) redisKey(owner id.UserID, key string) string {
	return "naturewatch:idem:" + owner.String() + ":" + key
}
