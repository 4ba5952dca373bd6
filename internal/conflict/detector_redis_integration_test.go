//go:build integration

package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"naturewatch/internal/observation"
	id "naturewatch/pkg/domain"
	"naturewatch/pkg/testutil/containers"
)

// MarkIngested caches the idempotency key; a replay resolves through the
// Redis fast path and returns the existing record.
func TestRedisFastPathServesRetry(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	store := observation.NewInMemoryStore()
	d := NewDetector(store, 3, WithRedis(rc.Client), WithKeyTTL(time.Minute))

	owner := id.UserID(uuid.New())
	first := newObs(owner, id.SpeciesID(uuid.New()), 47.5, 8.5, observedAt)
	first.IdempotencyKey = "offline-queue-007"
	require.NoError(t, store.Create(ctx, first))
	d.MarkIngested(ctx, first)

	cached, err := rc.Client.Get(ctx, d.redisKey(owner, first.IdempotencyKey)).Result()
	require.NoError(t, err)
	assert.Equal(t, first.ID.String(), cached)

	replay := newObs(owner, first.Species, 47.5, 8.5, observedAt)
	replay.IdempotencyKey = first.IdempotencyKey
	res, err := d.Check(ctx, replay)
	require.NoError(t, err)
	require.Equal(t, OutcomeRetry, res.Outcome)
	assert.Equal(t, first.ID, res.Existing.ID)
}

// A stale cache entry pointing at a purged record falls back to the store
// and still classifies correctly.
func TestRedisStaleEntryFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	store := observation.NewInMemoryStore()
	d := NewDetector(store, 3, WithRedis(rc.Client))

	owner := id.UserID(uuid.New())
	ghost := newObs(owner, id.SpeciesID(uuid.New()), 47.5, 8.5, observedAt)
	ghost.IdempotencyKey = "offline-queue-008"
	// Cached but never persisted.
	d.MarkIngested(ctx, ghost)

	replay := newObs(owner, ghost.Species, 47.5, 8.5, observedAt)
	replay.IdempotencyKey = ghost.IdempotencyKey
	res, err := d.Check(ctx, replay)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
}
