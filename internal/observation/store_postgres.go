package observation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"naturewatch/internal/geoprivacy"
	id "naturewatch/pkg/domain"
	"naturewatch/pkg/platform/sentinel"
	txcontext "naturewatch/pkg/platform/tx"
)

// PostgresStore persists observations in PostgreSQL. Updates carry an
// optimistic version predicate so concurrent state transitions serialize
// per row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const observationColumns = `
	id, owner_id, species_id,
	raw_lat, raw_lon, disclosed_lat, disclosed_lon, precision_m, zone_status,
	observed_at, submitted_at,
	is_private, is_retrospective, justification,
	media_refs, idempotency_key,
	state, conflict_detected, conflicts_with,
	superseded, superseded_by, refreshed_at, version
`

func (s *PostgresStore) Create(ctx context.Context, obs *Observation) error {
	mediaRefs, err := json.Marshal(obs.MediaRefs)
	if err != nil {
		return fmt.Errorf("encode media refs: %w", err)
	}
	conflicts, err := json.Marshal(obs.ConflictsWith)
	if err != nil {
		return fmt.Errorf("encode conflicts: %w", err)
	}

	query := `
		INSERT INTO observations (` + observationColumns + `, cell_key, observed_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, NULLIF($16, ''), $17, $18, $19, $20, $21, $22, 1, $23, $24)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(obs.ID), uuid.UUID(obs.OwnerID), uuid.UUID(obs.Species),
		obs.Raw.Lat, obs.Raw.Lon, obs.Disclosed.Lat, obs.Disclosed.Lon,
		obs.PrecisionMeters, string(obs.ZoneStatus),
		obs.ObservedAt, obs.SubmittedAt,
		obs.IsPrivate, obs.IsRetrospective, obs.Justification,
		mediaRefs, obs.IdempotencyKey,
		string(obs.State), obs.ConflictDetected, conflicts,
		obs.Superseded, nullUUID(uuid.UUID(obs.SupersededBy)), nullTime(obs.RefreshedAt),
		obs.CellKey(cellDecimals), obs.ObservedDay(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert observation: %w", err)
	}
	obs.Version = 1
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, obsID id.ObservationID) (*Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE id = $1`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(obsID))
	return scanObservation(row)
}

func (s *PostgresStore) GetByIdempotencyKey(ctx context.Context, owner id.UserID, key string) (*Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations
		WHERE owner_id = $1 AND idempotency_key = $2`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(owner), key)
	return scanObservation(row)
}

func (s *PostgresStore) ListNeighbors(ctx context.Context, owner id.UserID, cellKey string, day time.Time) ([]*Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations
		WHERE owner_id = $1 AND cell_key = $2 AND observed_day = $3 AND NOT superseded`
	rows, err := s.execer(ctx).QueryContext(ctx, query,
		uuid.UUID(owner), cellKey, day.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("list neighbors: %w", err)
	}
	defer rows.Close()

	var out []*Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, obs *Observation) error {
	mediaRefs, err := json.Marshal(obs.MediaRefs)
	if err != nil {
		return fmt.Errorf("encode media refs: %w", err)
	}
	conflicts, err := json.Marshal(obs.ConflictsWith)
	if err != nil {
		return fmt.Errorf("encode conflicts: %w", err)
	}

	query := `
		UPDATE observations SET
			disclosed_lat = $1, disclosed_lon = $2, precision_m = $3, zone_status = $4,
			is_private = $5, is_retrospective = $6, justification = $7,
			media_refs = $8, state = $9, conflict_detected = $10, conflicts_with = $11,
			superseded = $12, superseded_by = $13, refreshed_at = $14,
			version = version + 1
		WHERE id = $15 AND version = $16
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		obs.Disclosed.Lat, obs.Disclosed.Lon, obs.PrecisionMeters, string(obs.ZoneStatus),
		obs.IsPrivate, obs.IsRetrospective, obs.Justification,
		mediaRefs, string(obs.State), obs.ConflictDetected, conflicts,
		obs.Superseded, nullUUID(uuid.UUID(obs.SupersededBy)), nullTime(obs.RefreshedAt),
		uuid.UUID(obs.ID), obs.Version,
	)
	if err != nil {
		return fmt.Errorf("update observation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update observation: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or someone else won the version race.
		if _, getErr := s.Get(ctx, obs.ID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionMismatch
	}
	obs.Version++
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*Observation, error) {
	var (
		obs          Observation
		obsID        uuid.UUID
		ownerID      uuid.UUID
		speciesID    uuid.UUID
		zoneStatus   string
		state        string
		mediaRefs    []byte
		conflicts    []byte
		idempotency  sql.NullString
		supersededBy uuid.NullUUID
		refreshedAt  sql.NullTime
	)
	err := row.Scan(
		&obsID, &ownerID, &speciesID,
		&obs.Raw.Lat, &obs.Raw.Lon, &obs.Disclosed.Lat, &obs.Disclosed.Lon,
		&obs.PrecisionMeters, &zoneStatus,
		&obs.ObservedAt, &obs.SubmittedAt,
		&obs.IsPrivate, &obs.IsRetrospective, &obs.Justification,
		&mediaRefs, &idempotency,
		&state, &obs.ConflictDetected, &conflicts,
		&obs.Superseded, &supersededBy, &refreshedAt, &obs.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan observation: %w", err)
	}

	obs.ID = id.ObservationID(obsID)
	obs.OwnerID = id.UserID(ownerID)
	obs.Species = id.SpeciesID(speciesID)
	obs.ZoneStatus = geoprivacy.ZoneStatus(zoneStatus)
	obs.State = State(state)
	obs.IdempotencyKey = idempotency.String
	if supersededBy.Valid {
		obs.SupersededBy = id.ObservationID(supersededBy.UUID)
	}
	if refreshedAt.Valid {
		obs.RefreshedAt = refreshedAt.Time
	}
	if len(mediaRefs) > 0 {
		if err := json.Unmarshal(mediaRefs, &obs.MediaRefs); err != nil {
			return nil, fmt.Errorf("decode media refs: %w", err)
		}
	}
	if len(conflicts) > 0 {
		if err := json.Unmarshal(conflicts, &obs.ConflictsWith); err != nil {
			return nil, fmt.Errorf("decode conflicts: %w", err)
		}
	}
	return &obs, nil
}

func nullUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// isUniqueViolation matches postgres unique constraint errors without binding
// to a driver-specific error type.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
