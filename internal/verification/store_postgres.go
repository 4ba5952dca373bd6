package verification

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "naturewatch/pkg/domain"
	"naturewatch/pkg/platform/sentinel"
	txcontext "naturewatch/pkg/platform/tx"
)

// PostgresStore persists verification records in the verifications table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`INSERT INTO verifications
		   (id, observation_id, verifier_id, tier, confidence, notes, created_at, superseded)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(rec.ID), uuid.UUID(rec.ObservationID), uuid.UUID(rec.VerifierID),
		int(rec.Tier), rec.Confidence, rec.Notes, rec.CreatedAt, rec.Superseded,
	)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByObservation(ctx context.Context, obsID id.ObservationID) ([]*Record, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT id, observation_id, verifier_id, tier, confidence, notes, created_at, superseded
		 FROM verifications WHERE observation_id = $1 ORDER BY created_at`,
		uuid.UUID(obsID),
	)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			rec                    Record
			recID, obsUUID, verUUID uuid.UUID
			tier                   int
		)
		if err := rows.Scan(&recID, &obsUUID, &verUUID, &tier,
			&rec.Confidence, &rec.Notes, &rec.CreatedAt, &rec.Superseded); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		rec.ID = id.VerificationID(recID)
		rec.ObservationID = id.ObservationID(obsUUID)
		rec.VerifierID = id.UserID(verUUID)
		rec.Tier = Tier(tier)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Supersede(ctx context.Context, recID id.VerificationID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE verifications SET superseded = TRUE WHERE id = $1`,
		uuid.UUID(recID),
	)
	if err != nil {
		return fmt.Errorf("supersede verification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("supersede verification: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
