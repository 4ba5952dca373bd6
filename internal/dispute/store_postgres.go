package dispute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	id "naturewatch/pkg/domain"
	"naturewatch/pkg/platform/sentinel"
	txcontext "naturewatch/pkg/platform/tx"
)

// PostgresStore persists disputes in the disputes table and votes in
// dispute_votes, with a unique (dispute_id, voter_id) constraint backing the
// one-vote rule.
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

const disputeColumns = `id, observation_id, raised_by, reason, evidence,
	status, outcome, opened_at, resolved_at, version`

func (s *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`INSERT INTO disputes (`+disputeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)`,
		uuid.UUID(d.ID), uuid.UUID(d.ObservationID), uuid.UUID(d.RaisedBy),
		d.Reason, strings.Join(d.Evidence, "\n"),
		string(d.Status), string(d.Outcome), d.OpenedAt, nullTime(d.ResolvedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert dispute: %w", err)
	}
	d.Version = 1
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, disputeID id.DisputeID) (*Dispute, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`,
		uuid.UUID(disputeID),
	)
	d, err := scanDispute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return d, err
}

func (s *PostgresStore) Update(ctx context.Context, d *Dispute) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE disputes SET status = $1, outcome = $2, resolved_at = $3,
		   version = version + 1
		 WHERE id = $4 AND version = $5`,
		string(d.Status), string(d.Outcome), nullTime(d.ResolvedAt),
		uuid.UUID(d.ID), d.Version,
	)
	if err != nil {
		return fmt.Errorf("update dispute: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update dispute: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, d.ID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionMismatch
	}
	d.Version++
	return nil
}

func (s *PostgresStore) AddVote(ctx context.Context, v *Vote) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`INSERT INTO dispute_votes (id, dispute_id, voter_id, choice, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(v.ID), uuid.UUID(v.DisputeID), uuid.UUID(v.VoterID),
		string(v.Choice), v.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListVotes(ctx context.Context, disputeID id.DisputeID) ([]*Vote, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT id, dispute_id, voter_id, choice, created_at
		 FROM dispute_votes WHERE dispute_id = $1 ORDER BY created_at`,
		uuid.UUID(disputeID),
	)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var out []*Vote
	for rows.Next() {
		var (
			v                       Vote
			voteID, dispUUID, voter uuid.UUID
			choice                  string
		)
		if err := rows.Scan(&voteID, &dispUUID, &voter, &choice, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.ID = id.VoteID(voteID)
		v.DisputeID = id.DisputeID(dispUUID)
		v.VoterID = id.UserID(voter)
		v.Choice = Choice(choice)
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListVotingBefore(ctx context.Context, cutoff time.Time) ([]*Dispute, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes
		 WHERE status = $1 AND opened_at <= $2 ORDER BY opened_at`,
		string(StatusVoting), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("list voting disputes: %w", err)
	}
	defer rows.Close()

	var out []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispute(row rowScanner) (*Dispute, error) {
	var (
		d                         Dispute
		dispUUID, obsUUID, actor  uuid.UUID
		evidence, status, outcome string
		resolvedAt                sql.NullTime
	)
	err := row.Scan(&dispUUID, &obsUUID, &actor, &d.Reason, &evidence,
		&status, &outcome, &d.OpenedAt, &resolvedAt, &d.Version)
	if err != nil {
		return nil, err
	}
	d.ID = id.DisputeID(dispUUID)
	d.ObservationID = id.ObservationID(obsUUID)
	d.RaisedBy = id.UserID(actor)
	if evidence != "" {
		d.Evidence = strings.Split(evidence, "\n")
	}
	d.Status = Status(status)
	d.Outcome = Outcome(outcome)
	if resolvedAt.Valid {
		d.ResolvedAt = resolvedAt.Time
	}
	return &d, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
