package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "naturewatch/pkg/domain"
	txcontext "naturewatch/pkg/platform/tx"
)

// PostgresStore appends audit events to the audit_events table. Events join
// the surrounding transaction when one is in context, so a rolled-back
// transition leaves no audit residue.
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

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`INSERT INTO audit_events (id, at, action, actor_id, subject, detail, request_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), event.Timestamp, string(event.Action),
		uuid.UUID(event.ActorID), event.Subject, event.Detail, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT at, action, actor_id, subject, detail, request_id
		 FROM audit_events WHERE subject = $1 ORDER BY at`,
		subject,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			action  string
			actorID uuid.UUID
		)
		if err := rows.Scan(&e.Timestamp, &action, &actorID, &e.Subject, &e.Detail, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		e.ActorID = id.UserID(actorID)
		out = append(out, e)
	}
	return out, rows.Err()
}
