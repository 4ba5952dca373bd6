package credibility

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	id "naturewatch/pkg/domain"
	"naturewatch/pkg/platform/sentinel"
	txcontext "naturewatch/pkg/platform/tx"
)

// PostgresStore persists ledgers across two tables: credibility_records holds
// the folded score and version, credibility_history the append-only entries.
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

func (s *PostgresStore) Get(ctx context.Context, userID id.UserID) (*Record, error) {
	record := &Record{UserID: userID}
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT score, version FROM credibility_records WHERE user_id = $1`,
		uuid.UUID(userID),
	).Scan(&record.Score, &record.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credibility record: %w", err)
	}

	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT at, delta, score, reason FROM credibility_history
		 WHERE user_id = $1 ORDER BY seq`,
		uuid.UUID(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("get credibility history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e      Entry
			reason string
		)
		if err := rows.Scan(&e.At, &e.Delta, &e.Score, &reason); err != nil {
			return nil, fmt.Errorf("scan credibility entry: %w", err)
		}
		e.Reason = Reason(reason)
		record.History = append(record.History, e)
	}
	return record, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, record *Record) error {
	return txcontext.Within(ctx, s.db, func(ctx context.Context) error {
		_, err := s.execer(ctx).ExecContext(ctx,
			`INSERT INTO credibility_records (user_id, score, version) VALUES ($1, $2, 1)`,
			uuid.UUID(record.UserID), record.Score,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert credibility record: %w", err)
		}
		for _, e := range record.History {
			if err := s.insertEntry(ctx, record.UserID, e); err != nil {
				return err
			}
		}
		record.Version = 1
		return nil
	})
}

func (s *PostgresStore) Append(ctx context.Context, userID id.UserID, entry Entry, expectedVersion int64) error {
	return txcontext.Within(ctx, s.db, func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx,
			`UPDATE credibility_records SET score = $1, version = version + 1
			 WHERE user_id = $2 AND version = $3`,
			entry.Score, uuid.UUID(userID), expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update credibility record: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update credibility record: %w", err)
		}
		if affected == 0 {
			var exists bool
			checkErr := s.execer(ctx).QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM credibility_records WHERE user_id = $1)`,
				uuid.UUID(userID),
			).Scan(&exists)
			if checkErr == nil && !exists {
				return sentinel.ErrNotFound
			}
			return sentinel.ErrVersionMismatch
		}
		return s.insertEntry(ctx, userID, entry)
	})
}

func (s *PostgresStore) insertEntry(ctx context.Context, userID id.UserID, e Entry) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`INSERT INTO credibility_history (user_id, at, delta, score, reason)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(userID), e.At, e.Delta, e.Score, string(e.Reason),
	)
	if err != nil {
		return fmt.Errorf("insert credibility entry: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
