package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/voicesurvey/pkg/domain"

	_ "modernc.org/sqlite"
)

// Store implements ports.ParticipantStore backed by SQLite (modernc.org/sqlite, pure Go).
// NewStore accepts any *sql.DB using a SQLite driver.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path and initializes the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open sqlite: %w", domain.ErrStoreUnavailable, err)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	s, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore initializes the required schema in the given database.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init sqlite schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS participants (
			call_id TEXT PRIMARY KEY,
			number TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS answers (
			call_id TEXT NOT NULL REFERENCES participants(call_id),
			position INTEGER NOT NULL,
			leg_id TEXT NOT NULL,
			recording_id TEXT NOT NULL,
			PRIMARY KEY (call_id, position),
			UNIQUE (call_id, recording_id)
		);`,
	)
	return err
}

// Find loads the participant row and its answers ordered by position.
func (s *Store) Find(ctx context.Context, callID string) (*domain.Participant, error) {
	var (
		number  string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT number, created_at FROM participants WHERE call_id = ?`, callID,
	).Scan(&number, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("%w: failed to find participant: %w", domain.ErrStoreUnavailable, err)
	}

	answers, err := s.answers(ctx, callID)
	if err != nil {
		return nil, err
	}

	return &domain.Participant{
		CallID:      callID,
		Destination: number,
		Answers:     answers,
		CreatedAt:   time.Unix(0, created).UTC(),
	}, nil
}

func (s *Store) answers(ctx context.Context, callID string) ([]domain.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT leg_id, recording_id FROM answers WHERE call_id = ? ORDER BY position`, callID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query answers: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	answers := []domain.Answer{}
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.LegID, &a.RecordingRef); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// Create inserts the participant unless it already exists.
func (s *Store) Create(ctx context.Context, callID, destination string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (call_id, number, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (call_id) DO NOTHING`,
		callID, destination, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to create participant: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// AppendAnswer inserts the answer at the next position with a single INSERT ... SELECT.
// The SELECT only yields a row while fewer than limit answers exist, and the
// UNIQUE (call_id, recording_id) constraint turns redeliveries into no-ops.
// The existence check and the final count share the transaction.
func (s *Store) AppendAnswer(ctx context.Context, callID string, answer domain.Answer, limit int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to begin append: %w", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants WHERE call_id = ?`, callID).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to check participant: %w", domain.ErrStoreUnavailable, err)
	}
	if exists == 0 {
		return 0, domain.ErrParticipantNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO answers (call_id, position, leg_id, recording_id)
		SELECT ?, (SELECT COUNT(*) FROM answers WHERE call_id = ?), ?, ?
		WHERE (SELECT COUNT(*) FROM answers WHERE call_id = ?) < ?
		ON CONFLICT (call_id, recording_id) DO NOTHING`,
		callID, callID, answer.LegID, answer.RecordingRef, callID, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to append answer: %w", domain.ErrStoreUnavailable, err)
	}

	var n int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM answers WHERE call_id = ?`, callID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count answers: %w", domain.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: failed to commit append: %w", domain.ErrStoreUnavailable, err)
	}
	return n, nil
}

// List returns all participants ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*domain.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id FROM participants ORDER BY created_at, call_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list participants: %w", domain.ErrStoreUnavailable, err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to list participants: %w", domain.ErrStoreUnavailable, err)
	}

	participants := make([]*domain.Participant, 0, len(ids))
	for _, id := range ids {
		p, err := s.Find(ctx, id)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}
