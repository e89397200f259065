package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection holding the session catalog.
// Samples themselves stay in the per-session CSV files.
type Store struct {
	conn *pgx.Conn
}

// Session is one catalogued recording.
type Session struct {
	ID        int64
	Path      string
	StartedAt time.Time
	EndedAt   *time.Time // nil while recording or if the process died
	Rows      int
	Error     string
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS recording_sessions (
			id BIGSERIAL PRIMARY KEY,
			path TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			row_count INT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS recording_sessions_started_at_idx ON recording_sessions (started_at);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// BeginSession registers a freshly opened session file and returns its ID.
func (s *Store) BeginSession(ctx context.Context, path string, startedAt time.Time) (int64, error) {
	var id int64
	err := s.conn.QueryRow(ctx, `
		INSERT INTO recording_sessions (path, started_at)
		VALUES ($1, $2)
		RETURNING id
	`, path, startedAt).Scan(&id)
	return id, err
}

// FinishSession records how a session ended. A nil cause marks a clean stop.
func (s *Store) FinishSession(ctx context.Context, id int64, endedAt time.Time, rows int, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	tag, err := s.conn.Exec(ctx, `
		UPDATE recording_sessions SET ended_at = $2, row_count = $3, error = $4
		WHERE id = $1
	`, id, endedAt, rows, msg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %d not found", id)
	}
	return nil
}

// ListSessions returns every catalogued session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, path, started_at, ended_at, row_count, error
		FROM recording_sessions
		ORDER BY started_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Path, &sess.StartedAt, &sess.EndedAt, &sess.Rows, &sess.Error); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS recording_sessions CASCADE;`)
	return err
}

// SessionCatalog adapts Store to presenter.SessionCatalog. pgx.Conn is not
// safe for concurrent use, so calls are serialized.
type SessionCatalog struct {
	mu sync.Mutex
	s  *Store
}

// Catalog returns a presenter hook that records sessions in s.
func Catalog(s *Store) *SessionCatalog {
	return &SessionCatalog{s: s}
}

func (c *SessionCatalog) SessionStarted(ctx context.Context, path string, startedAt time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.BeginSession(ctx, path, startedAt)
}

func (c *SessionCatalog) SessionFinished(ctx context.Context, id int64, endedAt time.Time, rows int, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.FinishSession(ctx, id, endedAt, rows, cause)
}
