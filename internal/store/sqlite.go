package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/partload/internal/model"

	_ "modernc.org/sqlite"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    source      TEXT NOT NULL,
    state       TEXT NOT NULL,
    count       INTEGER NOT NULL,
    delay_ms    INTEGER NOT NULL,
    timeout_ms  INTEGER NOT NULL,
    paging      INTEGER NOT NULL,
    calls       INTEGER NOT NULL DEFAULT 0,
    items       INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const createChunksTable = `
CREATE TABLE IF NOT EXISTS chunks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL REFERENCES sessions(id),
    seq         INTEGER NOT NULL,
    size        INTEGER NOT NULL,
    state       TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL,
    UNIQUE(session_id, seq)
)`

const sessionColumns = `id, source, state, count, delay_ms, timeout_ms, paging,
	calls, items, error, created_at, updated_at, finished_at`

// ErrNotFound is returned when a session is not found.
var ErrNotFound = errors.New("session not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createSessionsTable, createChunksTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migration: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.Session, error) {
	m := &model.Session{}
	err := row.Scan(
		&m.ID, &m.Source, &m.State, &m.Count, &m.DelayMS, &m.TimeoutMS, &m.Paging,
		&m.Calls, &m.Items, &m.Error, &m.CreatedAt, &m.UpdatedAt, &m.FinishedAt,
	)
	return m, err
}

// CreateSession inserts a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, m *model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Source, m.State, m.Count, m.DelayMS, m.TimeoutMS, m.Paging,
		m.Calls, m.Items, m.Error, m.CreatedAt, m.UpdatedAt, m.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	m, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return m, nil
}

// ListSessions returns a paginated list of sessions ordered by created_at DESC,
// along with the total count of all sessions.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit, offset int) ([]*model.Session, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*model.Session{}
	for rows.Next() {
		m, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, total, nil
}

// transition moves session id to state inside tx. Terminal states also set
// finished_at.
func transition(ctx context.Context, tx *sql.Tx, id, state string, now time.Time) error {
	var current string
	err := tx.QueryRowContext(ctx, "SELECT state FROM sessions WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read session state: %w", err)
	}
	if !model.ValidTransition(current, state) {
		return fmt.Errorf("%s → %s: %w", current, state, ErrInvalidTransition)
	}

	if model.IsTerminal(state) {
		_, err = tx.ExecContext(ctx,
			"UPDATE sessions SET state = ?, updated_at = ?, finished_at = ? WHERE id = ?",
			state, now, now, id,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?",
			state, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	return nil
}

// UpdateSessionState moves a session to state, recording errMsg when it is
// not empty.
func (s *SQLiteStore) UpdateSessionState(ctx context.Context, id, state, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := transition(ctx, tx, id, state, time.Now().UTC()); err != nil {
		return err
	}
	if errMsg != "" {
		if _, err := tx.ExecContext(ctx, "UPDATE sessions SET error = ? WHERE id = ?", errMsg, id); err != nil {
			return fmt.Errorf("set session error: %w", err)
		}
	}
	return tx.Commit()
}

// RecordChunk appends a chunk to its session, bumps the session counters
// and moves the session to the chunk's state, all in one transaction. A
// chunk error is copied to the session. c.ID and c.Seq are filled in.
func (s *SQLiteStore) RecordChunk(ctx context.Context, c *model.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := transition(ctx, tx, c.SessionID, c.State, c.CreatedAt); err != nil {
		return err
	}

	if err := tx.QueryRowContext(ctx,
		`UPDATE sessions SET calls = calls + 1, items = items + ?,
			error = CASE WHEN ? = '' THEN error ELSE ? END
		WHERE id = ? RETURNING calls`,
		c.Size, c.Error, c.Error, c.SessionID,
	).Scan(&c.Seq); err != nil {
		return fmt.Errorf("bump session counters: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO chunks (session_id, seq, size, state, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.SessionID, c.Seq, c.Size, c.State, c.DurationMS, c.Error, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("chunk id: %w", err)
	}

	return tx.Commit()
}

// GetChunks returns the chunks of a session in call order. An unknown
// session yields an empty slice.
func (s *SQLiteStore) GetChunks(ctx context.Context, sessionID string) ([]model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, seq, size, state, duration_ms, error, created_at
		FROM chunks WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	chunks := []model.Chunk{}
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Seq, &c.Size, &c.State, &c.DurationMS, &c.Error, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// GetSessionStats returns aggregate counts over all sessions.
func (s *SQLiteStore) GetSessionStats(ctx context.Context) (*SessionStats, error) {
	stats := &SessionStats{CountByState: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(items), 0), COALESCE(SUM(calls), 0) FROM sessions",
	).Scan(&stats.Total, &stats.Items, &stats.Calls); err != nil {
		return nil, fmt.Errorf("session totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM sessions GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		stats.CountByState[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state counts: %w", err)
	}
	return stats, nil
}
