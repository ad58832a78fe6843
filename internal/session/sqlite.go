package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session store: open: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("session store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			channel    TEXT NOT NULL DEFAULT '',
			chat_id    TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS turns (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);
		CREATE INDEX IF NOT EXISTS idx_sessions_chat ON sessions(channel, chat_id, updated_at);
	`)
	if err != nil {
		return fmt.Errorf("session store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, channel, chat_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, channel=excluded.channel, chat_id=excluded.chat_id, updated_at=excluded.updated_at
	`, sess.ID, sess.Title, sess.Channel, sess.ChatID, formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("session store: save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, channel, chat_id, created_at, updated_at FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("session %q not found", id)
		}
		return nil, fmt.Errorf("session store: get: %w", err)
	}

	turns, err := s.loadTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns
	return sess, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Session, error) {
	query := "SELECT id, title, channel, chat_id, created_at, updated_at FROM sessions WHERE 1=1"
	var args []any

	if filter.Channel != "" {
		query += " AND channel = ?"
		args = append(args, filter.Channel)
	}
	if filter.ChatID != "" {
		query += " AND chat_id = ?"
		args = append(args, filter.ChatID)
	}
	query += " ORDER BY updated_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("session store: list: %w", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("session store: list scan: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) Latest(ctx context.Context, channel, chatID string) (*Session, error) {
	list, err := s.List(ctx, Filter{Channel: channel, ChatID: chatID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperr.NotFound("no session for %s chat %q", channel, chatID)
	}
	return s.Get(ctx, list[0].ID)
}

func (s *SQLiteStore) AppendTurns(ctx context.Context, id string, turns ...protocol.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session store: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("session store: touch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("session %q not found", id)
	}

	for _, t := range turns {
		created := t.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO turns (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			id, string(t.Role), t.Content, formatTime(created)); err != nil {
			return fmt.Errorf("session store: append turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session store: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("session store: delete turns: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("session store: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("session %q not found", id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session store: commit: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers ---

func (s *SQLiteStore) loadTurns(ctx context.Context, id string) ([]protocol.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, content, created_at FROM turns WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("session store: load turns: %w", err)
	}
	defer rows.Close()

	turns := []protocol.Turn{}
	for rows.Next() {
		var t protocol.Turn
		var role, ts string
		if err := rows.Scan(&role, &t.Content, &ts); err != nil {
			return nil, fmt.Errorf("session store: scan turn: %w", err)
		}
		t.Role = protocol.TurnRole(role)
		t.CreatedAt = parseTime(ts)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*Session, error) {
	var sess Session
	var created, updated string
	if err := row.Scan(&sess.ID, &sess.Title, &sess.Channel, &sess.ChatID, &created, &updated); err != nil {
		return nil, err
	}
	sess.CreatedAt = parseTime(created)
	sess.UpdatedAt = parseTime(updated)
	return &sess, nil
}

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
