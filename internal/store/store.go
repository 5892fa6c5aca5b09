package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/daylinehq/dayline/backend/internal/model/chat"
	"github.com/daylinehq/dayline/backend/internal/model/timeline"
)

// ErrSessionNotFound is returned for lookups against unknown sessions.
var ErrSessionNotFound = errors.New("session not found")

// Store wraps the SQLite database holding sessions, messages, snapshots and
// timeline entries. Message ids are the auto-increment row ids; they are the
// ordering primitive the long-poll machinery relies on.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (session_id) REFERENCES chat_sessions(session_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id, id);

CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	screenshot_path TEXT NOT NULL,
	caption TEXT NOT NULL,
	full_description TEXT NOT NULL,
	changes TEXT NOT NULL,
	facts TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id, id);

CREATE TABLE IF NOT EXISTS timeline_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	text TEXT NOT NULL,
	caption TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_timeline_session ON timeline_entries(session_id, id);
`

// Open creates the database file (and its parent directory) if needed and
// applies the schema. The pool is limited to a single connection; SQLite
// serializes writers anyway and this avoids lock errors under concurrent
// requests.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession records a new session under the given identifier.
func (s *Store) CreateSession(ctx context.Context, sessionID string) (chat.Session, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (session_id, created_at, updated_at) VALUES (?, ?, ?)`,
		sessionID, formatTime(now), formatTime(now),
	)
	if err != nil {
		return chat.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return chat.Session{ID: sessionID, CreatedAt: now, UpdatedAt: now}, nil
}

// SessionExists reports whether the session id is known.
func (s *Store) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chat_sessions WHERE session_id = ?`, sessionID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query session: %w", err)
	}
	return true, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]chat.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, created_at, updated_at FROM chat_sessions ORDER BY updated_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]chat.Session, 0, 8)
	for rows.Next() {
		var (
			session            chat.Session
			createdAt, updated string
		)
		if err := rows.Scan(&session.ID, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.CreatedAt = parseTime(createdAt)
		session.UpdatedAt = parseTime(updated)
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// InsertMessage appends a message to the session and returns its id. The
// session's updated_at is touched in the same call, matching how the UI sorts
// the session list.
func (s *Store) InsertMessage(ctx context.Context, sessionID, role, content string) (int64, error) {
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, role, content, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message id: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE session_id = ?`, now, sessionID,
	); err != nil {
		return 0, fmt.Errorf("touch session: %w", err)
	}
	return id, nil
}

// MessagesAfter returns the session's messages with id greater than afterID,
// in ascending id order. afterID = 0 returns the full history.
func (s *Store) MessagesAfter(ctx context.Context, sessionID string, afterID int64) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at
		 FROM chat_messages
		 WHERE session_id = ? AND id > ?
		 ORDER BY id ASC`,
		sessionID, afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MessageHistory returns up to limit of the session's oldest messages in
// ascending id order.
func (s *Store) MessageHistory(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at
		 FROM chat_messages
		 WHERE session_id = ?
		 ORDER BY id ASC
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]chat.Message, error) {
	messages := make([]chat.Message, 0, 16)
	for rows.Next() {
		var (
			msg       chat.Message
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = parseTime(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// InsertSnapshot stores a summarized screenshot. Changes and facts are kept
// as JSON arrays in the row.
func (s *Store) InsertSnapshot(ctx context.Context, snap timeline.Snapshot) (int64, error) {
	changes, err := json.Marshal(emptyIfNil(snap.Changes))
	if err != nil {
		return 0, fmt.Errorf("encode changes: %w", err)
	}
	facts, err := json.Marshal(emptyIfNil(snap.Facts))
	if err != nil {
		return 0, fmt.Errorf("encode facts: %w", err)
	}

	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, screenshot_path, caption, full_description, changes, facts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, snap.ScreenshotPath, snap.Caption, snap.FullDescription,
		string(changes), string(facts), formatTime(createdAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

// RecentSnapshots returns up to limit of the session's newest snapshots,
// newest first.
func (s *Store) RecentSnapshots(ctx context.Context, sessionID string, limit int) ([]timeline.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, screenshot_path, caption, full_description, changes, facts, created_at
		 FROM snapshots
		 WHERE session_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]timeline.Snapshot, 0, limit)
	for rows.Next() {
		var (
			snap           timeline.Snapshot
			changes, facts string
			createdAt      string
		)
		if err := rows.Scan(&snap.ID, &snap.SessionID, &snap.ScreenshotPath, &snap.Caption,
			&snap.FullDescription, &changes, &facts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(changes), &snap.Changes); err != nil {
			return nil, fmt.Errorf("decode changes: %w", err)
		}
		if err := json.Unmarshal([]byte(facts), &snap.Facts); err != nil {
			return nil, fmt.Errorf("decode facts: %w", err)
		}
		snap.CreatedAt = parseTime(createdAt)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// LastSnapshot returns the session's newest snapshot, or nil when there is
// none yet.
func (s *Store) LastSnapshot(ctx context.Context, sessionID string) (*timeline.Snapshot, error) {
	snaps, err := s.RecentSnapshots(ctx, sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// InsertTimelineEntry appends a line to the session's activity timeline.
func (s *Store) InsertTimelineEntry(ctx context.Context, entry timeline.Entry) (int64, error) {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = createdAt
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO timeline_entries (session_id, text, caption, timestamp, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.SessionID, entry.Text, entry.Caption, formatTime(ts), formatTime(createdAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert timeline entry: %w", err)
	}
	return res.LastInsertId()
}

// TimelineEntries returns the session's timeline in insertion order. A limit
// of 0 means no limit.
func (s *Store) TimelineEntries(ctx context.Context, sessionID string, limit int) ([]timeline.Entry, error) {
	query := `SELECT id, session_id, text, caption, timestamp, created_at
		 FROM timeline_entries
		 WHERE session_id = ?
		 ORDER BY id ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	entries := make([]timeline.Entry, 0, 16)
	for rows.Next() {
		var (
			entry         timeline.Entry
			ts, createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Text, &entry.Caption, &ts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		entry.Timestamp = parseTime(ts)
		entry.CreatedAt = parseTime(createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RecentTimelineEntries returns up to limit of the session's newest entries,
// newest first.
func (s *Store) RecentTimelineEntries(ctx context.Context, sessionID string, limit int) ([]timeline.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, text, caption, timestamp, created_at
		 FROM timeline_entries
		 WHERE session_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	entries := make([]timeline.Entry, 0, limit)
	for rows.Next() {
		var (
			entry         timeline.Entry
			ts, createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Text, &entry.Caption, &ts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		entry.Timestamp = parseTime(ts)
		entry.CreatedAt = parseTime(createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func emptyIfNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

// timeLayout keeps a fixed number of fractional digits so the stored strings
// sort lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
