// Package storage persists conversation transcripts in a local SQLite
// database under the data directory.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"lcoder/model"
)

// Session is one persisted conversation transcript.
type Session struct {
	ID        string
	Name      string
	Profile   string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []model.Message
}

// SessionStore wraps the sessions database. Safe for use from a single
// goroutine; the orchestrator serializes writes through the turn loop.
type SessionStore struct {
	db *sql.DB
}

// OpenSessionStore opens (and creates if needed) sessions.db under dataDir.
func OpenSessionStore(dataDir string) (*SessionStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "sessions.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sessions database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		profile TEXT NOT NULL,
		model TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		messages TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sessions schema: %w", err)
	}

	return &SessionStore{db: db}, nil
}

// Save inserts or updates a session. A session without an ID gets one.
func (s *SessionStore) Save(session *Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	raw, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, name, profile, model, created_at, updated_at, messages)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			profile = excluded.profile,
			model = excluded.model,
			updated_at = excluded.updated_at,
			messages = excluded.messages`,
		session.ID, session.Name, session.Profile, session.Model,
		session.CreatedAt, session.UpdatedAt, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

// Load fetches one session with its full transcript.
func (s *SessionStore) Load(id string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, name, profile, model, created_at, updated_at, messages
		FROM sessions WHERE id = ?`, id)

	var session Session
	var raw string
	err := row.Scan(&session.ID, &session.Name, &session.Profile, &session.Model,
		&session.CreatedAt, &session.UpdatedAt, &raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(raw), &session.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages for session %s: %w", id, err)
	}
	return &session, nil
}

// List returns all sessions, most recently updated first, without their
// transcripts.
func (s *SessionStore) List() ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT id, name, profile, model, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var session Session
		if err := rows.Scan(&session.ID, &session.Name, &session.Profile,
			&session.Model, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (s *SessionStore) Close() error {
	return s.db.Close()
}
