package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session or buffer does not exist.
var ErrNotFound = errors.New("not found")

// Session is one scan run of the simulator.
type Session struct {
	SessionID  string          `json:"session_id"`
	ConfigJSON json.RawMessage `json:"config_json,omitempty"`
	Seed       int64           `json:"seed"`
	StartedAt  int64           `json:"started_at_ns"`
	EndedAt    int64           `json:"ended_at_ns,omitempty"`
	Ticks      int64           `json:"ticks"`
}

// SessionStore persists scan sessions.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// InsertSession persists s. An empty SessionID is replaced by a UUID and a
// zero StartedAt by the current time.
func (s *SessionStore) InsertSession(sess *Session) error {
	if sess.SessionID == "" {
		sess.SessionID = uuid.New().String()
	}
	if sess.StartedAt == 0 {
		sess.StartedAt = time.Now().UnixNano()
	}
	var cfg interface{}
	if len(sess.ConfigJSON) > 0 {
		cfg = string(sess.ConfigJSON)
	}

	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO scan_sessions (session_id, config_json, seed, started_at_ns, ticks)
			VALUES (?, ?, ?, ?, ?)`,
			sess.SessionID, cfg, sess.Seed, sess.StartedAt, sess.Ticks,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// EndSession records the end time and tick count of a session.
func (s *SessionStore) EndSession(sessionID string, ticks int64, endedAt time.Time) error {
	var res sql.Result
	err := retryOnBusy(func() error {
		var err error
		res, err = s.db.Exec(`
			UPDATE scan_sessions SET ended_at_ns = ?, ticks = ? WHERE session_id = ?`,
			endedAt.UnixNano(), ticks, sessionID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// GetSession returns a single session by ID.
func (s *SessionStore) GetSession(sessionID string) (*Session, error) {
	var (
		sess    Session
		cfg     sql.NullString
		endedAt sql.NullInt64
	)
	err := s.db.QueryRow(`
		SELECT session_id, config_json, seed, started_at_ns, ended_at_ns, ticks
		FROM scan_sessions WHERE session_id = ?`, sessionID,
	).Scan(&sess.SessionID, &cfg, &sess.Seed, &sess.StartedAt, &endedAt, &sess.Ticks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if cfg.Valid {
		sess.ConfigJSON = json.RawMessage(cfg.String)
	}
	if endedAt.Valid {
		sess.EndedAt = endedAt.Int64
	}
	return &sess, nil
}
