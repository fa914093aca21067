// Package store provides the SQLite-backed log of SMS exchanges.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when no message has the given ID.
var ErrNotFound = errors.New("message not found")

// Store provides SQLite-backed storage for the message log.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open opens or creates a SQLite database at the given path.
// If the path is empty, it defaults to ~/.config/bae/messages.db.
func Open(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		path = filepath.Join(home, ".config", "bae", "messages.db")
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	// Open with WAL mode and other optimizations
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Don't close idle connections

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Migrate applies all pending database migrations.
func (s *Store) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ApplyMigrations(s.db)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record inserts m, assigning ID and CreatedAt when unset.
func (s *Store) Record(m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO messages (id, message_sid, from_number, to_number, body, reply, status, error,
			provider, model, latency_ms, segments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, nullString(m.MessageSID), m.From, m.To, m.Body, m.Reply, m.Status, nullString(m.Error),
		nullString(m.Provider), nullString(m.Model), m.LatencyMS, m.Segments, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// SetStatus updates the delivery status of a recorded message.
func (s *Store) SetStatus(id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE messages SET status = ?, error = ? WHERE id = ?`, status, nullString(errMsg), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update status: %w", ErrNotFound)
	}
	return nil
}

// List returns messages newest first.
func (s *Store) List(f Filter) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f.Limit <= 0 {
		f.Limit = 50
	}

	query := `
		SELECT id, COALESCE(message_sid, ''), from_number, to_number, body, reply, status,
			COALESCE(error, ''), COALESCE(provider, ''), COALESCE(model, ''), latency_ms, segments, created_at
		FROM messages`
	var args []interface{}
	if f.From != "" {
		query += " WHERE from_number = ?"
		args = append(args, f.From)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.MessageSID, &m.From, &m.To, &m.Body, &m.Reply, &m.Status,
			&m.Error, &m.Provider, &m.Model, &m.LatencyMS, &m.Segments, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Stats aggregates the whole log.
func (s *Store) Stats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &Stats{}
	err := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT from_number),
			COALESCE(AVG(latency_ms), 0)
		FROM messages`, StatusFailed, StatusRateLimited,
	).Scan(&st.Total, &st.Failed, &st.RateLimited, &st.DistinctSenders, &st.AverageLatencyMS)
	if err != nil {
		return nil, fmt.Errorf("message stats: %w", err)
	}
	return st, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
