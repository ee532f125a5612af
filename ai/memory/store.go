// Package memory persists user facts across conversations as a key-value
// store with dot-notation keys ("preferences.language", "facts.birthday").
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

// Entry is one remembered fact.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistent memory backed by a local SQLite file.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed initializes) the memory database at dsn.
//
// Notes:
//   - When using the `modernc.org/sqlite` driver, each pragma must be prefixed
//     with `_pragma=`.
//   - WAL journal mode with a single pooled connection is the sweet spot for a
//     local single-user file.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memory (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_ts INTEGER NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize memory schema")
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ValidKey reports whether key is well-formed dot notation.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Read returns the value for key. A missing key is an error, not an empty
// value, so callers can tell "never remembered" from "remembered empty".
func (s *Store) Read(ctx context.Context, key string) (string, error) {
	if !ValidKey(key) {
		return "", errors.Errorf("invalid memory key: %s", key)
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM memory WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errors.Errorf("no memory for key: %s", key)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read memory key %s", key)
	}
	return value, nil
}

// Write stores value under key, overwriting any previous value.
func (s *Store) Write(ctx context.Context, key, value string) error {
	if !ValidKey(key) {
		return errors.Errorf("invalid memory key: %s", key)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory (key, value, updated_ts) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts
	`, key, value, time.Now().Unix())
	if err != nil {
		return errors.Wrapf(err, "failed to write memory key %s", key)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if !ValidKey(key) {
		return errors.Errorf("invalid memory key: %s", key)
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM memory WHERE key = ?", key)
	if err != nil {
		return errors.Wrapf(err, "failed to delete memory key %s", key)
	}
	return nil
}

// List returns all entries whose key starts with prefix (every entry when
// prefix is empty), sorted by key.
func (s *Store) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, updated_ts FROM memory WHERE key LIKE ? ORDER BY key",
		prefix+"%")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memory")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var ts int64
		if err := rows.Scan(&entry.Key, &entry.Value, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory row")
		}
		entry.UpdatedAt = time.Unix(ts, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ContextSummary renders the remembered facts as a compact plain-text block
// for prompt injection. Empty string when nothing is remembered, so callers
// can skip the injection entirely.
func (s *Store) ContextSummary(ctx context.Context) string {
	entries, err := s.List(ctx, "")
	if err != nil || len(entries) == 0 {
		return ""
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	var b strings.Builder
	b.WriteString("Known facts about the user:")
	for _, entry := range entries {
		fmt.Fprintf(&b, "\n- %s: %s", entry.Key, entry.Value)
	}
	return b.String()
}
