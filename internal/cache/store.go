// Package cache is the persistent TTL key-value store behind the
// recommendation and analytics namespaces. Entries are msgpack blobs in a
// single sqlite table; expiry is an absolute unix timestamp checked on read
// and swept by a maintenance job.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// Categories tag entries for observability and targeted invalidation.
const (
	CategoryRecommendation = "recommendation"
	CategoryAnalytics      = "analytics"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	category   TEXT NOT NULL,
	payload    BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
CREATE INDEX IF NOT EXISTS idx_cache_category ON cache_entries(category);
`

// Store is the sqlite-backed TTL cache. Writes are atomic per key
// (INSERT OR REPLACE); reads of expired entries behave as misses.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time // injectable for tests
}

// NewStore opens (or creates) the cache database at path.
func NewStore(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &Store{
		db:  db,
		log: log.With().Str("module", "cache").Logger(),
		now: time.Now,
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores value under key with the given TTL, overwriting any previous
// entry.
func (s *Store) Put(key, category string, value interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache payload: %w", err)
	}
	expiresAt := s.now().Add(ttl).Unix()
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (key, category, payload, expires_at) VALUES (?, ?, ?, ?)`,
		key, category, payload, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Get loads the entry for key into dest. Returns false on miss or expiry.
// A payload that fails to decode is treated as a miss; the row is removed so
// the next write repairs it.
func (s *Store) Get(key string, dest interface{}) (bool, error) {
	var payload []byte
	err := s.db.QueryRow(
		`SELECT payload FROM cache_entries WHERE key = ? AND expires_at > ?`,
		key, s.now().Unix(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cache entry: %w", err)
	}

	if err := msgpack.Unmarshal(payload, dest); err != nil {
		s.log.Warn().Str("key", key).Err(err).Msg("Corrupt cache payload, treating as miss")
		s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
		return false, nil
	}
	return true, nil
}

// InvalidateFingerprint removes every entry whose key mentions the given
// portfolio fingerprint.
func (s *Store) InvalidateFingerprint(fp string) error {
	if fp == "" {
		return nil
	}
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE key LIKE ?`, "%"+fp+"%")
	if err != nil {
		return fmt.Errorf("invalidate fingerprint: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debug().Str("fingerprint", fp).Int64("removed", n).Msg("Invalidated cache entries")
	}
	return nil
}

// InvalidateAll removes every cache entry.
func (s *Store) InvalidateAll() error {
	_, err := s.db.Exec(`DELETE FROM cache_entries`)
	if err != nil {
		return fmt.Errorf("invalidate all: %w", err)
	}
	return nil
}

// SweepExpired removes entries past their expiry and returns the count.
func (s *Store) SweepExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of live entries, for health reporting.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM cache_entries WHERE expires_at > ?`, s.now().Unix(),
	).Scan(&n)
	return n, err
}
