package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"poolstats/internal/cache"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Store persists cache entries in SQLite so that warm pages survive a restart.
// It satisfies cache.Store.
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite store and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// migrate runs database schema migrations.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			fetched_at INTEGER NOT NULL,
			payload TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	log.Info().Msg("Database migrations completed")
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves the entry stored under key.
func (s *Store) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var (
		fetchedAt int64
		payload   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at, payload FROM cache_entries WHERE key = ?`, key,
	).Scan(&fetchedAt, &payload)
	if err == sql.ErrNoRows {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("querying entry: %w", err)
	}

	entry := cache.Entry{Key: key, FetchedAt: fetchedAt}
	if err := json.Unmarshal([]byte(payload), &entry.Records); err != nil {
		return cache.Entry{}, false, fmt.Errorf("decoding payload: %w", err)
	}
	return entry, true, nil
}

// Put inserts or replaces the entry for entry.Key.
func (s *Store) Put(ctx context.Context, entry cache.Entry) error {
	payload, err := json.Marshal(entry.Records)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	query := `INSERT INTO cache_entries (key, fetched_at, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			payload = excluded.payload,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query, entry.Key, entry.FetchedAt, string(payload), time.Now())
	return err
}

// EntryCount returns the number of stored keys.
func (s *Store) EntryCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&count)
	return count, err
}
