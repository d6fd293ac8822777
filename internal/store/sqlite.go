package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/crewsync/internal/logging"
)

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

// SQLiteStore implements Blobs using a local SQLite database.
type SQLiteStore struct {
	db     *sqlx.DB
	writer string
	memory bool
	logger logging.Logger

	mu     sync.Mutex
	subs   map[string]map[int]func(Change)
	nextID int
	cursor int64
}

// connPragmas apply to every pooled connection: a busy handler so writers
// wait for the lock, and WAL so readers do not block them.
const connPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

// dsn builds the connection string for dbPath.
func dsn(dbPath string) string {
	if dbPath == memoryPath {
		return memoryPath
	}
	return "file:" + dbPath + "?" + connPragmas
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithWatchLogger sets the logger Watch reports read failures to.
func WithWatchLogger(l logging.Logger) SQLiteOption {
	return func(s *SQLiteStore) { s.logger = l }
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations. Each call
// yields a distinct writer identity, even for the same file.
func NewSQLiteStore(dbPath string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	memory := dbPath == memoryPath
	if memory {
		// Every connection to :memory: is its own database, so the pool
		// holds exactly one and needs no busy handler.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", dbPath, err)
	}

	s := &SQLiteStore{
		db:     db,
		writer: uuid.NewString(),
		memory: memory,
		logger: logging.Discard(),
		subs:   make(map[string]map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	// Writes that happened before this instance opened are not changes.
	if err := db.Get(&s.cursor, "SELECT COALESCE(MAX(revision), 0) FROM blobs"); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading latest revision: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Writer returns the identity stamped on this instance's writes.
func (s *SQLiteStore) Writer() string {
	return s.writer
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Get returns the blob stored under key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, "SELECT value FROM blobs WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting blob %s: %w", key, err)
	}
	return value, nil
}

// Put stores value under key, stamped with this instance's writer ID and
// the next store-wide revision.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var revision int64
	err = tx.GetContext(ctx, &revision,
		"UPDATE blob_sequence SET value = value + 1 WHERE id = 1 RETURNING value",
	)
	if err != nil {
		return fmt.Errorf("allocating revision for %s: %w", key, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO blobs (key, value, writer, revision, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			writer = excluded.writer,
			revision = excluded.revision,
			updated_at = excluded.updated_at`,
		key, value, s.writer, revision, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("putting blob %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing blob %s: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting blob %s: %w", key, err)
	}
	return nil
}

// Subscribe registers fn for writes to key by other instances. Delivery
// only happens while Watch runs.
func (s *SQLiteStore) Subscribe(key string, fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func(Change))
	}
	id := s.nextID
	s.nextID++
	s.subs[key][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], id)
		if len(s.subs[key]) == 0 {
			delete(s.subs, key)
		}
	}
}
