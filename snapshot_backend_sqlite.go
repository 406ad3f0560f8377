package chronos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackendConfig configures the SQLite snapshot backend.
type SQLiteBackendConfig struct {
	// Path to the SQLite database file.
	Path string

	// JournalMode sets the SQLite journal mode. Default: WAL.
	JournalMode string

	// BusyTimeout is the lock acquisition timeout in milliseconds.
	// Default: 5000.
	BusyTimeout int

	// MaxConnections caps the connection pool. Default: 4.
	MaxConnections int
}

// SQLiteBackend stores snapshots in a SQLite database, so they can be
// inspected and backed up with standard SQLite tooling.
type SQLiteBackend struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteBackend opens (or creates) a snapshot database at the
// configured path.
func NewSQLiteBackend(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite backend requires a path")
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5000
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 4
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d", cfg.Path, cfg.JournalMode, cfg.BusyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)

	const schema = `
		CREATE TABLE IF NOT EXISTS snapshots (
			key        TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing snapshot schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Read(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, os.ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return data, nil
}

func (s *SQLiteBackend) Write(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (key, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM snapshots WHERE substr(key, 1, length(?)) = ? ORDER BY key`,
		prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteBackend) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM snapshots WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
