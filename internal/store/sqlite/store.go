// Package sqlite provides a city store backed by a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/geoimport/internal/core"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	// DefaultTable is used when Config.Table is empty.
	DefaultTable = "cities"

	// DefaultBusyTimeout bounds how long a writer waits on a locked file.
	DefaultBusyTimeout = 5 * time.Second
)

// Config describes the database file and target table.
type Config struct {
	Path        string
	Table       string
	BusyTimeout time.Duration
	WAL         bool
}

// Store writes city records into one table of a SQLite file.
type Store struct {
	db        *sql.DB
	table     string
	insertSQL string
}

// Open opens (creating if needed) the database file at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}

	db, err := sql.Open("sqlite", dsn(cfg.Path, busy, cfg.WAL))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}
	// One writer per file; the import transaction owns the only connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}

	return &Store{
		db:        db,
		table:     table,
		insertSQL: fmt.Sprintf("INSERT INTO %s (id, name, country, latitude, longitude) VALUES (?, ?, ?, ?, ?)", table),
	}, nil
}

// dsn applies pragmas through the connection string so they survive
// reconnects by database/sql.
func dsn(path string, busy time.Duration, wal bool) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	if wal {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + path + "?" + q.Encode()
}

// Table returns the target table name.
func (s *Store) Table() string { return s.table }

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the target table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id        INTEGER PRIMARY KEY,
	name      TEXT NOT NULL,
	country   TEXT NOT NULL,
	latitude  REAL NOT NULL,
	longitude REAL NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Count returns the number of rows in the target table.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	return n, nil
}

// Begin implements core.Store.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &tx{tx: sqlTx, insertSQL: s.insertSQL}, nil
}

type tx struct {
	tx        *sql.Tx
	insertSQL string
}

func (t *tx) PrepareWriter(ctx context.Context) (core.RecordWriter, error) {
	stmt, err := t.tx.PrepareContext(ctx, t.insertSQL)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &writer{stmt: stmt}, nil
}

func (t *tx) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
