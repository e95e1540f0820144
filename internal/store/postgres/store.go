// Package postgres provides the Postgres-backed city store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/geoimport/internal/core"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "cities"

// Config controls the Postgres connection pool used for imports.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Conn is the part of *pgx.Conn one import session uses.
// pgxmock.PgxConnIface satisfies it.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Deallocate(ctx context.Context, name string) error
}

// acquireFunc hands out a connection for one session and a func to give it back.
type acquireFunc func(ctx context.Context) (Conn, func(), error)

// Store writes city records into one Postgres table.
type Store struct {
	acquire   acquireFunc
	close     func()
	table     string
	insertSQL string
}

// Open creates a pool from cfg and returns a Store using it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.close = pool.Close
	return s, nil
}

// NewWithPool constructs a store over an existing pool. Each import runs on
// its own pooled connection. The caller keeps ownership of the pool.
func NewWithPool(pool *pgxpool.Pool, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newStore(func(ctx context.Context) (Conn, func(), error) {
		c, err := pool.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return c.Conn(), c.Release, nil
	}, table)
}

// NewWithConn constructs a store over a single connection (primarily for
// testing). Imports through it must not run concurrently.
func NewWithConn(conn Conn, table string) (*Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	return newStore(func(context.Context) (Conn, func(), error) {
		return conn, func() {}, nil
	}, table)
}

func newStore(acquire acquireFunc, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{
		acquire:   acquire,
		table:     table,
		insertSQL: fmt.Sprintf("INSERT INTO %s (id, name, country, latitude, longitude) VALUES ($1, $2, $3, $4, $5)", table),
	}, nil
}

// Table returns the target table name.
func (s *Store) Table() string { return s.table }

// Close releases the pool if the store opened it.
func (s *Store) Close() {
	if s == nil || s.close == nil {
		return
	}
	s.close()
}

// EnsureSchema creates the target table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	conn, release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer release()

	_, err = conn.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id        BIGINT PRIMARY KEY,
	name      TEXT NOT NULL,
	country   TEXT NOT NULL,
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Count returns the number of rows in the target table.
func (s *Store) Count(ctx context.Context) (int64, error) {
	conn, release, err := s.acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer release()

	var n int64
	if err := conn.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	return n, nil
}

// Begin implements core.Store. The session holds one connection until the
// transaction ends.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	conn, release, err := s.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	pgxTx, err := conn.Begin(ctx)
	if err != nil {
		release()
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &tx{
		tx:        pgxTx,
		conn:      conn,
		release:   release,
		insertSQL: s.insertSQL,
	}, nil
}

type tx struct {
	tx        pgx.Tx
	conn      Conn
	release   func()
	insertSQL string
	done      bool
}

func (t *tx) PrepareWriter(ctx context.Context) (core.RecordWriter, error) {
	if _, err := t.tx.Prepare(ctx, stmtName, t.insertSQL); err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &writer{tx: t.tx, conn: t.conn}, nil
}

func (t *tx) Commit(ctx context.Context) error {
	defer t.finish()
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	defer t.finish()
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (t *tx) finish() {
	if t.done {
		return
	}
	t.done = true
	t.release()
}
