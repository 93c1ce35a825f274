// Package repository persists catalog, ranking and usage data in SQLite.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/arcade/pkg/logger"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	defaultBusyTimeout  = 5 * time.Second
	defaultMaxOpenConns = 8
	defaultMaxIdleConns = 4
)

// DB owns the SQLite handle shared by every repository.
type DB struct {
	conn        *sql.DB
	path        string
	busyTimeout time.Duration
	maxOpen     int
	log         logger.Logger
}

// Option configures Open.
type Option func(*DB)

// WithBusyTimeout sets how long a writer waits for the database lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.busyTimeout = d
		}
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(db *DB) {
		if n > 0 {
			db.maxOpen = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.log = l
		}
	}
}

// Open migrates the database at path to the latest schema and returns a
// pooled handle. Write transactions begin IMMEDIATE, so every transaction
// that writes holds the database write lock from its first statement.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: database path is required", ErrOpen)
	}

	db := &DB{
		path:        filepath.Clean(path),
		busyTimeout: defaultBusyTimeout,
		maxOpen:     defaultMaxOpenConns,
		log:         logger.Get().Named("repository"),
	}
	for _, opt := range opts {
		opt(db)
	}

	if dir := filepath.Dir(db.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create directory: %w", ErrOpen, err)
		}
	}

	if err := migrateUp(db.path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	conn, err := sql.Open("sqlite", db.dsn())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	conn.SetMaxOpenConns(db.maxOpen)
	conn.SetMaxIdleConns(min(defaultMaxIdleConns, db.maxOpen))
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrOpen, err)
	}
	db.conn = conn

	db.log.Info(ctx, "database ready", logger.String("path", db.path))
	return db, nil
}

func (db *DB) dsn() string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		db.path, db.busyTimeout.Milliseconds(),
	)
}

// Close releases the pool. Safe on a nil DB.
func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// WithTx runs fn in a transaction, committing on success and rolling back on
// error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("commit transaction: %w", cErr)
		}
	}()

	return fn(tx)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
