// Package store is a SQLite-backed docstore.Store. Several daemons can share
// one database file: change feeds are produced by polling, so writes made by
// another process show up like local ones.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often change feeds look for new writes.
const DefaultPollInterval = 500 * time.Millisecond

// DB wraps a SQLite database connection for the shared document store.
type DB struct {
	*sql.DB
	pollInterval time.Duration
	logger       *zap.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithPollInterval sets the change-feed polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.pollInterval = d
		}
	}
}

// WithLogger sets the logger used by change feeds.
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string, opts ...Option) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	out := &DB{DB: db, pollInterval: DefaultPollInterval, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(out)
	}
	return out, nil
}
