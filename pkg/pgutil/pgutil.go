// Package pgutil opens pooled PostgreSQL connections through lib/pq.
package pgutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// ErrNoDSN is returned when no connection string is configured.
var ErrNoDSN = errors.New("pgutil: empty DSN")

// PoolOpts sizes the connection pool.
type PoolOpts struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// DefaultPool suits a read-mostly API process.
var DefaultPool = PoolOpts{
	MaxOpen:     10,
	MaxIdle:     5,
	MaxLifetime: 5 * time.Minute,
}

func (o PoolOpts) withDefaults() PoolOpts {
	if o.MaxOpen <= 0 {
		o.MaxOpen = DefaultPool.MaxOpen
	}
	if o.MaxIdle <= 0 {
		o.MaxIdle = DefaultPool.MaxIdle
	}
	if o.MaxIdle > o.MaxOpen {
		o.MaxIdle = o.MaxOpen
	}
	if o.MaxLifetime <= 0 {
		o.MaxLifetime = DefaultPool.MaxLifetime
	}
	return o
}

// Open connects to dsn and pings the server.
func Open(ctx context.Context, dsn string, opts PoolOpts) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgutil: open: %w", err)
	}

	opts = opts.withDefaults()
	db.SetMaxOpenConns(opts.MaxOpen)
	db.SetMaxIdleConns(opts.MaxIdle)
	db.SetConnMaxLifetime(opts.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgutil: ping: %w", err)
	}
	return db, nil
}

// InTx runs f inside a transaction, committing on success and rolling back
// on error.
func InTx(ctx context.Context, db *sql.DB, f func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgutil: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = f(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("pgutil: commit: %w", err)
	}
	return nil
}
