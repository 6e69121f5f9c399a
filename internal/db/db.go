// Package db wraps the pgx pool behind the Postgres snipe store.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/resy-sniper/internal/logger"
)

// Options tune the pool and the initial connect. Zero values pick defaults.
type Options struct {
	// MaxConns caps the pool. The store issues short single statements, so a
	// handful is plenty.
	MaxConns int32
	// ConnectTimeout bounds how long Open keeps retrying the first ping, so a
	// server started alongside its database waits for it.
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	Log            logger.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = 4
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 15 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	if o.Log == nil {
		o.Log = logger.Nop()
	}
	return o
}

type DB struct {
	pool *pgxpool.Pool
}

// Open builds the pool and waits until the database answers a ping, backing
// off exponentially up to 5s between attempts.
func Open(ctx context.Context, databaseURL string, opts Options) (*DB, error) {
	opts = opts.withDefaults()

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = opts.MaxConns
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d := &DB{pool: pool}

	deadline := time.Now().Add(opts.ConnectTimeout)
	wait := opts.RetryInterval
	for attempt := 1; ; attempt++ {
		err := d.Ping(ctx)
		if err == nil {
			if attempt > 1 {
				opts.Log.Warn("connected to postgres after retry", logger.Int("attempts", attempt))
			}
			return d, nil
		}
		if time.Now().Add(wait).After(deadline) {
			pool.Close()
			return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", attempt, err)
		}
		opts.Log.Debug("postgres not ready, retrying", logger.Int("attempt", attempt), logger.Error(err))

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, 5*time.Second)
	}
}

func (d *DB) Close() {
	d.pool.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return d.pool.Ping(ctx)
}

func (d *DB) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := d.ExecCount(ctx, sql, args...)
	return err
}

// ExecCount runs sql and reports how many rows it touched.
func (d *DB) ExecCount(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := d.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d *DB) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return d.pool.QueryRow(ctx, sql, args...)
}

func (d *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return d.pool.Query(ctx, sql, args...)
}

// Row matches migrate.Row so *DB satisfies migrate.Execer.
type Row = interface {
	Scan(dest ...any) error
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
