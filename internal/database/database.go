// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Options tune the pool and the startup retry loop.
type Options struct {
	MaxConns int32
	Attempts int
	Backoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = 20
	}
	if o.Attempts <= 0 {
		o.Attempts = 5
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	return o
}

// NewPool creates and validates a pgxpool connection pool.
// It retries a few times to accommodate a database container that is still starting.
func NewPool(ctx context.Context, dsn string, opts Options, log zerolog.Logger) (*pgxpool.Pool, error) {
	opts = opts.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = opts.MaxConns
	poolCfg.MinConns = 2
	if poolCfg.MinConns > poolCfg.MaxConns {
		poolCfg.MinConns = poolCfg.MaxConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		log.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", opts.Attempts).
			Dur("backoff", opts.Backoff).
			Msg("db connect failed, retrying")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to postgres: %w", ctx.Err())
		case <-time.After(opts.Backoff):
		}
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}
