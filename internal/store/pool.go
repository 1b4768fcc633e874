// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig configures the PostgreSQL connection pool.
type PoolConfig struct {
	URL             string        `koanf:"url" json:"url,omitempty"`
	MaxConns        int32         `koanf:"max_conns" json:"max_conns,omitempty" jsonschema:"minimum=1"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime" json:"max_conn_lifetime,omitempty" jsonschema:"type=string"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" json:"connect_timeout,omitempty" jsonschema:"type=string"`
}

// DefaultPoolConfig returns pool settings suitable for a single service instance.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        10,
		MaxConnLifetime: time.Hour,
		ConnectTimeout:  30 * time.Second,
	}
}

// pinger is the readiness probe surface of *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// OpenPool creates a pool and waits until the database answers a ping,
// retrying with exponential backoff until cfg.ConnectTimeout elapses.
func OpenPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("database url is required")
	}

	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitReady(ctx, pool, cfg.ConnectTimeout); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// waitReady pings p until it succeeds or timeout elapses.
func waitReady(ctx context.Context, p pinger, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultPoolConfig().ConnectTimeout
	}
	backoff := retry.WithMaxDuration(timeout, retry.WithCappedDuration(2*time.Second, retry.NewExponential(100*time.Millisecond)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("timeout", timeout.String()).
			Wrap(err)
	}
	return nil
}

// Readiness returns a probe that reports whether p answers a ping within timeout.
func Readiness(p pinger, timeout time.Duration) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return p.Ping(ctx) == nil
	}
}
