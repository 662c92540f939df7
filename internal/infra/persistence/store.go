// Package persistence owns the PostgreSQL pools shared by the repositories: a primary
// for writes and an optional read replica for aggregate reads.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/coachpo/perpindex/internal/infra/config"
)

const (
	primaryPoolName = "primary"
	replicaPoolName = "replica"
)

// Store holds the primary pool and, when configured, a separate replica pool.
type Store struct {
	primary *pgxpool.Pool
	replica *pgxpool.Pool
}

// NewStore wraps existing pools. A nil replica reads from primary.
func NewStore(primary, replica *pgxpool.Pool) *Store {
	return &Store{primary: primary, replica: replica}
}

// Primary returns the write pool.
func (s *Store) Primary() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.primary
}

// Replica returns the read pool, falling back to the primary.
func (s *Store) Replica() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	if s.replica != nil {
		return s.replica
	}
	return s.primary
}

// Close releases both pools.
func (s *Store) Close() {
	if s == nil {
		return
	}
	if s.replica != nil {
		s.replica.Close()
	}
	if s.primary != nil {
		s.primary.Close()
	}
}

// Connect opens the configured pools and waits for each to answer a ping, retrying with
// exponential backoff until cfg.ConnectTimeout elapses.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	primary, err := openPool(ctx, cfg.Primary, primaryPoolName, logger)
	if err != nil {
		return nil, err
	}
	store := &Store{primary: primary}
	if cfg.Replica != nil {
		replica, err := openPool(ctx, *cfg.Replica, replicaPoolName, logger)
		if err != nil {
			primary.Close()
			return nil, err
		}
		store.replica = replica
	}
	return store, nil
}

// PoolConfig translates pool settings into a pgxpool configuration.
func PoolConfig(cfg config.PoolConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
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
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	return poolCfg, nil
}

func openPool(ctx context.Context, cfg config.PoolConfig, name string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s pool: %w", name, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%s pool: create: %w", name, err)
	}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = 5 * time.Second
	for attempt := 1; ; attempt++ {
		pingErr := pool.Ping(ctx)
		if pingErr == nil {
			break
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = backoffCfg.MaxInterval
		}
		logger.Warn().
			Err(pingErr).
			Str("db_pool", name).
			Int("attempt", attempt).
			Dur("retry_in", sleep).
			Msg("database not ready")
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, fmt.Errorf("%s pool: ping: %w", name, errors.Join(pingErr, ctx.Err()))
		case <-time.After(sleep):
		}
	}

	ObservePoolMetrics(pool, name)
	logger.Info().Str("db_pool", name).Int32("max_conns", poolCfg.MaxConns).Msg("database pool ready")
	return pool, nil
}
