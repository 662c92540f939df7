package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/coachpo/perpindex/internal/infra/config"
)

func TestStoreNilPools(t *testing.T) {
	store := NewStore(nil, nil)
	if store.Primary() != nil || store.Replica() != nil {
		t.Fatalf("expected nil pool passthrough")
	}
	store.Close()

	var missing *Store
	if missing.Primary() != nil || missing.Replica() != nil {
		t.Fatalf("expected nil receiver to return nil pools")
	}
	missing.Close()
}

func TestPoolConfigAppliesSettings(t *testing.T) {
	cfg, err := PoolConfig(config.PoolConfig{
		DSN:               "postgresql://indexer@localhost:5432/perpindex",
		MaxConns:          12,
		MinConns:          3,
		MaxConnLifetime:   time.Minute,
		MaxConnIdleTime:   30 * time.Second,
		HealthCheckPeriod: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	if cfg.MaxConns != 12 || cfg.MinConns != 3 {
		t.Fatalf("unexpected conns: max=%d min=%d", cfg.MaxConns, cfg.MinConns)
	}
	if cfg.MaxConnLifetime != time.Minute || cfg.MaxConnIdleTime != 30*time.Second {
		t.Fatalf("unexpected lifetimes: %s %s", cfg.MaxConnLifetime, cfg.MaxConnIdleTime)
	}
	if cfg.ConnConfig.Database != "perpindex" {
		t.Fatalf("unexpected database %q", cfg.ConnConfig.Database)
	}
}

func TestPoolConfigRejectsBadDSN(t *testing.T) {
	if _, err := PoolConfig(config.PoolConfig{DSN: "postgres://%zz"}); err == nil {
		t.Fatalf("expected dsn parse error")
	}
}

func TestConnectGivesUpAfterTimeout(t *testing.T) {
	cfg := config.Default().Database
	cfg.Primary.DSN = "postgresql://nobody@127.0.0.1:1/perpindex?connect_timeout=1"
	cfg.ConnectTimeout = 300 * time.Millisecond

	started := time.Now()
	_, err := Connect(context.Background(), cfg, zerolog.Nop())
	if err == nil {
		t.Fatalf("expected connect error against a closed port")
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("connect retried past its timeout: %s", elapsed)
	}
}
