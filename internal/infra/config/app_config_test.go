package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error when config file missing")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	cfg, err = LoadOrDefault(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, EnvDev, cfg.Environment)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, EnvDev, cfg.Environment)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, defaultDSN, cfg.Database.Primary.DSN)
	require.Nil(t, cfg.Database.Replica)
	require.Equal(t, int32(-6), cfg.Indexer.QuoteAtomicResolution)
	require.Equal(t, int64(14400), cfg.Indexer.FundingLookbackBlocks())
	require.Equal(t, 8, cfg.Indexer.SettlementWorkers)
	require.Equal(t, "perpindex", cfg.Telemetry.ServiceName)
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
environment: STAGING
logging:
  level: DEBUG
database:
  primary:
    dsn: postgresql://primary:5432/perpindex
    maxConns: 32
    maxConnLifetime: 10m
  replica:
    dsn: postgresql://replica:5432/perpindex
  runMigrations: true
  connectTimeout: 5s
indexer:
  quoteAtomicResolution: 0
  blockTime: 500ms
  fundingLookback: 1h
  fundingWindowBlocks: 1000
  settlementWorkers: 4
  replicaQueryRate: 50
telemetry:
  otlpEndpoint: http://localhost:4318
  serviceName: indexer-test
  otlpInsecure: true
  enableMetrics: true
`)
	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	require.Equal(t, EnvStaging, cfg.Environment)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, int32(32), cfg.Database.Primary.MaxConns)
	require.Equal(t, 10*time.Minute, cfg.Database.Primary.MaxConnLifetime)
	require.Equal(t, 5*time.Minute, cfg.Database.Primary.MaxConnIdleTime)
	require.NotNil(t, cfg.Database.Replica)
	require.Equal(t, "postgresql://replica:5432/perpindex", cfg.Database.Replica.DSN)
	require.Equal(t, int32(16), cfg.Database.Replica.MaxConns)
	require.True(t, cfg.Database.RunMigrations)
	require.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)

	require.Equal(t, int32(0), cfg.Indexer.QuoteAtomicResolution)
	require.Equal(t, int64(7200), cfg.Indexer.FundingLookbackBlocks())
	require.Equal(t, int64(1000), cfg.Indexer.FundingWindowBlocks)
	require.Equal(t, 4, cfg.Indexer.SettlementWorkers)
	require.InDelta(t, 50, cfg.Indexer.ReplicaQueryRate, 0)
	require.True(t, cfg.Telemetry.EnableMetrics)
}

func TestLoadDropsEmptyReplica(t *testing.T) {
	path := writeConfig(t, `
database:
  replica:
    maxConns: 4
`)
	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Nil(t, cfg.Database.Replica)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"environment":   "environment: qa\n",
		"logging level": "logging:\n  level: loud\n",
		"quote":         "indexer:\n  quoteAtomicResolution: 2\n",
		"lookback":      "indexer:\n  blockTime: 10s\n  fundingLookback: 1s\n",
		"rate":          "indexer:\n  replicaQueryRate: -1\n",
		"otlp":          "telemetry:\n  enableMetrics: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(context.Background(), writeConfig(t, body))
			if err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(context.Background(), writeConfig(t, "database: [unterminated"))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "unmarshal config"))
}
