// Command ledgerctl queries and maintains the derived ledger state.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/coachpo/perpindex/internal/funding"
	"github.com/coachpo/perpindex/internal/infra/config"
	"github.com/coachpo/perpindex/internal/infra/persistence"
	"github.com/coachpo/perpindex/internal/infra/persistence/migrations"
	"github.com/coachpo/perpindex/internal/infra/persistence/postgres"
	"github.com/coachpo/perpindex/internal/infra/telemetry"
	"github.com/coachpo/perpindex/internal/numeric"
	"github.com/coachpo/perpindex/internal/observability"
	"github.com/coachpo/perpindex/internal/settlement"
	"github.com/coachpo/perpindex/internal/translator"
)

const (
	defaultConfigPath = "config/perpindex.yaml"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("ledgerctl", flag.ContinueOnError)
	cfgPath := flags.String("config", "", fmt.Sprintf("Path to configuration file (default: %s)", defaultConfigPath))
	if err := flags.Parse(args); err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) == 0 {
		return errors.New("command required: " + commandNames())
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (expected one of %s)", rest[0], commandNames())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadOrDefault(ctx, resolveConfigPath(*cfgPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger("ledgerctl", cfg.Logging.Level)
	logger.Debug().Str("environment", string(cfg.Environment)).Str("command", rest[0]).Msg("configuration initialised")

	provider, err := initTelemetry(ctx, logger, cfg)
	if err != nil {
		return err
	}

	if cfg.Database.RunMigrations || rest[0] == "migrate" {
		if err := migrations.Apply(ctx, cfg.Database.Primary.DSN, "", logger); err != nil {
			return shutdown(logger, provider, nil, err)
		}
	}

	base, err := persistence.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return shutdown(logger, provider, nil, err)
	}
	services := newApp(postgres.New(base), cfg, logger)

	result, err := cmd.run(ctx, services, rest[1:])
	if err == nil && result != nil {
		err = writeJSON(out, result)
	}
	return shutdown(logger, provider, base, err)
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("PERPINDEX_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}

func initTelemetry(ctx context.Context, logger zerolog.Logger, cfg config.AppConfig) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	if cfg.Telemetry.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.Telemetry.ServiceName
	}
	telemetryCfg.Environment = string(cfg.Environment)
	telemetryCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	telemetryCfg.EnableMetrics = cfg.Telemetry.EnableMetrics

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if telemetryCfg.Enabled && telemetryCfg.EnableMetrics {
		logger.Info().Str("endpoint", telemetryCfg.OTLPEndpoint).Str("service", telemetryCfg.ServiceName).Msg("telemetry initialized")
	} else {
		logger.Debug().Msg("telemetry disabled")
	}
	return provider, nil
}

// shutdown releases the pools and flushes telemetry, joining every failure with cause.
func shutdown(logger zerolog.Logger, provider *telemetry.Provider, base *persistence.Store, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	base.Close()
	var shutdownErr error
	if provider != nil {
		shutdownErr = provider.Shutdown(ctx)
	}
	return observability.AggregateErrors(logger, "ledgerctl", []error{cause, shutdownErr})
}

// app carries the services every command can reach.
type app struct {
	store      *postgres.Store
	funding    *funding.Builder
	settlement *settlement.Engine
	translator *translator.Translator
	logger     zerolog.Logger
}

func newApp(store *postgres.Store, cfg config.AppConfig, logger zerolog.Logger) *app {
	builder := funding.NewBuilder(store.Funding, funding.Config{
		LookbackBlocks: cfg.Indexer.FundingLookbackBlocks(),
		WindowBlocks:   cfg.Indexer.FundingWindowBlocks,
		Workers:        cfg.Indexer.SettlementWorkers,
	}, logger.With().Str("subsystem", "funding").Logger())
	engine := settlement.NewEngine(store.Fills, settlement.Options{
		Workers:   cfg.Indexer.SettlementWorkers,
		QueryRate: cfg.Indexer.ReplicaQueryRate,
		Logger:    logger.With().Str("subsystem", "settlement").Logger(),
		Funding:   builder,
	})
	conv := numeric.NewConverter(numeric.Config{QuoteAtomicResolution: cfg.Indexer.QuoteAtomicResolution})
	return &app{
		store:      store,
		funding:    builder,
		settlement: engine,
		translator: translator.New(store.Subaccounts, conv),
		logger:     logger,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
