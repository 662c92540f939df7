package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultDSN                   = "postgresql://localhost:5432/perpindex"
	defaultQuoteAtomicResolution = -6
	defaultBlockTime             = time.Second
	defaultFundingLookback       = 4 * time.Hour
	defaultFundingWindowBlocks   = 250_000
	defaultSettlementWorkers     = 8
	defaultConnectTimeout        = 30 * time.Second
)

var validLevels = map[string]struct{}{
	"trace": {}, "debug": {}, "info": {}, "warn": {}, "error": {}, "fatal": {}, "disabled": {},
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// PoolConfig controls one PostgreSQL connection pool.
type PoolConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
}

func (c *PoolConfig) applyDefaults(dsn string) {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" {
		c.DSN = dsn
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 16
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

func (c PoolConfig) validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("dsn required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be >0")
	}
	if c.MinConns < 0 {
		return fmt.Errorf("minConns must be >=0")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	if c.MaxConnLifetime <= 0 {
		return fmt.Errorf("maxConnLifetime must be >0")
	}
	if c.MaxConnIdleTime <= 0 {
		return fmt.Errorf("maxConnIdleTime must be >0")
	}
	if c.HealthCheckPeriod <= 0 {
		return fmt.Errorf("healthCheckPeriod must be >0")
	}
	return nil
}

// DatabaseConfig controls the primary pool, the optional read replica and migrations.
// A nil Replica reads from the primary.
type DatabaseConfig struct {
	Primary        PoolConfig    `yaml:"primary"`
	Replica        *PoolConfig   `yaml:"replica"`
	RunMigrations  bool          `yaml:"runMigrations"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.Primary.applyDefaults(defaultDSN)
	if c.Replica != nil {
		if strings.TrimSpace(c.Replica.DSN) == "" {
			c.Replica = nil
		} else {
			c.Replica.applyDefaults(c.Primary.DSN)
		}
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
}

func (c DatabaseConfig) validate() error {
	if err := c.Primary.validate(); err != nil {
		return fmt.Errorf("primary: %w", err)
	}
	if c.Replica != nil {
		if err := c.Replica.validate(); err != nil {
			return fmt.Errorf("replica: %w", err)
		}
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connectTimeout must be >0")
	}
	return nil
}

// IndexerConfig holds the chain constants and derived-computation tuning.
type IndexerConfig struct {
	QuoteAtomicResolution int32         `yaml:"quoteAtomicResolution"`
	BlockTime             time.Duration `yaml:"blockTime"`
	FundingLookback       time.Duration `yaml:"fundingLookback"`
	FundingWindowBlocks   int64         `yaml:"fundingWindowBlocks"`
	SettlementWorkers     int           `yaml:"settlementWorkers"`
	ReplicaQueryRate      float64       `yaml:"replicaQueryRate"`
}

// FundingLookbackBlocks converts the lookback duration into a block count.
func (c IndexerConfig) FundingLookbackBlocks() int64 {
	if c.BlockTime <= 0 {
		return 0
	}
	return int64(c.FundingLookback / c.BlockTime)
}

func (c *IndexerConfig) applyDefaults(quoteSet bool) {
	if !quoteSet {
		c.QuoteAtomicResolution = defaultQuoteAtomicResolution
	}
	if c.BlockTime <= 0 {
		c.BlockTime = defaultBlockTime
	}
	if c.FundingLookback <= 0 {
		c.FundingLookback = defaultFundingLookback
	}
	if c.FundingWindowBlocks <= 0 {
		c.FundingWindowBlocks = defaultFundingWindowBlocks
	}
	if c.SettlementWorkers <= 0 {
		c.SettlementWorkers = defaultSettlementWorkers
	}
}

func (c IndexerConfig) validate() error {
	if c.QuoteAtomicResolution > 0 {
		return fmt.Errorf("quoteAtomicResolution must be <=0")
	}
	if c.BlockTime <= 0 {
		return fmt.Errorf("blockTime must be >0")
	}
	if c.FundingLookback < c.BlockTime {
		return fmt.Errorf("fundingLookback must cover at least one block")
	}
	if c.FundingWindowBlocks <= 0 {
		return fmt.Errorf("fundingWindowBlocks must be >0")
	}
	if c.SettlementWorkers <= 0 {
		return fmt.Errorf("settlementWorkers must be >0")
	}
	if c.ReplicaQueryRate < 0 {
		return fmt.Errorf("replicaQueryRate must be >=0")
	}
	return nil
}

// TelemetryConfig configures the OTLP metrics exporter.
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// AppConfig is the indexer configuration sourced from YAML.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	Logging     LoggingConfig   `yaml:"logging"`
	Database    DatabaseConfig  `yaml:"database"`
	Indexer     IndexerConfig   `yaml:"indexer"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Default returns a configuration with every default applied.
func Default() AppConfig {
	var cfg AppConfig
	cfg.normalise(false)
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	return parse(bytes)
}

// LoadOrDefault behaves like Load but returns Default when the file does not exist.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, error) {
	if strings.TrimSpace(configPath) == "" {
		return Default(), nil
	}
	cfg, err := Load(ctx, configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func parse(bytes []byte) (AppConfig, error) {
	// quoteAtomicResolution has a meaningful zero, so presence is checked separately.
	var envelope struct {
		Indexer map[string]any `yaml:"indexer"`
	}
	if err := yaml.Unmarshal(bytes, &envelope); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	_, quoteSet := envelope.Indexer["quoteAtomicResolution"]

	var cfg AppConfig
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalise(quoteSet)
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) normalise(quoteSet bool) {
	c.Environment = normalizeEnvironment(c.Environment)
	c.Logging.Level = normalizeLevel(c.Logging.Level)
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "perpindex"
	}
	c.Database.applyDefaults()
	c.Indexer.applyDefaults(quoteSet)
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}
	if _, ok := validLevels[c.Logging.Level]; !ok {
		return fmt.Errorf("logging level %q not recognised", c.Logging.Level)
	}
	if c.Telemetry.ServiceName == "" {
		return fmt.Errorf("telemetry serviceName required")
	}
	if c.Telemetry.EnableMetrics && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry otlpEndpoint required when metrics are enabled")
	}
	if err := c.Database.validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Indexer.validate(); err != nil {
		return fmt.Errorf("indexer: %w", err)
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := filepath.Clean(strings.TrimSpace(path))

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
