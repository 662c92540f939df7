package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	dbseed "github.com/coachpo/perpindex/db/seed"
	"github.com/coachpo/perpindex/internal/domain/ledger"
)

const (
	seedLiquidityTierSQL = `
INSERT INTO liquidity_tiers (id, name, initial_margin_ppm, maintenance_fraction_ppm)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING;
`

	seedMarketSQL = `
INSERT INTO markets (id, pair, exponent, min_price_change_ppm)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING;
`

	seedPerpetualMarketSQL = `
INSERT INTO perpetual_markets (
    id,
    clob_pair_id,
    ticker,
    market_id,
    status,
    atomic_resolution,
    quantum_conversion_exponent,
    subticks_per_tick,
    step_base_quantums,
    liquidity_tier_id
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING;
`
)

// Genesis is the reference data applied before indexing starts.
type Genesis struct {
	LiquidityTiers   []ledger.LiquidityTier   `yaml:"liquidityTiers"`
	Markets          []ledger.Market          `yaml:"markets"`
	PerpetualMarkets []ledger.PerpetualMarket `yaml:"perpetualMarkets"`
}

// SeedResult counts the rows a seed run inserted. Rows that already existed are not counted.
type SeedResult struct {
	LiquidityTiers   int64 `json:"liquidityTiers"`
	Markets          int64 `json:"markets"`
	PerpetualMarkets int64 `json:"perpetualMarkets"`
}

// Seeder applies genesis reference data.
type Seeder struct {
	pools
}

// NewSeeder constructs a Seeder writing to primary.
func NewSeeder(primary *pgxpool.Pool) *Seeder {
	return &Seeder{pools: newPools("seeder", primary, nil)}
}

// ParseGenesis decodes a genesis YAML document.
func ParseGenesis(data []byte) (Genesis, error) {
	var genesis Genesis
	if err := yaml.Unmarshal(data, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("seeder: decode genesis: %w", err)
	}
	return genesis, nil
}

// Seed applies the embedded genesis document.
func (s *Seeder) Seed(ctx context.Context) (SeedResult, error) {
	return s.SeedFrom(ctx, dbseed.Genesis)
}

// SeedFrom applies a genesis YAML document in one transaction. Existing rows are left
// untouched, so seeding is idempotent.
func (s *Seeder) SeedFrom(ctx context.Context, data []byte) (SeedResult, error) {
	genesis, err := ParseGenesis(data)
	if err != nil {
		return SeedResult{}, err
	}
	return s.Apply(ctx, genesis)
}

// Apply writes genesis in one transaction.
func (s *Seeder) Apply(ctx context.Context, genesis Genesis) (result SeedResult, err error) {
	pool, err := s.ensurePool()
	if err != nil {
		return SeedResult{}, err
	}
	defer func() { s.record(ctx, "seed", err) }()

	err = withTransaction(ctx, pool, "seeder", func(tx pgx.Tx) error {
		for _, tier := range genesis.LiquidityTiers {
			tag, err := tx.Exec(ctx, seedLiquidityTierSQL,
				tier.ID, tier.Name, tier.InitialMarginPpm, tier.MaintenanceFractionPpm)
			if err != nil {
				return fmt.Errorf("seeder: liquidity tier %d: %w", tier.ID, err)
			}
			result.LiquidityTiers += tag.RowsAffected()
		}
		for _, market := range genesis.Markets {
			tag, err := tx.Exec(ctx, seedMarketSQL,
				market.ID, market.Pair, market.Exponent, market.MinPriceChangePpm)
			if err != nil {
				return fmt.Errorf("seeder: market %s: %w", market.Pair, err)
			}
			result.Markets += tag.RowsAffected()
		}
		for _, perp := range genesis.PerpetualMarkets {
			id, err := parseID(marketComponent, "id", perp.ID)
			if err != nil {
				return err
			}
			clobPairID, err := parseID(marketComponent, "clobPairId", perp.ClobPairID)
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, seedPerpetualMarketSQL,
				id,
				clobPairID,
				perp.Ticker,
				perp.MarketID,
				perp.Status,
				perp.AtomicResolution,
				perp.QuantumConversionExponent,
				perp.SubticksPerTick,
				perp.StepBaseQuantums,
				perp.LiquidityTierID,
			)
			if err != nil {
				return fmt.Errorf("seeder: perpetual market %s: %w", perp.Ticker, err)
			}
			result.PerpetualMarkets += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	return result, nil
}
