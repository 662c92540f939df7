package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/identity"
)

const marketComponent = "perpetual_markets"

const (
	perpetualMarketSelect = `
SELECT
    m.id,
    m.clob_pair_id,
    m.ticker,
    m.market_id,
    m.status,
    m.atomic_resolution,
    m.quantum_conversion_exponent,
    m.subticks_per_tick,
    m.step_base_quantums,
    m.liquidity_tier_id
FROM perpetual_markets m
`

	oraclePriceUpsertSQL = `
INSERT INTO oracle_prices (id, market_id, price, effective_at, effective_at_height)
VALUES (@id, @market_id, @price, @effective_at, @effective_at_height)
ON CONFLICT (id) DO UPDATE SET
    price = EXCLUDED.price,
    effective_at = EXCLUDED.effective_at;
`
)

// MarketStore reads perpetual market reference data and records oracle prices.
type MarketStore struct {
	pools
}

// NewMarketStore constructs a MarketStore. A nil replica reads from primary.
func NewMarketStore(primary, replica *pgxpool.Pool) *MarketStore {
	return &MarketStore{pools: newPools("market store", primary, replica)}
}

// PerpetualMarkets lists every perpetual market ordered by id.
func (s *MarketStore) PerpetualMarkets(ctx context.Context) ([]ledger.PerpetualMarket, error) {
	pool, err := s.ensureReplica()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, perpetualMarketSelect+" ORDER BY m.id")
	if err != nil {
		return nil, fmt.Errorf("market store: list perpetual markets: %w", err)
	}
	markets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.PerpetualMarket, error) {
		return scanPerpetualMarket(row)
	})
	if err != nil {
		return nil, fmt.Errorf("market store: scan perpetual markets: %w", err)
	}
	return markets, nil
}

// FindPerpetualMarket returns the market with id, or nil when absent.
func (s *MarketStore) FindPerpetualMarket(ctx context.Context, id string) (*ledger.PerpetualMarket, error) {
	value, err := parseID(marketComponent, "id", id)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, perpetualMarketSelect+" WHERE m.id = $1", value)
}

// FindPerpetualMarketByClobPair returns the market trading on clobPairID, or nil when absent.
func (s *MarketStore) FindPerpetualMarketByClobPair(ctx context.Context, clobPairID string) (*ledger.PerpetualMarket, error) {
	value, err := parseID(marketComponent, "clobPairId", clobPairID)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, perpetualMarketSelect+" WHERE m.clob_pair_id = $1", value)
}

func (s *MarketStore) findOne(ctx context.Context, query string, arg int64) (*ledger.PerpetualMarket, error) {
	pool, err := s.ensureReplica()
	if err != nil {
		return nil, err
	}
	market, err := scanPerpetualMarket(pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("market store: find perpetual market: %w", err)
	}
	return &market, nil
}

// UpsertOraclePrice records the oracle price of a market at a height. A second write
// for the same (market, height) replaces the price.
func (s *MarketStore) UpsertOraclePrice(ctx context.Context, price ledger.OraclePrice) (ledger.OraclePrice, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return ledger.OraclePrice{}, err
	}
	if price.ID == uuid.Nil {
		price.ID = identity.OraclePrice(price.MarketID, price.EffectiveAtHeight)
	}
	_, err = pool.Exec(ctx, oraclePriceUpsertSQL, pgx.NamedArgs{
		"id":                  price.ID.String(),
		"market_id":           price.MarketID,
		"price":               numericFromDecimal(price.Price),
		"effective_at":        price.EffectiveAt.UTC(),
		"effective_at_height": price.EffectiveAtHeight,
	})
	s.record(ctx, "upsert_oracle_price", err)
	if err != nil {
		return ledger.OraclePrice{}, fmt.Errorf("market store: upsert oracle price: %w", err)
	}
	return price, nil
}

func scanPerpetualMarket(row pgx.Row) (ledger.PerpetualMarket, error) {
	var (
		market         ledger.PerpetualMarket
		id, clobPairID int64
	)
	if err := row.Scan(
		&id,
		&clobPairID,
		&market.Ticker,
		&market.MarketID,
		&market.Status,
		&market.AtomicResolution,
		&market.QuantumConversionExponent,
		&market.SubticksPerTick,
		&market.StepBaseQuantums,
		&market.LiquidityTierID,
	); err != nil {
		return ledger.PerpetualMarket{}, err
	}
	market.ID = strconv.FormatInt(id, 10)
	market.ClobPairID = strconv.FormatInt(clobPairID, 10)
	return market, nil
}
