package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/identity"
)

const fundingComponent = "funding"

const (
	fundingInsertSQL = `
INSERT INTO funding_index_updates (
    id,
    perpetual_id,
    event_id,
    rate,
    oracle_price,
    funding_index,
    effective_at,
    effective_at_height
)
VALUES (
    @id,
    @perpetual_id,
    @event_id,
    @rate,
    @oracle_price,
    @funding_index,
    @effective_at,
    @effective_at_height
)
ON CONFLICT (id) DO NOTHING;
`

	perpetualIDsSQL = `SELECT id FROM perpetual_markets ORDER BY id;`

	fundingSelectColumns = `
    u.id::text,
    u.perpetual_id::text,
    u.event_id,
    u.rate::text,
    u.oracle_price::text,
    u.funding_index::text,
    u.effective_at,
    u.effective_at_height
`

	// A non-positive lookback disables the lower bound.
	latestFundingSQL = `
SELECT DISTINCT ON (u.perpetual_id)` + fundingSelectColumns + `
FROM funding_index_updates u
WHERE u.effective_at_height <= $1
  AND ($2::bigint <= 0 OR u.effective_at_height > $1 - $2::bigint)
ORDER BY u.perpetual_id, u.effective_at_height DESC, u.event_id DESC;
`

	fundingBetweenSQL = `
SELECT` + fundingSelectColumns + `
FROM funding_index_updates u
WHERE u.effective_at_height BETWEEN $1 AND $2
ORDER BY u.effective_at_height, u.perpetual_id, u.event_id;
`
)

// FundingStore persists funding index updates and serves funding snapshots.
type FundingStore struct {
	pools
}

var _ ledger.FundingIndexReader = (*FundingStore)(nil)

// NewFundingStore constructs a FundingStore. A nil replica reads from primary.
func NewFundingStore(primary, replica *pgxpool.Pool) *FundingStore {
	return &FundingStore{pools: newPools("funding store", primary, replica)}
}

// Create inserts update, deriving its id from (height, eventId, perpetual) when unset.
func (s *FundingStore) Create(ctx context.Context, update ledger.FundingIndexUpdate) (_ ledger.FundingIndexUpdate, err error) {
	pool, err := s.ensurePool()
	if err != nil {
		return ledger.FundingIndexUpdate{}, err
	}
	defer func() { s.record(ctx, "create", err) }()

	perpetualID, err := parseID(fundingComponent, "perpetualId", update.PerpetualID)
	if err != nil {
		return ledger.FundingIndexUpdate{}, err
	}
	if update.ID == uuid.Nil {
		update.ID = identity.FundingIndexUpdate(update.EffectiveAtHeight, update.EventID, update.PerpetualID)
	}
	args := pgx.NamedArgs{
		"id":                  update.ID.String(),
		"perpetual_id":        perpetualID,
		"event_id":            update.EventID.Bytes(),
		"rate":                numericFromDecimal(update.Rate),
		"oracle_price":        numericFromDecimal(update.OraclePrice),
		"funding_index":       numericFromDecimal(update.FundingIndex),
		"effective_at":        update.EffectiveAt.UTC(),
		"effective_at_height": update.EffectiveAtHeight,
	}
	if _, err := pool.Exec(ctx, fundingInsertSQL, args); err != nil {
		return ledger.FundingIndexUpdate{}, fmt.Errorf("funding store: insert update: %w", err)
	}
	return update, nil
}

// PerpetualIDs lists every perpetual market id.
func (s *FundingStore) PerpetualIDs(ctx context.Context) ([]string, error) {
	pool, err := s.ensureReplica()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, perpetualIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("funding store: perpetual ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id int64
		err := row.Scan(&id)
		return strconv.FormatInt(id, 10), err
	})
	if err != nil {
		return nil, fmt.Errorf("funding store: scan perpetual ids: %w", err)
	}
	return ids, nil
}

// LatestUpdatesAtOrBefore returns, per perpetual, the latest update with effective
// height in (height-lookback, height].
func (s *FundingStore) LatestUpdatesAtOrBefore(ctx context.Context, height, lookback int64) ([]ledger.FundingIndexUpdate, error) {
	return s.query(ctx, "latest updates", latestFundingSQL, height, lookback)
}

// UpdatesBetween returns every update with effective height in [fromHeight, toHeight].
func (s *FundingStore) UpdatesBetween(ctx context.Context, fromHeight, toHeight int64) ([]ledger.FundingIndexUpdate, error) {
	if fromHeight > toHeight {
		return nil, nil
	}
	return s.query(ctx, "updates between", fundingBetweenSQL, fromHeight, toHeight)
}

func (s *FundingStore) query(ctx context.Context, what, sql string, args ...any) ([]ledger.FundingIndexUpdate, error) {
	pool, err := s.ensureReplica()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("funding store: %s: %w", what, err)
	}
	updates, err := pgx.CollectRows(rows, scanFundingUpdate)
	if err != nil {
		return nil, fmt.Errorf("funding store: scan %s: %w", what, err)
	}
	return updates, nil
}

func scanFundingUpdate(row pgx.CollectableRow) (ledger.FundingIndexUpdate, error) {
	var (
		update                   ledger.FundingIndexUpdate
		id                       string
		eventID                  []byte
		rate, oraclePrice, index string
	)
	if err := row.Scan(&id, &update.PerpetualID, &eventID, &rate, &oraclePrice, &index,
		&update.EffectiveAt, &update.EffectiveAtHeight); err != nil {
		return ledger.FundingIndexUpdate{}, err
	}
	var err error
	if update.ID, err = uuid.Parse(id); err != nil {
		return ledger.FundingIndexUpdate{}, fmt.Errorf("parse funding update id: %w", err)
	}
	if update.EventID, err = identity.EventIDFromBytes(eventID); err != nil {
		return ledger.FundingIndexUpdate{}, err
	}
	if update.Rate, err = parseDecimal("rate", rate); err != nil {
		return ledger.FundingIndexUpdate{}, err
	}
	if update.OraclePrice, err = parseDecimal("oracle_price", oraclePrice); err != nil {
		return ledger.FundingIndexUpdate{}, err
	}
	if update.FundingIndex, err = parseDecimal("funding_index", index); err != nil {
		return ledger.FundingIndexUpdate{}, err
	}
	update.EffectiveAt = update.EffectiveAt.UTC()
	return update, nil
}
