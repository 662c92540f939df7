// Package postgres implements the ledger store contracts on PostgreSQL with pgx and
// hand-written SQL. Writes go to the primary pool; aggregate reads go to the replica.
package postgres

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/perpindex/internal/infra/persistence"
	"github.com/coachpo/perpindex/internal/infra/telemetry"
)

// Store bundles the repositories built on one pair of pools.
type Store struct {
	*persistence.Store

	Fills       *FillStore
	Funding     *FundingStore
	Orders      *OrderStore
	Positions   *PerpetualPositionStore
	Subaccounts *SubaccountStore
	Markets     *MarketStore
	Seeder      *Seeder
}

// New constructs every repository on the pools held by base.
func New(base *persistence.Store) *Store {
	primary, replica := base.Primary(), base.Replica()
	return &Store{
		Store:       base,
		Fills:       NewFillStore(primary, replica),
		Funding:     NewFundingStore(primary, replica),
		Orders:      NewOrderStore(primary, replica),
		Positions:   NewPerpetualPositionStore(primary, replica),
		Subaccounts: NewSubaccountStore(primary, replica),
		Markets:     NewMarketStore(primary, replica),
		Seeder:      NewSeeder(primary),
	}
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type querier interface {
	execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pools is embedded by every repository.
type pools struct {
	name    string
	primary *pgxpool.Pool
	replica *pgxpool.Pool
}

func newPools(name string, primary, replica *pgxpool.Pool) pools {
	if replica == nil {
		replica = primary
	}
	return pools{name: name, primary: primary, replica: replica}
}

func (p pools) ensurePool() (*pgxpool.Pool, error) {
	if p.primary == nil {
		return nil, fmt.Errorf("%s: nil pool", p.name)
	}
	return p.primary, nil
}

func (p pools) ensureReplica() (*pgxpool.Pool, error) {
	if p.replica == nil {
		return nil, fmt.Errorf("%s: nil pool", p.name)
	}
	return p.replica, nil
}

// reader picks the replica when asked to, the primary otherwise.
func (p pools) reader(replica bool) (*pgxpool.Pool, error) {
	if replica {
		return p.ensureReplica()
	}
	return p.ensurePool()
}

var operations metric.Int64Counter

func init() {
	counter, err := otel.Meter("postgres.store").Int64Counter("perpindex_db_operations_total",
		metric.WithDescription("Store operations by store, operation and result"))
	if err == nil {
		operations = counter
	}
}

func (p pools) record(ctx context.Context, operation string, err error) {
	if operations == nil {
		return
	}
	operations.Add(ctx, 1, metric.WithAttributes(telemetry.StoreAttributes(p.name, operation, err)...))
}

// withTransaction runs fn in a read-committed transaction on pool.
func withTransaction(ctx context.Context, pool *pgxpool.Pool, name string, fn func(pgx.Tx) error) error {
	if fn == nil {
		return fmt.Errorf("%s: transaction callback required", name)
	}
	if pool == nil {
		return fmt.Errorf("%s: nil pool", name)
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:       pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
		DeferrableMode: pgx.NotDeferrable,
	})
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", name, err)
	}
	if runErr := fn(tx); runErr != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%s: rollback tx: %w (original error: %v)", name, rbErr, runErr)
		}
		return runErr
	}
	if err := tx.Commit(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("%s: commit tx: %w", name, err)
	}
	return nil
}

func clampLimit(value, fallback, maximum int) int {
	if value <= 0 {
		return fallback
	}
	if value > maximum {
		return maximum
	}
	return value
}

func encodeMetadata(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

// argList accumulates positional arguments for dynamically built queries.
type argList struct {
	values []any
}

// add appends value and returns its $n placeholder.
func (a *argList) add(value any) string {
	a.values = append(a.values, value)
	return fmt.Sprintf("$%d", len(a.values))
}
