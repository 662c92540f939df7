package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/identity"
	"github.com/coachpo/perpindex/internal/subaccount"
)

const orderComponent = "orders"

const (
	orderUpsertSQL = `
INSERT INTO orders (
    id,
    subaccount_id,
    client_id,
    clob_pair_id,
    side,
    size,
    total_filled,
    price,
    type,
    status,
    time_in_force,
    reduce_only,
    order_flags,
    good_til_block,
    good_til_block_time,
    created_at_height,
    client_metadata,
    trigger_price,
    updated_at,
    updated_at_height
)
VALUES (
    @id,
    @subaccount_id,
    @client_id,
    @clob_pair_id,
    @side,
    @size,
    @total_filled,
    @price,
    @type,
    @status,
    @time_in_force,
    @reduce_only,
    @order_flags,
    @good_til_block,
    @good_til_block_time,
    @created_at_height,
    @client_metadata,
    @trigger_price,
    @updated_at,
    @updated_at_height
)
ON CONFLICT (id) DO UPDATE SET
    side = EXCLUDED.side,
    size = EXCLUDED.size,
    total_filled = EXCLUDED.total_filled,
    price = EXCLUDED.price,
    type = EXCLUDED.type,
    status = EXCLUDED.status,
    time_in_force = EXCLUDED.time_in_force,
    reduce_only = EXCLUDED.reduce_only,
    good_til_block = EXCLUDED.good_til_block,
    good_til_block_time = EXCLUDED.good_til_block_time,
    created_at_height = COALESCE(orders.created_at_height, EXCLUDED.created_at_height),
    client_metadata = EXCLUDED.client_metadata,
    trigger_price = EXCLUDED.trigger_price,
    updated_at = EXCLUDED.updated_at,
    updated_at_height = EXCLUDED.updated_at_height;
`

	orderSelectBase = `
SELECT
    o.id::text,
    o.subaccount_id::text,
    o.client_id,
    o.clob_pair_id::text,
    o.side,
    o.size::text,
    o.total_filled::text,
    o.price::text,
    o.type,
    o.status,
    o.time_in_force,
    o.reduce_only,
    o.order_flags,
    o.good_til_block,
    o.good_til_block_time,
    o.created_at_height,
    o.client_metadata,
    o.trigger_price::text,
    o.updated_at,
    o.updated_at_height
FROM orders o
`

	defaultOrderLimit = 100
	maxOrderLimit     = 1000
)

// OrderStore persists standing orders.
type OrderStore struct {
	pools
}

// NewOrderStore constructs an OrderStore. A nil replica reads from primary.
func NewOrderStore(primary, replica *pgxpool.Pool) *OrderStore {
	return &OrderStore{pools: newPools("order store", primary, replica)}
}

// Upsert inserts or replaces order by its derived id. The stored status follows
// ledger.ResolveUpsertStatus; the returned order carries the id and status written.
func (s *OrderStore) Upsert(ctx context.Context, order ledger.Order) (_ ledger.Order, err error) {
	if err := ledger.ValidateOrder(order); err != nil {
		return ledger.Order{}, err
	}
	clobPairID, err := parseID(orderComponent, "clobPairId", order.ClobPairID)
	if err != nil {
		return ledger.Order{}, err
	}
	pool, err := s.ensurePool()
	if err != nil {
		return ledger.Order{}, err
	}
	defer func() { s.record(ctx, "upsert", err) }()

	if order.ID == uuid.Nil {
		order.ID = identity.Order(order.SubaccountID, order.ClientID, order.ClobPairID, order.OrderFlags)
	}
	order.Status = ledger.ResolveUpsertStatus(order.Status, order.Size, order.TotalFilled)
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = time.Now().UTC()
	}

	var gtbt pgtype.Timestamptz
	if order.GoodTilBlockTime != nil {
		gtbt = pgtype.Timestamptz{Time: order.GoodTilBlockTime.UTC(), Valid: true}
	}
	args := pgx.NamedArgs{
		"id":                  order.ID.String(),
		"subaccount_id":       order.SubaccountID.String(),
		"client_id":           int64(order.ClientID),
		"clob_pair_id":        clobPairID,
		"side":                string(order.Side),
		"size":                numericFromDecimal(order.Size),
		"total_filled":        numericFromDecimal(order.TotalFilled),
		"price":               numericFromDecimal(order.Price),
		"type":                string(order.Type),
		"status":              string(order.Status),
		"time_in_force":       string(order.TimeInForce),
		"reduce_only":         order.ReduceOnly,
		"order_flags":         int64(order.OrderFlags),
		"good_til_block":      order.GoodTilBlock,
		"good_til_block_time": gtbt,
		"created_at_height":   order.CreatedAtHeight,
		"client_metadata":     int64(order.ClientMetadata),
		"trigger_price":       numericFromOptional(order.TriggerPrice),
		"updated_at":          order.UpdatedAt.UTC(),
		"updated_at_height":   order.UpdatedAtHeight,
	}
	if _, err := pool.Exec(ctx, orderUpsertSQL, args); err != nil {
		return ledger.Order{}, fmt.Errorf("order store: upsert order: %w", err)
	}
	return order, nil
}

// FindByID returns the order with id, or nil when absent.
func (s *OrderStore) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Order, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	order, err := scanOrder(pool.QueryRow(ctx, orderSelectBase+" WHERE o.id = $1", id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("order store: find order: %w", err)
	}
	return &order, nil
}

// FindAll retrieves orders matching query, most recently updated first.
func (s *OrderStore) FindAll(ctx context.Context, query ledger.OrderQuery, opts ledger.QueryOptions) ([]ledger.Order, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	pool, err := s.reader(opts.ReadReplica)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(query.Limit, defaultOrderLimit, maxOrderLimit)

	var args argList
	conds := make([]string, 0, 4)
	if len(query.SubaccountID) > 0 {
		conds = append(conds, "o.subaccount_id = ANY("+args.add(uuidStrings(query.SubaccountID))+"::uuid[])")
	}
	if query.ParentSubaccount != nil {
		children, err := subaccount.ChildSubaccountIDs(*query.ParentSubaccount)
		if err != nil {
			return nil, err
		}
		conds = append(conds, "o.subaccount_id = ANY("+args.add(uuidStrings(children))+"::uuid[])")
	}
	if query.ClobPairID != "" {
		id, err := parseID(orderComponent, "clobPairId", query.ClobPairID)
		if err != nil {
			return nil, err
		}
		conds = append(conds, "o.clob_pair_id = "+args.add(id))
	}
	if len(query.Statuses) > 0 {
		statuses := make([]string, len(query.Statuses))
		for i, status := range query.Statuses {
			statuses[i] = string(status)
		}
		conds = append(conds, "o.status = ANY("+args.add(statuses)+"::text[])")
	}
	if query.Side != "" {
		conds = append(conds, "o.side = "+args.add(string(query.Side)))
	}

	builder := strings.Builder{}
	builder.WriteString(orderSelectBase)
	if len(conds) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&builder, " ORDER BY o.updated_at_height DESC, o.id LIMIT %s", args.add(limit))

	rows, err := pool.Query(ctx, builder.String(), args.values...)
	if err != nil {
		return nil, fmt.Errorf("order store: list orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("order store: scan orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (ledger.Order, error) {
	var (
		order                         ledger.Order
		id, sub                       string
		clientID, flags, clientMeta   int64
		side, orderType, status, tif  string
		size, totalFilled, price      string
		triggerPrice                  sql.NullString
		goodTilBlock, createdAtHeight pgtype.Int8
		goodTilBlockTime              pgtype.Timestamptz
	)
	if err := row.Scan(
		&id,
		&sub,
		&clientID,
		&order.ClobPairID,
		&side,
		&size,
		&totalFilled,
		&price,
		&orderType,
		&status,
		&tif,
		&order.ReduceOnly,
		&flags,
		&goodTilBlock,
		&goodTilBlockTime,
		&createdAtHeight,
		&clientMeta,
		&triggerPrice,
		&order.UpdatedAt,
		&order.UpdatedAtHeight,
	); err != nil {
		return ledger.Order{}, err
	}
	var err error
	if order.ID, err = uuid.Parse(id); err != nil {
		return ledger.Order{}, fmt.Errorf("parse order id: %w", err)
	}
	if order.SubaccountID, err = uuid.Parse(sub); err != nil {
		return ledger.Order{}, fmt.Errorf("parse subaccount id: %w", err)
	}
	order.ClientID = uint32(clientID)
	order.OrderFlags = uint32(flags)
	order.ClientMetadata = uint32(clientMeta)
	order.Side = ledger.OrderSide(side)
	order.Type = ledger.OrderType(orderType)
	order.Status = ledger.OrderStatus(status)
	order.TimeInForce = ledger.TimeInForce(tif)
	if order.Size, err = parseDecimal("size", size); err != nil {
		return ledger.Order{}, err
	}
	if order.TotalFilled, err = parseDecimal("total_filled", totalFilled); err != nil {
		return ledger.Order{}, err
	}
	if order.Price, err = parseDecimal("price", price); err != nil {
		return ledger.Order{}, err
	}
	if order.TriggerPrice, err = parseOptionalDecimal("trigger_price", triggerPrice); err != nil {
		return ledger.Order{}, err
	}
	if goodTilBlock.Valid {
		v := goodTilBlock.Int64
		order.GoodTilBlock = &v
	}
	if goodTilBlockTime.Valid {
		v := goodTilBlockTime.Time.UTC()
		order.GoodTilBlockTime = &v
	}
	if createdAtHeight.Valid {
		v := createdAtHeight.Int64
		order.CreatedAtHeight = &v
	}
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}
