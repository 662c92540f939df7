package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/identity"
	"github.com/coachpo/perpindex/internal/subaccount"
)

const fillComponent = "fills"

const (
	fillInsertSQL = `
INSERT INTO fills (
    id,
    subaccount_id,
    side,
    liquidity,
    type,
    clob_pair_id,
    order_id,
    size,
    price,
    quote_amount,
    fee,
    event_id,
    transaction_hash,
    created_at,
    created_at_height,
    client_metadata,
    metadata
)
VALUES (
    @id,
    @subaccount_id,
    @side,
    @liquidity,
    @type,
    @clob_pair_id,
    @order_id,
    @size,
    @price,
    @quote_amount,
    @fee,
    @event_id,
    @transaction_hash,
    @created_at,
    @created_at_height,
    @client_metadata,
    @metadata::jsonb
)
ON CONFLICT (id) DO NOTHING;
`

	fillUpdateSizeSQL = `UPDATE fills SET size = @size WHERE id = @id;`

	fillSelectBase = `
SELECT
    f.id::text,
    f.subaccount_id::text,
    f.side,
    f.liquidity,
    f.type,
    f.clob_pair_id::text,
    f.order_id::text,
    f.size::text,
    f.price::text,
    f.quote_amount::text,
    f.fee::text,
    f.event_id,
    f.transaction_hash,
    f.created_at,
    f.created_at_height,
    f.client_metadata,
    f.metadata
FROM fills f
`

	fillCountBase = `SELECT COUNT(*) FROM fills f`

	// The funding index of a fill is the latest update of its perpetual at or before
	// the fill height; LAG pairs each fill with its predecessor in the same partition.
	orderedFillsWithFundingSQL = `
WITH fills_with_index AS (
    SELECT
        f.id,
        f.subaccount_id,
        f.clob_pair_id,
        f.side,
        f.size,
        f.created_at_height,
        f.event_id,
        COALESCE(fiu.funding_index, 0) AS funding_index
    FROM fills f
    JOIN perpetual_markets pm ON pm.clob_pair_id = f.clob_pair_id
    LEFT JOIN LATERAL (
        SELECT u.funding_index
        FROM funding_index_updates u
        WHERE u.perpetual_id = pm.id
          AND u.effective_at_height <= f.created_at_height
        ORDER BY u.effective_at_height DESC, u.event_id DESC
        LIMIT 1
    ) fiu ON TRUE
    WHERE f.subaccount_id = $1
      AND f.clob_pair_id = $2
      AND f.created_at_height <= $3
)
SELECT
    id::text,
    subaccount_id::text,
    clob_pair_id::text,
    side,
    size::text,
    created_at_height,
    funding_index::text,
    event_id,
    LAG(id::text) OVER w,
    LAG(side) OVER w,
    LAG(size::text) OVER w,
    LAG(created_at_height) OVER w,
    LAG(funding_index::text) OVER w
FROM fills_with_index
WINDOW w AS (PARTITION BY subaccount_id, clob_pair_id ORDER BY created_at_height, event_id)
ORDER BY created_at_height, event_id;
`

	openSizesCTE = `
WITH open_sizes AS (
    SELECT
        f.clob_pair_id,
        SUM(CASE WHEN f.side = 'BUY' THEN f.size ELSE -f.size END) AS open_size,
        MAX(f.created_at_height) AS last_fill_height
    FROM fills f
    WHERE f.subaccount_id = $1
      AND f.created_at_height <= $2
    GROUP BY f.clob_pair_id
)`

	openSizeWithFundingSQL = openSizesCTE + `
SELECT
    o.clob_pair_id::text,
    pm.id::text,
    o.open_size::text,
    o.last_fill_height,
    COALESCE(fiu.funding_index, 0)::text,
    COALESCE(fiu.effective_at_height, 0)
FROM open_sizes o
JOIN perpetual_markets pm ON pm.clob_pair_id = o.clob_pair_id
LEFT JOIN LATERAL (
    SELECT u.funding_index, u.effective_at_height
    FROM funding_index_updates u
    WHERE u.perpetual_id = pm.id
      AND u.effective_at_height <= o.last_fill_height
    ORDER BY u.effective_at_height DESC, u.event_id DESC
    LIMIT 1
) fiu ON TRUE
ORDER BY o.clob_pair_id;
`

	openPositionValueSQL = openSizesCTE + `,
prices AS (
    SELECT DISTINCT ON (op.market_id) op.market_id, op.price
    FROM oracle_prices op
    WHERE op.effective_at_height <= $2
    ORDER BY op.market_id, op.effective_at_height DESC
)
SELECT COALESCE(SUM(o.open_size * p.price), 0)::text
FROM open_sizes o
JOIN perpetual_markets pm ON pm.clob_pair_id = o.clob_pair_id
JOIN prices p ON p.market_id = pm.market_id;
`

	costOfFillsSQL = `
SELECT COALESCE(SUM(CASE WHEN f.side = 'SELL' THEN f.price * f.size ELSE -(f.price * f.size) END), 0)::text
FROM fills f
WHERE f.subaccount_id = $1
  AND f.created_at_height <= $2;
`

	feesPaidSQL = `
SELECT COALESCE(SUM(f.fee), 0)::text
FROM fills f
WHERE f.subaccount_id = $1
  AND f.created_at_height <= $2;
`

	clobPairsSQL = `
SELECT DISTINCT f.clob_pair_id
FROM fills f
WHERE f.subaccount_id = $1
  AND f.created_at_height <= $2
ORDER BY f.clob_pair_id;
`

	trade24HourSQL = `
SELECT
    c.clob_pair_id::text,
    COUNT(f.id),
    COALESCE(SUM(f.quote_amount), 0)::text
FROM unnest($1::bigint[]) AS c(clob_pair_id)
LEFT JOIN fills f
    ON f.clob_pair_id = c.clob_pair_id
   AND f.liquidity = 'TAKER'
   AND f.created_at > $2
   AND f.type = ANY($3::text[])
GROUP BY c.clob_pair_id
ORDER BY c.clob_pair_id;
`
)

// fillOrderColumns whitelists the sort keys accepted in QueryOptions.OrderBy.
var fillOrderColumns = map[string]string{
	"id":              "f.id",
	"subaccountId":    "f.subaccount_id",
	"clobPairId":      "f.clob_pair_id",
	"side":            "f.side",
	"size":            "f.size",
	"price":           "f.price",
	"fee":             "f.fee",
	"eventId":         "f.event_id",
	"createdAt":       "f.created_at",
	"createdAtHeight": "f.created_at_height",
}

// FillStore persists fills and serves the settlement aggregates.
type FillStore struct {
	pools
}

var _ ledger.FillReader = (*FillStore)(nil)

// NewFillStore constructs a FillStore. A nil replica reads from primary.
func NewFillStore(primary, replica *pgxpool.Pool) *FillStore {
	return &FillStore{pools: newPools("fill store", primary, replica)}
}

// Create inserts fill, deriving its id from (eventId, liquidity) when unset. A fill
// already present is left untouched.
func (s *FillStore) Create(ctx context.Context, fill ledger.Fill) (_ ledger.Fill, err error) {
	pool, err := s.ensurePool()
	if err != nil {
		return ledger.Fill{}, err
	}
	defer func() { s.record(ctx, "create", err) }()

	if !fill.Side.Valid() {
		return ledger.Fill{}, errs.Invalid(fillComponent, errs.CanonicalUnknown, "fill side must be BUY or SELL")
	}
	clobPairID, err := parseID(fillComponent, "clobPairId", fill.ClobPairID)
	if err != nil {
		return ledger.Fill{}, err
	}
	if fill.ID == uuid.Nil {
		fill.ID = identity.Fill(fill.EventID, string(fill.Liquidity))
	}
	metadata, err := encodeMetadata(fill.Metadata)
	if err != nil {
		return ledger.Fill{}, fmt.Errorf("fill store: %w", err)
	}
	var orderID any
	if fill.OrderID != nil {
		orderID = fill.OrderID.String()
	}
	args := pgx.NamedArgs{
		"id":                fill.ID.String(),
		"subaccount_id":     fill.SubaccountID.String(),
		"side":              string(fill.Side),
		"liquidity":         string(fill.Liquidity),
		"type":              string(fill.Type),
		"clob_pair_id":      clobPairID,
		"order_id":          orderID,
		"size":              numericFromDecimal(fill.Size),
		"price":             numericFromDecimal(fill.Price),
		"quote_amount":      numericFromDecimal(fill.QuoteAmount),
		"fee":               numericFromDecimal(fill.Fee),
		"event_id":          fill.EventID.Bytes(),
		"transaction_hash":  fill.TransactionHash,
		"created_at":        fill.CreatedAt.UTC(),
		"created_at_height": fill.CreatedAtHeight,
		"client_metadata":   fill.ClientMetadata,
		"metadata":          metadata,
	}
	if _, err := pool.Exec(ctx, fillInsertSQL, args); err != nil {
		return ledger.Fill{}, fmt.Errorf("fill store: insert fill: %w", err)
	}
	return fill, nil
}

// UpdateSize corrects the size of an existing fill. It reports whether a row changed.
func (s *FillStore) UpdateSize(ctx context.Context, id uuid.UUID, size decimal.Decimal) (bool, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return false, err
	}
	tag, err := pool.Exec(ctx, fillUpdateSizeSQL, pgx.NamedArgs{
		"id":   id.String(),
		"size": numericFromDecimal(size),
	})
	s.record(ctx, "update_size", err)
	if err != nil {
		return false, fmt.Errorf("fill store: update size: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindByID returns the fill with id, or nil when absent.
func (s *FillStore) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Fill, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	row := pool.QueryRow(ctx, fillSelectBase+" WHERE f.id = $1", id.String())
	fill, err := scanFill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fill store: find fill: %w", err)
	}
	return &fill, nil
}

// FindAll returns the fills matching query. Explicit sort keys come first, then newest
// height. A page with a limit returns the total row count alongside the page.
func (s *FillStore) FindAll(ctx context.Context, query ledger.FillQuery, opts ledger.QueryOptions) (ledger.Page[ledger.Fill], error) {
	if err := query.Validate(); err != nil {
		return ledger.Page[ledger.Fill]{}, err
	}
	orderBy, err := orderClause(fillComponent, fillOrderColumns, opts.OrderBy, "f.created_at_height DESC")
	if err != nil {
		return ledger.Page[ledger.Fill]{}, err
	}
	pool, err := s.reader(opts.ReadReplica)
	if err != nil {
		return ledger.Page[ledger.Fill]{}, err
	}

	var args argList
	where, err := fillWhere(query, &args)
	if err != nil {
		return ledger.Page[ledger.Fill]{}, err
	}

	page := ledger.Page[ledger.Fill]{}
	if query.Page > 0 && query.Limit > 0 {
		page.Paginated = true
		page.Limit = query.Limit
		page.Offset = ledger.PageOffset(query.Page, query.Limit)
		if err := pool.QueryRow(ctx, fillCountBase+where, args.values...).Scan(&page.Total); err != nil {
			return ledger.Page[ledger.Fill]{}, fmt.Errorf("fill store: count fills: %w", err)
		}
	}

	builder := strings.Builder{}
	builder.WriteString(fillSelectBase)
	builder.WriteString(where)
	builder.WriteString(" ORDER BY ")
	builder.WriteString(orderBy)
	if query.Limit > 0 {
		fmt.Fprintf(&builder, " LIMIT %s", args.add(query.Limit))
	}
	if page.Paginated {
		fmt.Fprintf(&builder, " OFFSET %s", args.add(page.Offset))
	}

	rows, err := pool.Query(ctx, builder.String(), args.values...)
	if err != nil {
		return ledger.Page[ledger.Fill]{}, fmt.Errorf("fill store: list fills: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		fill, err := scanFill(rows)
		if err != nil {
			return ledger.Page[ledger.Fill]{}, fmt.Errorf("fill store: scan fill: %w", err)
		}
		page.Results = append(page.Results, fill)
	}
	if err := rows.Err(); err != nil {
		return ledger.Page[ledger.Fill]{}, fmt.Errorf("fill store: iterate fills: %w", err)
	}
	return page, nil
}

func fillWhere(q ledger.FillQuery, args *argList) (string, error) {
	conds := make([]string, 0, 8)
	if len(q.ID) > 0 {
		conds = append(conds, "f.id = ANY("+args.add(uuidStrings(q.ID))+"::uuid[])")
	}
	if len(q.SubaccountID) > 0 {
		conds = append(conds, "f.subaccount_id = ANY("+args.add(uuidStrings(q.SubaccountID))+"::uuid[])")
	}
	if q.ParentSubaccount != nil {
		children, err := subaccount.ChildSubaccountIDs(*q.ParentSubaccount)
		if err != nil {
			return "", err
		}
		conds = append(conds, "f.subaccount_id = ANY("+args.add(uuidStrings(children))+"::uuid[])")
	}
	if q.Side != "" {
		conds = append(conds, "f.side = "+args.add(string(q.Side)))
	}
	if q.Liquidity != "" {
		conds = append(conds, "f.liquidity = "+args.add(string(q.Liquidity)))
	}
	if q.Type != "" {
		conds = append(conds, "f.type = "+args.add(string(q.Type)))
	}
	if len(q.IncludeTypes) > 0 {
		conds = append(conds, "f.type = ANY("+args.add(fillTypeStrings(q.IncludeTypes))+"::text[])")
	}
	if len(q.ExcludeTypes) > 0 {
		conds = append(conds, "NOT (f.type = ANY("+args.add(fillTypeStrings(q.ExcludeTypes))+"::text[]))")
	}
	if q.ClobPairID != "" {
		id, err := parseID(fillComponent, "clobPairId", q.ClobPairID)
		if err != nil {
			return "", err
		}
		conds = append(conds, "f.clob_pair_id = "+args.add(id))
	}
	if q.EventID != nil {
		conds = append(conds, "f.event_id = "+args.add(q.EventID.Bytes()))
	}
	if q.TransactionHash != "" {
		conds = append(conds, "f.transaction_hash = "+args.add(q.TransactionHash))
	}
	if q.CreatedBeforeOrAtHeight != nil {
		conds = append(conds, "f.created_at_height <= "+args.add(*q.CreatedBeforeOrAtHeight))
	}
	if q.CreatedBeforeOrAt != nil {
		conds = append(conds, "f.created_at <= "+args.add(q.CreatedBeforeOrAt.UTC()))
	}
	if q.CreatedOnOrAfterHeight != nil {
		conds = append(conds, "f.created_at_height >= "+args.add(*q.CreatedOnOrAfterHeight))
	}
	if q.CreatedOnOrAfter != nil {
		conds = append(conds, "f.created_at >= "+args.add(q.CreatedOnOrAfter.UTC()))
	}
	if q.ClientMetadata != nil {
		conds = append(conds, "f.client_metadata = "+args.add(*q.ClientMetadata))
	}
	if q.Fee != nil {
		conds = append(conds, "f.fee = "+args.add(numericFromDecimal(*q.Fee)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), nil
}

// Get24HourInformation returns taker trade counts and quote volume per clob pair over
// the 24 hours before now. Pairs without fills report zero.
func (s *FillStore) Get24HourInformation(ctx context.Context, clobPairIDs []string, now time.Time) ([]ledger.Market24HourTradeVolume, error) {
	if len(clobPairIDs) == 0 {
		return nil, nil
	}
	ids, err := parseIDs(fillComponent, "clobPairId", clobPairIDs)
	if err != nil {
		return nil, err
	}
	pool, err := s.ensureReplica()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, trade24HourSQL, ids, now.UTC().Add(-24*time.Hour), fillTypeStrings(ledger.TradeFillTypes))
	if err != nil {
		return nil, fmt.Errorf("fill store: 24h information: %w", err)
	}
	defer rows.Close()

	var out []ledger.Market24HourTradeVolume
	for rows.Next() {
		var (
			volume ledger.Market24HourTradeVolume
			raw    string
		)
		if err := rows.Scan(&volume.ClobPairID, &volume.Trades24H, &raw); err != nil {
			return nil, fmt.Errorf("fill store: scan 24h information: %w", err)
		}
		if volume.Volume24H, err = parseDecimal("volume", raw); err != nil {
			return nil, fmt.Errorf("fill store: %w", err)
		}
		out = append(out, volume)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fill store: iterate 24h information: %w", err)
	}
	return out, nil
}

// OrderedFillsWithFundingIndices returns the fills of one (subaccount, clob pair) up to
// height in chain order, each annotated with its funding index and predecessor.
func (s *FillStore) OrderedFillsWithFundingIndices(ctx context.Context, subaccountID uuid.UUID, clobPairID string, height int64) ([]ledger.FillWithFundingIndex, error) {
	pool, err := s.ensureReplica()
	if err != nil {
		return nil, err
	}
	clob, err := parseID(fillComponent, "clobPairId", clobPairID)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, orderedFillsWithFundingSQL, subaccountID.String(), clob, height)
	if err != nil {
		return nil, fmt.Errorf("fill store: ordered fills: %w", err)
	}
	defer rows.Close()

	var out []ledger.FillWithFundingIndex
	for rows.Next() {
		var (
			id, sub, clobText, side, size, index string
			fillHeight                           int64
			eventID                              []byte
			prevID, prevSide, prevSize, prevIdx  sql.NullString
			prevHeight                           sql.NullInt64
		)
		if err := rows.Scan(&id, &sub, &clobText, &side, &size, &fillHeight, &index, &eventID,
			&prevID, &prevSide, &prevSize, &prevHeight, &prevIdx); err != nil {
			return nil, fmt.Errorf("fill store: scan ordered fill: %w", err)
		}
		fill := ledger.FillWithFundingIndex{
			ClobPairID:      clobText,
			Side:            ledger.OrderSide(side),
			CreatedAtHeight: fillHeight,
		}
		if fill.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("fill store: parse fill id: %w", err)
		}
		if fill.SubaccountID, err = uuid.Parse(sub); err != nil {
			return nil, fmt.Errorf("fill store: parse subaccount id: %w", err)
		}
		if fill.Size, err = parseDecimal("size", size); err != nil {
			return nil, fmt.Errorf("fill store: %w", err)
		}
		if fill.FundingIndex, err = parseDecimal("funding_index", index); err != nil {
			return nil, fmt.Errorf("fill store: %w", err)
		}
		if fill.EventID, err = identity.EventIDFromBytes(eventID); err != nil {
			return nil, fmt.Errorf("fill store: %w", err)
		}
		if prevID.Valid {
			prev := &ledger.PreviousFill{
				Side:            ledger.OrderSide(prevSide.String),
				CreatedAtHeight: prevHeight.Int64,
			}
			if prev.ID, err = uuid.Parse(prevID.String); err != nil {
				return nil, fmt.Errorf("fill store: parse previous fill id: %w", err)
			}
			if prev.Size, err = parseDecimal("previous size", prevSize.String); err != nil {
				return nil, fmt.Errorf("fill store: %w", err)
			}
			if prev.FundingIndex, err = parseDecimal("previous funding_index", prevIdx.String); err != nil {
				return nil, fmt.Errorf("fill store: %w", err)
			}
			fill.Previous = prev
		}
		out = append(out, fill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fill store: iterate ordered fills: %w", err)
	}
	return out, nil
}

// OpenSizeWithFundingIndex returns, per clob pair traded up to height, the net signed
// size and the funding index in effect at the pair's last fill.
func (s *FillStore) OpenSizeWithFundingIndex(ctx context.Context, subaccountID uuid.UUID, height int64) ([]ledger.OpenSizeWithFundingIndex, error) {
	pool, err := s.ensureReplica()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, openSizeWithFundingSQL, subaccountID.String(), height)
	if err != nil {
		return nil, fmt.Errorf("fill store: open sizes: %w", err)
	}
	defer rows.Close()

	var out []ledger.OpenSizeWithFundingIndex
	for rows.Next() {
		var (
			row         ledger.OpenSizeWithFundingIndex
			size, index string
		)
		if err := rows.Scan(&row.ClobPairID, &row.PerpetualID, &size, &row.LastFillHeight, &index, &row.FundingIndexHeight); err != nil {
			return nil, fmt.Errorf("fill store: scan open size: %w", err)
		}
		if row.OpenSize, err = parseDecimal("open_size", size); err != nil {
			return nil, fmt.Errorf("fill store: %w", err)
		}
		if row.FundingIndex, err = parseDecimal("funding_index", index); err != nil {
			return nil, fmt.Errorf("fill store: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fill store: iterate open sizes: %w", err)
	}
	return out, nil
}

// CostOfFills sums price*size over fills up to height: sells add, buys subtract.
func (s *FillStore) CostOfFills(ctx context.Context, subaccountID uuid.UUID, height int64) (decimal.Decimal, error) {
	return s.scalar(ctx, "cost of fills", costOfFillsSQL, subaccountID, height)
}

// TotalValueOfOpenPositions values each net size at the latest oracle price at or
// before height.
func (s *FillStore) TotalValueOfOpenPositions(ctx context.Context, subaccountID uuid.UUID, height int64) (decimal.Decimal, error) {
	return s.scalar(ctx, "open position value", openPositionValueSQL, subaccountID, height)
}

// FeesPaid sums fees up to height; maker rebates are negative.
func (s *FillStore) FeesPaid(ctx context.Context, subaccountID uuid.UUID, height int64) (decimal.Decimal, error) {
	return s.scalar(ctx, "fees paid", feesPaidSQL, subaccountID, height)
}

// ClobPairs returns the distinct clob pairs traded up to height, ascending.
func (s *FillStore) ClobPairs(ctx context.Context, subaccountID uuid.UUID, height int64) ([]string, error) {
	pool, err := s.ensureReplica()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, clobPairsSQL, subaccountID.String(), height)
	if err != nil {
		return nil, fmt.Errorf("fill store: clob pairs: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("fill store: scan clob pair: %w", err)
		}
		out = append(out, strconv.FormatInt(id, 10))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fill store: iterate clob pairs: %w", err)
	}
	return out, nil
}

func (s *FillStore) scalar(ctx context.Context, what, query string, subaccountID uuid.UUID, height int64) (decimal.Decimal, error) {
	pool, err := s.ensureReplica()
	if err != nil {
		return decimal.Zero, err
	}
	var raw string
	if err := pool.QueryRow(ctx, query, subaccountID.String(), height).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("fill store: %s: %w", what, err)
	}
	value, err := parseDecimal(what, raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fill store: %w", err)
	}
	return value, nil
}

func scanFill(row pgx.Row) (ledger.Fill, error) {
	var (
		fill                               ledger.Fill
		id, sub, side, liquidity, fillType string
		orderID, clientMetadata            sql.NullString
		size, price, quoteAmount, fee      string
		eventID, metadata                  []byte
	)
	if err := row.Scan(
		&id,
		&sub,
		&side,
		&liquidity,
		&fillType,
		&fill.ClobPairID,
		&orderID,
		&size,
		&price,
		&quoteAmount,
		&fee,
		&eventID,
		&fill.TransactionHash,
		&fill.CreatedAt,
		&fill.CreatedAtHeight,
		&clientMetadata,
		&metadata,
	); err != nil {
		return ledger.Fill{}, err
	}
	var err error
	if fill.ID, err = uuid.Parse(id); err != nil {
		return ledger.Fill{}, fmt.Errorf("parse fill id: %w", err)
	}
	if fill.SubaccountID, err = uuid.Parse(sub); err != nil {
		return ledger.Fill{}, fmt.Errorf("parse subaccount id: %w", err)
	}
	if orderID.Valid {
		parsed, err := uuid.Parse(orderID.String)
		if err != nil {
			return ledger.Fill{}, fmt.Errorf("parse order id: %w", err)
		}
		fill.OrderID = &parsed
	}
	fill.Side = ledger.OrderSide(side)
	fill.Liquidity = ledger.Liquidity(liquidity)
	fill.Type = ledger.FillType(fillType)
	for _, f := range []struct {
		column string
		raw    string
		dst    *decimal.Decimal
	}{
		{"size", size, &fill.Size},
		{"price", price, &fill.Price},
		{"quote_amount", quoteAmount, &fill.QuoteAmount},
		{"fee", fee, &fill.Fee},
	} {
		if *f.dst, err = parseDecimal(f.column, f.raw); err != nil {
			return ledger.Fill{}, err
		}
	}
	if fill.EventID, err = identity.EventIDFromBytes(eventID); err != nil {
		return ledger.Fill{}, err
	}
	if clientMetadata.Valid {
		value := clientMetadata.String
		fill.ClientMetadata = &value
	}
	if fill.Metadata, err = decodeMetadata(metadata); err != nil {
		return ledger.Fill{}, err
	}
	fill.CreatedAt = fill.CreatedAt.UTC()
	return fill, nil
}

// orderClause renders explicit sort keys followed by fallback. Unknown columns are
// rejected so caller input never reaches the SQL text.
func orderClause(component string, columns map[string]string, keys []ledger.OrderBy, fallback string) (string, error) {
	parts := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		column, ok := columns[key.Column]
		if !ok {
			return "", errs.New(component, errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("cannot order by %q", key.Column)),
				errs.WithField("orderBy", key.Column))
		}
		direction := key.Direction
		if direction == "" {
			direction = ledger.Ascending
		}
		if direction != ledger.Ascending && direction != ledger.Descending {
			return "", errs.Invalid(component, errs.CanonicalUnknown,
				fmt.Sprintf("unknown sort direction %q", key.Direction))
		}
		parts = append(parts, column+" "+string(direction))
	}
	parts = append(parts, fallback)
	return strings.Join(parts, ", "), nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func fillTypeStrings(types []ledger.FillType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
