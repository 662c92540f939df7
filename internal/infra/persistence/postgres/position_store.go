package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/identity"
)

const positionComponent = "perpetual_positions"

const (
	positionColumns = `
    id,
    subaccount_id,
    perpetual_id,
    side,
    status,
    size,
    max_size,
    entry_price,
    exit_price,
    sum_open,
    sum_close,
    created_at,
    created_at_height,
    closed_at,
    closed_at_height,
    open_event_id,
    close_event_id,
    last_event_id,
    settled_funding
`
	positionColumnCount = 19

	positionSelectBase = `
SELECT
    p.id::text,
    p.subaccount_id::text,
    p.perpetual_id::text,
    p.side,
    p.status,
    p.size::text,
    p.max_size::text,
    p.entry_price::text,
    p.exit_price::text,
    p.sum_open::text,
    p.sum_close::text,
    p.created_at,
    p.created_at_height,
    p.closed_at,
    p.closed_at_height,
    p.open_event_id,
    p.close_event_id,
    p.last_event_id,
    p.settled_funding::text
FROM perpetual_positions p
`

	positionLockSQL = `SELECT status FROM perpetual_positions WHERE id = $1 FOR UPDATE;`

	positionCloseSQL = `
UPDATE perpetual_positions
SET status = 'CLOSED',
    size = 0,
    closed_at = @closed_at,
    closed_at_height = @closed_at_height,
    close_event_id = @close_event_id,
    last_event_id = @close_event_id,
    settled_funding = @settled_funding
WHERE id = @id;
`

	// Columns of one VALUES row in a subaccount-fields batch, with explicit casts so
	// NULL close columns keep their types.
	subaccountFieldsRow = "(%s::uuid, %s::bytea, %s::numeric, %s::text, %s::numeric, %s::timestamptz, %s::bigint, %s::bytea)"

	subaccountFieldsUpdateSQL = `
UPDATE perpetual_positions AS p
SET last_event_id = v.last_event_id,
    settled_funding = v.settled_funding,
    status = v.status,
    size = v.size,
    max_size = GREATEST(p.max_size, v.size),
    closed_at = COALESCE(v.closed_at, p.closed_at),
    closed_at_height = COALESCE(v.closed_at_height, p.closed_at_height),
    close_event_id = COALESCE(v.close_event_id, p.close_event_id)
FROM (VALUES %s) AS v(id, last_event_id, settled_funding, status, size, closed_at, closed_at_height, close_event_id)
WHERE p.id = v.id;
`

	defaultPositionLimit = 100
	maxPositionLimit     = 1000
)

// PositionTx exposes the position writes available inside WithTransaction.
type PositionTx interface {
	Create(ctx context.Context, position ledger.PerpetualPosition) (ledger.PerpetualPosition, error)
	ClosePosition(ctx context.Context, close ledger.ClosePosition) (*ledger.PerpetualPosition, error)
	BulkUpdateSubaccountFields(ctx context.Context, updates []ledger.SubaccountPositionUpdate) (int64, error)
}

// PerpetualPositionStore persists perpetual positions.
type PerpetualPositionStore struct {
	pools
}

type positionTx struct {
	tx    pgx.Tx
	store *PerpetualPositionStore
}

// NewPerpetualPositionStore constructs a PerpetualPositionStore. A nil replica reads
// from primary.
func NewPerpetualPositionStore(primary, replica *pgxpool.Pool) *PerpetualPositionStore {
	return &PerpetualPositionStore{pools: newPools("position store", primary, replica)}
}

// Create inserts position, deriving its id from (subaccount, openEventId) when unset.
func (s *PerpetualPositionStore) Create(ctx context.Context, position ledger.PerpetualPosition) (ledger.PerpetualPosition, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return ledger.PerpetualPosition{}, err
	}
	return s.createWith(ctx, pool, position)
}

// BulkCreate inserts positions with one multi-row statement.
func (s *PerpetualPositionStore) BulkCreate(ctx context.Context, positions []ledger.PerpetualPosition) ([]ledger.PerpetualPosition, error) {
	if len(positions) == 0 {
		return nil, nil
	}
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	var args argList
	rows := make([]string, 0, len(positions))
	out := make([]ledger.PerpetualPosition, 0, len(positions))
	for _, position := range positions {
		values, err := positionValues(position)
		if err != nil {
			return nil, err
		}
		placeholders := make([]string, len(values))
		for i, value := range values {
			placeholders[i] = args.add(value)
		}
		rows = append(rows, "("+strings.Join(placeholders, ", ")+")")
		out = append(out, withPositionID(position))
	}
	query := "INSERT INTO perpetual_positions (" + positionColumns + ") VALUES " + strings.Join(rows, ", ")
	_, err = pool.Exec(ctx, query, args.values...)
	s.record(ctx, "bulk_create", err)
	if err != nil {
		return nil, fmt.Errorf("position store: bulk insert: %w", err)
	}
	return out, nil
}

func (s *PerpetualPositionStore) createWith(ctx context.Context, exec execer, position ledger.PerpetualPosition) (ledger.PerpetualPosition, error) {
	values, err := positionValues(position)
	if err != nil {
		return ledger.PerpetualPosition{}, err
	}
	var args argList
	placeholders := make([]string, len(values))
	for i, value := range values {
		placeholders[i] = args.add(value)
	}
	query := "INSERT INTO perpetual_positions (" + positionColumns + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
	_, err = exec.Exec(ctx, query, args.values...)
	s.record(ctx, "create", err)
	if err != nil {
		return ledger.PerpetualPosition{}, fmt.Errorf("position store: insert position: %w", err)
	}
	return withPositionID(position), nil
}

func withPositionID(p ledger.PerpetualPosition) ledger.PerpetualPosition {
	if p.ID == uuid.Nil {
		p.ID = identity.PerpetualPosition(p.SubaccountID, p.OpenEventID)
	}
	return p
}

func positionValues(p ledger.PerpetualPosition) ([]any, error) {
	perpetualID, err := parseID(positionComponent, "perpetualId", p.PerpetualID)
	if err != nil {
		return nil, err
	}
	p = withPositionID(p)
	var closeEventID []byte
	if p.CloseEventID != nil {
		closeEventID = p.CloseEventID.Bytes()
	}
	var closedAt pgtype.Timestamptz
	if p.ClosedAt != nil {
		closedAt = pgtype.Timestamptz{Time: p.ClosedAt.UTC(), Valid: true}
	}
	values := []any{
		p.ID.String(),
		p.SubaccountID.String(),
		perpetualID,
		string(p.Side),
		string(p.Status),
		numericFromDecimal(p.Size),
		numericFromDecimal(p.MaxSize),
		numericFromDecimal(p.EntryPrice),
		numericFromOptional(p.ExitPrice),
		numericFromDecimal(p.SumOpen),
		numericFromDecimal(p.SumClose),
		p.CreatedAt.UTC(),
		p.CreatedAtHeight,
		closedAt,
		p.ClosedAtHeight,
		p.OpenEventID.Bytes(),
		closeEventID,
		p.LastEventID.Bytes(),
		numericFromDecimal(p.SettledFunding),
	}
	if len(values) != positionColumnCount {
		return nil, fmt.Errorf("position store: %d values for %d columns", len(values), positionColumnCount)
	}
	return values, nil
}

// FindByID returns the position with id, or nil when absent.
func (s *PerpetualPositionStore) FindByID(ctx context.Context, id uuid.UUID) (*ledger.PerpetualPosition, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, pool, positionSelectBase+" WHERE p.id = $1", id.String())
}

// FindOpenPositionForSubaccountPerpetual returns the open position of a subaccount in a
// perpetual, or nil when none is open.
func (s *PerpetualPositionStore) FindOpenPositionForSubaccountPerpetual(ctx context.Context, subaccountID uuid.UUID, perpetualID string) (*ledger.PerpetualPosition, error) {
	id, err := parseID(positionComponent, "perpetualId", perpetualID)
	if err != nil {
		return nil, err
	}
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, pool, positionSelectBase+`
WHERE p.subaccount_id = $1 AND p.perpetual_id = $2 AND p.status = 'OPEN'
ORDER BY p.created_at_height DESC
LIMIT 1`, subaccountID.String(), id)
}

func (s *PerpetualPositionStore) findOne(ctx context.Context, q querier, query string, args ...any) (*ledger.PerpetualPosition, error) {
	position, err := scanPosition(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("position store: find position: %w", err)
	}
	return &position, nil
}

// FindAll retrieves positions matching query, newest first.
func (s *PerpetualPositionStore) FindAll(ctx context.Context, query ledger.PositionQuery, opts ledger.QueryOptions) ([]ledger.PerpetualPosition, error) {
	pool, err := s.reader(opts.ReadReplica)
	if err != nil {
		return nil, err
	}
	var args argList
	conds := make([]string, 0, 3)
	if len(query.SubaccountID) > 0 {
		conds = append(conds, "p.subaccount_id = ANY("+args.add(uuidStrings(query.SubaccountID))+"::uuid[])")
	}
	if query.PerpetualID != "" {
		id, err := parseID(positionComponent, "perpetualId", query.PerpetualID)
		if err != nil {
			return nil, err
		}
		conds = append(conds, "p.perpetual_id = "+args.add(id))
	}
	if len(query.Status) > 0 {
		statuses := make([]string, len(query.Status))
		for i, status := range query.Status {
			statuses[i] = string(status)
		}
		conds = append(conds, "p.status = ANY("+args.add(statuses)+"::text[])")
	}
	builder := strings.Builder{}
	builder.WriteString(positionSelectBase)
	if len(conds) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conds, " AND "))
	}
	limit := clampLimit(query.Limit, defaultPositionLimit, maxPositionLimit)
	fmt.Fprintf(&builder, " ORDER BY p.created_at_height DESC, p.id LIMIT %s", args.add(limit))

	rows, err := pool.Query(ctx, builder.String(), args.values...)
	if err != nil {
		return nil, fmt.Errorf("position store: list positions: %w", err)
	}
	positions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.PerpetualPosition, error) {
		return scanPosition(row)
	})
	if err != nil {
		return nil, fmt.Errorf("position store: scan positions: %w", err)
	}
	return positions, nil
}

// ClosePosition marks a position closed at the given event. Closing an already closed
// position is a conflict; a missing position is not found.
func (s *PerpetualPositionStore) ClosePosition(ctx context.Context, close ledger.ClosePosition) (*ledger.PerpetualPosition, error) {
	var out *ledger.PerpetualPosition
	err := s.WithTransaction(ctx, func(ctx context.Context, tx PositionTx) error {
		closed, err := tx.ClosePosition(ctx, close)
		out = closed
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PerpetualPositionStore) closeWith(ctx context.Context, q querier, close ledger.ClosePosition) (*ledger.PerpetualPosition, error) {
	var status string
	err := q.QueryRow(ctx, positionLockSQL, close.ID.String()).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(positionComponent, errs.CodeNotFound,
			errs.WithMessage(fmt.Sprintf("Unable to find perpetual position with id: %s", close.ID)),
			errs.WithField("id", close.ID.String()))
	}
	if err != nil {
		return nil, fmt.Errorf("position store: lock position: %w", err)
	}
	if ledger.PositionStatus(status) == ledger.PositionClosed {
		return nil, errs.New(positionComponent, errs.CodeConflict,
			errs.WithMessage("Unable to close because position is closed"),
			errs.WithCanonicalCode(errs.CanonicalPositionClosed),
			errs.WithField("id", close.ID.String()))
	}
	_, err = q.Exec(ctx, positionCloseSQL, pgx.NamedArgs{
		"id":               close.ID.String(),
		"closed_at":        close.ClosedAt.UTC(),
		"closed_at_height": close.ClosedAtHeight,
		"close_event_id":   close.CloseEventID.Bytes(),
		"settled_funding":  numericFromDecimal(close.SettledFunding),
	})
	s.record(ctx, "close", err)
	if err != nil {
		return nil, fmt.Errorf("position store: close position: %w", err)
	}
	return s.findOne(ctx, q, positionSelectBase+" WHERE p.id = $1", close.ID.String())
}

// BulkUpdateSubaccountFields applies a batch of subaccount-update writes in one
// statement on the primary pool. Use the PositionTx variant to join a transaction.
func (s *PerpetualPositionStore) BulkUpdateSubaccountFields(ctx context.Context, updates []ledger.SubaccountPositionUpdate) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	pool, err := s.ensurePool()
	if err != nil {
		return 0, err
	}
	return s.bulkUpdateWith(ctx, pool, updates)
}

func (s *PerpetualPositionStore) bulkUpdateWith(ctx context.Context, exec execer, updates []ledger.SubaccountPositionUpdate) (int64, error) {
	updates = lastWriterWins(updates)
	if len(updates) == 0 {
		return 0, nil
	}
	var args argList
	rows := make([]string, 0, len(updates))
	for _, u := range updates {
		var closedAt pgtype.Timestamptz
		if u.ClosedAt != nil {
			closedAt = pgtype.Timestamptz{Time: u.ClosedAt.UTC(), Valid: true}
		}
		var closeEventID []byte
		if u.CloseEventID != nil {
			closeEventID = u.CloseEventID.Bytes()
		}
		rows = append(rows, fmt.Sprintf(subaccountFieldsRow,
			args.add(u.ID.String()),
			args.add(u.LastEventID.Bytes()),
			args.add(numericFromDecimal(u.SettledFunding)),
			args.add(string(u.Status)),
			args.add(numericFromDecimal(u.Size)),
			args.add(closedAt),
			args.add(u.ClosedAtHeight),
			args.add(closeEventID),
		))
	}
	tag, err := exec.Exec(ctx, fmt.Sprintf(subaccountFieldsUpdateSQL, strings.Join(rows, ", ")), args.values...)
	s.record(ctx, "bulk_update", err)
	if err != nil {
		return 0, fmt.Errorf("position store: bulk update subaccount fields: %w", err)
	}
	return tag.RowsAffected(), nil
}

// lastWriterWins keeps the last update of each id, in order of those last occurrences.
func lastWriterWins(updates []ledger.SubaccountPositionUpdate) []ledger.SubaccountPositionUpdate {
	last := make(map[uuid.UUID]int, len(updates))
	for i, u := range updates {
		last[u.ID] = i
	}
	out := make([]ledger.SubaccountPositionUpdate, 0, len(last))
	for i, u := range updates {
		if last[u.ID] == i {
			out = append(out, u)
		}
	}
	return out
}

// WithTransaction executes fn within a read-committed transaction on the primary pool.
func (s *PerpetualPositionStore) WithTransaction(ctx context.Context, fn func(context.Context, PositionTx) error) error {
	if fn == nil {
		return fmt.Errorf("position store: transaction callback required")
	}
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return withTransaction(ctx, pool, "position store", func(tx pgx.Tx) error {
		return fn(ctx, &positionTx{tx: tx, store: s})
	})
}

func (t *positionTx) Create(ctx context.Context, position ledger.PerpetualPosition) (ledger.PerpetualPosition, error) {
	if t == nil {
		return ledger.PerpetualPosition{}, fmt.Errorf("position store: nil transaction")
	}
	return t.store.createWith(ctx, t.tx, position)
}

func (t *positionTx) ClosePosition(ctx context.Context, close ledger.ClosePosition) (*ledger.PerpetualPosition, error) {
	if t == nil {
		return nil, fmt.Errorf("position store: nil transaction")
	}
	return t.store.closeWith(ctx, t.tx, close)
}

func (t *positionTx) BulkUpdateSubaccountFields(ctx context.Context, updates []ledger.SubaccountPositionUpdate) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("position store: nil transaction")
	}
	return t.store.bulkUpdateWith(ctx, t.tx, updates)
}

func scanPosition(row pgx.Row) (ledger.PerpetualPosition, error) {
	var (
		p                                    ledger.PerpetualPosition
		id, sub, side, status                string
		size, maxSize, entryPrice            string
		sumOpen, sumClose, settledFunding    string
		exitPrice                            sql.NullString
		closedAt                             pgtype.Timestamptz
		closedAtHeight                       pgtype.Int8
		openEventID, closeEventID, lastEvent []byte
	)
	if err := row.Scan(
		&id,
		&sub,
		&p.PerpetualID,
		&side,
		&status,
		&size,
		&maxSize,
		&entryPrice,
		&exitPrice,
		&sumOpen,
		&sumClose,
		&p.CreatedAt,
		&p.CreatedAtHeight,
		&closedAt,
		&closedAtHeight,
		&openEventID,
		&closeEventID,
		&lastEvent,
		&settledFunding,
	); err != nil {
		return ledger.PerpetualPosition{}, err
	}
	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return ledger.PerpetualPosition{}, fmt.Errorf("parse position id: %w", err)
	}
	if p.SubaccountID, err = uuid.Parse(sub); err != nil {
		return ledger.PerpetualPosition{}, fmt.Errorf("parse subaccount id: %w", err)
	}
	p.Side = ledger.PositionSide(side)
	p.Status = ledger.PositionStatus(status)
	for _, f := range []struct {
		column string
		raw    string
		dst    *decimal.Decimal
	}{
		{"size", size, &p.Size},
		{"max_size", maxSize, &p.MaxSize},
		{"entry_price", entryPrice, &p.EntryPrice},
		{"sum_open", sumOpen, &p.SumOpen},
		{"sum_close", sumClose, &p.SumClose},
		{"settled_funding", settledFunding, &p.SettledFunding},
	} {
		if *f.dst, err = parseDecimal(f.column, f.raw); err != nil {
			return ledger.PerpetualPosition{}, err
		}
	}
	if p.ExitPrice, err = parseOptionalDecimal("exit_price", exitPrice); err != nil {
		return ledger.PerpetualPosition{}, err
	}
	if closedAt.Valid {
		v := closedAt.Time.UTC()
		p.ClosedAt = &v
	}
	if closedAtHeight.Valid {
		v := closedAtHeight.Int64
		p.ClosedAtHeight = &v
	}
	if p.OpenEventID, err = identity.EventIDFromBytes(openEventID); err != nil {
		return ledger.PerpetualPosition{}, err
	}
	if p.LastEventID, err = identity.EventIDFromBytes(lastEvent); err != nil {
		return ledger.PerpetualPosition{}, err
	}
	if closeEventID != nil {
		v, err := identity.EventIDFromBytes(closeEventID)
		if err != nil {
			return ledger.PerpetualPosition{}, err
		}
		p.CloseEventID = &v
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}
