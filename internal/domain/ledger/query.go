package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/identity"
	"github.com/coachpo/perpindex/internal/subaccount"
)

// OrderBy is one explicit sort key.
type OrderBy struct {
	Column    string
	Direction Ordering
}

// QueryOptions carries caller-supplied ordering and the replica preference.
type QueryOptions struct {
	OrderBy     []OrderBy
	ReadReplica bool
}

// FillQuery filters fills. Zero-valued fields are ignored.
type FillQuery struct {
	ID                      []uuid.UUID
	SubaccountID            []uuid.UUID
	ParentSubaccount        *subaccount.Parent
	Side                    OrderSide
	Liquidity               Liquidity
	Type                    FillType
	IncludeTypes            []FillType
	ExcludeTypes            []FillType
	ClobPairID              string
	EventID                 *identity.EventID
	TransactionHash         string
	CreatedBeforeOrAtHeight *int64
	CreatedBeforeOrAt       *time.Time
	CreatedOnOrAfterHeight  *int64
	CreatedOnOrAfter        *time.Time
	ClientMetadata          *string
	Fee                     *decimal.Decimal
	Limit                   int
	Page                    int
}

// Validate rejects parameter combinations before any SQL is issued.
func (q FillQuery) Validate() error {
	if len(q.SubaccountID) > 0 && q.ParentSubaccount != nil {
		return errs.Invalid("fills", errs.CanonicalMutuallyExclusiveFilters,
			"Cannot specify both subaccountId and parentSubaccount in fill query")
	}
	if q.Limit < 0 || q.Page < 0 {
		return errs.Invalid("fills", errs.CanonicalUnknown, "limit and page must be non-negative")
	}
	return nil
}

// OrderQuery filters orders.
type OrderQuery struct {
	SubaccountID     []uuid.UUID
	ParentSubaccount *subaccount.Parent
	ClobPairID       string
	Statuses         []OrderStatus
	Side             OrderSide
	Limit            int
}

// Validate rejects parameter combinations before any SQL is issued.
func (q OrderQuery) Validate() error {
	if len(q.SubaccountID) > 0 && q.ParentSubaccount != nil {
		return errs.Invalid("orders", errs.CanonicalMutuallyExclusiveFilters,
			"Cannot specify both subaccountId and parentSubaccount in order query")
	}
	return nil
}

// PositionQuery filters perpetual positions.
type PositionQuery struct {
	SubaccountID []uuid.UUID
	PerpetualID  string
	Status       []PositionStatus
	Limit        int
}

// Page is a query result. Limit, Offset and Total are only set when Paginated is true.
type Page[T any] struct {
	Results   []T
	Paginated bool
	Limit     int
	Offset    int
	Total     int
}

// PageOffset returns the row offset of page; pages below 1 are treated as 1.
func PageOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

// ClosePosition carries the columns written when a position closes.
type ClosePosition struct {
	ID             uuid.UUID
	ClosedAt       time.Time
	ClosedAtHeight int64
	CloseEventID   identity.EventID
	SettledFunding decimal.Decimal
}

// SubaccountPositionUpdate is one row of a batched subaccount-update write.
type SubaccountPositionUpdate struct {
	ID             uuid.UUID
	LastEventID    identity.EventID
	SettledFunding decimal.Decimal
	Status         PositionStatus
	Size           decimal.Decimal
	ClosedAt       *time.Time
	ClosedAtHeight *int64
	CloseEventID   *identity.EventID
}

// Market24HourTradeVolume is per-market taker activity over the trailing day.
type Market24HourTradeVolume struct {
	ClobPairID string          `json:"clobPairId"`
	Trades24H  int64           `json:"trades24H"`
	Volume24H  decimal.Decimal `json:"volume24H"`
}
