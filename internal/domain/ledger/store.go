package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/internal/identity"
)

// FillWithFundingIndex is a fill annotated with the funding index in effect at its
// height and the fill that immediately preceded it in the same (subaccount, clob pair).
type FillWithFundingIndex struct {
	ID              uuid.UUID
	SubaccountID    uuid.UUID
	ClobPairID      string
	Side            OrderSide
	Size            decimal.Decimal
	CreatedAtHeight int64
	EventID         identity.EventID
	FundingIndex    decimal.Decimal

	Previous *PreviousFill
}

// PreviousFill is the prior fill in the same partition.
type PreviousFill struct {
	ID              uuid.UUID
	Side            OrderSide
	Size            decimal.Decimal
	CreatedAtHeight int64
	FundingIndex    decimal.Decimal
}

// OpenSizeWithFundingIndex is the net size of one clob pair and the funding index at
// the height of its most recent fill.
type OpenSizeWithFundingIndex struct {
	ClobPairID         string          `json:"clobPairId"`
	PerpetualID        string          `json:"perpetualId"`
	OpenSize           decimal.Decimal `json:"openSize"`
	LastFillHeight     int64           `json:"lastFillHeight"`
	FundingIndex       decimal.Decimal `json:"fundingIndex"`
	FundingIndexHeight int64           `json:"fundingIndexHeight"`
}

// FillReader serves the settlement aggregates. Implementations read from the replica.
type FillReader interface {
	OrderedFillsWithFundingIndices(ctx context.Context, subaccountID uuid.UUID, clobPairID string, height int64) ([]FillWithFundingIndex, error)
	OpenSizeWithFundingIndex(ctx context.Context, subaccountID uuid.UUID, height int64) ([]OpenSizeWithFundingIndex, error)
	CostOfFills(ctx context.Context, subaccountID uuid.UUID, height int64) (decimal.Decimal, error)
	TotalValueOfOpenPositions(ctx context.Context, subaccountID uuid.UUID, height int64) (decimal.Decimal, error)
	FeesPaid(ctx context.Context, subaccountID uuid.UUID, height int64) (decimal.Decimal, error)
	ClobPairs(ctx context.Context, subaccountID uuid.UUID, height int64) ([]string, error)
}

// FundingIndexReader serves funding index snapshots.
type FundingIndexReader interface {
	PerpetualIDs(ctx context.Context) ([]string, error)
	// LatestUpdatesAtOrBefore returns at most one update per perpetual: the latest with
	// effective height in (height-lookback, height].
	LatestUpdatesAtOrBefore(ctx context.Context, height, lookback int64) ([]FundingIndexUpdate, error)
	// UpdatesBetween returns every update with effective height in [fromHeight, toHeight].
	UpdatesBetween(ctx context.Context, fromHeight, toHeight int64) ([]FundingIndexUpdate, error)
}

// SubaccountReader looks up subaccount rows. A missing row is (nil, nil).
type SubaccountReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Subaccount, error)
}
