// Package settlement computes realized funding and position aggregates from a
// subaccount's ordered fills.
//
// Fills are partitioned by (subaccount, clob pair). Inside a partition funding accrues
// between consecutive fills on the size held after the earlier one, so each partition is
// walked strictly in height order. Partitions are independent of each other.
package settlement

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/domain/ledger"
)

// Pair is a fill and the fill that immediately preceded it in the same partition.
type Pair struct {
	Previous ledger.FillWithFundingIndex
	Current  ledger.FillWithFundingIndex
}

type partitionKey struct {
	subaccountID uuid.UUID
	clobPairID   string
}

func keyOf(f ledger.FillWithFundingIndex) partitionKey {
	return partitionKey{subaccountID: f.SubaccountID, clobPairID: f.ClobPairID}
}

// PairFills orders fills by (height, event id), the order the store's window query uses,
// and pairs each with its predecessor in the same partition. The first fill of a
// partition has no pair.
func PairFills(fills []ledger.FillWithFundingIndex) []Pair {
	ordered := append([]ledger.FillWithFundingIndex(nil), fills...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAtHeight != ordered[j].CreatedAtHeight {
			return ordered[i].CreatedAtHeight < ordered[j].CreatedAtHeight
		}
		return bytes.Compare(ordered[i].EventID[:], ordered[j].EventID[:]) < 0
	})

	last := make(map[partitionKey]ledger.FillWithFundingIndex)
	var pairs []Pair
	for _, f := range ordered {
		k := keyOf(f)
		if prev, ok := last[k]; ok {
			pairs = append(pairs, Pair{Previous: prev, Current: f})
		}
		last[k] = f
	}
	return pairs
}

// PairsFromRows builds pairs from rows that already carry their predecessor, as returned
// by the windowed store query. Rows without a predecessor open a partition and yield no
// pair.
func PairsFromRows(rows []ledger.FillWithFundingIndex) []Pair {
	pairs := make([]Pair, 0, len(rows))
	for _, row := range rows {
		if row.Previous == nil {
			continue
		}
		prev := ledger.FillWithFundingIndex{
			ID:              row.Previous.ID,
			SubaccountID:    row.SubaccountID,
			ClobPairID:      row.ClobPairID,
			Side:            row.Previous.Side,
			Size:            row.Previous.Size,
			CreatedAtHeight: row.Previous.CreatedAtHeight,
			FundingIndex:    row.Previous.FundingIndex,
		}
		current := row
		current.Previous = nil
		pairs = append(pairs, Pair{Previous: prev, Current: current})
	}
	return pairs
}

// SettledFunding sums held * (indexCurrent - indexPrevious) over consecutive pairs.
// Pairs of one partition must be in height order; a pair whose fill lies below the
// partition's last height fails with an invalid request error.
func SettledFunding(pairs []Pair) (decimal.Decimal, error) {
	acc := NewAccumulator()
	for _, p := range pairs {
		if !acc.Seen(p.Previous) {
			if _, err := acc.Add(p.Previous); err != nil {
				return decimal.Zero, err
			}
		}
		if _, err := acc.Add(p.Current); err != nil {
			return decimal.Zero, err
		}
	}
	return acc.Total(), nil
}

type partitionState struct {
	held         decimal.Decimal
	fundingIndex decimal.Decimal
	height       int64
}

// Accumulator computes settled funding one fill at a time. Feeding it the fills of a
// partition in order gives the same total as SettledFunding over their pairs.
type Accumulator struct {
	partitions map[partitionKey]*partitionState
	total      decimal.Decimal
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{partitions: make(map[partitionKey]*partitionState), total: decimal.Zero}
}

// Seen reports whether a fill of f's partition was already added.
func (a *Accumulator) Seen(f ledger.FillWithFundingIndex) bool {
	_, ok := a.partitions[keyOf(f)]
	return ok
}

// Add applies f and returns the funding it settled against the previous fill of its
// partition. A fill below the partition's last height is rejected.
func (a *Accumulator) Add(f ledger.FillWithFundingIndex) (decimal.Decimal, error) {
	k := keyOf(f)
	state, ok := a.partitions[k]
	if !ok {
		a.partitions[k] = &partitionState{
			held:         ledger.SignedSize(f.Side, f.Size),
			fundingIndex: f.FundingIndex,
			height:       f.CreatedAtHeight,
		}
		return decimal.Zero, nil
	}
	if f.CreatedAtHeight < state.height {
		return decimal.Zero, errs.New("settlement", errs.CodeInvalid,
			errs.WithMessage("fills must be added in height order"),
			errs.WithField("clobPairId", f.ClobPairID))
	}

	contribution := decimal.Zero
	if !f.FundingIndex.Equal(state.fundingIndex) {
		contribution = state.held.Mul(f.FundingIndex.Sub(state.fundingIndex))
		a.total = a.total.Add(contribution)
	}
	state.held = state.held.Add(ledger.SignedSize(f.Side, f.Size))
	state.fundingIndex = f.FundingIndex
	state.height = f.CreatedAtHeight
	return contribution, nil
}

// Held returns the running signed size of a partition.
func (a *Accumulator) Held(subaccountID uuid.UUID, clobPairID string) decimal.Decimal {
	if state, ok := a.partitions[partitionKey{subaccountID: subaccountID, clobPairID: clobPairID}]; ok {
		return state.held
	}
	return decimal.Zero
}

// Total returns the funding settled so far.
func (a *Accumulator) Total() decimal.Decimal { return a.total }
