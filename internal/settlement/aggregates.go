package settlement

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/internal/domain/ledger"
)

// CostOfFills sums the quote flow of fills: sells receive price*size, buys pay it.
func CostOfFills(fills []ledger.Fill) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fills {
		total = total.Add(ledger.SignedSize(f.Side, f.Price.Mul(f.Size)).Neg())
	}
	return total
}

// NetSizes returns the signed net size per clob pair.
func NetSizes(fills []ledger.Fill) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, f := range fills {
		cur, ok := out[f.ClobPairID]
		if !ok {
			cur = decimal.Zero
		}
		out[f.ClobPairID] = cur.Add(f.SignedSize())
	}
	return out
}

// OpenPositionValue sums net size times price per clob pair. Pairs without a price are
// valued at zero.
func OpenPositionValue(netSizes, prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for clobPairID, size := range netSizes {
		price, ok := prices[clobPairID]
		if !ok {
			continue
		}
		total = total.Add(size.Mul(price))
	}
	return total
}

// FeesPaid sums the fee column.
func FeesPaid(fills []ledger.Fill) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fills {
		total = total.Add(f.Fee)
	}
	return total
}

// ClobPairs returns the distinct clob pairs traded, ascending.
func ClobPairs(fills []ledger.Fill) []string {
	seen := make(map[string]struct{}, len(fills))
	out := make([]string, 0, len(fills))
	for _, f := range fills {
		if _, ok := seen[f.ClobPairID]; ok {
			continue
		}
		seen[f.ClobPairID] = struct{}{}
		out = append(out, f.ClobPairID)
	}
	sort.Slice(out, func(i, j int) bool {
		// numeric order for canonical integer ids, matching the store's BIGINT ordering
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// UnsettledFromOpenSizes sums openSize * (indexAtLastFill - latest) per clob pair: the
// funding accrued since each pair's last fill and not yet realized.
func UnsettledFromOpenSizes(open []ledger.OpenSizeWithFundingIndex, latest map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, o := range open {
		current, ok := latest[o.PerpetualID]
		if !ok {
			current = decimal.Zero
		}
		total = total.Add(o.OpenSize.Mul(o.FundingIndex.Sub(current)))
	}
	return total
}
