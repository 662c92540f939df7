// Package funding reconstructs the funding index in effect for every perpetual market at
// a block height.
//
// Only updates inside a lookback window ending at the queried height are considered.
// The window assumes funding updates land far more often than once per window; a market
// whose latest update is older than the window resolves to zero.
package funding

import (
	"bytes"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/internal/domain/ledger"
)

// Map is a funding index per perpetual id.
type Map map[string]decimal.Decimal

// Get returns the index for perpetualID, or zero when absent.
func (m Map) Get(perpetualID string) decimal.Decimal {
	if v, ok := m[perpetualID]; ok {
		return v
	}
	return decimal.Zero
}

// NewMap returns a map with every id set to zero.
func NewMap(perpetualIDs []string) Map {
	out := make(Map, len(perpetualIDs))
	for _, id := range perpetualIDs {
		out[id] = decimal.Zero
	}
	return out
}

// InWindow reports whether an update effective at effectiveAt is visible from height.
// A non-positive lookback disables the lower bound.
func InWindow(effectiveAt, height, lookback int64) bool {
	if effectiveAt > height {
		return false
	}
	if lookback <= 0 {
		return true
	}
	return effectiveAt > height-lookback
}

// Resolve picks, for every height and every perpetual, the update with the greatest
// effective height not exceeding that height and inside the lookback window. Updates
// sharing an effective height are ordered by event id. Perpetuals without a visible
// update resolve to zero.
func Resolve(perpetualIDs []string, updates []ledger.FundingIndexUpdate, heights []int64, lookback int64) map[int64]Map {
	byPerpetual := make(map[string][]ledger.FundingIndexUpdate)
	for _, u := range updates {
		byPerpetual[u.PerpetualID] = append(byPerpetual[u.PerpetualID], u)
	}
	for _, list := range byPerpetual {
		sort.Slice(list, func(i, j int) bool {
			if list[i].EffectiveAtHeight != list[j].EffectiveAtHeight {
				return list[i].EffectiveAtHeight < list[j].EffectiveAtHeight
			}
			return bytes.Compare(list[i].EventID[:], list[j].EventID[:]) < 0
		})
	}

	out := make(map[int64]Map, len(heights))
	for _, h := range heights {
		if _, done := out[h]; done {
			continue
		}
		m := NewMap(perpetualIDs)
		for id, list := range byPerpetual {
			idx := sort.Search(len(list), func(i int) bool { return list[i].EffectiveAtHeight > h }) - 1
			if idx < 0 {
				continue
			}
			if !InWindow(list[idx].EffectiveAtHeight, h, lookback) {
				continue
			}
			m[id] = list[idx].FundingIndex
		}
		out[h] = m
	}
	return out
}

// HeightWindows splits heights into ascending groups whose span stays below window.
// Duplicates collapse. A non-positive window yields a single group.
func HeightWindows(heights []int64, window int64) [][]int64 {
	if len(heights) == 0 {
		return nil
	}
	sorted := append([]int64(nil), heights...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	uniq := []int64{sorted[0]}
	for _, h := range sorted[1:] {
		if h != uniq[len(uniq)-1] {
			uniq = append(uniq, h)
		}
	}
	if window <= 0 {
		return [][]int64{uniq}
	}

	var windows [][]int64
	start := uniq[0]
	current := []int64{}
	for _, h := range uniq {
		if h-start < window {
			current = append(current, h)
			continue
		}
		windows = append(windows, current)
		current = []int64{h}
		start = h
	}
	return append(windows, current)
}

// UnsettledFunding sums signedSize * (lastUpdated - latest) across positions: the funding
// accrued since each position was last settled.
func UnsettledFunding(positions []ledger.PerpetualPosition, latest, lastUpdated Map) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		delta := lastUpdated.Get(p.PerpetualID).Sub(latest.Get(p.PerpetualID))
		total = total.Add(p.SignedSize().Mul(delta))
	}
	return total
}
