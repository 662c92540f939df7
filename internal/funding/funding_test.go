package funding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/perpindex/internal/domain/ledger"
)

type fakeReader struct {
	mu      sync.Mutex
	ids     []string
	updates []ledger.FundingIndexUpdate
	scans   [][2]int64
	err     error
}

func (f *fakeReader) PerpetualIDs(context.Context) ([]string, error) {
	return f.ids, f.err
}

func (f *fakeReader) LatestUpdatesAtOrBefore(_ context.Context, height, lookback int64) ([]ledger.FundingIndexUpdate, error) {
	if f.err != nil {
		return nil, f.err
	}
	latest := map[string]ledger.FundingIndexUpdate{}
	for _, u := range f.updates {
		if !InWindow(u.EffectiveAtHeight, height, lookback) {
			continue
		}
		if cur, ok := latest[u.PerpetualID]; !ok || u.EffectiveAtHeight > cur.EffectiveAtHeight {
			latest[u.PerpetualID] = u
		}
	}
	out := make([]ledger.FundingIndexUpdate, 0, len(latest))
	for _, u := range latest {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeReader) UpdatesBetween(_ context.Context, from, to int64) ([]ledger.FundingIndexUpdate, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.scans = append(f.scans, [2]int64{from, to})
	f.mu.Unlock()
	var out []ledger.FundingIndexUpdate
	for _, u := range f.updates {
		if u.EffectiveAtHeight >= from && u.EffectiveAtHeight <= to {
			out = append(out, u)
		}
	}
	return out, nil
}

func update(perpetual string, height int64, index string) ledger.FundingIndexUpdate {
	return ledger.FundingIndexUpdate{
		PerpetualID:       perpetual,
		EffectiveAtHeight: height,
		FundingIndex:      decimal.RequireFromString(index),
	}
}

func newFixture() *fakeReader {
	return &fakeReader{
		ids: []string{"0", "1", "2"},
		updates: []ledger.FundingIndexUpdate{
			update("0", 2, "10050"),
			update("0", 3, "10100"),
			update("0", 4, "10150"),
			update("0", 5, "10200"),
			update("1", 1, "-5"),
			update("1", 100, "7.5"),
		},
	}
}

func TestIndexMapPicksLatestAtOrBefore(t *testing.T) {
	b := NewBuilder(newFixture(), Config{LookbackBlocks: 1000}, zerolog.Nop())

	m, err := b.IndexMap(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, "10150", m.Get("0").String())
	require.Equal(t, "-5", m.Get("1").String())
	require.True(t, m.Get("2").IsZero())
	require.Len(t, m, 3)

	m, err = b.IndexMap(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "10200", m.Get("0").String())
}

func TestIndexMapDefaultsToZeroOutsideLookback(t *testing.T) {
	b := NewBuilder(newFixture(), Config{LookbackBlocks: 10}, zerolog.Nop())
	m, err := b.IndexMap(context.Background(), 50)
	require.NoError(t, err)
	require.True(t, m.Get("0").IsZero())
	require.True(t, m.Get("1").IsZero())

	unbounded := NewBuilder(newFixture(), Config{LookbackBlocks: -1}, zerolog.Nop())
	m, err = unbounded.IndexMap(context.Background(), 50)
	require.NoError(t, err)
	require.Equal(t, "10200", m.Get("0").String())
}

func TestIndexMapsMatchesSingleHeight(t *testing.T) {
	reader := newFixture()
	b := NewBuilder(reader, Config{LookbackBlocks: 3}, zerolog.Nop())
	heights := []int64{1, 3, 5, 9, 100, 101}

	batch, err := b.IndexMaps(context.Background(), heights)
	require.NoError(t, err)
	require.Len(t, reader.scans, 1)
	require.Equal(t, [2]int64{0, 101}, reader.scans[0])

	for _, h := range heights {
		single, err := b.IndexMap(context.Background(), h)
		require.NoError(t, err)
		for _, id := range reader.ids {
			require.True(t, single.Get(id).Equal(batch[h].Get(id)), "height %d perpetual %s", h, id)
		}
	}
	require.Equal(t, "10100", batch[3].Get("0").String())
	require.True(t, batch[9].Get("0").IsZero())
	require.Equal(t, "7.5", batch[101].Get("1").String())
}

func TestIndexMapsEmpty(t *testing.T) {
	b := NewBuilder(newFixture(), Config{}, zerolog.Nop())
	out, err := b.IndexMaps(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, DefaultLookbackBlocks, b.LookbackBlocks())
}

func TestIndexMapsChunked(t *testing.T) {
	reader := newFixture()
	b := NewBuilder(reader, Config{LookbackBlocks: 1000, WindowBlocks: 3, Workers: 2}, zerolog.Nop())
	out, err := b.IndexMapsChunked(context.Background(), []int64{5, 2, 100, 3})
	require.NoError(t, err)
	require.Len(t, out, 4)
	// {2,3} {5} {100}
	require.Len(t, reader.scans, 3)
	require.Equal(t, "10050", out[2].Get("0").String())
	require.Equal(t, "7.5", out[100].Get("1").String())
}

func TestBuilderPropagatesStoreErrors(t *testing.T) {
	reader := newFixture()
	reader.err = errors.New("replica down")
	b := NewBuilder(reader, Config{}, zerolog.Nop())
	_, err := b.IndexMap(context.Background(), 10)
	require.ErrorIs(t, err, reader.err)
	_, err = b.IndexMapsChunked(context.Background(), []int64{1, 2})
	require.ErrorIs(t, err, reader.err)
}

func TestHeightWindows(t *testing.T) {
	require.Nil(t, HeightWindows(nil, 10))
	require.Equal(t, [][]int64{{1, 5, 9, 10}, {15}, {30}}, HeightWindows([]int64{9, 1, 30, 15, 5, 10, 5}, 10))
	require.Equal(t, [][]int64{{0}, {10}}, HeightWindows([]int64{10, 0}, 10))
	require.Equal(t, [][]int64{{0, 9}, {10}}, HeightWindows([]int64{0, 9, 10}, 10))
	require.Equal(t, [][]int64{{1, 2, 3}}, HeightWindows([]int64{3, 2, 1}, 0))
}

func TestUnsettledFunding(t *testing.T) {
	positions := []ledger.PerpetualPosition{
		{PerpetualID: "0", Side: ledger.PositionLong, Size: decimal.NewFromInt(10)},
		{PerpetualID: "1", Side: ledger.PositionShort, Size: decimal.NewFromInt(2)},
	}
	lastUpdated := Map{"0": decimal.NewFromInt(100), "1": decimal.NewFromInt(1000)}
	latest := Map{"0": decimal.NewFromInt(200), "1": decimal.NewFromInt(2000)}

	got := UnsettledFunding(positions, latest, lastUpdated)
	// 10 * (100 - 200) + (-2) * (1000 - 2000)
	require.Equal(t, "1000", got.String())
	require.True(t, UnsettledFunding(nil, latest, lastUpdated).IsZero())
}
