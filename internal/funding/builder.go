package funding

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/infra/telemetry"
)

const (
	// DefaultLookbackBlocks is four hours of one-second blocks.
	DefaultLookbackBlocks int64 = 4 * 60 * 60
	// DefaultWindowBlocks bounds the height span of one batched scan.
	DefaultWindowBlocks int64 = 250_000
	defaultWorkers            = 4
)

// Config sizes the builder.
type Config struct {
	LookbackBlocks int64
	WindowBlocks   int64
	Workers        int
}

// LookbackBlocksFor derives a block count from a duration and the expected block time.
func LookbackBlocksFor(lookback, blockTime time.Duration) int64 {
	if lookback <= 0 || blockTime <= 0 {
		return DefaultLookbackBlocks
	}
	return int64(lookback / blockTime)
}

func (c Config) withDefaults() Config {
	if c.LookbackBlocks == 0 {
		c.LookbackBlocks = DefaultLookbackBlocks
	}
	if c.WindowBlocks <= 0 {
		c.WindowBlocks = DefaultWindowBlocks
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	return c
}

// Builder assembles funding index maps from a store.
type Builder struct {
	reader   ledger.FundingIndexReader
	cfg      Config
	logger   zerolog.Logger
	duration metric.Float64Histogram
}

// NewBuilder constructs a Builder. A zero LookbackBlocks uses DefaultLookbackBlocks; a
// negative value disables the window.
func NewBuilder(reader ledger.FundingIndexReader, cfg Config, logger zerolog.Logger) *Builder {
	b := &Builder{reader: reader, cfg: cfg.withDefaults(), logger: logger}
	duration, err := otel.Meter("funding").Float64Histogram("funding.index_map.duration",
		metric.WithDescription("Funding index map build latency"),
		metric.WithUnit("ms"))
	if err == nil {
		b.duration = duration
	}
	return b
}

func (b *Builder) observe(ctx context.Context, operation string, started time.Time, err error) {
	if b.duration == nil {
		return
	}
	b.duration.Record(ctx, float64(time.Since(started).Microseconds())/1000,
		metric.WithAttributes(telemetry.OperationAttributes(operation, err)...))
}

// LookbackBlocks returns the effective lookback.
func (b *Builder) LookbackBlocks() int64 { return b.cfg.LookbackBlocks }

// IndexMap returns the funding index of every known perpetual at height.
func (b *Builder) IndexMap(ctx context.Context, height int64) (_ Map, err error) {
	if b.reader == nil {
		return nil, fmt.Errorf("funding builder: nil reader")
	}
	defer func(started time.Time) { b.observe(ctx, "index_map", started, err) }(time.Now())

	ids, err := b.reader.PerpetualIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("funding builder: perpetual ids: %w", err)
	}
	updates, err := b.reader.LatestUpdatesAtOrBefore(ctx, height, b.cfg.LookbackBlocks)
	if err != nil {
		return nil, fmt.Errorf("funding builder: latest updates at %d: %w", height, err)
	}
	out := NewMap(ids)
	for _, u := range updates {
		if !InWindow(u.EffectiveAtHeight, height, b.cfg.LookbackBlocks) {
			continue
		}
		out[u.PerpetualID] = u.FundingIndex
	}
	b.logger.Debug().Int64("height", height).Int("perpetuals", len(ids)).Int("updates", len(updates)).Msg("funding index map built")
	return out, nil
}

// IndexMaps resolves several heights with one scan bounded by their min and max.
func (b *Builder) IndexMaps(ctx context.Context, heights []int64) (_ map[int64]Map, err error) {
	if len(heights) == 0 {
		return map[int64]Map{}, nil
	}
	if b.reader == nil {
		return nil, fmt.Errorf("funding builder: nil reader")
	}
	defer func(started time.Time) { b.observe(ctx, "index_maps", started, err) }(time.Now())

	minHeight, maxHeight := heights[0], heights[0]
	for _, h := range heights[1:] {
		minHeight = min(minHeight, h)
		maxHeight = max(maxHeight, h)
	}
	ids, err := b.reader.PerpetualIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("funding builder: perpetual ids: %w", err)
	}
	from := int64(0)
	if b.cfg.LookbackBlocks > 0 {
		from = max(0, minHeight-b.cfg.LookbackBlocks+1)
	}
	updates, err := b.reader.UpdatesBetween(ctx, from, maxHeight)
	if err != nil {
		return nil, fmt.Errorf("funding builder: updates %d..%d: %w", from, maxHeight, err)
	}
	return Resolve(ids, updates, heights, b.cfg.LookbackBlocks), nil
}

// IndexMapsChunked splits heights into windows of WindowBlocks and resolves the windows
// concurrently, so a wide spread of heights never turns into one unbounded scan.
func (b *Builder) IndexMapsChunked(ctx context.Context, heights []int64) (map[int64]Map, error) {
	windows := HeightWindows(heights, b.cfg.WindowBlocks)
	if len(windows) == 0 {
		return map[int64]Map{}, nil
	}
	p := pool.NewWithResults[map[int64]Map]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(b.cfg.Workers)
	for _, window := range windows {
		p.Go(func(ctx context.Context) (map[int64]Map, error) {
			return b.IndexMaps(ctx, window)
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Map, len(heights))
	for _, r := range results {
		for h, m := range r {
			out[h] = m
		}
	}
	return out, nil
}
