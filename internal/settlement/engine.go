package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/funding"
	"github.com/coachpo/perpindex/internal/infra/telemetry"
)

const (
	defaultWorkers = 8
	slowQuery      = 2 * time.Second
)

// Options configures an Engine. Zero values select defaults; a non-positive QueryRate
// leaves replica queries unthrottled.
type Options struct {
	Workers   int
	QueryRate float64
	Logger    zerolog.Logger
	Meter     metric.Meter
	// Funding resolves the latest funding indices for unsettled funding. Optional.
	Funding *funding.Builder
}

// Summary is the realized state of one subaccount at a height.
type Summary struct {
	SubaccountID      uuid.UUID        `json:"subaccountId"`
	Height            int64            `json:"height"`
	SettledFunding    decimal.Decimal  `json:"settledFunding"`
	// UnsettledFunding is open size * (index at last fill - latest index), so its sign
	// is opposite to SettledFunding's held * (later index - earlier index). Negate it
	// before combining the two.
	UnsettledFunding  *decimal.Decimal `json:"unsettledFunding,omitempty"`
	CostOfFills       decimal.Decimal  `json:"costOfFills"`
	OpenPositionValue decimal.Decimal  `json:"openPositionValue"`
	FeesPaid          decimal.Decimal  `json:"feesPaid"`
	ClobPairs         []string         `json:"clobPairs"`
}

// Engine runs settlement computations against a fill store.
type Engine struct {
	reader   ledger.FillReader
	funding  *funding.Builder
	workers  int
	limiter  *rate.Limiter
	logger   zerolog.Logger
	duration metric.Float64Histogram
}

// NewEngine constructs an Engine reading through reader.
func NewEngine(reader ledger.FillReader, opts Options) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.QueryRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.QueryRate), max(1, workers))
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter("settlement")
	}
	duration, err := meter.Float64Histogram("settlement.query.duration",
		metric.WithDescription("Settlement computation latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		opts.Logger.Warn().Err(err).Msg("settlement duration histogram unavailable")
		duration = nil
	}
	return &Engine{
		reader:   reader,
		funding:  opts.Funding,
		workers:  workers,
		limiter:  limiter,
		logger:   opts.Logger,
		duration: duration,
	}
}

func (e *Engine) observe(ctx context.Context, operation string, started time.Time, err error) {
	elapsed := time.Since(started)
	if e.duration != nil {
		e.duration.Record(ctx, float64(elapsed.Microseconds())/1000,
			metric.WithAttributes(telemetry.OperationAttributes(operation, err)...))
	}
	if elapsed > slowQuery {
		e.logger.Warn().Str("operation", operation).Dur("elapsed", elapsed).Msg("slow settlement query")
	}
}

func (e *Engine) wait(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("settlement: rate limit: %w", err)
	}
	return nil
}

func (e *Engine) ensureReader() error {
	if e == nil || e.reader == nil {
		return fmt.Errorf("settlement: nil fill reader")
	}
	return nil
}

// SettledFunding returns the funding realized by one subaccount on one clob pair up to
// and including height.
func (e *Engine) SettledFunding(ctx context.Context, subaccountID uuid.UUID, clobPairID string, height int64) (result decimal.Decimal, err error) {
	if err := e.ensureReader(); err != nil {
		return decimal.Zero, err
	}
	defer func(started time.Time) { e.observe(ctx, "settled_funding", started, err) }(time.Now())

	if err := e.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	rows, err := e.reader.OrderedFillsWithFundingIndices(ctx, subaccountID, clobPairID, height)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement: ordered fills %s/%s: %w", subaccountID, clobPairID, err)
	}
	result, err = SettledFunding(PairsFromRows(rows))
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement: %s/%s: %w", subaccountID, clobPairID, err)
	}
	e.logger.Debug().
		Str("subaccount_id", subaccountID.String()).
		Str("clob_pair_id", clobPairID).
		Int64("height", height).
		Int("fills", len(rows)).
		Str("settled", result.String()).
		Msg("settled funding computed")
	return result, nil
}

// TotalSettledFunding sums SettledFunding over every clob pair the subaccount traded.
// Clob pairs are computed concurrently.
func (e *Engine) TotalSettledFunding(ctx context.Context, subaccountID uuid.UUID, height int64) (decimal.Decimal, error) {
	if err := e.ensureReader(); err != nil {
		return decimal.Zero, err
	}
	if err := e.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	clobPairs, err := e.reader.ClobPairs(ctx, subaccountID, height)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement: clob pairs %s: %w", subaccountID, err)
	}
	if len(clobPairs) == 0 {
		return decimal.Zero, nil
	}

	p := pool.NewWithResults[decimal.Decimal]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(e.workers)
	for _, clobPairID := range clobPairs {
		p.Go(func(ctx context.Context) (decimal.Decimal, error) {
			return e.SettledFunding(ctx, subaccountID, clobPairID, height)
		})
	}
	parts, err := p.Wait()
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, part := range parts {
		total = total.Add(part)
	}
	return total, nil
}

// SettledFundingForSubaccounts computes TotalSettledFunding for independent subaccounts
// in parallel.
func (e *Engine) SettledFundingForSubaccounts(ctx context.Context, subaccountIDs []uuid.UUID, height int64) (map[uuid.UUID]decimal.Decimal, error) {
	out := make(map[uuid.UUID]decimal.Decimal, len(subaccountIDs))
	if len(subaccountIDs) == 0 {
		return out, nil
	}
	if err := e.ensureReader(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(e.workers)
	for _, id := range subaccountIDs {
		p.Go(func(ctx context.Context) error {
			total, err := e.TotalSettledFunding(ctx, id, height)
			if err != nil {
				return err
			}
			mu.Lock()
			out[id] = total
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// UnsettledFunding returns the funding accrued on open sizes since each clob pair's
// last fill, using the funding indices in effect at height.
func (e *Engine) UnsettledFunding(ctx context.Context, subaccountID uuid.UUID, height int64) (result decimal.Decimal, err error) {
	if err := e.ensureReader(); err != nil {
		return decimal.Zero, err
	}
	if e.funding == nil {
		return decimal.Zero, fmt.Errorf("settlement: funding builder not configured")
	}
	defer func(started time.Time) { e.observe(ctx, "unsettled_funding", started, err) }(time.Now())

	if err := e.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	open, err := e.reader.OpenSizeWithFundingIndex(ctx, subaccountID, height)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement: open sizes %s: %w", subaccountID, err)
	}
	latest, err := e.funding.IndexMap(ctx, height)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement: latest funding: %w", err)
	}
	return UnsettledFromOpenSizes(open, latest), nil
}

// Summary gathers the realized aggregates of one subaccount at height.
func (e *Engine) Summary(ctx context.Context, subaccountID uuid.UUID, height int64) (summary Summary, err error) {
	if err := e.ensureReader(); err != nil {
		return Summary{}, err
	}
	defer func(started time.Time) { e.observe(ctx, "summary", started, err) }(time.Now())

	summary = Summary{SubaccountID: subaccountID, Height: height}
	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		v, err := e.TotalSettledFunding(ctx, subaccountID, height)
		summary.SettledFunding = v
		return err
	})
	p.Go(func(ctx context.Context) error {
		if err := e.wait(ctx); err != nil {
			return err
		}
		v, err := e.reader.CostOfFills(ctx, subaccountID, height)
		if err != nil {
			return fmt.Errorf("settlement: cost of fills %s: %w", subaccountID, err)
		}
		summary.CostOfFills = v
		return nil
	})
	p.Go(func(ctx context.Context) error {
		if err := e.wait(ctx); err != nil {
			return err
		}
		v, err := e.reader.TotalValueOfOpenPositions(ctx, subaccountID, height)
		if err != nil {
			return fmt.Errorf("settlement: open position value %s: %w", subaccountID, err)
		}
		summary.OpenPositionValue = v
		return nil
	})
	p.Go(func(ctx context.Context) error {
		if err := e.wait(ctx); err != nil {
			return err
		}
		v, err := e.reader.FeesPaid(ctx, subaccountID, height)
		if err != nil {
			return fmt.Errorf("settlement: fees paid %s: %w", subaccountID, err)
		}
		summary.FeesPaid = v
		return nil
	})
	p.Go(func(ctx context.Context) error {
		if err := e.wait(ctx); err != nil {
			return err
		}
		v, err := e.reader.ClobPairs(ctx, subaccountID, height)
		if err != nil {
			return fmt.Errorf("settlement: clob pairs %s: %w", subaccountID, err)
		}
		summary.ClobPairs = v
		return nil
	})
	if e.funding != nil {
		p.Go(func(ctx context.Context) error {
			v, err := e.UnsettledFunding(ctx, subaccountID, height)
			if err != nil {
				return err
			}
			summary.UnsettledFunding = &v
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}
