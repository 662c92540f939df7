package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/identity"
	"github.com/coachpo/perpindex/internal/subaccount"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) (any, error)
}

var commands = map[string]command{
	"migrate": {
		usage: "apply the embedded schema migrations",
		run: func(context.Context, *app, []string) (any, error) {
			return map[string]string{"status": "migrated"}, nil
		},
	},
	"seed": {
		usage: "apply the genesis markets and liquidity tiers",
		run: func(ctx context.Context, a *app, _ []string) (any, error) {
			return a.store.Seeder.Seed(ctx)
		},
	},
	"funding-index": {
		usage: "-height N [-height M ...]: funding index maps at heights",
		run:   runFundingIndex,
	},
	"settled-funding": {
		usage: "-subaccount ID | -address A -number N, -height N [-clob ID]",
		run:   runSettledFunding,
	},
	"summary": {
		usage: "-subaccount ID | -address A -number N, -height N",
		run:   runSummary,
	},
	"fills": {
		usage: "-subaccount ID | -address A -number N | -parent-address A -parent N, [-clob ID] [-limit N] [-page N]",
		run:   runFills,
	},
	"positions": {
		usage: "-subaccount ID | -address A -number N, [-status OPEN] [-limit N]",
		run:   runPositions,
	},
	"order-to-protocol": {
		usage: "-order ID: encode a stored long-term or conditional order",
		run:   runOrderToProtocol,
	},
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

// heightList collects repeated -height flags.
type heightList []int64

func (h *heightList) String() string { return fmt.Sprint(*h) }

func (h *heightList) Set(v string) error {
	var n int64
	if _, err := fmt.Sscan(v, &n); err != nil {
		return fmt.Errorf("invalid height %q", v)
	}
	*h = append(*h, n)
	return nil
}

// subaccountFlags selects one subaccount by id or by (address, number).
type subaccountFlags struct {
	id      string
	address string
	number  uint
}

func (s *subaccountFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.id, "subaccount", "", "subaccount uuid")
	fs.StringVar(&s.address, "address", "", "subaccount owner address")
	fs.UintVar(&s.number, "number", 0, "subaccount number")
}

func (s subaccountFlags) resolve() (uuid.UUID, error) {
	if s.id != "" {
		if s.address != "" {
			return uuid.Nil, errs.New("ledgerctl", errs.CodeInvalid,
				errs.WithMessage("Cannot filter by both subaccount id and address"),
				errs.WithCanonicalCode(errs.CanonicalMutuallyExclusiveFilters))
		}
		id, err := uuid.Parse(s.id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid subaccount id %q: %w", s.id, err)
		}
		return id, nil
	}
	if s.address == "" {
		return uuid.Nil, errors.New("-subaccount or -address is required")
	}
	if s.number > uint(^uint32(0)) {
		return uuid.Nil, fmt.Errorf("subaccount number %d out of range", s.number)
	}
	return identity.Subaccount(s.address, uint32(s.number)), nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runFundingIndex(ctx context.Context, a *app, args []string) (any, error) {
	var heights heightList
	fs := newFlagSet("funding-index")
	fs.Var(&heights, "height", "block height (repeatable)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch len(heights) {
	case 0:
		return nil, errors.New("-height is required")
	case 1:
		return a.funding.IndexMap(ctx, heights[0])
	default:
		return a.funding.IndexMapsChunked(ctx, heights)
	}
}

func runSettledFunding(ctx context.Context, a *app, args []string) (any, error) {
	var (
		sub    subaccountFlags
		height int64
		clob   string
	)
	fs := newFlagSet("settled-funding")
	sub.register(fs)
	fs.Int64Var(&height, "height", 0, "block height")
	fs.StringVar(&clob, "clob", "", "clob pair id; all pairs when empty")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	id, err := sub.resolve()
	if err != nil {
		return nil, err
	}
	if clob != "" {
		settled, err := a.settlement.SettledFunding(ctx, id, clob, height)
		if err != nil {
			return nil, err
		}
		return map[string]any{"subaccountId": id, "clobPairId": clob, "height": height, "settledFunding": settled}, nil
	}
	settled, err := a.settlement.TotalSettledFunding(ctx, id, height)
	if err != nil {
		return nil, err
	}
	return map[string]any{"subaccountId": id, "height": height, "settledFunding": settled}, nil
}

func runSummary(ctx context.Context, a *app, args []string) (any, error) {
	var (
		sub    subaccountFlags
		height int64
	)
	fs := newFlagSet("summary")
	sub.register(fs)
	fs.Int64Var(&height, "height", 0, "block height")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	id, err := sub.resolve()
	if err != nil {
		return nil, err
	}
	return a.settlement.Summary(ctx, id, height)
}

func runFills(ctx context.Context, a *app, args []string) (any, error) {
	var (
		sub           subaccountFlags
		parentAddress string
		parentNumber  uint
		clob          string
		limit, page   int
	)
	fs := newFlagSet("fills")
	sub.register(fs)
	fs.StringVar(&parentAddress, "parent-address", "", "parent subaccount owner address")
	fs.UintVar(&parentNumber, "parent", 0, "parent subaccount number")
	fs.StringVar(&clob, "clob", "", "clob pair id")
	fs.IntVar(&limit, "limit", 100, "page size")
	fs.IntVar(&page, "page", 0, "page number, starting at 1")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	query := ledger.FillQuery{ClobPairID: clob, Limit: limit, Page: page}
	if parentAddress != "" {
		if parentNumber > uint(^uint32(0)) {
			return nil, fmt.Errorf("parent number %d out of range", parentNumber)
		}
		query.ParentSubaccount = &subaccount.Parent{Address: parentAddress, Number: uint32(parentNumber)}
	}
	if sub.id != "" || sub.address != "" {
		id, err := sub.resolve()
		if err != nil {
			return nil, err
		}
		query.SubaccountID = []uuid.UUID{id}
	}
	return a.store.Fills.FindAll(ctx, query, ledger.QueryOptions{ReadReplica: true})
}

func runPositions(ctx context.Context, a *app, args []string) (any, error) {
	var (
		sub    subaccountFlags
		status string
		limit  int
	)
	fs := newFlagSet("positions")
	sub.register(fs)
	fs.StringVar(&status, "status", "", "OPEN, CLOSED or LIQUIDATED")
	fs.IntVar(&limit, "limit", 100, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	id, err := sub.resolve()
	if err != nil {
		return nil, err
	}
	query := ledger.PositionQuery{SubaccountID: []uuid.UUID{id}, Limit: limit}
	if status != "" {
		query.Status = []ledger.PositionStatus{ledger.PositionStatus(strings.ToUpper(status))}
	}
	return a.store.Positions.FindAll(ctx, query, ledger.QueryOptions{ReadReplica: true})
}

func runOrderToProtocol(ctx context.Context, a *app, args []string) (any, error) {
	var orderID string
	fs := newFlagSet("order-to-protocol")
	fs.StringVar(&orderID, "order", "", "order uuid")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	order, err := a.store.Orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errs.New("ledgerctl", errs.CodeNotFound,
			errs.WithMessage(fmt.Sprintf("Unable to find order with id: %s", id)))
	}
	market, err := a.store.Markets.FindPerpetualMarketByClobPair(ctx, order.ClobPairID)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, errs.NotFound("ledgerctl", errs.CanonicalMarketNotFound,
			fmt.Sprintf("Unable to find perpetual market with clobPairId: %s", order.ClobPairID))
	}
	return a.translator.ToProtocol(ctx, *order, *market)
}
