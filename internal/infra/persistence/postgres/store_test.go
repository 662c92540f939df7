package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbseed "github.com/coachpo/perpindex/db/seed"
	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/identity"
)

func TestStoresNilPool(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	fills := NewFillStore(nil, nil)
	if _, err := fills.Create(ctx, ledger.Fill{Side: ledger.SideBuy, ClobPairID: "0"}); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if _, err := fills.FindAll(ctx, ledger.FillQuery{}, ledger.QueryOptions{ReadReplica: true}); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if _, err := fills.CostOfFills(ctx, id, 10); err == nil {
		t.Fatalf("expected error when pool nil")
	}

	funding := NewFundingStore(nil, nil)
	if _, err := funding.LatestUpdatesAtOrBefore(ctx, 10, 5); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if _, err := funding.PerpetualIDs(ctx); err == nil {
		t.Fatalf("expected error when pool nil")
	}

	orders := NewOrderStore(nil, nil)
	if _, err := orders.FindByID(ctx, id); err == nil {
		t.Fatalf("expected error when pool nil")
	}

	positions := NewPerpetualPositionStore(nil, nil)
	if _, err := positions.FindByID(ctx, id); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if err := positions.WithTransaction(ctx, func(context.Context, PositionTx) error { return nil }); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if _, err := positions.ClosePosition(ctx, ledger.ClosePosition{ID: id}); err == nil {
		t.Fatalf("expected error when pool nil")
	}

	subaccounts := NewSubaccountStore(nil, nil)
	if _, err := subaccounts.FindByID(ctx, id); err == nil {
		t.Fatalf("expected error when pool nil")
	}

	markets := NewMarketStore(nil, nil)
	if _, err := markets.PerpetualMarkets(ctx); err == nil {
		t.Fatalf("expected error when pool nil")
	}

	if _, err := NewSeeder(nil).Seed(ctx); err == nil {
		t.Fatalf("expected error when pool nil")
	}
}

func TestEmptyInputsSkipThePool(t *testing.T) {
	ctx := context.Background()
	positions := NewPerpetualPositionStore(nil, nil)
	n, err := positions.BulkUpdateSubaccountFields(ctx, nil)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op for empty batch, got %d, %v", n, err)
	}
	created, err := positions.BulkCreate(ctx, nil)
	if err != nil || created != nil {
		t.Fatalf("expected no-op for empty create, got %v, %v", created, err)
	}
	updates, err := NewFundingStore(nil, nil).UpdatesBetween(ctx, 10, 9)
	if err != nil || updates != nil {
		t.Fatalf("expected empty range to skip the store, got %v, %v", updates, err)
	}
}

func TestInvalidIDsRejectedBeforeQuery(t *testing.T) {
	ctx := context.Background()
	_, err := NewMarketStore(nil, nil).FindPerpetualMarketByClobPair(ctx, "btc")
	if !errs.IsCode(err, errs.CodeInvalid) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	_, err = NewOrderStore(nil, nil).FindAll(ctx, ledger.OrderQuery{ClobPairID: "-1"}, ledger.QueryOptions{})
	if err == nil {
		t.Fatalf("expected error for negative clob pair id")
	}
}

func TestLastWriterWins(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	updates := []ledger.SubaccountPositionUpdate{
		{ID: a, Size: decimal.NewFromInt(1)},
		{ID: b, Size: decimal.NewFromInt(2)},
		{ID: a, Size: decimal.NewFromInt(3)},
	}
	got := lastWriterWins(updates)
	if len(got) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(got))
	}
	if got[0].ID != b || got[1].ID != a {
		t.Fatalf("unexpected order: %v", got)
	}
	if !got[1].Size.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected last size 3, got %s", got[1].Size)
	}
}

func TestOrderClauseWhitelist(t *testing.T) {
	clause, err := orderClause(fillComponent, fillOrderColumns, []ledger.OrderBy{
		{Column: "price", Direction: ledger.Descending},
		{Column: "eventId"},
	}, "f.created_at_height DESC")
	if err != nil {
		t.Fatalf("order clause: %v", err)
	}
	want := "f.price DESC, f.event_id ASC, f.created_at_height DESC"
	if clause != want {
		t.Fatalf("expected %q, got %q", want, clause)
	}

	_, err = orderClause(fillComponent, fillOrderColumns, []ledger.OrderBy{{Column: "size; DROP TABLE fills"}}, "f.id")
	if !errs.IsCode(err, errs.CodeInvalid) {
		t.Fatalf("expected invalid request for unknown column, got %v", err)
	}
	_, err = orderClause(fillComponent, fillOrderColumns, []ledger.OrderBy{{Column: "size", Direction: "SIDEWAYS"}}, "f.id")
	if err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestArgListPlaceholders(t *testing.T) {
	var args argList
	if got := args.add("a"); got != "$1" {
		t.Fatalf("expected $1, got %s", got)
	}
	if got := args.add(2); got != "$2" {
		t.Fatalf("expected $2, got %s", got)
	}
	if len(args.values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(args.values))
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct{ in, want int }{{0, 100}, {-5, 100}, {50, 50}, {5000, 1000}}
	for _, tc := range cases {
		if got := clampLimit(tc.in, 100, 1000); got != tc.want {
			t.Fatalf("clampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestNumericConversionsKeepScale(t *testing.T) {
	value := decimal.RequireFromString("-0.000123")
	n := numericFromDecimal(value)
	if !n.Valid || n.Exp != -6 || n.Int.Int64() != -123 {
		t.Fatalf("unexpected numeric %+v", n)
	}
	if numericFromOptional(nil).Valid {
		t.Fatalf("expected NULL numeric for nil decimal")
	}
	parsed, err := parseDecimal("size", " 12.50 ")
	if err != nil || !parsed.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("parse decimal: %s, %v", parsed, err)
	}
	if _, err := parseDecimal("size", "abc"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs("test", "clobPairId", []string{"0", "7", "10"})
	if err != nil {
		t.Fatalf("parse ids: %v", err)
	}
	if len(ids) != 3 || ids[2] != 10 {
		t.Fatalf("unexpected ids %v", ids)
	}
	if _, err := parseIDs("test", "clobPairId", []string{"1", "x"}); !errs.IsCode(err, errs.CodeInvalid) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestParseEmbeddedGenesis(t *testing.T) {
	genesis, err := ParseGenesis(dbseed.Genesis)
	if err != nil {
		t.Fatalf("parse genesis: %v", err)
	}
	if len(genesis.LiquidityTiers) == 0 || len(genesis.Markets) == 0 || len(genesis.PerpetualMarkets) == 0 {
		t.Fatalf("expected populated genesis, got %+v", genesis)
	}
	tiers := make(map[int32]bool, len(genesis.LiquidityTiers))
	for _, tier := range genesis.LiquidityTiers {
		tiers[tier.ID] = true
	}
	markets := make(map[int32]bool, len(genesis.Markets))
	for _, market := range genesis.Markets {
		markets[market.ID] = true
	}
	for _, perp := range genesis.PerpetualMarkets {
		if !tiers[perp.LiquidityTierID] {
			t.Fatalf("perpetual %s references unknown liquidity tier %d", perp.Ticker, perp.LiquidityTierID)
		}
		if !markets[perp.MarketID] {
			t.Fatalf("perpetual %s references unknown market %d", perp.Ticker, perp.MarketID)
		}
		if _, err := parseID(marketComponent, "clobPairId", perp.ClobPairID); err != nil {
			t.Fatalf("perpetual %s: %v", perp.Ticker, err)
		}
	}
	if _, err := ParseGenesis([]byte("markets: [")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPositionValuesDeriveID(t *testing.T) {
	sub := uuid.New()
	open, err := identity.NewEventID(5, 0, 1)
	if err != nil {
		t.Fatalf("event id: %v", err)
	}
	position := ledger.PerpetualPosition{
		SubaccountID: sub,
		PerpetualID:  "1",
		Side:         ledger.PositionLong,
		Status:       ledger.PositionOpen,
		CreatedAt:    time.Unix(100, 0),
		OpenEventID:  open,
		LastEventID:  open,
	}
	values, err := positionValues(position)
	if err != nil {
		t.Fatalf("position values: %v", err)
	}
	if values[0] != identity.PerpetualPosition(sub, open).String() {
		t.Fatalf("expected derived id, got %v", values[0])
	}
	if values[16] != nil && len(values[16].([]byte)) != 0 {
		t.Fatalf("expected empty close event id, got %v", values[16])
	}
	position.PerpetualID = "eth"
	if _, err := positionValues(position); !errs.IsCode(err, errs.CodeInvalid) {
		t.Fatalf("expected invalid perpetual id, got %v", err)
	}
}
