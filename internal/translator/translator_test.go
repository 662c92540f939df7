package translator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/identity"
	"github.com/coachpo/perpindex/internal/numeric"
	"github.com/coachpo/perpindex/internal/protocol"
)

const owner = "dydx1x2hd82qerp7lc0kf5cs3yekftupkrl620te6u2"

var btc = ledger.PerpetualMarket{
	ID:                        "0",
	ClobPairID:                "0",
	Ticker:                    "BTC-USD",
	AtomicResolution:          -10,
	QuantumConversionExponent: -9,
}

type fakeSubaccounts struct {
	rows map[uuid.UUID]*ledger.Subaccount
	err  error
}

func (f fakeSubaccounts) FindByID(_ context.Context, id uuid.UUID) (*ledger.Subaccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[id], nil
}

func newTranslator() (*Translator, uuid.UUID) {
	subID := identity.Subaccount(owner, 0)
	subs := fakeSubaccounts{rows: map[uuid.UUID]*ledger.Subaccount{
		subID: {ID: subID, Address: owner, SubaccountNumber: 0},
	}}
	return New(subs, numeric.NewConverter(numeric.DefaultConfig())), subID
}

func longTermOrder(subID uuid.UUID) ledger.Order {
	gtbt := time.Date(2026, 3, 1, 12, 0, 0, 750_000_000, time.UTC)
	return ledger.Order{
		ID:               identity.Order(subID, 42, "0", protocol.OrderFlagLongTerm),
		SubaccountID:     subID,
		ClientID:         42,
		ClobPairID:       "0",
		Side:             ledger.SideBuy,
		Size:             decimal.RequireFromString("0.1"),
		Price:            decimal.RequireFromString("20000"),
		Type:             ledger.OrderTypeLimit,
		Status:           ledger.OrderStatusOpen,
		TimeInForce:      ledger.TimeInForceGTT,
		OrderFlags:       protocol.OrderFlagLongTerm,
		GoodTilBlockTime: &gtbt,
		ClientMetadata:   7,
	}
}

func TestToProtocolLongTerm(t *testing.T) {
	tr, subID := newTranslator()
	out, err := tr.ToProtocol(context.Background(), longTermOrder(subID), btc)
	require.NoError(t, err)

	require.Equal(t, protocol.SubaccountID{Owner: owner, Number: 0}, out.OrderID.SubaccountID)
	require.Equal(t, uint32(42), out.OrderID.ClientID)
	require.Equal(t, protocol.OrderFlagLongTerm, out.OrderID.OrderFlags)
	require.Equal(t, protocol.SideBuy, out.Side)
	require.Equal(t, uint64(1_000_000_000), out.Quantums)
	require.Equal(t, uint64(2_000_000_000), out.Subticks)
	require.Equal(t, protocol.TimeInForceUnspecified, out.TimeInForce)
	require.Equal(t, protocol.ConditionTypeUnspecified, out.ConditionType)
	require.Zero(t, out.ConditionalOrderTriggerSubticks)
	require.Nil(t, out.GoodTilBlock)
	require.NotNil(t, out.GoodTilBlockTime)
	// fractional seconds are truncated
	require.Equal(t, uint32(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Unix()), *out.GoodTilBlockTime)
}

func TestToProtocolConditional(t *testing.T) {
	tr, subID := newTranslator()
	order := longTermOrder(subID)
	order.OrderFlags = protocol.OrderFlagConditional
	order.Type = ledger.OrderTypeStopLimit
	order.Side = ledger.SideSell
	order.TimeInForce = ledger.TimeInForceIOC
	trigger := decimal.RequireFromString("19500")
	order.TriggerPrice = &trigger
	block := int64(1200)
	order.GoodTilBlock = &block
	order.GoodTilBlockTime = nil

	out, err := tr.ToProtocol(context.Background(), order, btc)
	require.NoError(t, err)
	require.Equal(t, protocol.SideSell, out.Side)
	require.Equal(t, protocol.ConditionTypeStopLoss, out.ConditionType)
	require.Equal(t, uint64(1_950_000_000), out.ConditionalOrderTriggerSubticks)
	require.Equal(t, protocol.TimeInForceIOC, out.TimeInForce)
	require.Equal(t, uint32(1200), *out.GoodTilBlock)
}

func TestToProtocolRejectsShortTerm(t *testing.T) {
	tr, subID := newTranslator()
	for _, flags := range []uint32{protocol.OrderFlagShortTerm, protocol.OrderFlagTwap, protocol.OrderFlagTwapSuborder} {
		order := longTermOrder(subID)
		order.OrderFlags = flags
		_, err := tr.ToProtocol(context.Background(), order, btc)
		require.Error(t, err)
		require.True(t, errs.IsCode(err, errs.CodeInvalid))
		require.Equal(t, errs.CanonicalUnsupportedOrderFlags, errs.CanonicalOf(err))
		require.Contains(t, err.Error(), "Order is not a long-term or conditional order")
	}
}

func TestToProtocolSubaccountNotFound(t *testing.T) {
	tr, _ := newTranslator()
	missing := identity.Subaccount(owner, 5)
	_, err := tr.ToProtocol(context.Background(), longTermOrder(missing), btc)
	require.True(t, errs.IsCode(err, errs.CodeNotFound))
	require.Equal(t, "Subaccount for order not found: "+missing.String(), err.Error())

	boom := errors.New("connection reset")
	broken := New(fakeSubaccounts{err: boom}, nil)
	_, err = broken.ToProtocol(context.Background(), longTermOrder(missing), btc)
	require.ErrorIs(t, err, boom)
}

func TestRoundTrip(t *testing.T) {
	tr, subID := newTranslator()
	order := longTermOrder(subID)
	order.TimeInForce = ledger.TimeInForcePostOnly
	truncated := order.GoodTilBlockTime.Truncate(time.Second)

	wire, err := tr.ToProtocol(context.Background(), order, btc)
	require.NoError(t, err)
	back, err := tr.FromProtocol(wire, btc, ledger.OrderStatusOpen)
	require.NoError(t, err)

	require.Equal(t, order.ID, back.ID)
	require.Equal(t, order.SubaccountID, back.SubaccountID)
	require.True(t, order.Size.Equal(back.Size))
	require.True(t, order.Price.Equal(back.Price))
	require.Equal(t, ledger.TimeInForcePostOnly, back.TimeInForce)
	require.True(t, back.PostOnly())
	require.Equal(t, ledger.OrderTypeLimit, back.Type)
	require.Nil(t, back.TriggerPrice)
	require.True(t, truncated.Equal(*back.GoodTilBlockTime))
	require.Equal(t, uint32(7), back.ClientMetadata)
}

func TestFromProtocolConditionalTrigger(t *testing.T) {
	tr, _ := newTranslator()
	wire := protocol.Order{
		OrderID: protocol.OrderID{
			SubaccountID: protocol.SubaccountID{Owner: owner, Number: 3},
			ClientID:     9,
			OrderFlags:   protocol.OrderFlagConditional,
			ClobPairID:   0,
		},
		Side:                            protocol.SideSell,
		Quantums:                        25_000_000,
		Subticks:                        2_100_000_000,
		TimeInForce:                     protocol.TimeInForceUnspecified,
		ConditionType:                   protocol.ConditionTypeTakeProfit,
		ConditionalOrderTriggerSubticks: 2_050_000_000,
	}
	out, err := tr.FromProtocol(wire, btc, ledger.OrderStatusUntriggered)
	require.NoError(t, err)
	require.Equal(t, identity.Subaccount(owner, 3), out.SubaccountID)
	require.Equal(t, ledger.OrderTypeTakeProfit, out.Type)
	require.Equal(t, ledger.TimeInForceGTT, out.TimeInForce)
	require.False(t, out.PostOnly())
	require.Equal(t, "0.0025", out.Size.String())
	require.Equal(t, "21000", out.Price.String())
	require.Equal(t, "20500", out.TriggerPrice.String())
	require.Equal(t, ledger.OrderStatusUntriggered, out.Status)
}

func TestFromProtocolRejectsUnknownEnums(t *testing.T) {
	tr, _ := newTranslator()
	_, err := tr.FromProtocol(protocol.Order{Side: protocol.SideBuy, TimeInForce: protocol.TimeInForce(9)}, btc, ledger.OrderStatusOpen)
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
	_, err = tr.FromProtocol(protocol.Order{Side: protocol.SideUnspecified}, btc, ledger.OrderStatusOpen)
	require.Error(t, err)
}

func TestOrderTypeFromProtocol(t *testing.T) {
	cases := []struct {
		flags     uint32
		condition protocol.ConditionType
		want      ledger.OrderType
	}{
		{protocol.OrderFlagConditional, protocol.ConditionTypeStopLoss, ledger.OrderTypeStopLimit},
		{protocol.OrderFlagConditional, protocol.ConditionTypeTakeProfit, ledger.OrderTypeTakeProfit},
		{protocol.OrderFlagLongTerm, protocol.ConditionTypeStopLoss, ledger.OrderTypeLimit},
		{protocol.OrderFlagShortTerm, protocol.ConditionTypeTakeProfit, ledger.OrderTypeLimit},
		{protocol.OrderFlagTwap, protocol.ConditionTypeStopLoss, ledger.OrderTypeTwap},
		{protocol.OrderFlagTwapSuborder, protocol.ConditionTypeUnspecified, ledger.OrderTypeTwapSuborder},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, OrderTypeFromProtocol(tc.flags, tc.condition), "flags=%d condition=%s", tc.flags, tc.condition)
	}
	require.Equal(t, protocol.ConditionTypeTakeProfit, ConditionTypeFromOrderType(ledger.OrderTypeTakeProfitMarket))
	require.Equal(t, protocol.ConditionTypeStopLoss, ConditionTypeFromOrderType(ledger.OrderTypeStopMarket))
	require.Equal(t, protocol.ConditionTypeUnspecified, ConditionTypeFromOrderType(ledger.OrderTypeTwap))
}

func TestTimeInForceMapping(t *testing.T) {
	for _, tif := range []ledger.TimeInForce{ledger.TimeInForceGTT, ledger.TimeInForceFOK, ledger.TimeInForceIOC} {
		wire, err := TimeInForceToProtocol(tif)
		require.NoError(t, err)
		back, err := TimeInForceFromProtocol(wire)
		require.NoError(t, err)
		require.Equal(t, tif, back)
	}
	got, err := TimeInForceFromProtocol(protocol.TimeInForceUnspecified)
	require.NoError(t, err)
	require.Equal(t, ledger.TimeInForceGTT, got)
	_, err = TimeInForceToProtocol("GTC")
	require.Error(t, err)
}

func TestIsStatefulOrder(t *testing.T) {
	require.False(t, IsStatefulOrder(protocol.OrderFlagShortTerm))
	require.True(t, IsStatefulOrder(protocol.OrderFlagLongTerm))
	require.True(t, IsStatefulOrder(protocol.OrderFlagConditional))
	require.True(t, IsStatefulOrder(protocol.OrderFlagTwap))
	require.False(t, IsStatefulOrder(3))
}
