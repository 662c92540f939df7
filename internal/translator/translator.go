// Package translator maps persisted orders to and from their chain-facing form.
package translator

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/identity"
	"github.com/coachpo/perpindex/internal/numeric"
	"github.com/coachpo/perpindex/internal/protocol"
)

const component = "translator"

// Translator converts orders between the ledger and protocol representations.
type Translator struct {
	subaccounts ledger.SubaccountReader
	conv        *numeric.Converter
}

// New constructs a Translator. A nil converter uses the default quote resolution.
func New(subaccounts ledger.SubaccountReader, conv *numeric.Converter) *Translator {
	if conv == nil {
		conv = numeric.NewConverter(numeric.DefaultConfig())
	}
	return &Translator{subaccounts: subaccounts, conv: conv}
}

func marketOf(m ledger.PerpetualMarket) numeric.Market {
	return numeric.Market{
		AtomicResolution:          m.AtomicResolution,
		QuantumConversionExponent: m.QuantumConversionExponent,
	}
}

// ToProtocol encodes a resting long-term or conditional order for resubmission.
func (t *Translator) ToProtocol(ctx context.Context, order ledger.Order, market ledger.PerpetualMarket) (protocol.Order, error) {
	if order.OrderFlags != protocol.OrderFlagLongTerm && order.OrderFlags != protocol.OrderFlagConditional {
		return protocol.Order{}, errs.New(component, errs.CodeInvalid,
			errs.WithMessage("Order is not a long-term or conditional order"),
			errs.WithCanonicalCode(errs.CanonicalUnsupportedOrderFlags),
			errs.WithField("orderFlags", strconv.FormatUint(uint64(order.OrderFlags), 10)))
	}
	if t.subaccounts == nil {
		return protocol.Order{}, fmt.Errorf("translator: nil subaccount reader")
	}
	sub, err := t.subaccounts.FindByID(ctx, order.SubaccountID)
	if err != nil {
		return protocol.Order{}, fmt.Errorf("translator: find subaccount %s: %w", order.SubaccountID, err)
	}
	if sub == nil {
		return protocol.Order{}, errs.NotFound(component, errs.CanonicalSubaccountNotFound,
			fmt.Sprintf("Subaccount for order not found: %s", order.SubaccountID))
	}

	clobPairID, err := parseUint32(order.ClobPairID, "clobPairId")
	if err != nil {
		return protocol.Order{}, err
	}
	side, err := SideToProtocol(order.Side)
	if err != nil {
		return protocol.Order{}, err
	}
	tif, err := TimeInForceToProtocol(order.TimeInForce)
	if err != nil {
		return protocol.Order{}, err
	}

	m := marketOf(market)
	quantums, err := numeric.ToUint64(numeric.HumanToQuantums(order.Size, m.AtomicResolution))
	if err != nil {
		return protocol.Order{}, fmt.Errorf("translator: quantums: %w", err)
	}
	subticks, err := numeric.ToUint64(t.conv.PriceToSubticks(order.Price, m))
	if err != nil {
		return protocol.Order{}, fmt.Errorf("translator: subticks: %w", err)
	}
	var triggerSubticks uint64
	if order.TriggerPrice != nil {
		triggerSubticks, err = numeric.ToUint64(t.conv.PriceToSubticks(*order.TriggerPrice, m))
		if err != nil {
			return protocol.Order{}, fmt.Errorf("translator: trigger subticks: %w", err)
		}
	}

	out := protocol.Order{
		OrderID: protocol.OrderID{
			SubaccountID: protocol.SubaccountID{Owner: sub.Address, Number: sub.SubaccountNumber},
			ClientID:     order.ClientID,
			OrderFlags:   order.OrderFlags,
			ClobPairID:   clobPairID,
		},
		Side:                            side,
		Quantums:                        quantums,
		Subticks:                        subticks,
		TimeInForce:                     tif,
		ReduceOnly:                      order.ReduceOnly,
		ClientMetadata:                  order.ClientMetadata,
		ConditionType:                   ConditionTypeFromOrderType(order.Type),
		ConditionalOrderTriggerSubticks: triggerSubticks,
	}
	if order.GoodTilBlock != nil {
		if *order.GoodTilBlock < 0 || *order.GoodTilBlock > math.MaxUint32 {
			return protocol.Order{}, errs.Invalid(component, errs.CanonicalUnknown,
				fmt.Sprintf("goodTilBlock %d out of range", *order.GoodTilBlock))
		}
		v := uint32(*order.GoodTilBlock)
		out.GoodTilBlock = &v
	}
	if order.GoodTilBlockTime != nil {
		secs := order.GoodTilBlockTime.Unix()
		if secs < 0 || secs > math.MaxUint32 {
			return protocol.Order{}, errs.Invalid(component, errs.CanonicalUnknown,
				fmt.Sprintf("goodTilBlockTime %s out of range", order.GoodTilBlockTime.UTC().Format(time.RFC3339)))
		}
		v := uint32(secs)
		out.GoodTilBlockTime = &v
	}
	return out, nil
}

// FromProtocol decodes an ingested order into a ledger row with status. Totals filled
// start at zero; the caller applies fills afterwards.
func (t *Translator) FromProtocol(order protocol.Order, market ledger.PerpetualMarket, status ledger.OrderStatus) (ledger.Order, error) {
	side, err := SideFromProtocol(order.Side)
	if err != nil {
		return ledger.Order{}, err
	}
	tif, err := TimeInForceFromProtocol(order.TimeInForce)
	if err != nil {
		return ledger.Order{}, err
	}
	if order.GoodTilBlock != nil && order.GoodTilBlockTime != nil {
		return ledger.Order{}, errs.Invalid(component, errs.CanonicalUnknown,
			"order cannot set both goodTilBlock and goodTilBlockTime")
	}

	m := marketOf(market)
	oid := order.OrderID
	subaccountID := identity.Subaccount(oid.SubaccountID.Owner, oid.SubaccountID.Number)
	clobPairID := strconv.FormatUint(uint64(oid.ClobPairID), 10)

	out := ledger.Order{
		ID:             identity.Order(subaccountID, oid.ClientID, clobPairID, oid.OrderFlags),
		SubaccountID:   subaccountID,
		ClientID:       oid.ClientID,
		ClobPairID:     clobPairID,
		Side:           side,
		Size:           numeric.QuantumsToHuman(fromUint64(order.Quantums), m.AtomicResolution),
		TotalFilled:    decimal.Zero,
		Price:          t.conv.SubticksToPrice(fromUint64(order.Subticks), m),
		Type:           OrderTypeFromProtocol(oid.OrderFlags, order.ConditionType),
		Status:         status,
		TimeInForce:    tif,
		ReduceOnly:     order.ReduceOnly,
		OrderFlags:     oid.OrderFlags,
		ClientMetadata: order.ClientMetadata,
	}
	if oid.OrderFlags == protocol.OrderFlagConditional {
		trigger := t.conv.SubticksToPrice(fromUint64(order.ConditionalOrderTriggerSubticks), m)
		out.TriggerPrice = &trigger
	}
	if order.GoodTilBlock != nil {
		v := int64(*order.GoodTilBlock)
		out.GoodTilBlock = &v
	}
	if order.GoodTilBlockTime != nil {
		v := time.Unix(int64(*order.GoodTilBlockTime), 0).UTC()
		out.GoodTilBlockTime = &v
	}
	return out, nil
}

// SideToProtocol maps BUY/SELL to the wire side.
func SideToProtocol(side ledger.OrderSide) (protocol.Side, error) {
	switch side {
	case ledger.SideBuy:
		return protocol.SideBuy, nil
	case ledger.SideSell:
		return protocol.SideSell, nil
	default:
		return protocol.SideUnspecified, errs.Invalid(component, errs.CanonicalUnknown,
			fmt.Sprintf("unknown order side %q", side))
	}
}

// SideFromProtocol maps the wire side to BUY/SELL.
func SideFromProtocol(side protocol.Side) (ledger.OrderSide, error) {
	switch side {
	case protocol.SideBuy:
		return ledger.SideBuy, nil
	case protocol.SideSell:
		return ledger.SideSell, nil
	default:
		return "", errs.Invalid(component, errs.CanonicalUnknown,
			fmt.Sprintf("unknown protocol side %s", side))
	}
}

// TimeInForceToProtocol maps a persisted time in force to the wire. GTT rests until
// expiry, which the wire expresses as UNSPECIFIED.
func TimeInForceToProtocol(tif ledger.TimeInForce) (protocol.TimeInForce, error) {
	switch tif {
	case ledger.TimeInForceGTT:
		return protocol.TimeInForceUnspecified, nil
	case ledger.TimeInForceFOK:
		return protocol.TimeInForceFillOrKill, nil
	case ledger.TimeInForceIOC:
		return protocol.TimeInForceIOC, nil
	case ledger.TimeInForcePostOnly:
		return protocol.TimeInForcePostOnly, nil
	default:
		return protocol.TimeInForceUnspecified, errs.Invalid(component, errs.CanonicalUnknown,
			fmt.Sprintf("unknown time in force %q", tif))
	}
}

// TimeInForceFromProtocol maps a wire time in force to the persisted form.
// UNSPECIFIED always decodes to GTT.
func TimeInForceFromProtocol(tif protocol.TimeInForce) (ledger.TimeInForce, error) {
	switch tif {
	case protocol.TimeInForceUnspecified:
		return ledger.TimeInForceGTT, nil
	case protocol.TimeInForceFillOrKill:
		return ledger.TimeInForceFOK, nil
	case protocol.TimeInForceIOC:
		return ledger.TimeInForceIOC, nil
	case protocol.TimeInForcePostOnly:
		return ledger.TimeInForcePostOnly, nil
	default:
		return "", errs.Invalid(component, errs.CanonicalUnknown,
			fmt.Sprintf("unknown protocol time in force %s", tif))
	}
}

// OrderTypeFromProtocol derives the persisted order type. Only conditional orders look
// at the condition type; TWAP categories map to themselves and everything else is LIMIT.
func OrderTypeFromProtocol(flags uint32, condition protocol.ConditionType) ledger.OrderType {
	switch flags {
	case protocol.OrderFlagConditional:
		switch condition {
		case protocol.ConditionTypeStopLoss:
			return ledger.OrderTypeStopLimit
		case protocol.ConditionTypeTakeProfit:
			return ledger.OrderTypeTakeProfit
		default:
			return ledger.OrderTypeLimit
		}
	case protocol.OrderFlagTwap:
		return ledger.OrderTypeTwap
	case protocol.OrderFlagTwapSuborder:
		return ledger.OrderTypeTwapSuborder
	default:
		return ledger.OrderTypeLimit
	}
}

// ConditionTypeFromOrderType returns the wire condition for a persisted order type.
func ConditionTypeFromOrderType(t ledger.OrderType) protocol.ConditionType {
	switch t {
	case ledger.OrderTypeStopLimit, ledger.OrderTypeStopMarket:
		return protocol.ConditionTypeStopLoss
	case ledger.OrderTypeTakeProfit, ledger.OrderTypeTakeProfitMarket:
		return protocol.ConditionTypeTakeProfit
	default:
		return protocol.ConditionTypeUnspecified
	}
}

// IsStatefulOrder reports whether flags denote an order kept in chain state.
func IsStatefulOrder(flags uint32) bool { return protocol.IsStateful(flags) }

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func parseUint32(s, field string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errs.New(component, errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("%s must be an unsigned 32-bit integer", field)),
			errs.WithField(field, s),
			errs.WithCause(err))
	}
	return uint32(v), nil
}
