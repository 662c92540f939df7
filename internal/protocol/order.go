// Package protocol holds the chain-facing order representation.
package protocol

import "fmt"

// Order flag categories carried in the order id.
const (
	OrderFlagShortTerm    uint32 = 0
	OrderFlagConditional  uint32 = 32
	OrderFlagLongTerm     uint32 = 64
	OrderFlagTwap         uint32 = 128
	OrderFlagTwapSuborder uint32 = 256
)

// Side is the order side on the wire.
type Side int32

const (
	SideUnspecified Side = 0
	SideBuy         Side = 1
	SideSell        Side = 2
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "SIDE_BUY"
	case SideSell:
		return "SIDE_SELL"
	case SideUnspecified:
		return "SIDE_UNSPECIFIED"
	default:
		return fmt.Sprintf("Side(%d)", int32(s))
	}
}

// TimeInForce is the execution constraint on the wire. UNSPECIFIED rests until the
// order expires.
type TimeInForce int32

const (
	TimeInForceUnspecified TimeInForce = 0
	TimeInForceIOC         TimeInForce = 1
	TimeInForcePostOnly    TimeInForce = 2
	TimeInForceFillOrKill  TimeInForce = 3
)

func (t TimeInForce) String() string {
	switch t {
	case TimeInForceUnspecified:
		return "TIME_IN_FORCE_UNSPECIFIED"
	case TimeInForceIOC:
		return "TIME_IN_FORCE_IOC"
	case TimeInForcePostOnly:
		return "TIME_IN_FORCE_POST_ONLY"
	case TimeInForceFillOrKill:
		return "TIME_IN_FORCE_FILL_OR_KILL"
	default:
		return fmt.Sprintf("TimeInForce(%d)", int32(t))
	}
}

// ConditionType selects how a conditional order triggers.
type ConditionType int32

const (
	ConditionTypeUnspecified ConditionType = 0
	ConditionTypeStopLoss    ConditionType = 1
	ConditionTypeTakeProfit  ConditionType = 2
)

func (c ConditionType) String() string {
	switch c {
	case ConditionTypeUnspecified:
		return "CONDITION_TYPE_UNSPECIFIED"
	case ConditionTypeStopLoss:
		return "CONDITION_TYPE_STOP_LOSS"
	case ConditionTypeTakeProfit:
		return "CONDITION_TYPE_TAKE_PROFIT"
	default:
		return fmt.Sprintf("ConditionType(%d)", int32(c))
	}
}

// SubaccountID addresses one subaccount of an owner.
type SubaccountID struct {
	Owner  string `json:"owner"`
	Number uint32 `json:"number"`
}

// OrderID uniquely identifies an order on chain.
type OrderID struct {
	SubaccountID SubaccountID `json:"subaccountId"`
	ClientID     uint32       `json:"clientId"`
	OrderFlags   uint32       `json:"orderFlags"`
	ClobPairID   uint32       `json:"clobPairId"`
}

// Order is the wire form of an order. Exactly one of GoodTilBlock and
// GoodTilBlockTime is set.
type Order struct {
	OrderID                         OrderID       `json:"orderId"`
	Side                            Side          `json:"side"`
	Quantums                        uint64        `json:"quantums"`
	Subticks                        uint64        `json:"subticks"`
	GoodTilBlock                    *uint32       `json:"goodTilBlock,omitempty"`
	GoodTilBlockTime                *uint32       `json:"goodTilBlockTime,omitempty"`
	TimeInForce                     TimeInForce   `json:"timeInForce"`
	ReduceOnly                      bool          `json:"reduceOnly"`
	ClientMetadata                  uint32        `json:"clientMetadata"`
	ConditionType                   ConditionType `json:"conditionType"`
	ConditionalOrderTriggerSubticks uint64        `json:"conditionalOrderTriggerSubticks"`
}

// IsStateful reports whether flags denote an order stored in chain state rather than
// only in memory.
func IsStateful(flags uint32) bool {
	return flags == OrderFlagLongTerm || flags == OrderFlagConditional ||
		flags == OrderFlagTwap || flags == OrderFlagTwapSuborder
}
