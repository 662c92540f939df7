// Package ledger defines the persisted records, query shapes and store contracts of the
// derived-state core.
package ledger

// OrderSide is the direction of an order or fill.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool { return s == SideBuy || s == SideSell }

// Liquidity is the role a fill played in the match.
type Liquidity string

const (
	LiquidityMaker Liquidity = "MAKER"
	LiquidityTaker Liquidity = "TAKER"
)

// FillType classifies what produced a fill.
type FillType string

const (
	FillTypeMarket        FillType = "MARKET"
	FillTypeLimit         FillType = "LIMIT"
	FillTypeLiquidated    FillType = "LIQUIDATED"
	FillTypeLiquidation   FillType = "LIQUIDATION"
	FillTypeDeleveraged   FillType = "DELEVERAGED"
	FillTypeOffsetting    FillType = "OFFSETTING"
	FillTypeTwapSuborder  FillType = "TWAP_SUBORDER"
	FillTypeStopLimit     FillType = "STOP_LIMIT"
	FillTypeStopMarket    FillType = "STOP_MARKET"
	FillTypeTakeProfit    FillType = "TAKE_PROFIT"
	FillTypeTakeProfitMkt FillType = "TAKE_PROFIT_MARKET"
	FillTypeTrailingStop  FillType = "TRAILING_STOP"
)

// TradeFillTypes are the fill types counted as regular trading volume.
var TradeFillTypes = []FillType{
	FillTypeLimit,
	FillTypeMarket,
	FillTypeStopLimit,
	FillTypeStopMarket,
	FillTypeTrailingStop,
	FillTypeTakeProfit,
	FillTypeTakeProfitMkt,
}

// OrderType is the persisted order type.
type OrderType string

const (
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeStopLimit        OrderType = "STOP_LIMIT"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTrailingStop     OrderType = "TRAILING_STOP"
	OrderTypeTakeProfit       OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeTwap             OrderType = "TWAP"
	OrderTypeTwapSuborder     OrderType = "TWAP_SUBORDER"
)

// OrderStatus is the lifecycle state of an order row.
type OrderStatus string

const (
	OrderStatusOpen               OrderStatus = "OPEN"
	OrderStatusFilled             OrderStatus = "FILLED"
	OrderStatusCanceled           OrderStatus = "CANCELED"
	OrderStatusBestEffortCanceled OrderStatus = "BEST_EFFORT_CANCELED"
	OrderStatusUntriggered        OrderStatus = "UNTRIGGERED"
	OrderStatusBestEffortOpened   OrderStatus = "BEST_EFFORT_OPENED"
)

// TimeInForce is the persisted time-in-force of an order.
type TimeInForce string

const (
	TimeInForceGTT      TimeInForce = "GTT"
	TimeInForceFOK      TimeInForce = "FOK"
	TimeInForceIOC      TimeInForce = "IOC"
	TimeInForcePostOnly TimeInForce = "POST_ONLY"
)

// PositionSide is the direction of a perpetual position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// PositionStatus is the lifecycle state of a perpetual position.
type PositionStatus string

const (
	PositionOpen       PositionStatus = "OPEN"
	PositionClosed     PositionStatus = "CLOSED"
	PositionLiquidated PositionStatus = "LIQUIDATED"
)

// Ordering is a SQL sort direction.
type Ordering string

const (
	Ascending  Ordering = "ASC"
	Descending Ordering = "DESC"
)
