package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/internal/identity"
)

// Subaccount is one (address, number) ledger.
type Subaccount struct {
	ID               uuid.UUID `json:"id"`
	Address          string    `json:"address"`
	SubaccountNumber uint32    `json:"subaccountNumber"`
	UpdatedAt        time.Time `json:"updatedAt"`
	UpdatedAtHeight  int64     `json:"updatedAtHeight"`
}

// Fill is one matched trade leg.
type Fill struct {
	ID              uuid.UUID        `json:"id"`
	SubaccountID    uuid.UUID        `json:"subaccountId"`
	Side            OrderSide        `json:"side"`
	Liquidity       Liquidity        `json:"liquidity"`
	Type            FillType         `json:"type"`
	ClobPairID      string           `json:"clobPairId"`
	OrderID         *uuid.UUID       `json:"orderId,omitempty"`
	Size            decimal.Decimal  `json:"size"`
	Price           decimal.Decimal  `json:"price"`
	QuoteAmount     decimal.Decimal  `json:"quoteAmount"`
	Fee             decimal.Decimal  `json:"fee"`
	EventID         identity.EventID `json:"eventId"`
	TransactionHash string           `json:"transactionHash"`
	CreatedAt       time.Time        `json:"createdAt"`
	CreatedAtHeight int64            `json:"createdAtHeight"`
	ClientMetadata  *string          `json:"clientMetadata,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}

// SignedSize returns +size for buys and -size for sells.
func (f Fill) SignedSize() decimal.Decimal {
	return SignedSize(f.Side, f.Size)
}

// SignedSize applies the side convention shared by every aggregate: BUY adds, SELL subtracts.
func SignedSize(side OrderSide, size decimal.Decimal) decimal.Decimal {
	if side == SideSell {
		return size.Neg()
	}
	return size
}

// Order is a standing order row.
type Order struct {
	ID               uuid.UUID        `json:"id"`
	SubaccountID     uuid.UUID        `json:"subaccountId"`
	ClientID         uint32           `json:"clientId"`
	ClobPairID       string           `json:"clobPairId"`
	Side             OrderSide        `json:"side"`
	Size             decimal.Decimal  `json:"size"`
	TotalFilled      decimal.Decimal  `json:"totalFilled"`
	Price            decimal.Decimal  `json:"price"`
	Type             OrderType        `json:"type"`
	Status           OrderStatus      `json:"status"`
	TimeInForce      TimeInForce      `json:"timeInForce"`
	ReduceOnly       bool             `json:"reduceOnly"`
	OrderFlags       uint32           `json:"orderFlags"`
	GoodTilBlock     *int64           `json:"goodTilBlock,omitempty"`
	GoodTilBlockTime *time.Time       `json:"goodTilBlockTime,omitempty"`
	CreatedAtHeight  *int64           `json:"createdAtHeight,omitempty"`
	ClientMetadata   uint32           `json:"clientMetadata"`
	TriggerPrice     *decimal.Decimal `json:"triggerPrice,omitempty"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	UpdatedAtHeight  int64            `json:"updatedAtHeight"`
}

// PostOnly reports whether the order rests without taking liquidity.
func (o Order) PostOnly() bool { return o.TimeInForce == TimeInForcePostOnly }

// PerpetualPosition is a subaccount's exposure to one perpetual market.
type PerpetualPosition struct {
	ID              uuid.UUID         `json:"id"`
	SubaccountID    uuid.UUID         `json:"subaccountId"`
	PerpetualID     string            `json:"perpetualId"`
	Side            PositionSide      `json:"side"`
	Status          PositionStatus    `json:"status"`
	Size            decimal.Decimal   `json:"size"`
	MaxSize         decimal.Decimal   `json:"maxSize"`
	EntryPrice      decimal.Decimal   `json:"entryPrice"`
	ExitPrice       *decimal.Decimal  `json:"exitPrice,omitempty"`
	SumOpen         decimal.Decimal   `json:"sumOpen"`
	SumClose        decimal.Decimal   `json:"sumClose"`
	CreatedAt       time.Time         `json:"createdAt"`
	CreatedAtHeight int64             `json:"createdAtHeight"`
	ClosedAt        *time.Time        `json:"closedAt,omitempty"`
	ClosedAtHeight  *int64            `json:"closedAtHeight,omitempty"`
	OpenEventID     identity.EventID  `json:"openEventId"`
	CloseEventID    *identity.EventID `json:"closeEventId,omitempty"`
	LastEventID     identity.EventID  `json:"lastEventId"`
	SettledFunding  decimal.Decimal   `json:"settledFunding"`
}

// SignedSize returns +size for longs and -size for shorts.
func (p PerpetualPosition) SignedSize() decimal.Decimal {
	if p.Side == PositionShort {
		return p.Size.Neg()
	}
	return p.Size
}

// FundingIndexUpdate is a market's cumulative funding index at a height.
type FundingIndexUpdate struct {
	ID                uuid.UUID        `json:"id"`
	PerpetualID       string           `json:"perpetualId"`
	EventID           identity.EventID `json:"eventId"`
	Rate              decimal.Decimal  `json:"rate"`
	OraclePrice       decimal.Decimal  `json:"oraclePrice"`
	FundingIndex      decimal.Decimal  `json:"fundingIndex"`
	EffectiveAt       time.Time        `json:"effectiveAt"`
	EffectiveAtHeight int64            `json:"effectiveAtHeight"`
}

// LiquidityTier groups margin parameters shared by markets.
type LiquidityTier struct {
	ID                     int32  `json:"id" yaml:"id"`
	Name                   string `json:"name" yaml:"name"`
	InitialMarginPpm       int64  `json:"initialMarginPpm" yaml:"initialMarginPpm"`
	MaintenanceFractionPpm int64  `json:"maintenanceFractionPpm" yaml:"maintenanceFractionPpm"`
}

// Market is an oracle price feed.
type Market struct {
	ID                int32  `json:"id" yaml:"id"`
	Pair              string `json:"pair" yaml:"pair"`
	Exponent          int32  `json:"exponent" yaml:"exponent"`
	MinPriceChangePpm int64  `json:"minPriceChangePpm" yaml:"minPriceChangePpm"`
}

// PerpetualMarket is a tradable perpetual and its conversion exponents.
type PerpetualMarket struct {
	ID                        string `json:"id" yaml:"id"`
	ClobPairID                string `json:"clobPairId" yaml:"clobPairId"`
	Ticker                    string `json:"ticker" yaml:"ticker"`
	MarketID                  int32  `json:"marketId" yaml:"marketId"`
	Status                    string `json:"status" yaml:"status"`
	AtomicResolution          int32  `json:"atomicResolution" yaml:"atomicResolution"`
	QuantumConversionExponent int32  `json:"quantumConversionExponent" yaml:"quantumConversionExponent"`
	SubticksPerTick           int64  `json:"subticksPerTick" yaml:"subticksPerTick"`
	StepBaseQuantums          int64  `json:"stepBaseQuantums" yaml:"stepBaseQuantums"`
	LiquidityTierID           int32  `json:"liquidityTierId" yaml:"liquidityTierId"`
}

// OraclePrice is a market price effective from a height.
type OraclePrice struct {
	ID                uuid.UUID       `json:"id"`
	MarketID          int32           `json:"marketId"`
	Price             decimal.Decimal `json:"price"`
	EffectiveAt       time.Time       `json:"effectiveAt"`
	EffectiveAtHeight int64           `json:"effectiveAtHeight"`
}
