package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/errs"
)

// ResolveUpsertStatus applies the order upsert rules: a best-effort-canceled order stays
// canceled, any other order becomes FILLED once totalFilled reaches size.
func ResolveUpsertStatus(requested OrderStatus, size, totalFilled decimal.Decimal) OrderStatus {
	if requested == OrderStatusBestEffortCanceled {
		return requested
	}
	if totalFilled.GreaterThanOrEqual(size) {
		return OrderStatusFilled
	}
	return requested
}

// ValidateOrder rejects orders that cannot be written.
func ValidateOrder(o Order) error {
	if o.GoodTilBlock != nil && o.GoodTilBlockTime != nil {
		return errs.Invalid("orders", errs.CanonicalUnknown, "order cannot set both goodTilBlock and goodTilBlockTime")
	}
	if !o.Side.Valid() {
		return errs.Invalid("orders", errs.CanonicalUnknown, "order side must be BUY or SELL")
	}
	if o.Size.IsNegative() || o.TotalFilled.IsNegative() {
		return errs.Invalid("orders", errs.CanonicalInvalidDecimal, "order size and totalFilled must be non-negative")
	}
	return nil
}
