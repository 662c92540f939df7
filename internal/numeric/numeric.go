// Package numeric converts between protocol integer units and human decimal values.
//
// Every conversion is a power-of-ten shift on an arbitrary-precision decimal, so a
// conversion followed by its counterpart returns the original value exactly.
package numeric

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/errs"
)

const component = "numeric"

// DefaultQuoteAtomicResolution is the exponent of the quote currency's smallest unit.
const DefaultQuoteAtomicResolution int32 = -6

var (
	ppmShift  int32 = -6
	oneEighth       = decimal.New(125, -3)
)

// Config carries the exponents shared by every conversion.
type Config struct {
	QuoteAtomicResolution int32
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{QuoteAtomicResolution: DefaultQuoteAtomicResolution}
}

// Market holds the per-market exponents used for price and funding conversions.
type Market struct {
	AtomicResolution          int32
	QuantumConversionExponent int32
}

// Converter performs exact unit conversions. The zero value uses a quote
// resolution of 0; construct with NewConverter.
type Converter struct {
	quoteResolution int32
}

// NewConverter constructs a Converter from cfg.
func NewConverter(cfg Config) *Converter {
	return &Converter{quoteResolution: cfg.QuoteAtomicResolution}
}

// QuoteAtomicResolution returns the configured quote exponent.
func (c *Converter) QuoteAtomicResolution() int32 {
	return c.quoteResolution
}

// QuantumsToHuman returns quantums * 10^atomicResolution.
func QuantumsToHuman(quantums decimal.Decimal, atomicResolution int32) decimal.Decimal {
	return quantums.Shift(atomicResolution)
}

// HumanToQuantums returns size * 10^-atomicResolution.
func HumanToQuantums(size decimal.Decimal, atomicResolution int32) decimal.Decimal {
	return size.Shift(-atomicResolution)
}

// SubticksToPrice converts protocol subticks into a human price for m.
func (c *Converter) SubticksToPrice(subticks decimal.Decimal, m Market) decimal.Decimal {
	return subticks.Shift(m.QuantumConversionExponent + c.quoteResolution - m.AtomicResolution)
}

// PriceToSubticks converts a human price into protocol subticks for m.
func (c *Converter) PriceToSubticks(price decimal.Decimal, m Market) decimal.Decimal {
	return price.Shift(m.AtomicResolution - c.quoteResolution - m.QuantumConversionExponent)
}

// FundingIndexToHuman converts a ppm funding index into human units so that
// size * (index_b - index_a) yields the funding payment in quote units.
func (c *Converter) FundingIndexToHuman(fundingIndexPpm decimal.Decimal, m Market) decimal.Decimal {
	return fundingIndexPpm.Shift(ppmShift + c.quoteResolution - m.AtomicResolution)
}

// Funding8HourRateToHourly converts an 8-hour ppm rate into an hourly decimal rate.
func Funding8HourRateToHourly(ppm decimal.Decimal) decimal.Decimal {
	return ppm.Shift(ppmShift).Mul(oneEighth)
}

// PPMToDecimalString renders ppm / 1,000,000 with exactly six fractional digits.
func PPMToDecimalString(ppm int64) string {
	return decimal.New(ppm, ppmShift).StringFixed(6)
}

// ParseDecimal parses s, rejecting empty or malformed input.
func ParseDecimal(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero, errs.Invalid(component, errs.CanonicalInvalidDecimal, "decimal value required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, errs.New(component, errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("invalid decimal %q", trimmed)),
			errs.WithCanonicalCode(errs.CanonicalInvalidDecimal),
			errs.WithCause(err))
	}
	return d, nil
}

// ParseOrZero parses s and treats the empty string as zero.
func ParseOrZero(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return ParseDecimal(s)
}

// TrimScale drops trailing fractional zeros: "1.2300" -> "1.23", "10.000" -> "10".
func TrimScale(s string) (string, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// ToUint64 rounds d to an integer and checks that it fits an unsigned 64-bit field.
func ToUint64(d decimal.Decimal) (uint64, error) {
	rounded := d.Round(0)
	if rounded.IsNegative() {
		return 0, errs.Invalid(component, errs.CanonicalInvalidDecimal,
			fmt.Sprintf("value %s is negative", d.String()))
	}
	bi := rounded.BigInt()
	if !bi.IsUint64() {
		return 0, errs.Invalid(component, errs.CanonicalInvalidDecimal,
			fmt.Sprintf("value %s overflows uint64", d.String()))
	}
	return bi.Uint64(), nil
}
