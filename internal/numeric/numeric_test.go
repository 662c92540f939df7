package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/perpindex/errs"
)

var btc = Market{AtomicResolution: -10, QuantumConversionExponent: -9}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestSubticksPriceConversion(t *testing.T) {
	conv := NewConverter(DefaultConfig())

	subticks := conv.PriceToSubticks(dec(t, "20000"), btc)
	require.Equal(t, "2000000000", subticks.String())
	require.Equal(t, "20000", conv.SubticksToPrice(subticks, btc).String())

	require.Equal(t, "0.00001", conv.SubticksToPrice(decimal.NewFromInt(1), btc).String())
}

func TestPriceRoundTrip(t *testing.T) {
	conv := NewConverter(DefaultConfig())
	markets := []Market{
		btc,
		{AtomicResolution: -9, QuantumConversionExponent: -9},
		{AtomicResolution: -5, QuantumConversionExponent: -6},
		{AtomicResolution: 2, QuantumConversionExponent: -4},
	}
	prices := []string{"0", "1", "20000", "0.0000123", "98765.4321", "123456789012345678901234567890.5"}
	for _, m := range markets {
		for _, p := range prices {
			price := dec(t, p)
			require.True(t, price.Equal(conv.SubticksToPrice(conv.PriceToSubticks(price, m), m)), "market %+v price %s", m, p)
			subticks := dec(t, p)
			require.True(t, subticks.Equal(conv.PriceToSubticks(conv.SubticksToPrice(subticks, m), m)), "market %+v subticks %s", m, p)
		}
	}
}

func TestQuantumsRoundTrip(t *testing.T) {
	for _, ar := range []int32{-10, -9, -6, 0, 3} {
		for _, s := range []string{"0", "1", "0.0001", "15.5", "-3.25", "1000000000000"} {
			size := dec(t, s)
			require.True(t, size.Equal(QuantumsToHuman(HumanToQuantums(size, ar), ar)), "ar %d size %s", ar, s)
		}
	}
	require.Equal(t, "10000000000", HumanToQuantums(decimal.NewFromInt(1), -10).String())
	require.Equal(t, "0.5", QuantumsToHuman(decimal.NewFromInt(5000000000), -10).String())
}

func TestFundingIndexToHuman(t *testing.T) {
	conv := NewConverter(DefaultConfig())
	require.Equal(t, "10", conv.FundingIndexToHuman(decimal.NewFromInt(1000), btc).String())
	require.Equal(t, "-0.01", conv.FundingIndexToHuman(decimal.NewFromInt(-1), btc).String())
}

func TestFunding8HourRateToHourly(t *testing.T) {
	require.Equal(t, "0.0001", Funding8HourRateToHourly(decimal.NewFromInt(800)).String())
	require.Equal(t, "0.000000125", Funding8HourRateToHourly(decimal.NewFromInt(1)).String())
	require.Equal(t, "-0.00125", Funding8HourRateToHourly(decimal.NewFromInt(-10000)).String())
}

func TestPPMToDecimalString(t *testing.T) {
	cases := map[int64]string{
		123456:  "0.123456",
		-5:      "-0.000005",
		2000000: "2.000000",
		0:       "0.000000",
	}
	for in, want := range cases {
		require.Equal(t, want, PPMToDecimalString(in))
	}
}

func TestTrimScale(t *testing.T) {
	cases := map[string]string{
		"1.2300":  "1.23",
		"10.000":  "10",
		"0.000":   "0",
		"-5.10":   "-5.1",
		"100":     "100",
		"0.00010": "0.0001",
	}
	for in, want := range cases {
		got, err := TrimScale(in)
		require.NoError(t, err)
		require.Equal(t, want, got, in)
	}
	_, err := TrimScale("abc")
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
}

func TestToUint64(t *testing.T) {
	v, err := ToUint64(dec(t, "1.5"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), v)

	v, err = ToUint64(dec(t, "18446744073709551615"))
	require.NoError(t, err)
	require.Equal(t, uint64(18446744073709551615), v)

	_, err = ToUint64(dec(t, "18446744073709551616"))
	require.Error(t, err)

	_, err = ToUint64(dec(t, "-1"))
	require.Equal(t, errs.CanonicalInvalidDecimal, errs.CanonicalOf(err))
}

func TestParseOrZero(t *testing.T) {
	d, err := ParseOrZero("  ")
	require.NoError(t, err)
	require.True(t, d.IsZero())

	_, err = ParseDecimal("")
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
}
