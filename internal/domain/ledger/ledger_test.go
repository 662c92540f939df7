package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/subaccount"
)

func TestResolveUpsertStatus(t *testing.T) {
	ten := decimal.NewFromInt(10)
	cases := []struct {
		name      string
		requested OrderStatus
		filled    decimal.Decimal
		want      OrderStatus
	}{
		{"open partially filled", OrderStatusOpen, decimal.NewFromInt(3), OrderStatusOpen},
		{"open fully filled", OrderStatusOpen, ten, OrderStatusFilled},
		{"overfilled", OrderStatusOpen, decimal.NewFromInt(11), OrderStatusFilled},
		{"best effort canceled stays", OrderStatusBestEffortCanceled, ten, OrderStatusBestEffortCanceled},
		{"untriggered unfilled stays", OrderStatusUntriggered, decimal.Zero, OrderStatusUntriggered},
		{"canceled filled becomes filled", OrderStatusCanceled, ten, OrderStatusFilled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ResolveUpsertStatus(tc.requested, ten, tc.filled))
		})
	}
}

func TestValidateOrderRejectsBothGoodTil(t *testing.T) {
	block := int64(10)
	now := time.Now()
	err := ValidateOrder(Order{Side: SideBuy, GoodTilBlock: &block, GoodTilBlockTime: &now})
	require.True(t, errs.IsCode(err, errs.CodeInvalid))

	require.NoError(t, ValidateOrder(Order{Side: SideSell, GoodTilBlock: &block}))
	require.Error(t, ValidateOrder(Order{Side: "LEFT"}))
}

func TestFillQueryValidate(t *testing.T) {
	q := FillQuery{
		SubaccountID:     []uuid.UUID{uuid.New()},
		ParentSubaccount: &subaccount.Parent{Address: "dydx1abc", Number: 0},
	}
	err := q.Validate()
	require.Error(t, err)
	require.Equal(t, errs.CanonicalMutuallyExclusiveFilters, errs.CanonicalOf(err))

	require.NoError(t, FillQuery{SubaccountID: []uuid.UUID{uuid.New()}}.Validate())
	require.Error(t, FillQuery{Limit: -1}.Validate())
}

func TestPageOffset(t *testing.T) {
	require.Equal(t, 0, PageOffset(0, 10))
	require.Equal(t, 0, PageOffset(1, 10))
	require.Equal(t, 20, PageOffset(3, 10))
	require.Equal(t, 0, PageOffset(-4, 10))
}

func TestSignedSize(t *testing.T) {
	five := decimal.NewFromInt(5)
	require.Equal(t, "5", Fill{Side: SideBuy, Size: five}.SignedSize().String())
	require.Equal(t, "-5", Fill{Side: SideSell, Size: five}.SignedSize().String())
	require.Equal(t, "-5", PerpetualPosition{Side: PositionShort, Size: five}.SignedSize().String())
	require.True(t, Order{TimeInForce: TimeInForcePostOnly}.PostOnly())
}
