package identity

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func mustEventID(t *testing.T, height uint32, tx int32, event uint32) EventID {
	t.Helper()
	id, err := NewEventID(height, tx, event)
	require.NoError(t, err)
	return id
}

func TestEventIDEncoding(t *testing.T) {
	id := mustEventID(t, 1, 0, 0)
	require.Equal(t, "000000010000000200000000", id.Hex())

	begin := mustEventID(t, 7, BeginBlockTransactionIndex, 3)
	require.Equal(t, "000000070000000000000003", begin.Hex())

	h, tx, ev := begin.Parts()
	require.Equal(t, uint32(7), h)
	require.Equal(t, int32(-2), tx)
	require.Equal(t, uint32(3), ev)

	parsed, err := ParseEventID(id.Hex())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ParseEventID("abcd")
	require.Error(t, err)
	_, err = NewEventID(1, -3, 0)
	require.Error(t, err)
}

func TestEventIDOrderingMatchesChainOrder(t *testing.T) {
	ordered := []EventID{
		mustEventID(t, 5, BeginBlockTransactionIndex, 0),
		mustEventID(t, 5, EndBlockTransactionIndex, 0),
		mustEventID(t, 5, 0, 0),
		mustEventID(t, 5, 0, 1),
		mustEventID(t, 5, 3, 0),
		mustEventID(t, 6, BeginBlockTransactionIndex, 0),
	}
	for i := 1; i < len(ordered); i++ {
		require.Negative(t, bytes.Compare(ordered[i-1][:], ordered[i][:]), "index %d", i)
	}
}

func TestIDsAreDeterministic(t *testing.T) {
	eventID := mustEventID(t, 10, 1, 2)
	sub := Subaccount("dydx1address", 0)

	require.Equal(t, sub, Subaccount("dydx1address", 0))
	require.Equal(t, Fill(eventID, "TAKER"), Fill(eventID, "TAKER"))
	require.Equal(t, Order(sub, 5, "0", 64), Order(sub, 5, "0", 64))
	require.Equal(t, FundingIndexUpdate(10, eventID, "0"), FundingIndexUpdate(10, eventID, "0"))
	require.Equal(t, PerpetualPosition(sub, eventID), PerpetualPosition(sub, eventID))
	require.Equal(t, TradingReward("dydx1address", 10), TradingReward("dydx1address", 10))
	require.Equal(t, Transaction(10, 1), Transaction(10, 1))
	require.Equal(t, OraclePrice(1, 10), OraclePrice(1, 10))
	require.Equal(t, AssetPosition(sub, "0"), AssetPosition(sub, "0"))

	require.Equal(t, uuid.Version(5), sub.Version())
	require.Equal(t, uuid.NewSHA1(Namespace, []byte("dydx1address-0")), sub)
}

func TestChangingAnyFieldChangesID(t *testing.T) {
	eventID := mustEventID(t, 10, 1, 2)
	other := mustEventID(t, 10, 1, 3)
	sub := Subaccount("dydx1address", 0)

	require.NotEqual(t, sub, Subaccount("dydx1address", 1))
	require.NotEqual(t, sub, Subaccount("dydx1other", 0))

	require.NotEqual(t, Fill(eventID, "TAKER"), Fill(eventID, "MAKER"))
	require.NotEqual(t, Fill(eventID, "TAKER"), Fill(other, "TAKER"))

	base := Order(sub, 5, "0", 64)
	require.NotEqual(t, base, Order(Subaccount("dydx1address", 1), 5, "0", 64))
	require.NotEqual(t, base, Order(sub, 6, "0", 64))
	require.NotEqual(t, base, Order(sub, 5, "1", 64))
	require.NotEqual(t, base, Order(sub, 5, "0", 32))

	update := FundingIndexUpdate(10, eventID, "0")
	require.NotEqual(t, update, FundingIndexUpdate(11, eventID, "0"))
	require.NotEqual(t, update, FundingIndexUpdate(10, other, "0"))
	require.NotEqual(t, update, FundingIndexUpdate(10, eventID, "1"))

	require.NotEqual(t, PerpetualPosition(sub, eventID), PerpetualPosition(sub, other))
	require.NotEqual(t, Transaction(10, 1), Transaction(10, 2))
	require.NotEqual(t, TradingReward("dydx1address", 10), TradingReward("dydx1address", 11))
}
