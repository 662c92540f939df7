// Package identity derives stable row identifiers from business keys.
//
// Ids are UUIDv5 values over a fixed namespace and a canonical string built from
// the key fields. Both the namespace and the canonical formats are persisted
// contracts; changing either requires a data migration.
package identity

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Namespace is the UUIDv5 namespace for every ledger id.
var Namespace = uuid.MustParse("0f9da948-a6fb-4c45-9edc-4685c3f3317d")

func derive(name string) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(name))
}

// Subaccount derives the id of (address, subaccountNumber).
func Subaccount(address string, number uint32) uuid.UUID {
	return derive(address + "-" + strconv.FormatUint(uint64(number), 10))
}

// Fill derives the id of a fill leg from its event id and liquidity role.
func Fill(eventID EventID, liquidity string) uuid.UUID {
	return derive(eventID.Hex() + "-" + liquidity)
}

// Order derives the id of an order from its protocol order id parts.
func Order(subaccountID uuid.UUID, clientID uint32, clobPairID string, orderFlags uint32) uuid.UUID {
	return derive(fmt.Sprintf("%s-%d-%s-%d", subaccountID, clientID, clobPairID, orderFlags))
}

// FundingIndexUpdate derives the id of a funding index snapshot.
func FundingIndexUpdate(effectiveAtHeight int64, eventID EventID, perpetualID string) uuid.UUID {
	return derive(fmt.Sprintf("%d-%s-%s", effectiveAtHeight, eventID.Hex(), perpetualID))
}

// PerpetualPosition derives the id of a position from the event that opened it.
func PerpetualPosition(subaccountID uuid.UUID, openEventID EventID) uuid.UUID {
	return derive(subaccountID.String() + "-" + openEventID.Hex())
}

// TradingReward derives the id of a reward credited to address at blockHeight.
func TradingReward(address string, blockHeight int64) uuid.UUID {
	return derive(address + "-" + strconv.FormatInt(blockHeight, 10))
}

// Transaction derives the id of the transaction at (blockHeight, transactionIndex).
func Transaction(blockHeight int64, transactionIndex int32) uuid.UUID {
	return derive(fmt.Sprintf("%d-%d", blockHeight, transactionIndex))
}

// OraclePrice derives the id of a market's oracle price at blockHeight.
func OraclePrice(marketID int32, blockHeight int64) uuid.UUID {
	return derive(fmt.Sprintf("%d-%d", marketID, blockHeight))
}

// AssetPosition derives the id of a subaccount's position in assetID.
func AssetPosition(subaccountID uuid.UUID, assetID string) uuid.UUID {
	return derive(subaccountID.String() + "-" + assetID)
}
