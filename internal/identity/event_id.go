package identity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// EventIDLength is the encoded size of an EventID.
const EventIDLength = 12

// Block-level events carry negative transaction indexes.
const (
	BeginBlockTransactionIndex int32 = -2
	EndBlockTransactionIndex   int32 = -1
)

const transactionIndexOffset = 2

// EventID orders events within the chain: big-endian height, transaction index
// shifted by two and event index. Byte order equals chain order.
type EventID [EventIDLength]byte

// NewEventID encodes the position of an event.
func NewEventID(height uint32, transactionIndex int32, eventIndex uint32) (EventID, error) {
	var id EventID
	if transactionIndex < BeginBlockTransactionIndex {
		return id, fmt.Errorf("event id: transaction index %d below %d", transactionIndex, BeginBlockTransactionIndex)
	}
	binary.BigEndian.PutUint32(id[0:4], height)
	binary.BigEndian.PutUint32(id[4:8], uint32(transactionIndex+transactionIndexOffset))
	binary.BigEndian.PutUint32(id[8:12], eventIndex)
	return id, nil
}

// ParseEventID decodes the hex form produced by EventID.Hex.
func ParseEventID(s string) (EventID, error) {
	var id EventID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("event id: %w", err)
	}
	return EventIDFromBytes(raw)
}

// EventIDFromBytes copies a 12-byte slice into an EventID.
func EventIDFromBytes(raw []byte) (EventID, error) {
	var id EventID
	if len(raw) != EventIDLength {
		return id, fmt.Errorf("event id: want %d bytes, got %d", EventIDLength, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Parts returns the decoded height, transaction index and event index.
func (e EventID) Parts() (height uint32, transactionIndex int32, eventIndex uint32) {
	height = binary.BigEndian.Uint32(e[0:4])
	transactionIndex = int32(binary.BigEndian.Uint32(e[4:8])) - transactionIndexOffset
	eventIndex = binary.BigEndian.Uint32(e[8:12])
	return height, transactionIndex, eventIndex
}

// Hex renders the lowercase hex encoding used in canonical id strings.
func (e EventID) Hex() string {
	return hex.EncodeToString(e[:])
}

// Bytes returns a copy of the encoded id.
func (e EventID) Bytes() []byte {
	out := make([]byte, EventIDLength)
	copy(out, e[:])
	return out
}

func (e EventID) String() string { return e.Hex() }

// MarshalText renders the hex form.
func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.Hex()), nil
}

// UnmarshalText parses the hex form.
func (e *EventID) UnmarshalText(text []byte) error {
	parsed, err := ParseEventID(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
