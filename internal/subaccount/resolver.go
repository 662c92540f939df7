// Package subaccount maps parent subaccount numbers to their child numbers and back.
package subaccount

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/identity"
)

const component = "subaccount"

const (
	// MaxParentSubaccounts bounds parent numbers to [0, MaxParentSubaccounts).
	MaxParentSubaccounts uint32 = 128
	// ChildSubaccountMultiplier is the number of children per parent.
	ChildSubaccountMultiplier uint32 = 1000
	// MaxSubaccountNumber is the largest child number accepted by ParentSubaccountNumber.
	MaxSubaccountNumber = MaxParentSubaccounts * ChildSubaccountMultiplier
)

// Parent addresses a parent subaccount.
type Parent struct {
	Address string
	Number  uint32
}

// ChildSubaccountNumbers returns 128*i + parent for i in [0, 1000).
func ChildSubaccountNumbers(parent uint32) ([]uint32, error) {
	if parent >= MaxParentSubaccounts {
		return nil, errs.Invalid(component, errs.CanonicalInvalidSubaccountNumber,
			fmt.Sprintf("Parent subaccount number must be less than %d", MaxParentSubaccounts))
	}
	out := make([]uint32, ChildSubaccountMultiplier)
	for i := uint32(0); i < ChildSubaccountMultiplier; i++ {
		out[i] = MaxParentSubaccounts*i + parent
	}
	return out, nil
}

// ParentSubaccountNumber returns child mod 128.
func ParentSubaccountNumber(child uint32) (uint32, error) {
	if child > MaxSubaccountNumber {
		return 0, errs.Invalid(component, errs.CanonicalInvalidSubaccountNumber,
			fmt.Sprintf("Child subaccount number must be less than or equal to %d", MaxSubaccountNumber))
	}
	return child % MaxParentSubaccounts, nil
}

// ChildSubaccountIDs resolves every child of p to its deterministic subaccount id.
// Stores filter on this explicit list rather than a correlated sub-select.
func ChildSubaccountIDs(p Parent) ([]uuid.UUID, error) {
	numbers, err := ChildSubaccountNumbers(p.Number)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(numbers))
	for i, n := range numbers {
		ids[i] = identity.Subaccount(p.Address, n)
	}
	return ids, nil
}
