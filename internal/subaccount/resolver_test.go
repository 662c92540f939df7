package subaccount

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/identity"
)

func TestChildSubaccountNumbers(t *testing.T) {
	children, err := ChildSubaccountNumbers(3)
	require.NoError(t, err)
	require.Len(t, children, 1000)
	require.Equal(t, uint32(3), children[0])
	require.Equal(t, uint32(131), children[1])
	require.Equal(t, uint32(128*999+3), children[999])
}

func TestChildSubaccountNumbersRejectsLargeParent(t *testing.T) {
	_, err := ChildSubaccountNumbers(128)
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
	require.Equal(t, errs.CanonicalInvalidSubaccountNumber, errs.CanonicalOf(err))
}

func TestParentSubaccountNumber(t *testing.T) {
	parent, err := ParentSubaccountNumber(259)
	require.NoError(t, err)
	require.Equal(t, uint32(3), parent)

	parent, err = ParentSubaccountNumber(128000)
	require.NoError(t, err)
	require.Equal(t, uint32(0), parent)

	_, err = ParentSubaccountNumber(128001)
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
}

func TestResolverBijection(t *testing.T) {
	seen := make(map[uint32]uint32, 128*1000)
	for p := uint32(0); p < MaxParentSubaccounts; p++ {
		children, err := ChildSubaccountNumbers(p)
		require.NoError(t, err)
		for _, child := range children {
			got, err := ParentSubaccountNumber(child)
			require.NoError(t, err)
			if got != p {
				t.Fatalf("child %d: got parent %d, want %d", child, got, p)
			}
			if prev, dup := seen[child]; dup {
				t.Fatalf("child %d shared by parents %d and %d", child, prev, p)
			}
			seen[child] = p
		}
	}
}

func TestChildSubaccountIDs(t *testing.T) {
	ids, err := ChildSubaccountIDs(Parent{Address: "dydx1abc", Number: 1})
	require.NoError(t, err)
	require.Len(t, ids, 1000)
	require.Equal(t, identity.Subaccount("dydx1abc", 1), ids[0])
	require.Equal(t, identity.Subaccount("dydx1abc", 129), ids[1])

	_, err = ChildSubaccountIDs(Parent{Address: "dydx1abc", Number: 200})
	require.Error(t, err)
}
