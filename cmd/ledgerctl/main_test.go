package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/perpindex/errs"
	"github.com/coachpo/perpindex/internal/identity"
)

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("PERPINDEX_CONFIG", "")
	require.Equal(t, defaultConfigPath, resolveConfigPath(""))

	t.Setenv("PERPINDEX_CONFIG", "/etc/perpindex.yaml")
	require.Equal(t, "/etc/perpindex.yaml", resolveConfigPath(""))
	require.Equal(t, "local.yaml", resolveConfigPath("local.yaml"))
}

func TestSubaccountFlagsResolve(t *testing.T) {
	id := uuid.New()
	got, err := subaccountFlags{id: id.String()}.resolve()
	require.NoError(t, err)
	require.Equal(t, id, got)

	got, err = subaccountFlags{address: "dydx1abc", number: 128}.resolve()
	require.NoError(t, err)
	require.Equal(t, identity.Subaccount("dydx1abc", 128), got)

	_, err = subaccountFlags{id: id.String(), address: "dydx1abc"}.resolve()
	require.Error(t, err)
	require.Equal(t, errs.CanonicalMutuallyExclusiveFilters, errs.CanonicalOf(err))

	_, err = subaccountFlags{}.resolve()
	require.Error(t, err)

	_, err = subaccountFlags{id: "not-a-uuid"}.resolve()
	require.Error(t, err)
}

func TestHeightListCollectsRepeatedFlags(t *testing.T) {
	fs := newFlagSet("test")
	var heights heightList
	fs.Var(&heights, "height", "")
	require.NoError(t, fs.Parse([]string{"-height", "10", "-height", "20"}))
	require.Equal(t, heightList{10, 20}, heights)

	require.Error(t, fs.Parse([]string{"-height", "ten"}))
}

func TestCommandNamesSorted(t *testing.T) {
	names := strings.Split(commandNames(), "|")
	require.Len(t, names, len(commands))
	require.Equal(t, "fills", names[0])
	require.Contains(t, names, "settled-funding")
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run([]string{"explode"}, new(bytes.Buffer))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown command")

	err = run(nil, new(bytes.Buffer))
	require.Error(t, err)
	require.Contains(t, err.Error(), "command required")
}

func TestFundingIndexRequiresHeight(t *testing.T) {
	_, err := runFundingIndex(context.Background(), &app{}, nil)
	require.EqualError(t, err, "-height is required")
}

func TestWriteJSONRendersDecimalsAsStrings(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, writeJSON(buf, map[string]any{"settledFunding": decimal.RequireFromString("1600")}))
	require.Contains(t, buf.String(), `"settledFunding": "1600"`)
}
