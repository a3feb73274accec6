package btreetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseTableAddListContains(t *testing.T) {
	m := openTestManager(t)
	tbl, err := NewReverse[string](m, "rev", StringCodec{}, 4)
	require.NoError(t, err)

	require.NoError(t, tbl.Add(1, "cn"))
	require.NoError(t, tbl.Add(1, "ou"))
	require.NoError(t, tbl.Add(1, "cn")) // idempotent

	vals, err := tbl.List(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cn", "ou"}, vals)

	ok, err := tbl.Contains(1, "cn")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tbl.Contains(1, "sn")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReverseTableDropShrinksToEmpty(t *testing.T) {
	m := openTestManager(t)
	tbl, err := NewReverse[string](m, "rev", StringCodec{}, 4)
	require.NoError(t, err)

	require.NoError(t, tbl.Add(1, "cn"))
	require.NoError(t, tbl.Drop(1, "cn"))

	vals, err := tbl.List(1)
	require.NoError(t, err)
	assert.Empty(t, vals)

	n, err := tbl.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReverseTablePromotesAndDemotesAcrossDuplicateLimit(t *testing.T) {
	m := openTestManager(t)
	tbl, err := NewReverse[string](m, "rev", StringCodec{}, 2)
	require.NoError(t, err)

	require.NoError(t, tbl.Add(1, "a"))
	require.NoError(t, tbl.Add(1, "b"))
	require.NoError(t, tbl.Add(1, "c")) // promotes past the limit of 2

	vals, err := tbl.List(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, vals)

	require.NoError(t, tbl.Drop(1, "c")) // demotes back to inline

	vals, err = tbl.List(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, vals)
}

func TestReverseTableDropID(t *testing.T) {
	m := openTestManager(t)
	tbl, err := NewReverse[string](m, "rev", StringCodec{}, 2)
	require.NoError(t, err)

	for _, v := range []string{"a", "b", "c", "d"} {
		require.NoError(t, tbl.Add(1, v))
	}
	require.NoError(t, tbl.DropID(1))

	vals, err := tbl.List(1)
	require.NoError(t, err)
	assert.Empty(t, vals)
}
