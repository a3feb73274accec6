package master

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/dirstore/internal/recman"
	"github.com/cuemby/dirstore/pkg/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestManager(t *testing.T) *recman.Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := recman.Open(filepath.Join(dir, "test.db"), 64, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newEntry() *entry.Entry {
	e := entry.New()
	e.Add("objectClass", "organizationalUnit")
	e.Add("ou", "people")
	return e
}

func TestMasterPutGetDelete(t *testing.T) {
	m := openTestManager(t)
	tbl, err := Open(m, entry.JSONCodec{})
	require.NoError(t, err)

	e := newEntry()
	require.NoError(t, tbl.Put(1, e))

	got, ok, err := tbl.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, entry.Equal(e, got))

	require.NoError(t, tbl.Delete(1))
	_, ok, err = tbl.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMasterNextIDMonotonic(t *testing.T) {
	m := openTestManager(t)
	tbl, err := Open(m, entry.JSONCodec{})
	require.NoError(t, err)

	a, err := tbl.NextID()
	require.NoError(t, err)
	b, err := tbl.NextID()
	require.NoError(t, err)
	assert.Equal(t, a+1, b)
}

func TestMasterCount(t *testing.T) {
	m := openTestManager(t)
	tbl, err := Open(m, entry.JSONCodec{})
	require.NoError(t, err)

	require.NoError(t, tbl.Put(1, newEntry()))
	require.NoError(t, tbl.Put(2, newEntry()))

	n, err := tbl.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, tbl.Delete(1))
	n, err = tbl.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
