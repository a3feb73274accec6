package btreetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVTablePutGetDelete(t *testing.T) {
	m := openTestManager(t)
	tbl, err := New[uint64, []byte](m, "kv", Uint64Codec{}, BytesCodec{})
	require.NoError(t, err)

	require.NoError(t, tbl.Put(1, []byte("hello")))
	v, ok, err := tbl.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), v)

	require.NoError(t, tbl.Delete(1))
	_, ok, err = tbl.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVTableNextIDMonotonic(t *testing.T) {
	m := openTestManager(t)
	tbl, err := New[uint64, []byte](m, "ids", Uint64Codec{}, BytesCodec{})
	require.NoError(t, err)

	a, err := tbl.NextID()
	require.NoError(t, err)
	b, err := tbl.NextID()
	require.NoError(t, err)
	assert.Equal(t, a+1, b)
}

func TestKVTableForEachAscending(t *testing.T) {
	m := openTestManager(t)
	tbl, err := New[uint64, []byte](m, "kv", Uint64Codec{}, BytesCodec{})
	require.NoError(t, err)

	require.NoError(t, tbl.Put(3, []byte("c")))
	require.NoError(t, tbl.Put(1, []byte("a")))
	require.NoError(t, tbl.Put(2, []byte("b")))

	var keys []uint64
	require.NoError(t, tbl.ForEach(func(k uint64, v []byte) (bool, error) {
		keys = append(keys, k)
		return true, nil
	}))
	assert.Equal(t, []uint64{1, 2, 3}, keys)
}

func TestKVTableStringKeys(t *testing.T) {
	m := openTestManager(t)
	tbl, err := New[string, []byte](m, "strkv", StringCodec{}, BytesCodec{})
	require.NoError(t, err)

	require.NoError(t, tbl.Put("cn=a,ou=system", []byte("1")))
	v, ok, err := tbl.Get("cn=a,ou=system")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
}
