package recman

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "test.db"), 16, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestPutGetDelete(t *testing.T) {
	m := openTestManager(t)
	b, err := m.Bucket([]byte("widgets"))
	require.NoError(t, err)

	require.NoError(t, b.Put([]byte("a"), []byte("1")))
	v, err := b.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, b.Delete([]byte("a")))
	v, err = b.Get([]byte("a"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDeleteMissingIsIdempotent(t *testing.T) {
	m := openTestManager(t)
	b, err := m.Bucket([]byte("widgets"))
	require.NoError(t, err)
	assert.NoError(t, b.Delete([]byte("nope")))
}

func TestNextSequenceIncrements(t *testing.T) {
	m := openTestManager(t)
	b, err := m.Bucket([]byte("ids"))
	require.NoError(t, err)

	first, err := b.NextSequence()
	require.NoError(t, err)
	second, err := b.NextSequence()
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
}

func TestCacheServesWithoutRereading(t *testing.T) {
	m := openTestManager(t)
	b, err := m.Bucket([]byte("widgets"))
	require.NoError(t, err)
	require.NoError(t, b.Put([]byte("k"), []byte("v")))

	v, err := b.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	ck := cacheKey(b.name, []byte("k"))
	cached, ok := m.cache.Get(ck)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), cached)
}

func TestCountAfterPuts(t *testing.T) {
	m := openTestManager(t)
	b, err := m.Bucket([]byte("widgets"))
	require.NoError(t, err)

	require.NoError(t, b.Put([]byte("a"), []byte("1")))
	require.NoError(t, b.Put([]byte("b"), []byte("2")))

	n, err := b.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
