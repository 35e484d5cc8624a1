package sketchcache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	c, err := New(Options{Dir: t.TempDir(), MaxEntries: 50})
	require.NoError(t, err)

	require.NoError(t, c.Put("key1", []byte("hello")))
	v, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), v)
}

func TestCache_Get_Miss(t *testing.T) {
	c, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestCache_EvictsLRUAtCapacity(t *testing.T) {
	c, err := New(Options{Dir: t.TempDir(), MaxEntries: 50})
	require.NoError(t, err)

	for i := 0; i < 51; i++ {
		require.NoError(t, c.Put(fmt.Sprintf("k%d", i), []byte("v")))
	}

	assert.LessOrEqual(t, c.Len(), 50)
	_, ok := c.Get("k0")
	assert.False(t, ok, "the oldest key must have been evicted")
	_, ok = c.Get("k50")
	assert.True(t, ok, "the newest key must still be present")
}

func TestCache_Clear(t *testing.T) {
	c, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, c.Put("k", []byte("v")))
	require.NoError(t, c.Clear())
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Disabled(t *testing.T) {
	c, err := New(Options{Dir: t.TempDir(), Disabled: true})
	require.NoError(t, err)
	require.NoError(t, c.Put("k", []byte("v")))
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_PersistsIndexAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	c1, err := New(Options{Dir: dir, MaxEntries: 50})
	require.NoError(t, err)
	require.NoError(t, c1.Put("persisted", []byte("v")))
	require.NoError(t, c1.Close())

	c2, err := New(Options{Dir: dir, MaxEntries: 50})
	require.NoError(t, err)
	v, ok := c2.Get("persisted")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}
