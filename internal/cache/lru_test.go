package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_EvictsOldest(t *testing.T) {
	c, err := New[int](2)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_RemovePrefix(t *testing.T) {
	c, err := New[string](8)
	require.NoError(t, err)

	c.Put("alice|codes", "x")
	c.Put("alice|countries", "y")
	c.Put("bob|codes", "z")

	assert.Equal(t, 2, c.RemovePrefix("alice|"))
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestNew_RejectsNonPositiveSize(t *testing.T) {
	_, err := New[int](0)
	assert.Error(t, err)
}
