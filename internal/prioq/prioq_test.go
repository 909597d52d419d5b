package prioq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopsMostRecentFirst(t *testing.T) {
	q := New()
	q.Push(&Item{Timestamp: 10, Path: "/old", Size: 1})
	q.Push(&Item{Timestamp: 30, Path: "/newest", Size: 1})
	q.Push(&Item{Timestamp: 20, Path: "/mid", Size: 1})

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "/newest", first.Path)

	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "/mid", second.Path)

	third, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "/old", third.Path)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestFilterSmallerThan(t *testing.T) {
	q := New()
	q.Push(&Item{Timestamp: 1, Path: "/small", Size: 10})
	q.Push(&Item{Timestamp: 2, Path: "/big", Size: 1000})

	filtered := q.FilterSmallerThan(100)
	assert.Equal(t, 1, filtered.Len())
	item, ok := filtered.Pop()
	require.True(t, ok)
	assert.Equal(t, "/small", item.Path)
}
