package livemon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/livemon"
)

func TestGroup(t *testing.T) {
	g, err := livemon.NewGroup[float64](3, livemon.Accumulate, 2, livemon.WithName("plot"))
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, livemon.Accumulate, g.Mode())

	for i, b := range g.All() {
		assert.Equal(t, livemon.Accumulate, b.Mode())
		assert.Equal(t, 2, b.Capacity())
		require.NoError(t, b.Push(float64(i), float64(i)+0.5, float64(i)+0.7))
	}

	b, err := g.At(1)
	require.NoError(t, err)
	assert.Equal(t, "plot.1", b.Name())

	s, err := g.Snapshots()
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.7}, {1.5, 1.7}, {2.5, 2.7}}, s)
}

func TestGroupAt(t *testing.T) {
	g, err := livemon.NewGroup[int](2, livemon.LatestOnly, 1)
	require.NoError(t, err)
	for _, index := range []int{-1, 2, 10} {
		_, err := g.At(index)
		assert.ErrorIs(t, err, livemon.ErrIndexOutOfRange)
	}
}

func TestGroupAllRestartable(t *testing.T) {
	g, err := livemon.NewGroup[int](4, livemon.Accumulate, livemon.Unbounded)
	require.NoError(t, err)
	seq := g.All()
	for round := 0; round < 2; round++ {
		ids := []string{}
		for i, b := range seq {
			expected, err := g.At(i)
			require.NoError(t, err)
			assert.Same(t, expected, b)
			ids = append(ids, b.ID())
		}
		assert.Len(t, ids, 4)
	}
	// early break
	visited := 0
	for range g.All() {
		visited++
		break
	}
	assert.Equal(t, 1, visited)
}

func TestGroupClose(t *testing.T) {
	g, err := livemon.NewGroup[int](2, livemon.Accumulate, 10)
	require.NoError(t, err)
	g.Close()
	for _, b := range g.All() {
		assert.ErrorIs(t, b.Push(1), livemon.ErrChannelClosed)
	}
	_, err = g.Snapshots()
	assert.ErrorIs(t, err, livemon.ErrChannelClosed)
}

func TestNewGroupInvalid(t *testing.T) {
	_, err := livemon.NewGroup[int](0, livemon.Accumulate, 1)
	assert.ErrorIs(t, err, livemon.ErrInvalidConfig)
	_, err = livemon.NewGroup[int](1, livemon.Accumulate, -5)
	assert.ErrorIs(t, err, livemon.ErrInvalidCapacity)
}
