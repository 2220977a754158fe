package containers

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](3)
	assert.True(t, rq.IsEmpty())
	_, err := rq.Peek()
	assert.True(t, errors.Is(err, ErrQueueEmpty))

	for i := 1; i <= 3; i++ {
		require.NoError(t, rq.Enqueue(i))
	}
	assert.True(t, rq.IsFull())
	assert.True(t, errors.Is(rq.Enqueue(4), ErrQueueFull))

	v, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, rq.Enqueue(4))
	assert.Equal(t, []int{2, 3, 4}, rq.Items())

	v, err = rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 3, rq.Len())
}

func TestRingQueuePushOverwrites(t *testing.T) {
	rq := NewRingQueue[float64](2)
	rq.Push(1)
	rq.Push(2)
	rq.Push(3)
	assert.Equal(t, []float64{2, 3}, rq.Items())
	assert.Equal(t, 2, rq.Cap())

	empty := NewRingQueue[string](0)
	empty.Push("x")
	assert.Empty(t, empty.Items())
}
