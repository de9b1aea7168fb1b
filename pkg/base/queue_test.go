package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueueFIFO(t *testing.T) {
	q := newWorkQueue()
	assert.True(t, q.empty())

	var a, b, c ResHash
	a[0], b[0], c[0] = 1, 2, 3
	q.push(a)
	q.push(b)
	q.push(c)

	assert.False(t, q.empty())

	got, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, a, got)

	got, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, b, got)

	got, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, c, got)

	_, ok = q.pop()
	assert.False(t, ok)
	assert.True(t, q.empty())
}

func TestWorkQueueRequeueGoesToTail(t *testing.T) {
	q := newWorkQueue()
	var a, b ResHash
	a[0], b[0] = 1, 2
	q.push(a)
	q.push(b)

	got, _ := q.pop()
	assert.Equal(t, a, got)
	q.push(a) // requeue

	got, _ = q.pop()
	assert.Equal(t, b, got)
	got, _ = q.pop()
	assert.Equal(t, a, got)
}
