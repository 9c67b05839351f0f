package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityQueue_Order(t *testing.T) {
	q := newPriorityQueue()
	q.push("bg", PriorityBackground)
	q.push("n1", PriorityNormal)
	q.push("c", PriorityCritical)
	q.push("n2", PriorityNormal)
	q.push("h", PriorityHigh)

	assert.Equal(t, 5, q.len())
	assert.Equal(t, []string{"c", "h", "n1", "n2", "bg"}, q.drain())
	assert.Equal(t, 0, q.len())

	_, ok := q.pop()
	assert.False(t, ok)
}

func TestPriorityQueue_RepushGoesToBackOfTier(t *testing.T) {
	q := newPriorityQueue()
	q.push("a", PriorityNormal)
	q.push("b", PriorityNormal)
	q.push("a", PriorityNormal)

	assert.Equal(t, 2, q.len())
	assert.Equal(t, []string{"b", "a"}, q.drain())
}

func TestPriorityQueue_Remove(t *testing.T) {
	q := newPriorityQueue()
	q.push("a", PriorityLow)
	q.push("b", PriorityHigh)
	q.push("c", PriorityNormal)

	assert.True(t, q.remove("c"))
	assert.False(t, q.remove("c"))
	assert.Equal(t, []string{"b", "a"}, q.drain())
}
