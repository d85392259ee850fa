package queue

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNextFreeIDDoesNotReuseGapsBelowPrevID exercises the same free-id
// scan as the original's enqueueRequest: the scan starts just past the
// previously issued id, so a vacated lower id (2 here) is not handed out
// again before the scan wraps around; the next id is 4.
func TestNextFreeIDDoesNotReuseGapsBelowPrevID(t *testing.T) {
	q := New(nil)
	q.requests = []*RequestData{{ID: 1}, {ID: 3}}
	q.nextID = 3

	id, ok := q.nextFreeID()
	assert.True(t, ok)
	assert.Equal(t, uint64(4), id)
}

// TestNextFreeIDWrapsPastMaxUint64 exercises the scan's wraparound: once
// the previously issued id sits near math.MaxUint64, the candidate must
// overflow back to 0 and keep scanning from there rather than stopping or
// panicking, finding the first gap on the far side of the wrap.
func TestNextFreeIDWrapsPastMaxUint64(t *testing.T) {
	q := New(nil)
	q.nextID = math.MaxUint64 - 3
	q.requests = []*RequestData{
		{ID: math.MaxUint64 - 2},
		{ID: math.MaxUint64 - 1},
		{ID: math.MaxUint64},
		{ID: 0},
		{ID: 1},
	}

	id, ok := q.nextFreeID()
	require.True(t, ok)
	assert.Equal(t, uint64(2), id)
}

// TestEnqueueAllocatesAcrossTheWrapBoundary exercises the wraparound at
// the public Enqueue boundary rather than by calling nextFreeID directly:
// a queue that has only ever issued ids up near math.MaxUint64 must hand
// the next caller an id on the far side of the wrap, and that request
// must be reachable afterwards through the same queue state Enqueue
// mutates (q.requests), not just through nextFreeID's return value.
//
// nextFreeID's *other* return path — reporting the id space exhausted —
// only fires once every id on the circle from prevID+1 back around to
// prevID is occupied: the entire uint64 space minus one, regardless of
// where prevID sits. That is not constructible in a test (or in memory,
// at roughly 16 bytes a slot across 2^64 ids), so unlike the reuse and
// wraparound cases above it is not exercised by a unit test; see
// DESIGN.md.
func TestEnqueueAllocatesAcrossTheWrapBoundary(t *testing.T) {
	q := New(nil)
	q.nextID = math.MaxUint64
	q.requests = nil

	replyC, err := q.Enqueue(1, "Noop", nil)
	require.NoError(t, err)
	require.NotNil(t, replyC)
	require.Len(t, q.requests, 1)
	assert.Equal(t, uint64(0), q.requests[0].ID)
	assert.Equal(t, uint64(0), q.nextID)
}
