package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled, StatusFailed}

	legal := map[Status][]Status{
		StatusPending: {StatusShipped, StatusCancelled, StatusFailed},
		StatusShipped: {StatusDelivered, StatusCancelled},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range legal[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_PaidHasNoEdges(t *testing.T) {
	// paid is a recognized value with no transitions wired in either direction.
	assert.True(t, KnownStatus(StatusPaid))
	for _, s := range []Status{StatusPending, StatusShipped, StatusDelivered, StatusCancelled, StatusFailed} {
		assert.False(t, CanTransition(StatusPaid, s), "paid -> %s", s)
		assert.False(t, CanTransition(s, StatusPaid), "%s -> paid", s)
	}
}

func TestKnownStatus(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled, StatusFailed} {
		assert.True(t, KnownStatus(s), string(s))
	}
	assert.False(t, KnownStatus(Status("returned")))
	assert.False(t, KnownStatus(Status("")))
}

func TestIllegalTransitionError_Message(t *testing.T) {
	err := &IllegalTransitionError{From: StatusCancelled, To: StatusShipped}
	assert.Equal(t, "illegal status transition: cancelled -> shipped", err.Error())
}
