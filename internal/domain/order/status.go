package order

import "fmt"

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// statusFlow is the adjacency map of legal status transitions. It is
// process-wide immutable configuration: never mutate it after init.
//
// paid is a recognized status value but has no edges in or out; transitions
// involving it are rejected until a payment confirmation path exists.
var statusFlow = map[Status][]Status{
	StatusPending: {StatusShipped, StatusCancelled, StatusFailed},
	StatusShipped: {StatusDelivered, StatusCancelled},
	// delivered, cancelled, failed: terminal
}

// IllegalTransitionError reports a requested transition outside statusFlow.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition: %s -> %s", e.From, e.To)
}

// KnownStatus reports whether s is one of the recognized status values.
func KnownStatus(s Status) bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the edge from -> to exists in statusFlow.
func CanTransition(from, to Status) bool {
	for _, next := range statusFlow[from] {
		if next == to {
			return true
		}
	}
	return false
}
