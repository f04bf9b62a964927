package network

import (
	"errors"
	"fmt"
)

// ErrInvalidRoot is returned when the requested root index is outside the graph
var ErrInvalidRoot = errors.New("network: root index out of range")

// InsufficientPointsError reports that fewer than two points were supplied
type InsufficientPointsError struct {
	Count int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("at least 2 points required, got %d", e.Count)
}

// InvariantError reports a spanning tree that violates a structural invariant.
// It indicates a defect, never bad input.
type InvariantError struct {
	Invariant string
}

func (e *InvariantError) Error() string {
	return "spanning tree invariant violated: " + e.Invariant
}
