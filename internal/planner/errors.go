package planner

import (
	"errors"
	"fmt"

	"github.com/stuartshay/gridplan/internal/cost"
	"github.com/stuartshay/gridplan/internal/network"
)

// InsufficientPointsError reports that fewer than two points were supplied
type InsufficientPointsError = network.InsufficientPointsError

// NegativeCostConfigError reports a negative or non-finite cost model or policy field
type NegativeCostConfigError = cost.NegativeCostConfigError

// ErrTimeout is returned when the caller's deadline elapses before the pipeline finishes
var ErrTimeout = errors.New("optimization timed out")

// InvalidCoordinateError reports a point with a missing, non-finite or out-of-range coordinate
type InvalidCoordinateError struct {
	Index  int
	Name   string
	Reason string
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("point %d (%q) has invalid coordinates: %s", e.Index+1, e.Name, e.Reason)
}

// MissingCostFieldError reports a cost model field absent from the request
type MissingCostFieldError struct {
	Field string
}

func (e *MissingCostFieldError) Error() string {
	return fmt.Sprintf("cost field %s is required", e.Field)
}

// InternalComputationError wraps an invariant violation inside the solver or
// evaluator. Its message is deliberately generic; the cause is kept for logs.
type InternalComputationError struct {
	Cause error
}

func (e *InternalComputationError) Error() string {
	return "internal computation error"
}

func (e *InternalComputationError) Unwrap() error {
	return e.Cause
}

// Class groups errors by how a transport boundary should report them
type Class int

// Error classes
const (
	ClassNone Class = iota
	ClassValidation
	ClassTimeout
	ClassInternal
)

// Classify maps an error returned by the service to its boundary class.
// Unknown errors are internal.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	var (
		insufficient *InsufficientPointsError
		coordinate   *InvalidCoordinateError
		negative     *NegativeCostConfigError
		missing      *MissingCostFieldError
	)

	switch {
	case errors.As(err, &insufficient),
		errors.As(err, &coordinate),
		errors.As(err, &negative),
		errors.As(err, &missing):
		return ClassValidation
	case errors.Is(err, ErrTimeout):
		return ClassTimeout
	default:
		return ClassInternal
	}
}

// PublicMessage returns the message safe to show a caller for err
func PublicMessage(err error) string {
	switch Classify(err) {
	case ClassNone:
		return ""
	case ClassValidation, ClassTimeout:
		return err.Error()
	default:
		return "internal computation error"
	}
}
