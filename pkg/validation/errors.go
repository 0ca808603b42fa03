package validation

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is; the concrete errors carry
// the details through fmt.Errorf wrapping.
var (
	// ErrConfiguration marks structurally invalid caller parameters: a zero
	// time horizon, zero invested capital, a dimension mismatch between weights
	// and scenario columns, or a negative iteration count.
	ErrConfiguration = errors.New("configuration error")

	// ErrInsufficientData marks a scenario with fewer than two periods, which
	// points at a misconfigured sampler.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrEmptyPopulation marks a request without portfolios.
	ErrEmptyPopulation = errors.New("empty population")

	// ErrDecode marks a malformed serialized portfolio batch.
	ErrDecode = errors.New("malformed input")

	// ErrComputation marks an unexpected failure inside an offloaded
	// computation.
	ErrComputation = errors.New("computation fault")
)

// Codes reported across process boundaries.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeInternal        = "internal"
)

// IsRejection reports whether err is a request rejection, i.e. something the
// caller must correct before retrying.
func IsRejection(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrEmptyPopulation) ||
		errors.Is(err, ErrDecode)
}

// Code maps an error to the code used by the remote interfaces.
func Code(err error) string {
	if IsRejection(err) {
		return CodeInvalidArgument
	}
	return CodeInternal
}

// Kind returns the sentinel error err wraps, or ErrComputation when it wraps
// none of them.
func Kind(err error) error {
	for _, kind := range []error{ErrConfiguration, ErrInsufficientData, ErrEmptyPopulation, ErrDecode, ErrComputation} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrComputation
}

// KindFromName resolves the textual form of a kind, as produced by
// kind.Error(), back to its sentinel. Unknown names resolve to ErrComputation.
func KindFromName(name string) error {
	for _, kind := range []error{ErrConfiguration, ErrInsufficientData, ErrEmptyPopulation, ErrDecode, ErrComputation} {
		if kind.Error() == name {
			return kind
		}
	}
	return ErrComputation
}

// Fault wraps a recovered panic value as a computation fault.
func Fault(op string, recovered interface{}) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("%w: %s: %w", ErrComputation, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrComputation, op, recovered)
}
