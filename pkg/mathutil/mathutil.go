// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"

	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"gonum.org/v1/gonum/floats"
)

// Round rounds a value to two decimals, i.e. to represent real currency.
// Used for making logical comparisons.
func Round(val float64) float64 {
	return math.Round(val*constants.DecimalPrecision) / constants.DecimalPrecision
}

// IsZero checks if a value is effectively zero (within Epsilon)
func IsZero(val float64) bool {
	return math.Abs(val) <= constants.Epsilon
}

// AllFinite reports whether no value is NaN or infinite.
func AllFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// MaxOf returns the largest value of a non-empty slice and -Inf for an empty one.
func MaxOf(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(-1)
	}
	return floats.Max(values)
}

// MinOf returns the smallest value of a non-empty slice and +Inf for an empty one.
func MinOf(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(1)
	}
	return floats.Min(values)
}

// MeanOf returns the arithmetic mean of values, 0 for an empty slice.
func MeanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values) / float64(len(values))
}

// Sum returns the sum of values.
func Sum(values []float64) float64 {
	return floats.Sum(values)
}

// ScaleInto writes values divided by divisor into a new slice.
func ScaleInto(values []float64, divisor float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	floats.Scale(1/divisor, out)
	return out
}
