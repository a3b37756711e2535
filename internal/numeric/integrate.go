package numeric

import (
	"math"

	"gocombine/internal/errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
)

// CumulativeMass integrates y over x with the trapezoid rule and returns the
// running mass normalized to one at the last point.
func CumulativeMass(x, y []float64) ([]float64, error) {
	if len(x) != len(y) || len(x) < 2 {
		return nil, errors.InvalidInput("cumulative mass needs matching grids of at least two points")
	}
	total := integrate.Trapezoidal(x, y)
	if !(total > 0) || math.IsInf(total, 0) {
		return nil, errors.RootFindingFailure("integrand has no positive finite mass (total=%g)", total)
	}
	segments := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		segments[i] = 0.5 * (y[i] + y[i-1]) * (x[i] - x[i-1])
	}
	cum := floats.CumSum(make([]float64, len(segments)), segments)
	floats.Scale(1/total, cum)
	return cum, nil
}

// InterpolateCrossing finds the abscissa where the monotone sequence cum
// first reaches level, interpolating linearly between the bracketing points.
func InterpolateCrossing(x, cum []float64, level float64) (float64, error) {
	for i := 1; i < len(cum); i++ {
		if cum[i] >= level {
			lo, hi := cum[i-1], cum[i]
			if hi == lo {
				return x[i], nil
			}
			frac := (level - lo) / (hi - lo)
			return x[i-1] + frac*(x[i]-x[i-1]), nil
		}
	}
	return math.NaN(), errors.RootFindingFailure("cumulative mass never reaches %g", level)
}
