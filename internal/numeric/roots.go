// Package numeric provides the one-dimensional solvers used by the
// likelihood and combination code: bracketing root finding, bracket
// expansion, bounded minimization and truncated-normal helpers.
package numeric

import (
	"math"

	"gocombine/internal/errors"
)

// Tolerance controls convergence of the bracketing solvers. A step is
// accepted once |dx| <= XTol + RTol*|x|.
type Tolerance struct {
	XTol    float64
	RTol    float64
	MaxIter int
}

// DefaultRootTolerance matches the absolute/relative precision used for the
// mu solve of the truncated Gaussian.
var DefaultRootTolerance = Tolerance{XTol: 1e-6, RTol: 1e-3, MaxIter: 100}

func (t Tolerance) withDefaults() Tolerance {
	if t.XTol <= 0 {
		t.XTol = 1e-12
	}
	if t.RTol <= 0 {
		t.RTol = 4 * 2.220446049250313e-16
	}
	if t.MaxIter <= 0 {
		t.MaxIter = 100
	}
	return t
}

// BrentRoot finds a root of f in [a, b] with Brent's method. f(a) and f(b)
// must have opposite signs (or one of them must be zero).
func BrentRoot(f func(float64) float64, a, b float64, tol Tolerance) (float64, error) {
	tol = tol.withDefaults()
	fa, fb := f(a), f(b)
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return math.NaN(), errors.RootFindingFailure("function is NaN at bracket end [%g, %g]", a, b)
	}
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}
	if math.Signbit(fa) == math.Signbit(fb) {
		return math.NaN(), errors.RootFindingFailure("no sign change in [%g, %g]: f=%g, %g", a, b, fa, fb)
	}

	// c is the previous iterate; b is always the best estimate so far.
	c, fc := a, fa
	d := b - a
	e := d
	for i := 0; i < tol.MaxIter; i++ {
		if math.Signbit(fb) == math.Signbit(fc) {
			c, fc = a, fa
			d = b - a
			e = d
		}
		if math.Abs(fc) < math.Abs(fb) {
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}

		delta := 0.5 * (tol.XTol + tol.RTol*math.Abs(b))
		m := 0.5 * (c - b)
		if fb == 0 || math.Abs(m) <= delta {
			return b, nil
		}

		if math.Abs(e) >= delta && math.Abs(fa) > math.Abs(fb) {
			var p, q float64
			s := fb / fa
			if a == c {
				// secant
				p = 2 * m * s
				q = 1 - s
			} else {
				// inverse quadratic interpolation
				qq := fa / fc
				r := fb / fc
				p = s * (2*m*qq*(qq-r) - (b-a)*(r-1))
				q = (qq - 1) * (r - 1) * (s - 1)
			}
			if p > 0 {
				q = -q
			} else {
				p = -p
			}
			if 2*p < math.Min(3*m*q-math.Abs(delta*q), math.Abs(e*q)) {
				e = d
				d = p / q
			} else {
				d = m
				e = m
			}
		} else {
			d = m
			e = m
		}

		a, fa = b, fb
		if math.Abs(d) > delta {
			b += d
		} else if m > 0 {
			b += delta
		} else {
			b -= delta
		}
		fb = f(b)
		if math.IsNaN(fb) {
			return math.NaN(), errors.RootFindingFailure("function became NaN at %g", b)
		}
	}
	return math.NaN(), errors.RootFindingFailure("brent did not converge in %d iterations", tol.MaxIter)
}

// Side selects which end of a bracket is moved by ExpandBracketUntilSignChange.
type Side int

const (
	ExpandLower Side = iota
	ExpandUpper
)

// ExpandBracketUntilSignChange doubles the width of [lo, hi] on the given
// side until f changes sign across the bracket. It gives up after maxSteps
// doublings.
func ExpandBracketUntilSignChange(f func(float64) float64, lo, hi float64, side Side, maxSteps int) (float64, float64, error) {
	if hi <= lo {
		return lo, hi, errors.RootFindingFailure("empty bracket [%g, %g]", lo, hi)
	}
	flo, fhi := f(lo), f(hi)
	for step := 0; ; step++ {
		if math.IsNaN(flo) || math.IsNaN(fhi) {
			return lo, hi, errors.RootFindingFailure("function is NaN while expanding [%g, %g]", lo, hi)
		}
		if flo == 0 || fhi == 0 || math.Signbit(flo) != math.Signbit(fhi) {
			return lo, hi, nil
		}
		if step >= maxSteps {
			return lo, hi, errors.RootFindingFailure("no sign change after %d expansions of [%g, %g]", maxSteps, lo, hi)
		}
		width := hi - lo
		if side == ExpandLower {
			lo = hi - 2*width
			flo = f(lo)
		} else {
			hi = lo + 2*width
			fhi = f(hi)
		}
	}
}
