package numeric

import (
	"math"

	"gocombine/internal/errors"
)

const invGolden = 0.3819660112501051 // (3 - sqrt(5)) / 2

// MinimizeBounded minimizes f on [a, b] with Brent's method (golden section
// with parabolic steps). It returns the abscissa and value of the minimum.
func MinimizeBounded(f func(float64) float64, a, b float64, tol Tolerance) (float64, float64, error) {
	tol = tol.withDefaults()
	if !(a < b) {
		return math.NaN(), math.NaN(), errors.RootFindingFailure("empty minimization interval [%g, %g]", a, b)
	}

	x := a + invGolden*(b-a)
	w, v := x, x
	fx := f(x)
	if math.IsNaN(fx) {
		return math.NaN(), math.NaN(), errors.RootFindingFailure("objective is NaN at %g", x)
	}
	fw, fv := fx, fx
	var d, e float64

	for i := 0; i < tol.MaxIter; i++ {
		mid := 0.5 * (a + b)
		tol1 := tol.RTol*math.Abs(x) + tol.XTol/3
		tol2 := 2 * tol1
		if math.Abs(x-mid) <= tol2-0.5*(b-a) {
			return x, fx, nil
		}

		golden := true
		if math.Abs(e) > tol1 {
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q - (x-w)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			etemp := e
			e = d
			if math.Abs(p) < math.Abs(0.5*q*etemp) && p > q*(a-x) && p < q*(b-x) {
				d = p / q
				u := x + d
				if u-a < tol2 || b-u < tol2 {
					d = math.Copysign(tol1, mid-x)
				}
				golden = false
			}
		}
		if golden {
			if x >= mid {
				e = a - x
			} else {
				e = b - x
			}
			d = invGolden * e
		}

		var u float64
		if math.Abs(d) >= tol1 {
			u = x + d
		} else {
			u = x + math.Copysign(tol1, d)
		}
		fu := f(u)
		if math.IsNaN(fu) {
			return math.NaN(), math.NaN(), errors.RootFindingFailure("objective is NaN at %g", u)
		}

		if fu <= fx {
			if u >= x {
				a = x
			} else {
				b = x
			}
			v, fv = w, fw
			w, fw = x, fx
			x, fx = u, fu
		} else {
			if u < x {
				a = u
			} else {
				b = u
			}
			if fu <= fw || w == x {
				v, fv = w, fw
				w, fw = u, fu
			} else if fu <= fv || v == x || v == w {
				v, fv = u, fu
			}
		}
	}
	return math.NaN(), math.NaN(), errors.RootFindingFailure("bounded minimization did not converge in %d iterations", tol.MaxIter)
}
