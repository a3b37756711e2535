package numeric

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// LogSurvival returns log(1 - Phi(z)) without underflow for large z.
func LogSurvival(z float64) float64 {
	if z < 30 {
		return math.Log(distuv.UnitNormal.Survival(z))
	}
	// Mills-ratio expansion of the upper tail.
	z2 := z * z
	return -0.5*z2 - math.Log(z) - 0.5*math.Log(2*math.Pi) + math.Log1p(-1/z2+3/(z2*z2))
}

// TruncatedNormal is a normal(Mode, Sigma) restricted to x >= 0 and
// renormalized over that half line. Mode may be negative.
type TruncatedNormal struct {
	Mode  float64
	Sigma float64
}

// logNorm is log of the mass of the untruncated normal above zero.
func (t TruncatedNormal) logNorm() float64 {
	return LogSurvival(-t.Mode / t.Sigma)
}

// LogProb returns the log density at x; -Inf below zero.
func (t TruncatedNormal) LogProb(x float64) float64 {
	if x < 0 {
		return math.Inf(-1)
	}
	z := (x - t.Mode) / t.Sigma
	return distuv.UnitNormal.LogProb(z) - math.Log(t.Sigma) - t.logNorm()
}

// Prob returns the density at x.
func (t TruncatedNormal) Prob(x float64) float64 {
	return math.Exp(t.LogProb(x))
}

// CDF returns P(X <= x).
func (t TruncatedNormal) CDF(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := (x - t.Mode) / t.Sigma
	return -math.Expm1(LogSurvival(z) - t.logNorm())
}

// Quantile inverts CDF for p in [0, 1].
func (t TruncatedNormal) Quantile(p float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return math.Inf(1)
	}
	tail := (1 - p) * math.Exp(t.logNorm())
	return t.Mode + t.Sigma*distuv.UnitNormal.Quantile(1-tail)
}

// TruncatedCDFAtLimit is the root function of the mu solve: the mass of the
// truncated normal below limit, written in the erf form
// (erf((ul-mu)/(sqrt2 sigma)) + erf(mu/(sqrt2 sigma))) / (1 + erf(mu/(sqrt2 sigma))).
func TruncatedCDFAtLimit(limit, mu, sigma float64) float64 {
	if mu < 0 {
		// 1 + erf(x) loses precision for very negative x; fall back to the
		// survival form which stays accurate in the tail.
		return TruncatedNormal{Mode: mu, Sigma: sigma}.CDF(limit)
	}
	den := math.Sqrt2 * sigma
	num := math.Erf((limit-mu)/den) + math.Erf(mu/den)
	return num / (1 + math.Erf(mu/den))
}
