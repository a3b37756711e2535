// Package likelihood approximates an analysis likelihood from its observed
// and expected upper limits on signal events.
//
// The approximation is a Gaussian truncated at zero whose width comes from
// the expected limit (sigma = eUL/1.96) and whose center is chosen so that
// the 95% quantile of the truncated distribution equals the observed limit.
package likelihood

import (
	"math"
	"math/rand/v2"

	"gocombine/internal/numeric"

	"gonum.org/v1/gonum/stat/distuv"
)

// Model is a normalized density over signal yields n >= 0.
type Model interface {
	Density(n float64) float64
	NLL(n float64) float64
	CDF(n float64) float64
	Quantile(p float64) float64
	Rvs(count int, rng *rand.Rand) []float64
	Kind() string
}

// TruncatedGaussian is a Gaussian with center Mode (possibly negative)
// restricted to n >= 0 and renormalized by the mass above zero.
type TruncatedGaussian struct {
	Mode  float64
	Sigma float64
}

func (g TruncatedGaussian) dist() numeric.TruncatedNormal {
	return numeric.TruncatedNormal{Mode: g.Mode, Sigma: g.Sigma}
}

func (g TruncatedGaussian) Density(n float64) float64  { return g.dist().Prob(n) }
func (g TruncatedGaussian) NLL(n float64) float64      { return -g.dist().LogProb(n) }
func (g TruncatedGaussian) CDF(n float64) float64      { return g.dist().CDF(n) }
func (g TruncatedGaussian) Quantile(p float64) float64 { return g.dist().Quantile(p) }
func (g TruncatedGaussian) Kind() string               { return "truncated_gaussian" }

// Rvs draws count variates by inverting the CDF.
func (g TruncatedGaussian) Rvs(count int, rng *rand.Rand) []float64 {
	return inverseSample(g, count, rng)
}

// Exponential is the fallback for underfluctuations under the "exp" policy.
type Exponential struct {
	Rate float64
}

func (e Exponential) dist() distuv.Exponential {
	return distuv.Exponential{Rate: e.Rate}
}

func (e Exponential) Density(n float64) float64 {
	if n < 0 {
		return 0
	}
	return e.dist().Prob(n)
}

func (e Exponential) NLL(n float64) float64 {
	if n < 0 {
		return math.Inf(1)
	}
	return -e.dist().LogProb(n)
}

func (e Exponential) CDF(n float64) float64 {
	if n <= 0 {
		return 0
	}
	return e.dist().CDF(n)
}

func (e Exponential) Quantile(p float64) float64 { return e.dist().Quantile(p) }
func (e Exponential) Kind() string               { return "exponential" }

func (e Exponential) Rvs(count int, rng *rand.Rand) []float64 {
	return inverseSample(e, count, rng)
}

func inverseSample(m Model, count int, rng *rand.Rand) []float64 {
	if count <= 0 {
		return nil
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = m.Quantile(rng.Float64())
	}
	return out
}

// Evaluate returns the density of m at n, or its negative log when nll is set.
func Evaluate(m Model, n float64, nll bool) float64 {
	if nll {
		return m.NLL(n)
	}
	return m.Density(n)
}
