package likelihood

import (
	"math"
	"math/rand/v2"
	"testing"

	"gocombine/domain/prediction"
	"gocombine/internal/errors"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigmaFromExpectedLimit(t *testing.T) {
	sigma, err := SigmaFromExpectedLimit(1.96)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sigma, 1e-12)

	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := SigmaFromExpectedLimit(bad)
		assert.True(t, errors.HasCode(err, errors.CodeInvalidLimit), "eUL=%g", bad)
	}
}

// The solved center must reproduce the observed limit as the 95% quantile.
func TestSolveMu_RoundTrip(t *testing.T) {
	mu, err := SolveMu(15, 10)
	require.NoError(t, err)
	assert.Greater(t, mu, 0.0)

	model := TruncatedGaussian{Mode: mu, Sigma: 10 / 1.96}
	assert.InEpsilon(t, 15, model.Quantile(0.95), 1e-3)
	assert.InDelta(t, 0.95, model.CDF(15), 1e-3)
}

func TestSolveMu_InvalidLimit(t *testing.T) {
	_, err := SolveMu(0, 10)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidLimit))

	_, err = FromLimits(0, 10, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidLimit))
}

func TestFromLimits_ToleranceExceeded(t *testing.T) {
	opts := DefaultOptions()
	_, err := FromLimits(100, 10, opts)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeToleranceExceeded))

	opts.CapLikelihoods = true
	model, err := FromLimits(100, 10, opts)
	require.NoError(t, err)
	capped := CappedObservedLimit(10, opts.DRMax)
	assert.InDelta(t, opts.DRMax, RelativeDifference(capped, 10), 1e-12)
	assert.InEpsilon(t, capped, model.Quantile(0.95), 1e-3)
}

func TestFromLimits_Excess(t *testing.T) {
	model, err := FromLimits(15, 10, DefaultOptions())
	require.NoError(t, err)
	g, ok := model.(TruncatedGaussian)
	require.True(t, ok)
	assert.Greater(t, g.Mode, 0.0)
	assert.Equal(t, "truncated_gaussian", model.Kind())
}

func TestFromLimits_UnderfluctuationPolicies(t *testing.T) {
	const oUL, eUL = 6.0, 10.0

	opts := DefaultOptions()
	norm0, err := FromLimits(oUL, eUL, opts)
	require.NoError(t, err)
	assert.Equal(t, TruncatedGaussian{Mode: 0, Sigma: eUL / 1.96}, norm0)

	opts.Underfluctuation = UnderfluctNormNeg
	neg, err := FromLimits(oUL, eUL, opts)
	require.NoError(t, err)
	ng := neg.(TruncatedGaussian)
	assert.Less(t, ng.Mode, 0.0)
	assert.InEpsilon(t, oUL, neg.Quantile(0.95), 1e-3)

	opts.Underfluctuation = UnderfluctExp
	exp, err := FromLimits(oUL, eUL, opts)
	require.NoError(t, err)
	assert.Equal(t, "exponential", exp.Kind())
	assert.InDelta(t, -math.Log(0.05)/oUL, exp.(Exponential).Rate, 1e-12)
	assert.InEpsilon(t, oUL, exp.Quantile(0.95), 1e-9)
}

// norm_0 is the widest of the Gaussian choices: relative to the
// background-only point its likelihood falls off slowest, while norm_neg
// piles more density at n = 0.
func TestUnderfluctuation_Norm0IsLeastConstraining(t *testing.T) {
	opts := DefaultOptions()
	norm0, err := FromLimits(6, 10, opts)
	require.NoError(t, err)
	opts.Underfluctuation = UnderfluctNormNeg
	neg, err := FromLimits(6, 10, opts)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, neg.Density(0), norm0.Density(0))
	for _, n := range []float64{0.1, 0.5, 1, 3, 6, 12} {
		ratio0 := norm0.Density(n) / norm0.Density(0)
		ratioNeg := neg.Density(n) / neg.Density(0)
		assert.GreaterOrEqual(t, ratio0, ratioNeg, "n=%g", n)
	}
	assert.GreaterOrEqual(t, norm0.Density(12), neg.Density(12))
}

func TestFromLimits_EqualLimitsNormNeg(t *testing.T) {
	opts := DefaultOptions()
	opts.Underfluctuation = UnderfluctNormNeg
	model, err := FromLimits(10, 10, opts)
	require.NoError(t, err)
	assert.Equal(t, 0.0, model.(TruncatedGaussian).Mode)
}

func TestEvaluate_NLLConsistency(t *testing.T) {
	model, err := FromLimits(15, 10, DefaultOptions())
	require.NoError(t, err)
	for _, n := range []float64{0, 1, 7.5, 20} {
		assert.InDelta(t, -math.Log(Evaluate(model, n, false)), Evaluate(model, n, true), 1e-9)
	}
	assert.Equal(t, 0.0, model.Density(-1))
	assert.True(t, math.IsInf(model.NLL(-1), 1))
}

func TestRvs_MatchesQuantile(t *testing.T) {
	model, err := FromLimits(15, 10, DefaultOptions())
	require.NoError(t, err)

	samples := model.Rvs(20000, rand.New(rand.NewPCG(7, 11)))
	require.Len(t, samples, 20000)
	minimum, err := stats.Min(samples)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, minimum, 0.0)

	p95, err := stats.Percentile(samples, 95)
	require.NoError(t, err)
	assert.InDelta(t, 15, p95, 0.5)
	assert.Nil(t, model.Rvs(0, rand.New(rand.NewPCG(1, 1))))
}

func TestParseUnderfluctuation(t *testing.T) {
	u, err := ParseUnderfluctuation(" NORM_NEG ")
	require.NoError(t, err)
	assert.Equal(t, UnderfluctNormNeg, u)

	u, err = ParseUnderfluctuation("")
	require.NoError(t, err)
	assert.Equal(t, UnderfluctNorm0, u)

	_, err = ParseUnderfluctuation("gamma")
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

func TestBind(t *testing.T) {
	p := prediction.MustNew(prediction.Spec{AnalysisID: "ATLAS-SUSY-2018-32", Sqrts: 13, ObservedUL: 15, ExpectedUL: 10, SignalYield: 5})
	b, err := Bind(p, DefaultOptions())
	require.NoError(t, err)

	r, err := b.RValue(false)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/15, r, 1e-12)
	r, err = b.RValue(true)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r, 1e-12)

	l, err := b.Likelihood(2, false)
	require.NoError(t, err)
	assert.InDelta(t, b.Model(false).Density(10), l, 1e-15)

	lsm, err := b.LSM(true)
	require.NoError(t, err)
	assert.InDelta(t, b.Model(true).Density(0), lsm, 1e-15)

	nll, err := b.NLL(1, false)
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(b.Model(false).Density(5)), nll, 1e-9)

	_, err = b.Likelihood(-1, false)
	assert.Error(t, err)
}

func TestBindAll_ReportsRejections(t *testing.T) {
	preds := []prediction.Prediction{
		prediction.MustNew(prediction.Spec{AnalysisID: "CMS-SUS-19-006", Sqrts: 13, ObservedUL: 5, ExpectedUL: 5, SignalYield: 1}),
		prediction.MustNew(prediction.Spec{AnalysisID: "CMS-SUS-16-050", Sqrts: 13, ObservedUL: 0, ExpectedUL: 5, SignalYield: 1}),
		prediction.MustNew(prediction.Spec{AnalysisID: "ATLAS-SUSY-2016-07", Sqrts: 13, ObservedUL: 100, ExpectedUL: 5, SignalYield: 1}),
	}
	bound, rejected := BindAll(preds, DefaultOptions())
	require.Len(t, bound, 1)
	require.Len(t, rejected, 2)
	assert.Equal(t, "CMS-SUS-19-006", bound[0].AnalysisID())
	assert.True(t, errors.HasCode(rejected[0].Err, errors.CodeInvalidLimit))
	assert.True(t, errors.HasCode(rejected[1].Err, errors.CodeToleranceExceeded))
	assert.Len(t, Members(bound), 1)
}
