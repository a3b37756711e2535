package combiner

import (
	"math"

	"gocombine/domain/combination"
	"gocombine/domain/prediction"
	"gocombine/internal"
	"gocombine/internal/errors"
	"gocombine/internal/numeric"

	"gonum.org/v1/gonum/floats"
)

const (
	// LikelihoodFloor replaces a vanishing member likelihood before logs are taken.
	LikelihoodFloor = 1e-80
	// CredibleLevel is the posterior mass below an upper limit on mu.
	CredibleLevel = 0.95
)

var floorNLL = -math.Log(LikelihoodFloor)

// Evaluator computes combined likelihoods, best-fit signal strengths,
// significances and upper limits on mu. It holds no per-call state and is
// safe for concurrent use.
type Evaluator struct {
	Tolerance     numeric.Tolerance
	MaxExpansions int
	// TailRatio is the L(mu)/L(muhat) below which the upper-limit scan stops growing.
	TailRatio   float64
	GridPoints  int
	CurvePoints int
	logger      *internal.Logger
}

// NewEvaluator returns an evaluator with the engine defaults.
func NewEvaluator(logger *internal.Logger) *Evaluator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Evaluator{
		Tolerance:     numeric.Tolerance{XTol: 1e-8, RTol: 1e-6, MaxIter: 200},
		MaxExpansions: 40,
		TailRatio:     1e-3,
		GridPoints:    1000,
		CurvePoints:   25,
		logger:        logger.WithComponent("evaluator"),
	}
}

// CombinedLikelihood multiplies the member likelihoods at mu, or sums their
// negative logs when nll is set. A member likelihood of zero is floored at
// LikelihoodFloor. Member order does not affect the result.
func (e *Evaluator) CombinedLikelihood(members []prediction.Member, mu float64, expected, nll bool) (float64, error) {
	if len(members) == 0 {
		return math.NaN(), errors.InvalidInput("combined likelihood of an empty combination")
	}
	total := 0.0
	for _, m := range members {
		v, err := m.NLL(mu, expected)
		if err != nil {
			return math.NaN(), errors.Wrapf(err, "%s at mu=%g", m.AnalysisID(), mu)
		}
		if math.IsNaN(v) {
			return math.NaN(), errors.RootFindingFailure("%s: likelihood is NaN at mu=%g", m.AnalysisID(), mu)
		}
		if math.IsInf(v, 1) {
			v = floorNLL
		}
		total += v
	}
	if nll {
		return total, nil
	}
	return math.Exp(-total), nil
}

// objective wraps the combined NLL for the scalar solvers, remembering the
// first member error so it can be reported after the solver returns.
type objective struct {
	e        *Evaluator
	members  []prediction.Member
	expected bool
	err      error
}

func (o *objective) nll(mu float64) float64 {
	v, err := o.e.CombinedLikelihood(o.members, mu, o.expected, true)
	if err != nil {
		if o.err == nil {
			o.err = err
		}
		return math.NaN()
	}
	return v
}

// muScale is the largest 1/r over members with signal, i.e. the largest
// single-analysis upper limit on mu. The combined NLL is minimized below it.
func muScale(members []prediction.Member, expected bool) (float64, error) {
	scale := 0.0
	for _, m := range members {
		r, err := m.RValue(expected)
		if err != nil {
			return math.NaN(), errors.Wrapf(err, "%s: no r-value", m.AnalysisID())
		}
		if r > 0 {
			scale = math.Max(scale, 1/r)
		}
	}
	return scale, nil
}

type fit struct {
	muHat   float64
	nllHat  float64
	nllZero float64
	scale   float64
}

func (e *Evaluator) fit(members []prediction.Member, expected bool) (fit, error) {
	obj := &objective{e: e, members: members, expected: expected}
	nllZero, err := e.CombinedLikelihood(members, 0, expected, true)
	if err != nil {
		return fit{}, err
	}
	scale, err := muScale(members, expected)
	if err != nil {
		return fit{}, err
	}
	if scale == 0 {
		// no signal anywhere: the likelihood does not depend on mu
		return fit{muHat: 0, nllHat: nllZero, nllZero: nllZero}, nil
	}

	hi := 2 * scale
	for i := 0; obj.nll(hi) < obj.nll(0.5*hi); i++ {
		if obj.err != nil {
			return fit{}, obj.err
		}
		if i >= e.MaxExpansions {
			return fit{}, errors.RootFindingFailure("combined NLL still falling at mu=%g", hi)
		}
		hi *= 2
	}
	if obj.err != nil {
		return fit{}, obj.err
	}

	muHat, nllHat, err := numeric.MinimizeBounded(obj.nll, 0, hi, e.Tolerance)
	if obj.err != nil {
		return fit{}, obj.err
	}
	if err != nil {
		return fit{}, errors.Wrap(err, "minimizing combined NLL")
	}
	if nllZero <= nllHat {
		muHat, nllHat = 0, nllZero
	}
	return fit{muHat: muHat, nllHat: nllHat, nllZero: nllZero, scale: scale}, nil
}

// FindMuHat minimizes the combined NLL over mu >= 0.
func (e *Evaluator) FindMuHat(members []prediction.Member, expected bool) (float64, error) {
	f, err := e.fit(members, expected)
	if err != nil {
		e.logger.Warn("muhat for %s: %v", joinIDs(members), err)
		return math.NaN(), err
	}
	return f.muHat, nil
}

// Significance evaluates the observed combination. Z is the one degree of
// freedom Wilks approximation sqrt(2(NLL(0)-NLL(muhat))) with the
// test statistic clamped at zero.
func (e *Evaluator) Significance(members []prediction.Member, indices []int) (combination.Result, error) {
	res := combination.NewResult(members, indices)
	f, err := e.fit(members, false)
	if err != nil {
		res.Err = err
		return res, err
	}
	res.MuHat = f.muHat
	res.NLLZero = f.nllZero
	res.NLLMuHat = f.nllHat
	res.Z = math.Sqrt(math.Max(0, 2*(f.nllZero-f.nllHat)))

	if e.CurvePoints > 1 && f.scale > 0 {
		grid := floats.Span(make([]float64, e.CurvePoints), 0, math.Max(2*f.muHat, f.scale))
		curve, err := e.Curve(members, grid, false)
		if err != nil {
			e.logger.Debug("dropping NLL curve of %s: %v", joinIDs(members), err)
			curve = nil
		}
		res.Curve = curve
	}
	return res, nil
}

// Curve samples the combined NLL on grid. Sampling stops at the first
// failing point and returns what was collected with the error.
func (e *Evaluator) Curve(members []prediction.Member, grid []float64, expected bool) ([]combination.CurvePoint, error) {
	out := make([]combination.CurvePoint, 0, len(grid))
	for _, mu := range grid {
		v, err := e.CombinedLikelihood(members, mu, expected, true)
		if err != nil {
			return out, err
		}
		out = append(out, combination.CurvePoint{Mu: mu, NLL: v})
	}
	return out, nil
}

// UpperLimit integrates the combined likelihood over mu >= 0 and returns
// the mu below which CredibleLevel of the mass lies. The scan range is
// doubled until the likelihood has fallen to TailRatio of its peak.
func (e *Evaluator) UpperLimit(members []prediction.Member, expected bool) (float64, error) {
	f, err := e.fit(members, expected)
	if err != nil {
		return math.NaN(), err
	}
	if f.scale == 0 {
		return math.NaN(), errors.InvalidInput("no member of " + joinIDs(members) + " carries signal")
	}
	obj := &objective{e: e, members: members, expected: expected}
	ratio := func(mu float64) float64 { return math.Exp(f.nllHat - obj.nll(mu)) }

	hi := math.Max(2*f.muHat, f.scale)
	for i := 0; ratio(hi) >= e.TailRatio; i++ {
		if obj.err != nil {
			return math.NaN(), obj.err
		}
		if i >= e.MaxExpansions {
			return math.NaN(), errors.RootFindingFailure("likelihood tail not reached by mu=%g", hi)
		}
		hi *= 2
	}

	grid := floats.Span(make([]float64, e.GridPoints), 0, hi)
	density := make([]float64, len(grid))
	for i, mu := range grid {
		density[i] = ratio(mu)
	}
	if obj.err != nil {
		return math.NaN(), obj.err
	}
	cum, err := numeric.CumulativeMass(grid, density)
	if err != nil {
		return math.NaN(), err
	}
	return numeric.InterpolateCrossing(grid, cum, CredibleLevel)
}

// Limits computes the expected and observed upper limits on mu.
func (e *Evaluator) Limits(members []prediction.Member) (expectedUL, observedUL float64, err error) {
	expectedUL, err = e.UpperLimit(members, true)
	if err != nil {
		return math.NaN(), math.NaN(), errors.Wrap(err, "expected upper limit")
	}
	observedUL, err = e.UpperLimit(members, false)
	if err != nil {
		return expectedUL, math.NaN(), errors.Wrap(err, "observed upper limit")
	}
	return expectedUL, observedUL, nil
}

func joinIDs(members []prediction.Member) string {
	return combination.NewResult(members, nil).AnalysisID()
}
