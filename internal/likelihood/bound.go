package likelihood

import (
	"math"

	"gocombine/domain/prediction"
	"gocombine/internal/errors"
)

// Bound is a prediction with its observed and expected likelihood models
// attached. It implements prediction.Member.
type Bound struct {
	prediction.Prediction
	observed Model
	expected Model
}

var _ prediction.Member = (*Bound)(nil)

// Bind builds both likelihood models for p.
func Bind(p prediction.Prediction, opts Options) (*Bound, error) {
	obs, err := FromLimits(p.ObservedUL(), p.ExpectedUL(), opts)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: no usable likelihood", p.Key())
	}
	exp, err := ExpectedModel(p.ExpectedUL())
	if err != nil {
		return nil, errors.Wrapf(err, "%s: no usable expected likelihood", p.Key())
	}
	return &Bound{Prediction: p, observed: obs, expected: exp}, nil
}

// Rejection records a prediction excluded from combination.
type Rejection struct {
	Prediction prediction.Prediction
	Err        error
}

// BindAll binds every prediction, keeping input order. Predictions without a
// usable likelihood are returned as rejections and logged, never dropped
// silently.
func BindAll(preds []prediction.Prediction, opts Options) ([]*Bound, []Rejection) {
	log := opts.logger()
	bound := make([]*Bound, 0, len(preds))
	var rejected []Rejection
	for _, p := range preds {
		b, err := Bind(p, opts)
		if err != nil {
			log.Warn("excluding %s from combination: %v", p.Key(), err)
			rejected = append(rejected, Rejection{Prediction: p, Err: err})
			continue
		}
		bound = append(bound, b)
	}
	return bound, rejected
}

// Model returns the observed or expected model.
func (b *Bound) Model(expected bool) Model {
	if expected {
		return b.expected
	}
	return b.observed
}

func (b *Bound) yield(mu float64) (float64, error) {
	if math.IsNaN(mu) || mu < 0 {
		return math.NaN(), errors.InvalidInput("signal strength must be non-negative")
	}
	return mu * b.SignalYield(), nil
}

// RValue is the signal yield over the upper limit.
func (b *Bound) RValue(expected bool) (float64, error) {
	ul := b.UpperLimit(expected)
	if !(ul > 0) {
		return math.NaN(), errors.InvalidLimit("%s: upper limit %g is not positive", b.Key(), ul)
	}
	return b.SignalYield() / ul, nil
}

// Likelihood evaluates the density at n = mu * signal yield.
func (b *Bound) Likelihood(mu float64, expected bool) (float64, error) {
	n, err := b.yield(mu)
	if err != nil {
		return math.NaN(), err
	}
	return Evaluate(b.Model(expected), n, false), nil
}

// NLL evaluates the negative log density at n = mu * signal yield.
func (b *Bound) NLL(mu float64, expected bool) (float64, error) {
	n, err := b.yield(mu)
	if err != nil {
		return math.NaN(), err
	}
	return Evaluate(b.Model(expected), n, true), nil
}

// LSM is the likelihood at mu = 0.
func (b *Bound) LSM(expected bool) (float64, error) {
	return b.Likelihood(0, expected)
}

// Members converts bound predictions to the engine's member interface.
func Members(bound []*Bound) []prediction.Member {
	out := make([]prediction.Member, len(bound))
	for i, b := range bound {
		out[i] = b
	}
	return out
}
