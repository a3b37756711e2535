package likelihood

import (
	"fmt"
	"math"
	"strings"

	"gocombine/internal"
	"gocombine/internal/errors"
	"gocombine/internal/numeric"
)

// Underfluctuation selects how an observed limit at or below the expected
// one is turned into a likelihood.
type Underfluctuation string

const (
	// UnderfluctNorm0 centers the Gaussian at zero.
	UnderfluctNorm0 Underfluctuation = "norm_0"
	// UnderfluctNormNeg solves for a negative center.
	UnderfluctNormNeg Underfluctuation = "norm_neg"
	// UnderfluctExp uses an exponential with the observed limit as 95% quantile.
	UnderfluctExp Underfluctuation = "exp"
)

// ParseUnderfluctuation validates a policy name.
func ParseUnderfluctuation(s string) (Underfluctuation, error) {
	switch u := Underfluctuation(strings.ToLower(strings.TrimSpace(s))); u {
	case UnderfluctNorm0, UnderfluctNormNeg, UnderfluctExp:
		return u, nil
	case "":
		return UnderfluctNorm0, nil
	default:
		return "", errors.ConfigInvalid(fmt.Sprintf("unknown underfluctuation policy %q (want norm_0, norm_neg or exp)", s))
	}
}

const (
	clLevel       = 0.95
	sigmaDivisor  = 1.96
	maxBracketOps = 40
)

// Options configures FromLimits.
type Options struct {
	// DRMax caps 2(oUL-eUL)/(oUL+eUL). Must lie in (0, 2).
	DRMax float64
	// CapLikelihoods clamps oUL to the DRMax boundary instead of failing.
	CapLikelihoods   bool
	Underfluctuation Underfluctuation
	Logger           *internal.Logger
}

// DefaultOptions fails on dr > 0.99 and centers underfluctuations at zero.
func DefaultOptions() Options {
	return Options{DRMax: 0.99, Underfluctuation: UnderfluctNorm0}
}

func (o Options) logger() *internal.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return internal.DefaultLogger.WithComponent("likelihood")
}

// SigmaFromExpectedLimit is the expected Gaussian scale eUL/1.96.
func SigmaFromExpectedLimit(expectedUL float64) (float64, error) {
	if !(expectedUL > 0) || math.IsInf(expectedUL, 0) {
		return math.NaN(), errors.InvalidLimit("expected upper limit must be positive and finite, got %g", expectedUL)
	}
	return expectedUL / sigmaDivisor, nil
}

func validLimits(observedUL, expectedUL float64) error {
	if !(observedUL > 0) || math.IsInf(observedUL, 0) {
		return errors.InvalidLimit("observed upper limit must be positive and finite, got %g", observedUL)
	}
	if !(expectedUL > 0) || math.IsInf(expectedUL, 0) {
		return errors.InvalidLimit("expected upper limit must be positive and finite, got %g", expectedUL)
	}
	return nil
}

// SolveMu finds the center of the zero-truncated Gaussian (sigma from the
// expected limit) whose 95% quantile is the observed limit. The root is
// searched on [0, max(oUL, eUL)], so it only exists for excesses (oUL > eUL).
func SolveMu(observedUL, expectedUL float64) (float64, error) {
	if err := validLimits(observedUL, expectedUL); err != nil {
		return math.NaN(), err
	}
	sigma, _ := SigmaFromExpectedLimit(expectedUL)
	f := rootFunc(observedUL, sigma)
	mu, err := numeric.BrentRoot(f, 0, math.Max(observedUL, expectedUL), numeric.DefaultRootTolerance)
	if err != nil {
		return math.NaN(), errors.Wrapf(err, "solving mu for oUL=%g eUL=%g", observedUL, expectedUL)
	}
	return mu, nil
}

func rootFunc(observedUL, sigma float64) func(float64) float64 {
	return func(mu float64) float64 {
		return numeric.TruncatedCDFAtLimit(observedUL, mu, sigma) - clLevel
	}
}

// solveNegativeMu handles the norm_neg policy: the center moves below zero
// until the truncated 95% quantile shrinks to the observed limit.
func solveNegativeMu(observedUL, expectedUL, sigma float64) (float64, error) {
	f := rootFunc(observedUL, sigma)
	if f(0) >= 0 {
		// The half-normal quantile is already at or below oUL.
		return 0, nil
	}
	lo, hi, err := numeric.ExpandBracketUntilSignChange(f, -expectedUL, 0, numeric.ExpandLower, maxBracketOps)
	if err != nil {
		return math.NaN(), errors.Wrapf(err, "bracketing negative mu for oUL=%g eUL=%g", observedUL, expectedUL)
	}
	mu, err := numeric.BrentRoot(f, lo, hi, numeric.DefaultRootTolerance)
	if err != nil {
		return math.NaN(), errors.Wrapf(err, "solving negative mu for oUL=%g eUL=%g", observedUL, expectedUL)
	}
	return mu, nil
}

// RelativeDifference is dr = 2(oUL-eUL)/(oUL+eUL).
func RelativeDifference(observedUL, expectedUL float64) float64 {
	return 2 * (observedUL - expectedUL) / (observedUL + expectedUL)
}

// CappedObservedLimit is the observed limit for which dr equals drmax.
func CappedObservedLimit(expectedUL, drmax float64) float64 {
	return expectedUL * (2 + drmax) / (2 - drmax)
}

// FromLimits builds the likelihood model of one analysis from its observed
// and expected upper limits on signal events.
func FromLimits(observedUL, expectedUL float64, opts Options) (Model, error) {
	log := opts.logger()
	if err := validLimits(observedUL, expectedUL); err != nil {
		log.Error("rejecting limits oUL=%g eUL=%g: %v", observedUL, expectedUL, err)
		return nil, err
	}

	if dr := RelativeDifference(observedUL, expectedUL); opts.DRMax > 0 && dr > opts.DRMax {
		if !opts.CapLikelihoods {
			err := errors.ToleranceExceeded("dr=%.3f between oUL=%g and eUL=%g exceeds drmax=%.3f", dr, observedUL, expectedUL, opts.DRMax)
			log.Warn("%v; enable likelihood capping to clamp instead", err)
			return nil, err
		}
		capped := CappedObservedLimit(expectedUL, opts.DRMax)
		log.Warn("dr=%.3f exceeds drmax=%.3f, capping oUL %g -> %g", dr, opts.DRMax, observedUL, capped)
		observedUL = capped
	}

	sigma, err := SigmaFromExpectedLimit(expectedUL)
	if err != nil {
		return nil, err
	}

	if observedUL <= expectedUL {
		switch opts.Underfluctuation {
		case UnderfluctExp:
			return Exponential{Rate: -math.Log(1-clLevel) / observedUL}, nil
		case UnderfluctNormNeg:
			mu, err := solveNegativeMu(observedUL, expectedUL, sigma)
			if err != nil {
				log.Warn("norm_neg solve failed: %v", err)
				return nil, err
			}
			return TruncatedGaussian{Mode: mu, Sigma: sigma}, nil
		default:
			return TruncatedGaussian{Mode: 0, Sigma: sigma}, nil
		}
	}

	mu, err := SolveMu(observedUL, expectedUL)
	if err != nil {
		log.Warn("mu solve failed: %v", err)
		return nil, err
	}
	return TruncatedGaussian{Mode: mu, Sigma: sigma}, nil
}

// ExpectedModel is the background-only expectation: a zero-centered
// truncated Gaussian with the expected scale.
func ExpectedModel(expectedUL float64) (Model, error) {
	sigma, err := SigmaFromExpectedLimit(expectedUL)
	if err != nil {
		return nil, err
	}
	return TruncatedGaussian{Mode: 0, Sigma: sigma}, nil
}
