package prediction

// Member is what the combination engine needs from a prediction: identity,
// grouping metadata and a likelihood in the signal strength mu.
//
// All numeric methods return an error instead of a sentinel value; a member
// that fails to evaluate makes any combination containing it unevaluable.
type Member interface {
	AnalysisID() string
	DataID() string
	Experiment() string
	Sqrts() float64

	// RValue is signal yield over the (expected or observed) upper limit.
	RValue(expected bool) (float64, error)
	// Likelihood evaluates the density at mu times the signal yield.
	Likelihood(mu float64, expected bool) (float64, error)
	// NLL is the negative log of Likelihood, computed without underflow.
	NLL(mu float64, expected bool) (float64, error)
	// LSM is the likelihood of the background-only hypothesis (mu = 0).
	LSM(expected bool) (float64, error)
}
