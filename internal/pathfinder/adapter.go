package pathfinder

import (
	"math"

	"gocombine/domain/combination"
	"gocombine/domain/prediction"
	"gocombine/internal"
	"gocombine/internal/combiner"
	"gocombine/internal/compat"
	"gocombine/internal/errors"
)

// Adapter maps a compatibility matrix onto TopPaths. The weight of a member
// is its log-likelihood ratio ln L(muhat) - ln L(0) at its own best fit;
// paths are then evaluated as combinations.
type Adapter struct {
	evaluator *combiner.Evaluator
	logger    *internal.Logger
}

func NewAdapter(evaluator *combiner.Evaluator, logger *internal.Logger) *Adapter {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if evaluator == nil {
		evaluator = combiner.NewEvaluator(logger)
	}
	return &Adapter{evaluator: evaluator, logger: logger.WithComponent("pathfinder")}
}

// Weights computes one weight per member. Members that cannot be
// evaluated get NaN and are left out of every path.
func (a *Adapter) Weights(m *compat.Matrix) []float64 {
	weights := make([]float64, m.Len())
	for i := range weights {
		res, err := a.evaluator.Significance([]prediction.Member{m.Member(i)}, []int{i})
		if err != nil {
			a.logger.Warn("no weight for %s: %v", m.Member(i).AnalysisID(), err)
			weights[i] = math.NaN()
			continue
		}
		weights[i] = res.NLLZero - res.NLLMuHat
	}
	return weights
}

// TopCombinations returns the n heaviest paths evaluated as combinations,
// heaviest first. A path whose combined evaluation fails is kept with Err set.
func (a *Adapter) TopCombinations(m *compat.Matrix, n int) ([]combination.Result, error) {
	if m == nil {
		return nil, errors.InvalidInput("pathfinder needs a compatibility matrix")
	}
	paths := TopPaths(a.Weights(m), m.Allowed, n)
	if len(paths) == 0 {
		return nil, errors.RootFindingFailure("no member of %d has a usable weight", m.Len())
	}
	out := make([]combination.Result, 0, len(paths))
	for _, p := range paths {
		members := make([]prediction.Member, len(p.Nodes))
		for i, idx := range p.Nodes {
			members[i] = m.Member(idx)
		}
		res, err := a.evaluator.Significance(members, p.Nodes)
		if err != nil {
			a.logger.Warn("path %v (weight %.4g) is unevaluable: %v", p.Nodes, p.Weight, err)
		}
		a.logger.Debug("path %s weight=%.4g Z=%.3f", res.AnalysisID(), p.Weight, res.Z)
		out = append(out, res)
	}
	return out, nil
}
