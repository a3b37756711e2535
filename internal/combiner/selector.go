package combiner

import (
	"math"
	"sort"

	"gocombine/domain/combination"
	"gocombine/domain/prediction"
	"gocombine/internal"
	"gocombine/internal/compat"
	"gocombine/internal/errors"
)

// Selection is the full outcome of one selection run.
type Selection struct {
	// Ranked holds evaluable candidates by Z descending, then size
	// descending, then visiting order.
	Ranked      []combination.Result
	Unevaluable []combination.Result
	Candidates  int
	Truncated   bool
	// MostSensitive is the analysis with the largest expected r-value.
	MostSensitive string
}

// Best returns the top-ranked combination, if any.
func (s *Selection) Best() (combination.Result, bool) {
	if s == nil || len(s.Ranked) == 0 {
		return combination.Result{}, false
	}
	return s.Ranked[0], true
}

// Selector runs enumeration, domination and evaluation over a
// compatibility matrix.
//
// Domination is greedy: a multi-member set is skipped once any larger kept
// set contains it. Single predictions are always evaluated, so a lone
// analysis can outrank every combination it belongs to.
type Selector struct {
	evaluator       *Evaluator
	maxCombinations int
	logger          *internal.Logger
}

// NewSelector builds a selector. maxCombinations <= 0 means unlimited.
func NewSelector(evaluator *Evaluator, maxCombinations int, logger *internal.Logger) *Selector {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if evaluator == nil {
		evaluator = NewEvaluator(logger)
	}
	return &Selector{
		evaluator:       evaluator,
		maxCombinations: maxCombinations,
		logger:          logger.WithComponent("selector"),
	}
}

// Evaluator exposes the evaluator used for ranking.
func (s *Selector) Evaluator() *Evaluator { return s.evaluator }

// Candidates enumerates compatible subsets of m, removes dominated ones and
// then appends every single prediction not already kept, in index order.
func (s *Selector) Candidates(m *compat.Matrix) ([]IndexSet, bool) {
	sets, truncated := Enumerate(m, s.maxCombinations)
	if truncated {
		s.logger.Warn("enumeration stopped at %d combinations of %d predictions", len(sets), m.Len())
	}
	kept := Dominate(sets)
	nonDominated := len(kept)

	single := make([]bool, m.Len())
	for _, set := range kept {
		if len(set) == 1 {
			single[set[0]] = true
		}
	}
	for i := range single {
		if !single[i] {
			kept = append(kept, IndexSet{i})
		}
	}
	s.logger.Debug("%d compatible subsets, %d after domination, %d candidates with singles",
		len(sets), nonDominated, len(kept))
	return kept, truncated
}

func membersOf(m *compat.Matrix, set IndexSet) []prediction.Member {
	out := make([]prediction.Member, len(set))
	for i, idx := range set {
		out[i] = m.Member(idx)
	}
	return out
}

// MostSensitive returns the index of the member with the largest expected
// r-value, or -1 when no member has one.
func MostSensitive(m *compat.Matrix) int {
	best, bestR := -1, math.Inf(-1)
	for i := 0; i < m.Len(); i++ {
		r, err := m.Member(i).RValue(true)
		if err != nil || math.IsNaN(r) {
			continue
		}
		if r > bestR {
			best, bestR = i, r
		}
	}
	return best
}

// Select ranks every non-dominated candidate by significance. Limits on mu
// are computed for the first nTop results. Candidates that fail to
// evaluate are logged and reported in Unevaluable.
func (s *Selector) Select(m *compat.Matrix, nTop int) (*Selection, error) {
	if m == nil {
		return nil, errors.InvalidInput("selection needs a compatibility matrix")
	}
	if nTop < 1 {
		nTop = 1
	}
	candidates, truncated := s.Candidates(m)
	sel := &Selection{Candidates: len(candidates), Truncated: truncated}

	for _, set := range candidates {
		res, err := s.evaluator.Significance(membersOf(m, set), set)
		if err != nil {
			s.logger.Warn("combination %s is unevaluable: %v", res.AnalysisID(), err)
			sel.Unevaluable = append(sel.Unevaluable, res)
			continue
		}
		sel.Ranked = append(sel.Ranked, res)
	}
	if len(sel.Ranked) == 0 {
		return sel, errors.RootFindingFailure("none of %d combinations could be evaluated", len(candidates))
	}

	sort.SliceStable(sel.Ranked, func(i, j int) bool {
		a, b := sel.Ranked[i], sel.Ranked[j]
		if a.Z != b.Z {
			return a.Z > b.Z
		}
		return a.Size() > b.Size()
	})

	top := min(nTop, len(sel.Ranked))
	for i := 0; i < top; i++ {
		r := &sel.Ranked[i]
		expUL, obsUL, err := s.evaluator.Limits(r.Members)
		if err != nil {
			s.logger.Warn("limits for %s: %v", r.AnalysisID(), err)
		}
		r.ExpectedUL, r.ObservedUL = expUL, obsUL
	}

	if idx := MostSensitive(m); idx >= 0 {
		sel.MostSensitive = m.Member(idx).AnalysisID()
		best := &sel.Ranked[0]
		if !IndexSet(best.Indices).Contains(idx) {
			best.Inconsistent = true
			s.logger.Error("%v", errors.PolicyInconsistency(
				"most sensitive analysis %s is not in the best combination %s under policy %s",
				sel.MostSensitive, best.AnalysisID(), m.Policy()))
		}
	}
	return sel, nil
}

// FindBestCombination returns the nTop most significant combinations.
func (s *Selector) FindBestCombination(m *compat.Matrix, nTop int) ([]combination.Result, error) {
	sel, err := s.Select(m, nTop)
	if err != nil {
		return nil, err
	}
	return sel.Ranked[:min(max(nTop, 1), len(sel.Ranked))], nil
}

// FindBestExclusion returns the candidate with the lowest expected upper
// limit on mu, preferring larger combinations on ties, together with its
// observed limit.
func (s *Selector) FindBestExclusion(m *compat.Matrix) (combination.Exclusion, error) {
	if m == nil {
		return combination.Exclusion{}, errors.InvalidInput("exclusion needs a compatibility matrix")
	}
	candidates, _ := s.Candidates(m)

	var (
		best   combination.Result
		bestUL = math.Inf(1)
		found  bool
	)
	for _, set := range candidates {
		members := membersOf(m, set)
		ul, err := s.evaluator.UpperLimit(members, true)
		if err != nil {
			s.logger.Warn("expected limit of %s: %v", joinIDs(members), err)
			continue
		}
		if !found || ul < bestUL || (ul == bestUL && len(set) > best.Size()) {
			best = combination.NewResult(members, set)
			best.ExpectedUL = ul
			bestUL = ul
			found = true
		}
	}
	if !found {
		return combination.Exclusion{}, errors.RootFindingFailure("no combination of %d predictions has an expected limit", m.Len())
	}

	obsUL, err := s.evaluator.UpperLimit(best.Members, false)
	if err != nil {
		return combination.Exclusion{}, errors.Wrapf(err, "observed limit of %s", best.AnalysisID())
	}
	best.ObservedUL = obsUL
	res, err := s.evaluator.Significance(best.Members, best.Indices)
	if err != nil {
		s.logger.Warn("significance of %s: %v", best.AnalysisID(), err)
		best.Err = err
	} else {
		best.MuHat, best.Z, best.NLLZero, best.NLLMuHat, best.Curve = res.MuHat, res.Z, res.NLLZero, res.NLLMuHat, res.Curve
	}
	return combination.Exclusion{Combination: best, ExpectedUL: bestUL, ObservedUL: obsUL}, nil
}

// Combine prepares members for policy, builds the matrix and ranks the
// candidates. An empty input yields an empty selection.
func (s *Selector) Combine(members []prediction.Member, policy compat.Policy, nTop int) (*Selection, *compat.Matrix, error) {
	kept, dropped := compat.Prepare(members, policy)
	for _, d := range dropped {
		s.logger.Info("%s is outside the %s policy and is not combined", d.AnalysisID(), policy.Name())
	}
	if len(kept) == 0 {
		return &Selection{}, nil, nil
	}
	m, err := compat.Build(kept, policy)
	if err != nil {
		return nil, nil, err
	}
	sel, err := s.Select(m, nTop)
	return sel, m, err
}
