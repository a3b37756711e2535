package combination

import (
	"time"

	"gocombine/domain/core"
)

// Mode selects what a run optimizes.
type Mode string

const (
	// ModeCombine ranks combinations by observed significance.
	ModeCombine Mode = "combine"
	// ModeExclude picks the combination with the lowest expected limit.
	ModeExclude Mode = "exclude"
	// ModePathfind ranks combinations with the path search.
	ModePathfind Mode = "pathfind"
)

// Rejected is a prediction that was not combined, with the reason.
type Rejected struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// PointResult is the outcome for one model point. A point that failed as a
// whole has Error set and no results.
type PointResult struct {
	PointID       core.PointID  `json:"point_id"`
	Ranked        []Result      `json:"ranked,omitempty"`
	Exclusion     *Exclusion    `json:"exclusion,omitempty"`
	Rejected      []Rejected    `json:"rejected,omitempty"`
	Unevaluable   int           `json:"unevaluable"`
	Candidates    int           `json:"candidates"`
	Truncated     bool          `json:"truncated,omitempty"`
	MostSensitive string        `json:"most_sensitive,omitempty"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Failed reports whether the point produced no usable result.
func (p PointResult) Failed() bool { return p.Error != "" }

// Best is the top combination of the point. For exclusion runs it is the
// excluding combination.
func (p PointResult) Best() (Result, bool) {
	if p.Exclusion != nil {
		return p.Exclusion.Combination, true
	}
	if len(p.Ranked) == 0 {
		return Result{}, false
	}
	return p.Ranked[0], true
}

// Run is one scan over a list of model points.
type Run struct {
	ID        core.RunID    `json:"id"`
	Mode      Mode          `json:"mode"`
	Policy    string        `json:"policy"`
	InputHash core.Hash     `json:"input_hash,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Points    []PointResult `json:"points"`
}

// Failures counts points that failed as a whole.
func (r *Run) Failures() int {
	n := 0
	for _, p := range r.Points {
		if p.Failed() {
			n++
		}
	}
	return n
}

// Significances lists the Z of every point's best combination.
func (r *Run) Significances() []float64 {
	var out []float64
	for _, p := range r.Points {
		if best, ok := p.Best(); ok && best.Evaluable() {
			out = append(out, best.Z)
		}
	}
	return out
}
