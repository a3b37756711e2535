// Package prediction holds the per-analysis theory predictions consumed by
// the combination engine, plus the Member contract the engine evaluates.
package prediction

import (
	"fmt"
	"math"
	"strings"

	"gocombine/internal/errors"
)

// Spec carries raw prediction fields as produced by the matching step.
type Spec struct {
	AnalysisID  string  `json:"analysis" yaml:"analysis"`
	DatasetID   string  `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	Sqrts       float64 `json:"sqrts" yaml:"sqrts"`
	Experiment  string  `json:"experiment,omitempty" yaml:"experiment,omitempty"`
	ObservedUL  float64 `json:"observed_ul" yaml:"observed_ul"`
	ExpectedUL  float64 `json:"expected_ul" yaml:"expected_ul"`
	SignalYield float64 `json:"signal" yaml:"signal"`
}

// Prediction is one analysis's (or signal region's) expectation for a model
// point. Values are immutable once constructed.
type Prediction struct {
	analysisID  string
	datasetID   string
	sqrts       float64
	experiment  string
	observedUL  float64
	expectedUL  float64
	signalYield float64
}

// New validates spec and builds a Prediction. Upper limits are not checked
// for positivity here; that happens when a likelihood is bound so that the
// caller can report the prediction as unusable instead of failing the point.
func New(spec Spec) (Prediction, error) {
	id := strings.TrimSpace(spec.AnalysisID)
	if id == "" {
		return Prediction{}, errors.InvalidInput("analysis id is required")
	}
	for name, v := range map[string]float64{
		"sqrts":       spec.Sqrts,
		"observed_ul": spec.ObservedUL,
		"expected_ul": spec.ExpectedUL,
		"signal":      spec.SignalYield,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, errors.InvalidInput(fmt.Sprintf("%s: %s is not finite", id, name))
		}
	}
	if spec.Sqrts <= 0 {
		return Prediction{}, errors.InvalidInput(fmt.Sprintf("%s: sqrts must be positive, got %g", id, spec.Sqrts))
	}
	if spec.SignalYield < 0 {
		return Prediction{}, errors.InvalidInput(fmt.Sprintf("%s: signal yield must be non-negative, got %g", id, spec.SignalYield))
	}

	experiment := strings.TrimSpace(spec.Experiment)
	if experiment == "" {
		experiment = ExperimentOf(id)
	}

	return Prediction{
		analysisID:  id,
		datasetID:   strings.TrimSpace(spec.DatasetID),
		sqrts:       spec.Sqrts,
		experiment:  experiment,
		observedUL:  spec.ObservedUL,
		expectedUL:  spec.ExpectedUL,
		signalYield: spec.SignalYield,
	}, nil
}

// MustNew is New for fixtures; it panics on invalid input.
func MustNew(spec Spec) Prediction {
	p, err := New(spec)
	if err != nil {
		panic(err)
	}
	return p
}

// ExperimentOf derives the experiment from an analysis id prefix,
// e.g. "ATLAS-SUSY-2018-32" -> "ATLAS", "CMS-PAS-SUS-16-052" -> "CMS".
func ExperimentOf(analysisID string) string {
	upper := strings.ToUpper(analysisID)
	switch {
	case strings.HasPrefix(upper, "ATLAS"):
		return "ATLAS"
	case strings.HasPrefix(upper, "CMS"):
		return "CMS"
	}
	if i := strings.IndexAny(upper, "-_"); i > 0 {
		return upper[:i]
	}
	return upper
}

func (p Prediction) AnalysisID() string   { return p.analysisID }
func (p Prediction) DataID() string       { return p.datasetID }
func (p Prediction) Sqrts() float64       { return p.sqrts }
func (p Prediction) Experiment() string   { return p.experiment }
func (p Prediction) ObservedUL() float64  { return p.observedUL }
func (p Prediction) ExpectedUL() float64  { return p.expectedUL }
func (p Prediction) SignalYield() float64 { return p.signalYield }

// UpperLimit returns the expected or observed upper limit on signal events.
func (p Prediction) UpperLimit(expected bool) float64 {
	if expected {
		return p.expectedUL
	}
	return p.observedUL
}

// Key identifies the prediction within one model point.
func (p Prediction) Key() string {
	if p.datasetID == "" {
		return p.analysisID
	}
	return p.analysisID + ":" + p.datasetID
}

// Spec returns the raw fields, e.g. for persistence.
func (p Prediction) Spec() Spec {
	return Spec{
		AnalysisID:  p.analysisID,
		DatasetID:   p.datasetID,
		Sqrts:       p.sqrts,
		Experiment:  p.experiment,
		ObservedUL:  p.observedUL,
		ExpectedUL:  p.expectedUL,
		SignalYield: p.signalYield,
	}
}

func (p Prediction) String() string {
	return fmt.Sprintf("%s (%s, %g TeV, oUL=%g, eUL=%g, s=%g)",
		p.Key(), p.experiment, p.sqrts, p.observedUL, p.expectedUL, p.signalYield)
}

// Clone returns an independent copy of a prediction list. Scan workers use it
// so that no two model points share a backing array.
func Clone(preds []Prediction) []Prediction {
	if preds == nil {
		return nil
	}
	out := make([]Prediction, len(preds))
	copy(out, preds)
	return out
}
