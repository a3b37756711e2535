// Package combination holds the outcome of evaluating a set of mutually
// compatible predictions as one combined likelihood.
package combination

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strings"

	"gocombine/domain/prediction"
	"gocombine/internal/errors"
)

// CurvePoint is one sample of the combined negative log-likelihood.
type CurvePoint struct {
	Mu  float64 `json:"mu"`
	NLL float64 `json:"nll"`
}

// Result is the evaluation of one combination. Upper limits are on the
// signal strength mu and are NaN until computed.
type Result struct {
	Members  []prediction.Member `json:"-"`
	Indices  []int               `json:"indices"`
	MuHat    float64             `json:"mu_hat"`
	Z        float64             `json:"z"`
	NLLZero  float64             `json:"nll_zero"`
	NLLMuHat float64             `json:"nll_mu_hat"`
	Curve    []CurvePoint        `json:"curve,omitempty"`

	ExpectedUL float64 `json:"expected_ul"`
	ObservedUL float64 `json:"observed_ul"`

	// Inconsistent is set on the top result when the most sensitive single
	// analysis is not part of it.
	Inconsistent bool  `json:"inconsistent,omitempty"`
	Err          error `json:"-"`

	// analyses keeps the ids of a result decoded without its members.
	analyses []string
}

// NewResult starts a result for members with limits marked as not computed.
func NewResult(members []prediction.Member, indices []int) Result {
	return Result{
		Members:    members,
		Indices:    append([]int(nil), indices...),
		MuHat:      math.NaN(),
		ExpectedUL: math.NaN(),
		ObservedUL: math.NaN(),
	}
}

// Size is the number of combined predictions.
func (r Result) Size() int {
	if len(r.Members) == 0 {
		return len(r.analyses)
	}
	return len(r.Members)
}

// AnalysisIDs lists member analysis ids in combination order.
func (r Result) AnalysisIDs() []string {
	if len(r.Members) == 0 && len(r.analyses) > 0 {
		return append([]string(nil), r.analyses...)
	}
	ids := make([]string, len(r.Members))
	for i, m := range r.Members {
		ids[i] = m.AnalysisID()
	}
	return ids
}

// AnalysisID joins the member analysis ids with commas.
func (r Result) AnalysisID() string {
	return strings.Join(r.AnalysisIDs(), ",")
}

// Contains reports whether the combination includes analysisID.
func (r Result) Contains(analysisID string) bool {
	for _, id := range r.AnalysisIDs() {
		if id == analysisID {
			return true
		}
	}
	return false
}

// Evaluable is false when a member failed and poisoned the combination.
func (r Result) Evaluable() bool { return r.Err == nil }

// RValue is the inverse of the (expected or observed) upper limit on mu.
func (r Result) RValue(expected bool) (float64, error) {
	if r.Err != nil {
		return math.NaN(), r.Err
	}
	ul := r.ObservedUL
	if expected {
		ul = r.ExpectedUL
	}
	if math.IsNaN(ul) {
		return math.NaN(), errors.InvalidInput(fmt.Sprintf("upper limit of %s not computed", r.AnalysisID()))
	}
	if ul <= 0 {
		return math.NaN(), errors.InvalidLimit("upper limit %g of %s is not positive", ul, r.AnalysisID())
	}
	return 1 / ul, nil
}

// Describe renders a one-line human readable summary.
func (r Result) Describe() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: unevaluable (%v)", r.AnalysisID(), r.Err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: Z=%.3f muhat=%.4g", r.AnalysisID(), r.Z, r.MuHat)
	if !math.IsNaN(r.ExpectedUL) {
		fmt.Fprintf(&b, " ULexp(mu)=%.4g", r.ExpectedUL)
	}
	if !math.IsNaN(r.ObservedUL) {
		fmt.Fprintf(&b, " ULobs(mu)=%.4g", r.ObservedUL)
	}
	if r.Inconsistent {
		b.WriteString(" [most sensitive analysis not included]")
	}
	return b.String()
}

type resultAlias Result

type resultJSON struct {
	Analyses []string `json:"analyses"`
	Error    string   `json:"error,omitempty"`
	*resultAlias
}

// MarshalJSON adds the member ids and the evaluation error, which do not
// survive as members.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Analyses: r.AnalysisIDs(), resultAlias: (*resultAlias)(&r)}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	for _, v := range []*float64{&out.MuHat, &out.ExpectedUL, &out.ObservedUL} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = -1
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a result without members. Limits stored as -1
// come back as NaN.
func (r *Result) UnmarshalJSON(data []byte) error {
	in := resultJSON{resultAlias: (*resultAlias)(r)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.analyses = in.Analyses
	if in.Error != "" {
		r.Err = stderrors.New(in.Error)
	}
	for _, v := range []*float64{&r.MuHat, &r.ExpectedUL, &r.ObservedUL} {
		if *v < 0 {
			*v = math.NaN()
		}
	}
	return nil
}

// Exclusion is the combination with the lowest expected upper limit on mu.
type Exclusion struct {
	Combination Result  `json:"combination"`
	ExpectedUL  float64 `json:"expected_ul"`
	ObservedUL  float64 `json:"observed_ul"`
}

// Describe renders a one-line summary of the exclusion.
func (e Exclusion) Describe() string {
	return fmt.Sprintf("%s: ULexp(mu)=%.4g ULobs(mu)=%.4g", e.Combination.AnalysisID(), e.ExpectedUL, e.ObservedUL)
}
