package scan

import (
	"math/rand/v2"

	"gocombine/internal/errors"
	"gocombine/internal/likelihood"

	"github.com/montanaflynn/stats"
)

// ToySummary describes pseudo-experiments drawn from one likelihood model.
type ToySummary struct {
	Analysis string  `json:"analysis"`
	Model    string  `json:"model"`
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Median   float64 `json:"median"`
	P95      float64 `json:"p95"`
	// Limit is the 95% quantile of the model, which is the observed limit
	// unless the likelihood was capped.
	Limit      float64 `json:"limit"`
	AboveLimit float64 `json:"above_limit"`
}

// Toys draws n signal-yield variates from the observed model of b with a
// seeded generator and summarizes them.
func Toys(b *likelihood.Bound, n int, seed uint64) (ToySummary, []float64, error) {
	if n < 2 {
		return ToySummary{}, nil, errors.InvalidInput("toys need at least two samples")
	}
	model := b.Model(false)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	draws := model.Rvs(n, rng)

	data := stats.Float64Data(draws)
	summary := ToySummary{Analysis: b.Key(), Model: model.Kind(), Count: n}
	var err error
	if summary.Mean, err = stats.Mean(data); err != nil {
		return ToySummary{}, nil, errors.Wrap(err, "toy mean")
	}
	if summary.StdDev, err = stats.StandardDeviation(data); err != nil {
		return ToySummary{}, nil, errors.Wrap(err, "toy spread")
	}
	if summary.Median, err = stats.Median(data); err != nil {
		return ToySummary{}, nil, errors.Wrap(err, "toy median")
	}
	if summary.P95, err = stats.Percentile(data, 95); err != nil {
		return ToySummary{}, nil, errors.Wrap(err, "toy percentile")
	}

	summary.Limit = model.Quantile(0.95)
	above := 0
	for _, d := range draws {
		if d > summary.Limit {
			above++
		}
	}
	summary.AboveLimit = float64(above) / float64(n)
	return summary, draws, nil
}
