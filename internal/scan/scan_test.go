package scan

import (
	"context"
	"testing"

	"gocombine/domain/combination"
	"gocombine/domain/core"
	"gocombine/domain/prediction"
	"gocombine/internal/compat"
	"gocombine/internal/errors"
	"gocombine/internal/likelihood"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pred(id string, observedUL, expectedUL, signal float64) prediction.Prediction {
	return prediction.MustNew(prediction.Spec{
		AnalysisID:  id,
		Sqrts:       13,
		ObservedUL:  observedUL,
		ExpectedUL:  expectedUL,
		SignalYield: signal,
	})
}

func points() []prediction.Point {
	return []prediction.Point{
		{ID: "m1", Predictions: []prediction.Prediction{
			pred("CMS-SUS-19-006", 7, 5, 1),
			pred("ATLAS-SUSY-2018-32", 8, 6, 1),
			pred("CMS-SUS-16-050", 4, 6, 2),
		}},
		{ID: "m2", Predictions: []prediction.Prediction{
			pred("CMS-SUS-19-006", 0, 5, 1),
		}},
		{ID: "m3", Predictions: []prediction.Prediction{
			pred("ATLAS-SUSY-2018-32", 6, 6, 0),
		}},
	}
}

func runner(t *testing.T, workers int) *Runner {
	t.Helper()
	r, err := NewRunner(Settings{
		Options: likelihood.DefaultOptions(),
		Policy:  compat.Conservative{},
		NTop:    2,
		Workers: workers,
	})
	require.NoError(t, err)
	return r
}

func TestRun_Combine(t *testing.T) {
	run, err := runner(t, 4).Run(context.Background(), combination.ModeCombine, points())
	require.NoError(t, err)
	require.Len(t, run.Points, 3)
	assert.Equal(t, combination.ModeCombine, run.Mode)
	assert.Equal(t, "conservative", run.Policy)

	m1 := run.Points[0]
	assert.Equal(t, core.PointID("m1"), m1.PointID)
	assert.False(t, m1.Failed())
	require.Len(t, m1.Ranked, 2)
	best, ok := m1.Best()
	require.True(t, ok)
	assert.True(t, best.Contains("ATLAS-SUSY-2018-32"))
	assert.Equal(t, 2, best.Size())

	m2 := run.Points[1]
	assert.False(t, m2.Failed())
	assert.Empty(t, m2.Ranked)
	require.Len(t, m2.Rejected, 1)
	assert.Equal(t, "CMS-SUS-19-006", m2.Rejected[0].Key)

	m3 := run.Points[2]
	require.Len(t, m3.Ranked, 1)
	assert.Equal(t, 0.0, m3.Ranked[0].Z)
}

func TestRun_FailingPointDoesNotStopScan(t *testing.T) {
	run, err := runner(t, 2).Run(context.Background(), combination.ModeExclude, points())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failures())

	require.NotNil(t, run.Points[0].Exclusion)
	assert.Positive(t, run.Points[0].Exclusion.ExpectedUL)
	assert.True(t, run.Points[2].Failed(), "no signal means no limit")
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	serial, err := runner(t, 1).Run(context.Background(), combination.ModeCombine, points())
	require.NoError(t, err)
	parallel, err := runner(t, 8).Run(context.Background(), combination.ModeCombine, points())
	require.NoError(t, err)
	assert.Equal(t, serial.InputHash, parallel.InputHash)

	for i := range serial.Points {
		a, aok := serial.Points[i].Best()
		b, bok := parallel.Points[i].Best()
		require.Equal(t, aok, bok)
		if aok {
			assert.Equal(t, a.AnalysisID(), b.AnalysisID())
			assert.Equal(t, a.Z, b.Z)
		}
	}
}

func TestFingerprint(t *testing.T) {
	r := runner(t, 1)
	pts := points()
	reversed := []prediction.Point{pts[2], pts[1], pts[0]}
	h := r.Fingerprint(combination.ModeCombine, pts)
	assert.False(t, h.IsEmpty())
	assert.Equal(t, h, r.Fingerprint(combination.ModeCombine, reversed))
	assert.NotEqual(t, h, r.Fingerprint(combination.ModeExclude, pts))
	assert.NotEqual(t, h, r.Fingerprint(combination.ModeCombine, pts[:2]))

	strict, err := NewRunner(Settings{Options: likelihood.DefaultOptions(), Policy: compat.Explicit{Unknown: compat.UnknownNever}, NTop: 2})
	require.NoError(t, err)
	assert.NotEqual(t, h, strict.Fingerprint(combination.ModeCombine, pts))
}

func TestRun_Pathfind(t *testing.T) {
	run, err := runner(t, 2).Run(context.Background(), combination.ModePathfind, points()[:1])
	require.NoError(t, err)
	require.NotEmpty(t, run.Points[0].Ranked)
	assert.True(t, run.Points[0].Ranked[0].Contains("ATLAS-SUSY-2018-32"))
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := runner(t, 1).Run(ctx, combination.ModeCombine, points())
	require.Error(t, err)
	assert.Equal(t, len(points()), run.Failures())
}

func TestNewRunner_NeedsPolicy(t *testing.T) {
	_, err := NewRunner(Settings{})
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

func TestToys(t *testing.T) {
	b, err := likelihood.Bind(pred("CMS-SUS-19-006", 10, 10, 1), likelihood.DefaultOptions())
	require.NoError(t, err)

	summary, draws, err := Toys(b, 20000, 42)
	require.NoError(t, err)
	assert.Len(t, draws, 20000)
	assert.Equal(t, "truncated_gaussian", summary.Model)
	assert.InEpsilon(t, 10, summary.P95, 0.05)
	assert.InEpsilon(t, 10, summary.Limit, 1e-3)
	assert.InDelta(t, 0.05, summary.AboveLimit, 0.01)
	for _, d := range draws {
		require.GreaterOrEqual(t, d, 0.0)
	}

	again, _, err := Toys(b, 20000, 42)
	require.NoError(t, err)
	assert.Equal(t, summary, again)

	_, _, err = Toys(b, 1, 42)
	assert.Error(t, err)
}

func TestToys_CappedLikelihood(t *testing.T) {
	opts := likelihood.DefaultOptions()
	opts.CapLikelihoods = true
	b, err := likelihood.Bind(pred("CMS-SUS-19-006", 100, 10, 1), opts)
	require.NoError(t, err)

	summary, _, err := Toys(b, 20000, 7)
	require.NoError(t, err)
	capped := likelihood.CappedObservedLimit(10, opts.DRMax)
	assert.Less(t, capped, 100.0)
	assert.InEpsilon(t, capped, summary.Limit, 1e-3)
	assert.InDelta(t, 0.05, summary.AboveLimit, 0.01)
}
