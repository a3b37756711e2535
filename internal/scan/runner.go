// Package scan evaluates many model points concurrently.
package scan

import (
	"context"
	"fmt"
	"time"

	"gocombine/domain/combination"
	"gocombine/domain/core"
	"gocombine/domain/prediction"
	"gocombine/internal"
	"gocombine/internal/combiner"
	"gocombine/internal/compat"
	"gocombine/internal/errors"
	"gocombine/internal/likelihood"
	"gocombine/internal/pathfinder"

	"golang.org/x/sync/errgroup"
)

// Settings configures a Runner.
type Settings struct {
	Options         likelihood.Options
	Policy          compat.Policy
	NTop            int
	Workers         int
	MaxCombinations int
	Logger          *internal.Logger
}

// Runner evaluates model points with a bounded pool of goroutines. Each
// point is evaluated single-threaded on its own copy of the predictions.
type Runner struct {
	settings   Settings
	selector   *combiner.Selector
	pathfinder *pathfinder.Adapter
	logger     *internal.Logger
}

// NewRunner validates settings and builds the engine components.
func NewRunner(s Settings) (*Runner, error) {
	if s.Policy == nil {
		return nil, errors.ConfigInvalid("scan needs a combination policy")
	}
	if s.NTop < 1 {
		s.NTop = 1
	}
	if s.Workers < 1 {
		s.Workers = 1
	}
	if s.Logger == nil {
		s.Logger = internal.DefaultLogger
	}
	if s.Options.Logger == nil {
		s.Options.Logger = s.Logger.WithComponent("likelihood")
	}
	evaluator := combiner.NewEvaluator(s.Logger)
	return &Runner{
		settings:   s,
		selector:   combiner.NewSelector(evaluator, s.MaxCombinations, s.Logger),
		pathfinder: pathfinder.NewAdapter(evaluator, s.Logger),
		logger:     s.Logger.WithComponent("scan"),
	}, nil
}

// Policy names the combination policy of the runner.
func (r *Runner) Policy() string { return r.settings.Policy.Name() }

// Run evaluates every point and returns results in input order. A failing
// point is logged and recorded; the scan continues. Cancellation is
// checked before each point starts.
func (r *Runner) Run(ctx context.Context, mode combination.Mode, points []prediction.Point) (*combination.Run, error) {
	run := &combination.Run{
		ID:        core.NewRunID(),
		Mode:      mode,
		Policy:    r.Policy(),
		InputHash: r.Fingerprint(mode, points),
		CreatedAt: time.Now().UTC(),
		Points:    make([]combination.PointResult, len(points)),
	}
	r.logger.Info("run %s: %d points, mode=%s, policy=%s, workers=%d",
		run.ID, len(points), mode, run.Policy, r.settings.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.settings.Workers)
	for i, p := range points {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				run.Points[i] = combination.PointResult{PointID: p.ID, Error: err.Error()}
				return err
			}
			run.Points[i] = r.EvaluatePoint(mode, p.Clone())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return run, errors.Wrapf(err, "run %s cancelled", run.ID)
	}

	if failed := run.Failures(); failed > 0 {
		r.logger.Warn("run %s finished with %d of %d points failed", run.ID, failed, len(points))
	} else {
		r.logger.Info("run %s finished", run.ID)
	}
	return run, nil
}

// Fingerprint hashes the inputs and engine settings of a run. Worker count
// and point order do not change it.
func (r *Runner) Fingerprint(mode combination.Mode, points []prediction.Point) core.Hash {
	o := r.settings.Options
	lines := []string{
		fmt.Sprintf("#engine mode=%s policy=%s ntop=%d limit=%d", mode, r.Policy(), r.settings.NTop, r.settings.MaxCombinations),
		fmt.Sprintf("#likelihood drmax=%g cap=%t underfluct=%s", o.DRMax, o.CapLikelihoods, o.Underfluctuation),
	}
	for _, p := range points {
		lines = append(lines, "point "+p.ID.String())
		for _, pred := range p.Predictions {
			lines = append(lines, p.ID.String()+" "+pred.String())
		}
	}
	return core.Fingerprint(lines)
}

// EvaluatePoint binds the predictions of one point and runs the selection
// for mode. Errors are recorded on the result, never returned.
func (r *Runner) EvaluatePoint(mode combination.Mode, point prediction.Point) combination.PointResult {
	start := time.Now()
	res := combination.PointResult{PointID: point.ID}

	bound, rejected := likelihood.BindAll(point.Predictions, r.settings.Options)
	for _, rej := range rejected {
		res.Rejected = append(res.Rejected, combination.Rejected{Key: rej.Prediction.Key(), Reason: rej.Err.Error()})
	}
	members, dropped := compat.Prepare(likelihood.Members(bound), r.settings.Policy)
	for _, d := range dropped {
		res.Rejected = append(res.Rejected, combination.Rejected{Key: d.AnalysisID(), Reason: "not in combination dictionary"})
	}
	if len(members) == 0 {
		r.logger.Info("point %s has no combinable predictions", point.ID)
		res.Duration = time.Since(start)
		return res
	}

	m, err := compat.Build(members, r.settings.Policy)
	if err != nil {
		return r.fail(res, start, err)
	}

	switch mode {
	case combination.ModeExclude:
		ex, err := r.selector.FindBestExclusion(m)
		if err != nil {
			return r.fail(res, start, err)
		}
		res.Exclusion = &ex
	case combination.ModePathfind:
		ranked, err := r.pathfinder.TopCombinations(m, r.settings.NTop)
		if err != nil {
			return r.fail(res, start, err)
		}
		res.Ranked = ranked
		res.Candidates = len(ranked)
	default:
		sel, err := r.selector.Select(m, r.settings.NTop)
		if sel != nil {
			res.Candidates = sel.Candidates
			res.Truncated = sel.Truncated
			res.Unevaluable = len(sel.Unevaluable)
			res.MostSensitive = sel.MostSensitive
		}
		if err != nil {
			return r.fail(res, start, err)
		}
		res.Ranked = sel.Ranked[:min(r.settings.NTop, len(sel.Ranked))]
	}

	if best, ok := res.Best(); ok {
		r.logger.Debug("point %s: %s", point.ID, best.Describe())
	}
	res.Duration = time.Since(start)
	return res
}

func (r *Runner) fail(res combination.PointResult, start time.Time, err error) combination.PointResult {
	r.logger.Error("point %s failed: %v", res.PointID, err)
	res.Error = err.Error()
	res.Duration = time.Since(start)
	return res
}
