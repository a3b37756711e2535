package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gocombine/adapters/excel"
	"gocombine/adapters/points"
	"gocombine/adapters/policyfile"
	"gocombine/adapters/report"
	"gocombine/domain/combination"
	"gocombine/domain/prediction"
	"gocombine/internal"
	"gocombine/internal/compat"
	"gocombine/internal/config"
	"gocombine/internal/likelihood"
	"gocombine/internal/scan"
	"gocombine/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "combine-cli",
		Short: "Combine analysis likelihoods and find the most significant combination",
		Long: `Combine per-analysis likelihoods built from observed and expected upper
limits, enumerate compatible combinations and rank them by significance.

Defaults come from the COMBINER_* environment variables (or a .env file);
flags override them.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newRunCmd(combination.ModeCombine, "combine", "Rank combinations by observed significance"),
		newRunCmd(combination.ModeExclude, "exclude", "Find the combination with the strongest expected exclusion"),
		newRunCmd(combination.ModePathfind, "pathfind", "Rank combinations with the path search"),
		newMatrixCmd(),
		newToysCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// engineFlags are the settings shared by every engine command.
type engineFlags struct {
	policy     string
	dictionary string
	unknown    string
	underflow  string
	drmax      float64
	capLH      bool
	ntop       int
	workers    int
	maxCombos  int
	logLevel   string
}

func (f *engineFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.policy, "policy", "", "Combination policy: conservative|explicit|aggressive")
	fs.StringVar(&f.dictionary, "dictionary", "", "YAML combination dictionary for the explicit policy")
	fs.StringVar(&f.unknown, "unknown", "", "Explicit policy treatment of unlisted analyses: conservative|never|exclude")
	fs.StringVar(&f.underflow, "underfluct", "", "Underfluctuation model: norm_0|norm_neg|exp")
	fs.Float64Var(&f.drmax, "drmax", 0, "Maximum relative difference between observed and expected limits")
	fs.BoolVar(&f.capLH, "cap-likelihoods", false, "Clamp observed limits to drmax instead of failing")
	fs.IntVar(&f.ntop, "ntop", 0, "Number of top combinations to report")
	fs.IntVar(&f.workers, "workers", 0, "Concurrent model points")
	fs.IntVar(&f.maxCombos, "max-combinations", -1, "Enumeration limit per point (0 = unlimited)")
	fs.StringVar(&f.logLevel, "log-level", "", "ERROR|WARN|INFO|DEBUG|TRACE")
}

// apply overlays explicitly set flags on the environment configuration.
func (f *engineFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("policy") {
		cfg.Combiner.Policy = f.policy
	}
	if changed("dictionary") {
		cfg.Combiner.DictionaryFile = f.dictionary
	}
	if changed("unknown") {
		u, err := compat.ParseUnknown(f.unknown)
		if err != nil {
			return err
		}
		cfg.Combiner.Unknown = u
	}
	if changed("underfluct") {
		u, err := likelihood.ParseUnderfluctuation(f.underflow)
		if err != nil {
			return err
		}
		cfg.Combiner.Underfluctuation = u
	}
	if changed("drmax") {
		cfg.Combiner.DRMax = f.drmax
	}
	if changed("cap-likelihoods") {
		cfg.Combiner.CapLikelihoods = f.capLH
	}
	if changed("ntop") {
		cfg.Scan.NTop = f.ntop
	}
	if changed("workers") {
		cfg.Scan.Workers = f.workers
	}
	if changed("max-combinations") {
		cfg.Scan.MaxCombinations = f.maxCombos
	}
	return cfg.Validate()
}

func (f *engineFlags) logger() *internal.Logger {
	if f.logLevel == "" {
		return internal.DefaultLogger
	}
	return internal.NewLogger(internal.ParseLogLevel(f.logLevel))
}

func (f *engineFlags) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := f.apply(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRunCmd(mode combination.Mode, use, short string) *cobra.Command {
	var flags engineFlags
	var format, xlsxPath, markdownPath string

	cmd := &cobra.Command{
		Use:   use + " [points-file]",
		Short: short,
		Long: short + `.

The points file is JSON or YAML ({"points": [{"id", "predictions": [...]}]}),
or an .xlsx/.csv sheet with one prediction per row.

Example: combine-cli ` + use + ` points.yaml --policy explicit --dictionary combinations.yaml --ntop 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config(cmd)
			if err != nil {
				return err
			}
			var source ports.PredictionSource = points.FileSource{Path: args[0]}
			pts, err := source.LoadPoints(cmd.Context())
			if err != nil {
				return err
			}
			run, err := runPoints(cmd.Context(), cfg, flags.logger(), mode, pts)
			if err != nil {
				return err
			}
			if xlsxPath != "" {
				if err := excel.NewRunWriter(run).Save(xlsxPath); err != nil {
					return err
				}
			}
			if markdownPath != "" {
				if err := os.WriteFile(markdownPath, []byte(report.Markdown(run)), 0o644); err != nil {
					return fmt.Errorf("failed to write report: %w", err)
				}
			}
			return printRun(cmd.OutOrStdout(), run, format)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&format, "out", "text", "Output format: text|json|markdown")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the run to an Excel workbook")
	cmd.Flags().StringVar(&markdownPath, "markdown", "", "Also write a Markdown report")
	return cmd
}

func runPoints(ctx context.Context, cfg *config.Config, logger *internal.Logger, mode combination.Mode, pts []prediction.Point) (*combination.Run, error) {
	policy, err := policyfile.PolicyFromConfig(cfg.Combiner)
	if err != nil {
		return nil, err
	}
	opts := cfg.LikelihoodOptions()
	opts.Logger = logger.WithComponent("likelihood")
	runner, err := scan.NewRunner(scan.Settings{
		Options:         opts,
		Policy:          policy,
		NTop:            cfg.Scan.NTop,
		Workers:         cfg.Scan.Workers,
		MaxCombinations: cfg.Scan.MaxCombinations,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Scan.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Scan.Timeout)
		defer cancel()
	}
	return runner.Run(ctx, mode, pts)
}

func printRun(w io.Writer, run *combination.Run, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	case "markdown", "md":
		_, err := io.WriteString(w, report.Markdown(run))
		return err
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q (want text, json or markdown)", format)
	}

	fmt.Fprintf(w, "Run %s (%s, policy %s)\n", run.ID, run.Mode, run.Policy)
	for _, p := range run.Points {
		if p.Failed() {
			fmt.Fprintf(w, "\n%s: FAILED: %s\n", p.PointID, p.Error)
			continue
		}
		fmt.Fprintf(w, "\n%s: %d candidates", p.PointID, p.Candidates)
		if p.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
		if p.Exclusion != nil {
			fmt.Fprintf(w, "  exclusion: %s\n", p.Exclusion.Describe())
		}
		for i, r := range p.Ranked {
			fmt.Fprintf(w, "  %d. %s\n", i+1, r.Describe())
		}
		if best, ok := p.Best(); ok && best.Inconsistent {
			fmt.Fprintf(w, "  warning: most sensitive analysis %s is not in the best combination\n", p.MostSensitive)
		}
		for _, r := range p.Rejected {
			fmt.Fprintf(w, "  skipped %s: %s\n", r.Key, r.Reason)
		}
	}

	s := report.Summarize(run)
	if s.Evaluated > 0 {
		fmt.Fprintf(w, "\nZ over %d points: mean %.3f, median %.3f, max %.3f\n", s.Evaluated, s.ZMean, s.ZMedian, s.ZMax)
	}
	return nil
}

func newMatrixCmd() *cobra.Command {
	var flags engineFlags
	var pointID string

	cmd := &cobra.Command{
		Use:   "matrix [points-file]",
		Short: "Print the compatibility matrix of a model point",
		Long: `Bind the predictions of one model point and print which pairs the
configured policy allows to be combined.

Example: combine-cli matrix points.yaml --point m1 --policy conservative`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config(cmd)
			if err != nil {
				return err
			}
			point, err := pickPoint(args[0], pointID)
			if err != nil {
				return err
			}
			policy, err := policyfile.PolicyFromConfig(cfg.Combiner)
			if err != nil {
				return err
			}
			opts := cfg.LikelihoodOptions()
			opts.Logger = flags.logger().WithComponent("likelihood")
			bound, rejected := likelihood.BindAll(point.Predictions, opts)
			members, dropped := compat.Prepare(likelihood.Members(bound), policy)
			m, err := compat.Build(members, policy)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Point %s, policy %s\n", point.ID, m.Policy())
			for i := 0; i < m.Len(); i++ {
				row := make([]string, m.Len())
				for j := range row {
					switch {
					case i == j:
						row[j] = "-"
					case m.Allowed(i, j):
						row[j] = "x"
					default:
						row[j] = "."
					}
				}
				fmt.Fprintf(out, "%2d %s  %s\n", i, strings.Join(row, " "), m.Member(i).AnalysisID())
			}
			for _, r := range rejected {
				fmt.Fprintf(out, "unusable %s: %v\n", r.Prediction.Key(), r.Err)
			}
			for _, d := range dropped {
				fmt.Fprintf(out, "not in dictionary: %s\n", d.AnalysisID())
			}
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&pointID, "point", "", "Model point id (default: first point)")
	return cmd
}

func newToysCmd() *cobra.Command {
	var flags engineFlags
	var pointID, analysis string
	var n int
	var seed uint64

	cmd := &cobra.Command{
		Use:   "toys [points-file]",
		Short: "Draw pseudo-experiments from an analysis likelihood",
		Long: `Sample signal yields from the observed likelihood of one analysis and
summarize them. The 95th percentile of the draws reproduces the observed
upper limit for a background-like analysis.

Example: combine-cli toys points.yaml --point m1 --analysis CMS-SUS-19-006 --count 20000 --seed 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config(cmd)
			if err != nil {
				return err
			}
			point, err := pickPoint(args[0], pointID)
			if err != nil {
				return err
			}
			opts := cfg.LikelihoodOptions()
			opts.Logger = flags.logger().WithComponent("likelihood")
			for _, p := range point.Predictions {
				if analysis != "" && p.AnalysisID() != analysis && p.Key() != analysis {
					continue
				}
				b, err := likelihood.Bind(p, opts)
				if err != nil {
					return err
				}
				summary, _, err := scan.Toys(b, n, seed)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			return fmt.Errorf("analysis %q not found in point %s", analysis, point.ID)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&pointID, "point", "", "Model point id (default: first point)")
	cmd.Flags().StringVar(&analysis, "analysis", "", "Analysis id or key (default: first prediction)")
	cmd.Flags().IntVarP(&n, "count", "n", 10000, "Number of pseudo-experiments")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "Random seed for deterministic sampling")
	return cmd
}

func pickPoint(path, id string) (prediction.Point, error) {
	pts, err := points.Load(path)
	if err != nil {
		return prediction.Point{}, err
	}
	if len(pts) == 0 {
		return prediction.Point{}, fmt.Errorf("%s contains no model points", path)
	}
	if id == "" {
		return pts[0], nil
	}
	for _, p := range pts {
		if p.ID.String() == id {
			return p, nil
		}
	}
	return prediction.Point{}, fmt.Errorf("model point %q not found in %s", id, path)
}
