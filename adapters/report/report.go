// Package report renders runs as Markdown and HTML summaries.
package report

import (
	"fmt"
	"math"
	"strings"

	"gocombine/domain/combination"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/montanaflynn/stats"
)

// Summary aggregates the best-combination significances of a run.
type Summary struct {
	Points       int     `json:"points"`
	Failures     int     `json:"failures"`
	Evaluated    int     `json:"evaluated"`
	Inconsistent int     `json:"inconsistent"`
	ZMean        float64 `json:"z_mean"`
	ZMedian      float64 `json:"z_median"`
	ZStdDev      float64 `json:"z_std_dev"`
	ZMax         float64 `json:"z_max"`
	ZP90         float64 `json:"z_p90"`
}

// Summarize computes run-level statistics. Distribution fields are zero
// when no point has an evaluable best combination.
func Summarize(run *combination.Run) Summary {
	s := Summary{Points: len(run.Points), Failures: run.Failures()}
	for _, p := range run.Points {
		if best, ok := p.Best(); ok && best.Inconsistent {
			s.Inconsistent++
		}
	}
	z := stats.Float64Data(run.Significances())
	s.Evaluated = len(z)
	if len(z) == 0 {
		return s
	}
	s.ZMean, _ = stats.Mean(z)
	s.ZMedian, _ = stats.Median(z)
	s.ZStdDev, _ = stats.StandardDeviation(z)
	s.ZMax, _ = stats.Max(z)
	s.ZP90, _ = stats.Percentile(z, 90)
	return s
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.3g", v)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Markdown renders the run as a Markdown document.
func Markdown(run *combination.Run) string {
	var b strings.Builder
	s := Summarize(run)

	fmt.Fprintf(&b, "# Combination run %s\n\n", run.ID)
	fmt.Fprintf(&b, "- Mode: %s\n- Policy: %s\n- Created: %s\n", run.Mode, run.Policy, run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Points: %d (%d failed, %d evaluated)\n", s.Points, s.Failures, s.Evaluated)
	if s.Evaluated > 0 {
		fmt.Fprintf(&b, "- Z: mean %.3f, median %.3f, std %.3f, p90 %.3f, max %.3f\n", s.ZMean, s.ZMedian, s.ZStdDev, s.ZP90, s.ZMax)
	}
	if s.Inconsistent > 0 {
		fmt.Fprintf(&b, "- %d point(s) left their most sensitive analysis out of the best combination\n", s.Inconsistent)
	}

	b.WriteString("\n## Best combinations\n\n")
	b.WriteString("| Point | Combination | Size | Z | μ̂ | UL(μ) exp | UL(μ) obs | Note |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, p := range run.Points {
		best, ok := p.Best()
		switch {
		case p.Failed():
			fmt.Fprintf(&b, "| %s | - | - | - | - | - | - | failed: %s |\n", p.PointID, escape(p.Error))
		case !ok:
			fmt.Fprintf(&b, "| %s | - | - | - | - | - | - | no combinable predictions |\n", p.PointID)
		default:
			expUL, obsUL := best.ExpectedUL, best.ObservedUL
			if p.Exclusion != nil {
				expUL, obsUL = p.Exclusion.ExpectedUL, p.Exclusion.ObservedUL
			}
			note := ""
			if best.Inconsistent {
				note = "most sensitive analysis " + p.MostSensitive + " not included"
			}
			if p.Truncated {
				note = strings.TrimSpace(note + " enumeration truncated")
			}
			fmt.Fprintf(&b, "| %s | %s | %d | %s | %s | %s | %s | %s |\n",
				p.PointID, escape(strings.Join(best.AnalysisIDs(), ", ")), best.Size(),
				num(best.Z), num(best.MuHat), num(expUL), num(obsUL), escape(note))
		}
	}

	var rejected []string
	for _, p := range run.Points {
		for _, r := range p.Rejected {
			rejected = append(rejected, fmt.Sprintf("- %s / %s: %s", p.PointID, r.Key, r.Reason))
		}
	}
	if len(rejected) > 0 {
		b.WriteString("\n## Predictions not combined\n\n")
		b.WriteString(strings.Join(rejected, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// HTML renders the Markdown report as a complete HTML page.
func HTML(run *combination.Run) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Combination run " + run.ID.String(),
	})
	return markdown.ToHTML([]byte(Markdown(run)), p, renderer)
}
