package excel

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gocombine/domain/combination"
	"gocombine/internal/errors"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet      = "Summary"
	combinationsSheet = "Combinations"
	rejectedSheet     = "Rejected"
)

// RunWriter exports a run as an xlsx workbook with one summary row per
// point, every ranked combination, and the rejected predictions.
type RunWriter struct {
	run *combination.Run
}

// NewRunWriter creates a writer for run
func NewRunWriter(run *combination.Run) *RunWriter {
	return &RunWriter{run: run}
}

func cell(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}

func (w *RunWriter) build() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to name summary sheet")
	}
	for _, name := range []string{combinationsSheet, rejectedSheet} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to add sheet %s", name)
		}
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to create header style")
	}

	tables := map[string][][]interface{}{
		summarySheet:      w.summaryRows(),
		combinationsSheet: w.combinationRows(),
		rejectedSheet:     w.rejectedRows(),
	}
	for sheet, rows := range tables {
		for i, row := range rows {
			ref, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				f.Close()
				return nil, errors.Wrap(err, "invalid cell reference")
			}
			if err := f.SetSheetRow(sheet, ref, &row); err != nil {
				f.Close()
				return nil, errors.Wrapf(err, "failed to write %s row %d", sheet, i+1)
			}
		}
		if err := f.SetRowStyle(sheet, 1, 1, header); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to style %s header", sheet)
		}
	}
	return f, nil
}

func (w *RunWriter) summaryRows() [][]interface{} {
	rows := [][]interface{}{{"point", "best_combination", "size", "z", "mu_hat", "expected_ul_mu", "observed_ul_mu", "candidates", "unevaluable", "inconsistent", "error"}}
	for _, p := range w.run.Points {
		best, ok := p.Best()
		if !ok {
			rows = append(rows, []interface{}{p.PointID.String(), "", 0, "", "", "", "", p.Candidates, p.Unevaluable, false, p.Error})
			continue
		}
		expUL, obsUL := best.ExpectedUL, best.ObservedUL
		if p.Exclusion != nil {
			expUL, obsUL = p.Exclusion.ExpectedUL, p.Exclusion.ObservedUL
		}
		rows = append(rows, []interface{}{
			p.PointID.String(), best.AnalysisID(), best.Size(), cell(best.Z), cell(best.MuHat),
			cell(expUL), cell(obsUL), p.Candidates, p.Unevaluable, best.Inconsistent, p.Error,
		})
	}
	return rows
}

func (w *RunWriter) combinationRows() [][]interface{} {
	rows := [][]interface{}{{"point", "rank", "analyses", "size", "z", "mu_hat", "nll_0", "nll_mu_hat", "expected_ul_mu", "observed_ul_mu"}}
	for _, p := range w.run.Points {
		for rank, r := range p.Ranked {
			rows = append(rows, []interface{}{
				p.PointID.String(), rank + 1, strings.Join(r.AnalysisIDs(), ", "), r.Size(), cell(r.Z), cell(r.MuHat),
				cell(r.NLLZero), cell(r.NLLMuHat), cell(r.ExpectedUL), cell(r.ObservedUL),
			})
		}
	}
	return rows
}

func (w *RunWriter) rejectedRows() [][]interface{} {
	rows := [][]interface{}{{"point", "prediction", "reason"}}
	for _, p := range w.run.Points {
		for _, rej := range p.Rejected {
			rows = append(rows, []interface{}{p.PointID.String(), rej.Key, rej.Reason})
		}
	}
	return rows
}

// Write streams the workbook to out
func (w *RunWriter) Write(out io.Writer) error {
	f, err := w.build()
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(out); err != nil {
		return errors.Wrap(err, "failed to write workbook")
	}
	return nil
}

// Save writes the workbook to path
func (w *RunWriter) Save(path string) error {
	f, err := w.build()
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to save %s", path))
	}
	return nil
}
