package excel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gocombine/domain/combination"
	"gocombine/domain/core"
	"gocombine/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadPredictions_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.csv")
	content := "# model points\n" +
		"Point,Analysis,Dataset,Sqrts,oUL,eUL,Signal\n" +
		"m1,CMS-SUS-19-006,,13,7,5,1.5\n" +
		"m1,ATLAS-SUSY-2018-32,SR1,13,8,6,2\n" +
		",,,,,,\n" +
		"m2,CMS-SUS-16-050,,13,4,6,0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rows, err := NewDataReader(path).ReadPredictions()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "m1", rows[0].Point)
	assert.Equal(t, "CMS-SUS-19-006", rows[0].Spec.AnalysisID)
	assert.Equal(t, 1.5, rows[0].Spec.SignalYield)
	assert.Equal(t, "SR1", rows[1].Spec.DatasetID)
	assert.Equal(t, 6.0, rows[1].Spec.ExpectedUL)
	assert.Equal(t, "m2", rows[2].Point)
}

func TestReadPredictions_Errors(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.csv")
	require.NoError(t, os.WriteFile(missing, []byte("analysis,sqrts\nCMS-X,13\n"), 0o644))
	_, err := NewDataReader(missing).ReadPredictions()
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("analysis,sqrts,observed_ul,expected_ul,signal\nCMS-X,13,seven,5,1\n"), 0o644))
	_, err = NewDataReader(bad).ReadPredictions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")

	_, err = NewDataReader(filepath.Join(dir, "nope.xlsx")).ReadPredictions()
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestReadPredictions_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range [][]interface{}{
		{"point", "analysis", "sqrts", "observed_ul", "expected_ul", "signal"},
		{"m1", "CMS-SUS-19-006", 13, 7, 5, 1},
		{"m1", "ATLAS-SUSY-2013-02", 8, 20, 15, 4},
	} {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, ref, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	rows, err := NewDataReader(path).ReadPredictions()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 8.0, rows[1].Spec.Sqrts)
	assert.Equal(t, "ATLAS-SUSY-2013-02", rows[1].Spec.AnalysisID)
}

func TestRunWriter_Save(t *testing.T) {
	best := combination.NewResult(nil, []int{0, 1})
	best.Z, best.MuHat, best.ExpectedUL, best.ObservedUL = 2.5, 0.8, 1.2, 1.9
	run := &combination.Run{
		ID:        core.NewRunID(),
		Mode:      combination.ModeCombine,
		Policy:    "conservative",
		CreatedAt: time.Now(),
		Points: []combination.PointResult{
			{PointID: "m1", Ranked: []combination.Result{best}, Candidates: 2},
			{PointID: "m2", Error: "no combination could be evaluated",
				Rejected: []combination.Rejected{{Key: "CMS-SUS-19-006", Reason: "invalid limit"}}},
		},
	}

	path := filepath.Join(t.TempDir(), "run.xlsx")
	require.NoError(t, NewRunWriter(run).Save(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, combinationsSheet, rejectedSheet}, f.GetSheetList())
	z, err := f.GetCellValue(summarySheet, "D2")
	require.NoError(t, err)
	assert.Equal(t, "2.5", z)
	msg, err := f.GetCellValue(summarySheet, "K3")
	require.NoError(t, err)
	assert.Equal(t, "no combination could be evaluated", msg)

	rejected, err := f.GetRows(rejectedSheet)
	require.NoError(t, err)
	require.Len(t, rejected, 2)
	assert.Equal(t, []string{"m2", "CMS-SUS-19-006", "invalid limit"}, rejected[1])
}
