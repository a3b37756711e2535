package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gocombine/internal/errors"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading prediction tables from Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// WithSheet selects the sheet to read; the first sheet is used by default
func (r *DataReader) WithSheet(name string) *DataReader {
	r.sheet = name
	return r
}

// ReadData reads the raw table
func (r *DataReader) ReadData() (*SheetData, error) {
	log.Printf("[DataReader] Starting to read %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.NotFound(fmt.Sprintf("%s file %s", strings.ToUpper(r.fileType), r.filePath))
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported file type: %s", r.fileType))
	}
}

// readExcelData reads the configured sheet into structured format
func (r *DataReader) readExcelData() (*SheetData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s", sheet)
	}
	log.Printf("[DataReader] Sheet %s read in %.2fms (%d rows)", sheet, float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, errors.InvalidInput("Excel file must have at least a header row and one data row")
	}

	return r.processRows(rows)
}

// readCSVData reads CSV data into structured format
func (r *DataReader) readCSVData() (*SheetData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrap(err, "failed to read CSV file"))
	}
	log.Printf("[DataReader] CSV file read (%d rows)", len(rows))

	if len(rows) < 2 {
		return nil, errors.InvalidInput("CSV file must have at least a header row and one data row")
	}

	return r.processRows(rows)
}

// processRows converts raw string rows into SheetData format
func (r *DataReader) processRows(rows [][]string) (*SheetData, error) {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.ToLower(strings.TrimSpace(header))
	}

	var dataRows []RawRowData
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(RawRowData)
		empty := true
		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
				if rowData[headers[j]] != "" {
					empty = false
				}
			}
		}
		if !empty {
			dataRows = append(dataRows, rowData)
		}
	}

	return &SheetData{Headers: headers, Rows: dataRows}, nil
}

// resolveColumns maps canonical column names to the headers present
func resolveColumns(headers []string) map[string]string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	resolved := make(map[string]string)
	for canonical, aliases := range columnAliases {
		for _, alias := range aliases {
			if present[alias] {
				resolved[canonical] = alias
				break
			}
		}
	}
	return resolved
}

// ReadPredictions reads one prediction per row. The analysis, sqrts,
// observed_ul, expected_ul and signal columns are required.
func (r *DataReader) ReadPredictions() ([]PredictionRow, error) {
	data, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	cols := resolveColumns(data.Headers)
	for _, required := range []string{"analysis", "sqrts", "observed_ul", "expected_ul", "signal"} {
		if _, ok := cols[required]; !ok {
			return nil, errors.InvalidInput(fmt.Sprintf("%s: missing column %q", r.filePath, required))
		}
	}

	out := make([]PredictionRow, 0, len(data.Rows))
	for i, row := range data.Rows {
		line := i + 2
		num := func(name string) (float64, error) {
			text := row[cols[name]]
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return 0, errors.InvalidInput(fmt.Sprintf("%s row %d: %s %q is not a number", r.filePath, line, name, text))
			}
			return v, nil
		}
		pr := PredictionRow{Point: row[cols["point"]]}
		pr.Spec.AnalysisID = row[cols["analysis"]]
		pr.Spec.DatasetID = row[cols["dataset"]]
		pr.Spec.Experiment = row[cols["experiment"]]
		if pr.Spec.Sqrts, err = num("sqrts"); err != nil {
			return nil, err
		}
		if pr.Spec.ObservedUL, err = num("observed_ul"); err != nil {
			return nil, err
		}
		if pr.Spec.ExpectedUL, err = num("expected_ul"); err != nil {
			return nil, err
		}
		if pr.Spec.SignalYield, err = num("signal"); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}

	log.Printf("[DataReader] %d predictions read from %s", len(out), r.filePath)
	return out, nil
}
