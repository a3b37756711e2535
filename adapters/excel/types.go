package excel

import "gocombine/domain/prediction"

// RawRowData represents a row of raw sheet data as header -> cell text
type RawRowData map[string]string

// SheetData represents the complete sheet
type SheetData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}

// PredictionRow is one prediction read from a table, tagged with its point
type PredictionRow struct {
	Point string
	Spec  prediction.Spec
}

// Column names of the predictions table. Aliases are accepted on read.
var columnAliases = map[string][]string{
	"point":       {"point", "point_id", "model_point", "slha"},
	"analysis":    {"analysis", "analysis_id", "txname"},
	"dataset":     {"dataset", "dataset_id", "signal_region"},
	"sqrts":       {"sqrts", "sqrt_s"},
	"experiment":  {"experiment"},
	"observed_ul": {"observed_ul", "oul", "ul_obs"},
	"expected_ul": {"expected_ul", "eul", "ul_exp"},
	"signal":      {"signal", "signal_yield", "nsig"},
}
