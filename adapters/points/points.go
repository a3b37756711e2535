// Package points reads model points and their predictions from JSON, YAML,
// xlsx and CSV files.
package points

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gocombine/adapters/excel"
	"gocombine/domain/core"
	"gocombine/domain/prediction"
	"gocombine/internal/errors"
	"gocombine/ports"

	"gopkg.in/yaml.v3"
)

// Format is an input encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// PointSpec is the file representation of one model point.
type PointSpec struct {
	ID          string            `json:"id" yaml:"id"`
	Predictions []prediction.Spec `json:"predictions" yaml:"predictions"`
}

// File is the document root.
type File struct {
	Points []PointSpec `json:"points" yaml:"points"`
}

// FormatOf picks the format from a file extension; unknown extensions are
// read as JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".xlsx":
		return FormatXLSX
	case ".csv":
		return FormatCSV
	default:
		return FormatJSON
	}
}

// Decode parses a JSON or YAML document.
func Decode(r io.Reader, format Format) ([]prediction.Point, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read points")
	}
	var doc File
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("format %q cannot be decoded from a stream", format))
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "malformed %s points document", format))
	}
	return FromSpecs(doc.Points)
}

// FromSpecs validates point specs. Points without an id are numbered by
// position; duplicate ids are rejected.
func FromSpecs(specs []PointSpec) ([]prediction.Point, error) {
	out := make([]prediction.Point, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, ps := range specs {
		id := strings.TrimSpace(ps.ID)
		if id == "" {
			id = fmt.Sprintf("point-%d", i+1)
		}
		if seen[id] {
			return nil, errors.InvalidInput(fmt.Sprintf("duplicate point id %q", id))
		}
		seen[id] = true

		pointID, err := core.ParsePointID(id)
		if err != nil {
			return nil, errors.WithCode(errors.CodeInvalidInput, err)
		}
		preds := make([]prediction.Prediction, 0, len(ps.Predictions))
		for j, spec := range ps.Predictions {
			p, err := prediction.New(spec)
			if err != nil {
				return nil, errors.Wrapf(err, "point %s, prediction %d", id, j+1)
			}
			preds = append(preds, p)
		}
		out = append(out, prediction.Point{ID: pointID, Predictions: preds})
	}
	return out, nil
}

// ToSpecs converts points back to their file representation.
func ToSpecs(points []prediction.Point) []PointSpec {
	out := make([]PointSpec, len(points))
	for i, p := range points {
		specs := make([]prediction.Spec, len(p.Predictions))
		for j, pred := range p.Predictions {
			specs[j] = pred.Spec()
		}
		out[i] = PointSpec{ID: p.ID.String(), Predictions: specs}
	}
	return out
}

// Load reads a points file of any supported format.
func Load(path string) ([]prediction.Point, error) {
	switch format := FormatOf(path); format {
	case FormatXLSX, FormatCSV:
		rows, err := excel.NewDataReader(path).ReadPredictions()
		if err != nil {
			return nil, err
		}
		return FromSpecs(groupRows(rows))
	default:
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NotFound("points file " + path)
			}
			return nil, errors.Wrapf(err, "failed to open %s", path)
		}
		defer f.Close()
		return Decode(f, format)
	}
}

// groupRows gathers tabular rows into points, keeping first-seen order.
func groupRows(rows []excel.PredictionRow) []PointSpec {
	var specs []PointSpec
	index := make(map[string]int)
	for _, row := range rows {
		i, ok := index[row.Point]
		if !ok {
			i = len(specs)
			index[row.Point] = i
			specs = append(specs, PointSpec{ID: row.Point})
		}
		specs[i].Predictions = append(specs[i].Predictions, row.Spec)
	}
	return specs
}

// FileSource serves the points of one file.
type FileSource struct {
	Path string
}

var _ ports.PredictionSource = FileSource{}

// LoadPoints implements ports.PredictionSource.
func (s FileSource) LoadPoints(ctx context.Context) ([]prediction.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Load(s.Path)
}
