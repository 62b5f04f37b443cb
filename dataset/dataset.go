// Package dataset loads, validates and ingests the raw tabular data.
//
// A Dataset keeps every cell as the raw string read from the source so that
// validation can infer column types the way a dataframe reader would.
// Numeric parsing happens later, in the feature stage.
package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/salescv/pkg/errors"
)

// Dataset is an ordered set of rows addressed by column name.
type Dataset struct {
	Columns []string
	Rows    [][]string

	// Target and Group name the target and group-id columns. Group may be
	// empty, in which case every row is its own group.
	Target string
	Group  string

	index map[string]int
}

// New builds a Dataset. Every row must have one cell per column and column
// names must be unique.
func New(columns []string, rows [][]string) (*Dataset, error) {
	const op = "dataset.New"
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		if _, dup := index[c]; dup {
			return nil, errors.NewConfigurationErrorf(op, "duplicate column %q", c)
		}
		index[c] = i
		columns[i] = c
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, errors.NewConfigurationErrorf(op, "row %d has %d cells, want %d", i, len(row), len(columns))
		}
	}
	return &Dataset{Columns: columns, Rows: rows, index: index}, nil
}

// ReadCSV parses delimited text with a header row.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.NewConfigurationErrorf("dataset.ReadCSV", "malformed csv: %v", err)
	}
	if len(records) == 0 {
		return nil, errors.NewConfigurationError("dataset.ReadCSV", "missing header row")
	}
	records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	return New(records[0], records[1:])
}

// LoadCSV reads a CSV file.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("dataset.LoadCSV", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Has reports whether the column exists.
func (d *Dataset) Has(column string) bool {
	_, ok := d.index[column]
	return ok
}

// Column returns a copy of the raw values of a column.
func (d *Dataset) Column(name string) ([]string, error) {
	j, ok := d.index[name]
	if !ok {
		return nil, errors.NewConfigurationErrorf("Dataset.Column", "unknown column %q", name)
	}
	out := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row[j]
	}
	return out, nil
}

// Cell returns the raw value at (row, column), or "" if the column is absent.
func (d *Dataset) Cell(row int, column string) string {
	j, ok := d.index[column]
	if !ok {
		return ""
	}
	return d.Rows[row][j]
}

// Float parses a numeric cell. Missing cells return NaN; infinities are
// rejected like any other non-numeric text.
func (d *Dataset) Float(row int, column string) (float64, error) {
	cell := d.Cell(row, column)
	if IsMissing(cell) {
		return math.NaN(), nil
	}
	v, ok := parseFinite(cell)
	if !ok {
		return 0, errors.NewConfigurationErrorf("Dataset.Float", "row %d column %q: %q is not a finite number", row, column, cell)
	}
	return v, nil
}

// Targets returns the raw target values. It fails if the target column is
// unset or absent, or if any row lacks a target.
func (d *Dataset) Targets() ([]string, error) {
	const op = "Dataset.Targets"
	if d.Target == "" {
		return nil, errors.NewConfigurationError(op, "no target column configured")
	}
	values, err := d.Column(d.Target)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if IsMissing(v) {
			return nil, errors.NewConfigurationErrorf(op, "row %d has no value for target %q", i, d.Target)
		}
	}
	return values, nil
}

// NumericTargets is Targets parsed as floats.
func (d *Dataset) NumericTargets() ([]float64, error) {
	raw, err := d.Targets()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := parseFinite(v)
		if !ok {
			return nil, errors.NewConfigurationErrorf("Dataset.NumericTargets", "row %d: target %q is not a finite number", i, v)
		}
		out[i] = f
	}
	return out, nil
}

// Groups returns the group id of every row. Without a group column the row
// index is used.
func (d *Dataset) Groups() ([]string, error) {
	if d.Group == "" {
		out := make([]string, d.Len())
		for i := range out {
			out[i] = strconv.Itoa(i)
		}
		return out, nil
	}
	values, err := d.Column(d.Group)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if IsMissing(v) {
			return nil, errors.NewConfigurationErrorf("Dataset.Groups", "row %d has no group id in %q", i, d.Group)
		}
	}
	return values, nil
}

// Subset returns a dataset holding the given rows, sharing cell storage.
func (d *Dataset) Subset(rows []int) *Dataset {
	out := &Dataset{Columns: d.Columns, Target: d.Target, Group: d.Group, index: d.index}
	out.Rows = make([][]string, len(rows))
	for i, r := range rows {
		out.Rows[i] = d.Rows[r]
	}
	return out
}
