package dataset

import (
	"sort"
	"strings"

	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/pkg/log"
)

// Mismatch records a column whose inferred type does not satisfy the schema.
type Mismatch struct {
	Column   string `json:"column"`
	Expected DType  `json:"expected"`
	Got      DType  `json:"got"`
}

// ValidationReport is the outcome of Validate. Missing values are reported
// but do not fail validation; the feature stage imputes them.
type ValidationReport struct {
	Passed            bool           `json:"passed"`
	Rows              int            `json:"rows"`
	MissingColumns    []string       `json:"missing_columns,omitempty"`
	MismatchedColumns []Mismatch     `json:"mismatched_columns,omitempty"`
	MissingValues     map[string]int `json:"missing_values,omitempty"`
}

// Err returns a ConfigurationError describing the failures, or nil.
func (r ValidationReport) Err() error {
	if r.Passed {
		return nil
	}
	var parts []string
	if len(r.MissingColumns) > 0 {
		parts = append(parts, "missing required columns: "+strings.Join(r.MissingColumns, ", "))
	}
	if len(r.MismatchedColumns) > 0 {
		names := make([]string, len(r.MismatchedColumns))
		for i, m := range r.MismatchedColumns {
			names[i] = m.Column + " (" + string(m.Expected) + " != " + string(m.Got) + ")"
		}
		parts = append(parts, "data types mismatch for columns: "+strings.Join(names, ", "))
	}
	if r.Rows == 0 {
		parts = append(parts, "dataset is empty")
	}
	return errors.NewConfigurationError("dataset.Validate", strings.Join(parts, "; "))
}

// Validate checks ds against schema: presence of every required column,
// inferred type of every present column, and missing-value counts.
func Validate(ds *Dataset, schema Schema) ValidationReport {
	logger := log.GetLoggerWithName("dataset.validate")
	report := ValidationReport{Rows: ds.Len(), MissingValues: map[string]int{}}

	for _, col := range schema {
		if !ds.Has(col.Name) {
			report.MissingColumns = append(report.MissingColumns, col.Name)
			continue
		}
		values, _ := ds.Column(col.Name)
		if got := InferDType(values); !col.Type.Accepts(got) {
			report.MismatchedColumns = append(report.MismatchedColumns, Mismatch{Column: col.Name, Expected: col.Type, Got: got})
		}
		for _, v := range values {
			if IsMissing(v) {
				report.MissingValues[col.Name]++
			}
		}
	}
	report.Passed = len(report.MissingColumns) == 0 && len(report.MismatchedColumns) == 0 && report.Rows > 0

	if len(report.MissingValues) > 0 {
		cols := make([]string, 0, len(report.MissingValues))
		for c := range report.MissingValues {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		logger.Warn("Dataset contains missing values", log.ColumnsKey, cols)
	}
	if report.Passed {
		logger.Info("Dataset validated", log.SamplesKey, report.Rows, log.ColumnsKey, len(schema))
	} else {
		logger.Warn("Dataset failed validation",
			"missing_columns", report.MissingColumns,
			"mismatched_columns", len(report.MismatchedColumns),
		)
	}
	return report
}
