package dataset

import (
	"math"
	"strconv"
	"strings"
)

// DType is the inferred or declared type of a column. Inference follows a
// dataframe reader: every int parses as a float and every value is a string,
// so int ⊂ float ⊂ string.
type DType string

const (
	DTypeInt    DType = "int"
	DTypeFloat  DType = "float"
	DTypeString DType = "string"
	// DTypeEmpty is inferred for a column whose cells are all missing.
	DTypeEmpty DType = "empty"
)

// Accepts reports whether a column inferred as got satisfies the declared
// type. An int column satisfies a float declaration; an all-missing column
// satisfies any declaration.
func (d DType) Accepts(got DType) bool {
	switch {
	case got == d, got == DTypeEmpty:
		return true
	case d == DTypeFloat && got == DTypeInt:
		return true
	default:
		return false
	}
}

// Role tells the feature stage what to do with a column.
type Role string

const (
	RoleNumeric     Role = "numeric"
	RoleCategorical Role = "categorical"
	RoleTarget      Role = "target"
	// RoleID columns are required and validated but never become features.
	RoleID Role = "id"
)

// Column declares one required column.
type Column struct {
	Name string `yaml:"name" json:"name"`
	Type DType  `yaml:"type" json:"type"`
	Role Role   `yaml:"role" json:"role"`
}

// Schema is the ordered list of required columns.
type Schema []Column

// DefaultSchema is the retail sales schema.
func DefaultSchema() Schema {
	return Schema{
		{Name: "Item_Identifier", Type: DTypeString, Role: RoleID},
		{Name: "Item_Weight", Type: DTypeFloat, Role: RoleNumeric},
		{Name: "Item_Fat_Content", Type: DTypeString, Role: RoleCategorical},
		{Name: "Item_Visibility", Type: DTypeFloat, Role: RoleNumeric},
		{Name: "Item_Type", Type: DTypeString, Role: RoleCategorical},
		{Name: "Item_MRP", Type: DTypeFloat, Role: RoleNumeric},
		{Name: "Outlet_Identifier", Type: DTypeString, Role: RoleCategorical},
		{Name: "Outlet_Establishment_Year", Type: DTypeInt, Role: RoleNumeric},
		{Name: "Outlet_Size", Type: DTypeString, Role: RoleCategorical},
		{Name: "Outlet_Location_Type", Type: DTypeString, Role: RoleCategorical},
		{Name: "Outlet_Type", Type: DTypeString, Role: RoleCategorical},
		{Name: "Item_Outlet_Sales", Type: DTypeFloat, Role: RoleTarget},
	}
}

// Names returns the column names in declaration order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// WithRole returns the names of the columns with the given role.
func (s Schema) WithRole(role Role) []string {
	var out []string
	for _, c := range s {
		if c.Role == role {
			out = append(out, c.Name)
		}
	}
	return out
}

// Lookup finds a column by name.
func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

var missingTokens = map[string]bool{
	"": true, "na": true, "nan": true, "null": true, "none": true, "n/a": true,
}

// IsMissing reports whether a raw cell denotes a missing value.
func IsMissing(cell string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(cell))]
}

// InferDType returns the narrowest type every non-missing value parses as.
func InferDType(values []string) DType {
	dt := DTypeEmpty
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		v = strings.TrimSpace(v)
		switch {
		case dt != DTypeFloat && isInt(v):
			dt = DTypeInt
		case isFloat(v):
			dt = DTypeFloat
		default:
			return DTypeString
		}
	}
	return dt
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isFloat rejects Inf and NaN spellings, which ParseFloat accepts.
func isFloat(s string) bool {
	_, ok := parseFinite(s)
	return ok
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
