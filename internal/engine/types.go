package engine

import (
	"encoding/json"
	"fmt"
)

// ColumnType is the closed set of semantic column types the inference
// engine can assign. A column always carries exactly one of these; String
// is the universal fallback.
//
// The statistics collector switches exhaustively over this set, so adding
// a variant requires defining its ordering and distinct-value strategy
// there as well.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeDate
)

// String returns the wire name of the type ("integer", "float", ...).
func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// MarshalJSON renders the type as its wire name.
func (t ColumnType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON parses a wire name back into the closed variant set.
// Unknown names are an error so stored reports never decode into a type
// the statistics switches do not cover.
func (t *ColumnType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("column type: %w", err)
	}
	switch name {
	case "string":
		*t = TypeString
	case "integer":
		*t = TypeInteger
	case "float":
		*t = TypeFloat
	case "boolean":
		*t = TypeBoolean
	case "date":
		*t = TypeDate
	default:
		return fmt.Errorf("column type: unknown name %q", name)
	}
	return nil
}

// Ordered reports whether values of this type have a natural ordering the
// statistics collector can compute min/max over.
func (t ColumnType) Ordered() bool {
	switch t {
	case TypeInteger, TypeFloat, TypeDate:
		return true
	case TypeBoolean, TypeString:
		return false
	default:
		return false
	}
}

// Row is one parsed data row. Cells are the raw decoded field values in
// header order; Malformed marks rows whose cell count does not match the
// header. Malformed rows are excluded from inference and statistics but
// stay visible in the preview sample.
type Row struct {
	Cells     []string
	Malformed bool
}

// ParsedTable is the output of the tabular parser: a header plus ordered
// data rows. It is an intermediate value; callers receive the
// AnalysisReport, never the table itself.
type ParsedTable struct {
	Header []string
	Rows   []Row
}

// ValidRows returns the number of rows usable for inference/statistics.
func (t ParsedTable) ValidRows() int {
	n := 0
	for _, r := range t.Rows {
		if !r.Malformed {
			n++
		}
	}
	return n
}

// ColumnProfile summarizes one column of an accepted file.
//
// Min/Max are present only for ordered types (integer, float, date) and
// are rendered from the parsed value, not the raw cell text. UniqueRatio
// is distinct count over non-null count (0 when the column is all nulls).
type ColumnProfile struct {
	Name          string     `json:"name"`
	Type          ColumnType `json:"type"`
	NullCount     int        `json:"null_count"`
	DistinctCount int        `json:"distinct_count"`
	UniqueRatio   float64    `json:"unique_ratio"`
	SampleValues  []string   `json:"sample_values,omitempty"`
	Min           string     `json:"min,omitempty"`
	Max           string     `json:"max,omitempty"`
}

// ValidationOutcome records whether the file passed structural validation.
// For accepted files Detail surfaces non-fatal findings such as the number
// of malformed rows excluded from statistics.
type ValidationOutcome struct {
	Status string `json:"status"` // "accepted" or "rejected"
	Rule   string `json:"rule,omitempty"`
	Detail string `json:"detail,omitempty"`
}

const (
	// StatusAccepted marks a file that passed all structural checks.
	StatusAccepted = "accepted"
	// StatusRejected marks a structurally rejected file.
	StatusRejected = "rejected"
)

// AnalysisReport is the single value Analyze returns for an accepted file.
// It is immutable once produced: the engine retains no reference to it and
// the preview rows are copies of the parsed cells.
type AnalysisReport struct {
	RowCount      int               `json:"row_count"`
	ColumnCount   int               `json:"column_count"`
	MalformedRows int               `json:"malformed_rows"`
	Columns       []ColumnProfile   `json:"columns"`
	Sample        [][]string        `json:"sample"`
	Validation    ValidationOutcome `json:"validation"`
}
