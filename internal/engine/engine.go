// Package engine implements the file analysis core: structural validation,
// column type inference, and statistics/preview computation over tabular
// text files.
//
// The engine is responsible for:
//   - Decoding raw bytes under a requested encoding (strict, no substitution)
//   - Enforcing structural limits before any semantic work
//   - Parsing a configurable CSV dialect into header + rows
//   - Assigning one semantic type per column (narrowest common type)
//   - Computing per-column null/distinct/min/max statistics and a preview
//
// Design constraints:
//   - Analyze is a pure, synchronous computation: no I/O, no goroutines, no
//     shared state between invocations. Limits and inference configuration
//     are always explicit parameters, never process-wide defaults.
//   - Every stage returns a typed result or a typed failure; inference
//     itself cannot fail because String is the universal fallback.
//   - Memory is O(rows x columns) plus O(distinct values) per column, which
//     is why the structural limits are enforced first and are not advisory.
package engine

import "strconv"

// Limits bound what the engine will accept. Zero values disable the
// corresponding cap except PreviewSize, where zero falls back to the
// default preview length.
type Limits struct {
	MaxBytes    int64
	MaxRows     int
	MaxColumns  int
	PreviewSize int
}

// DefaultLimits mirrors the upload API's historical caps: 10MB payloads,
// one million data rows, one hundred columns, five preview rows.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:    10 << 20,
		MaxRows:     1_000_000,
		MaxColumns:  100,
		PreviewSize: 5,
	}
}

// InferenceConfig carries the CSV dialect and the classification knobs for
// type inference.
type InferenceConfig struct {
	// Truthy and Falsy are the boolean token sets, matched
	// case-insensitively against trimmed cells.
	Truthy []string
	Falsy  []string

	// DatePatterns are Go time layouts tried in order; the first match
	// wins for every cell.
	DatePatterns []string

	// Delimiter and QuoteChar define the dialect. Zero values mean ',' and
	// '"'.
	Delimiter rune
	QuoteChar rune
}

// DefaultInference returns the stock dialect and token sets: comma/double
// quote, the usual boolean spellings, and date-only layouts ahead of
// timestamp layouts so plain dates keep their day resolution.
func DefaultInference() InferenceConfig {
	return InferenceConfig{
		Truthy: []string{"1", "t", "true", "yes", "y"},
		Falsy:  []string{"0", "f", "false", "no", "n"},
		DatePatterns: []string{
			"2006-01-02",
			"02.01.2006",
			"02/01/2006",
			"01/02/2006",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
			"2006-01-02T15:04:05Z07:00",
			"02.01.2006 15:04:05",
		},
		Delimiter: ',',
		QuoteChar: '"',
	}
}

// Analyze runs the full pipeline over one file: decode, validate, parse,
// infer, collect statistics, extract the preview, and assemble the report.
//
// It returns either a complete *AnalysisReport or exactly one typed error:
// *EncodingError for undecodable input, *RejectedError for structural
// rejections (including NoValidRows). No partial report ever escapes; on
// rejection nothing semantic has been computed.
func Analyze(data []byte, encodingHint string, limits Limits, cfg InferenceConfig) (*AnalysisReport, error) {
	if err := checkSize(int64(len(data)), limits); err != nil {
		return nil, err
	}

	text, err := decodeText(data, encodingHint)
	if err != nil {
		return nil, err
	}
	if isBlank(text) {
		return nil, rejectf(RuleEmptyFile, "file is empty")
	}

	table := parseTable(text, cfg.Delimiter, cfg.QuoteChar)
	if rej := validateTable(table, limits); rej != nil {
		return nil, rej
	}

	valid := table.ValidRows()
	malformed := len(table.Rows) - valid
	if len(table.Rows) > 0 && valid == 0 {
		return nil, rejectf(RuleNoValidRows, "all %d data rows have a cell count different from the %d header columns", len(table.Rows), len(table.Header))
	}

	types := inferColumnTypes(table, cfg)
	layouts := detectDateLayouts(table, types, cfg.DatePatterns)
	profiles := collectProfiles(table, types, layouts, cfg)
	sample := extractSample(table, limits.PreviewSize)

	outcome := ValidationOutcome{Status: StatusAccepted}
	if malformed > 0 {
		outcome.Detail = pluralRows(malformed) + " excluded from statistics (cell count mismatch)"
	}

	return &AnalysisReport{
		RowCount:      valid,
		ColumnCount:   len(table.Header),
		MalformedRows: malformed,
		Columns:       profiles,
		Sample:        sample,
		Validation:    outcome,
	}, nil
}

// extractSample returns copies of the first n rows verbatim, malformed rows
// included. The copies keep the report immutable even though the parsed
// table is discarded.
func extractSample(t ParsedTable, n int) [][]string {
	if n <= 0 {
		n = DefaultLimits().PreviewSize
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := make([][]string, 0, n)
	for _, row := range t.Rows[:n] {
		cells := make([]string, len(row.Cells))
		copy(cells, row.Cells)
		out = append(out, cells)
	}
	return out
}

func pluralRows(n int) string {
	if n == 1 {
		return "1 malformed row"
	}
	return strconv.Itoa(n) + " malformed rows"
}
