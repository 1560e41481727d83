package engine

import (
	"strconv"
	"strings"
	"time"
)

// Cell classifiers. Each is total: it returns a definite ok/not-ok, never
// panics, so column narrowing can evaluate every cell without
// exception-style control flow.

// classifyInteger accepts an optional leading sign followed by digits,
// within the signed 64-bit range.
func classifyInteger(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// classifyFloat accepts decimal and scientific-notation literals. Values
// strconv would accept but that are not numeric literals in that sense
// (inf, nan, hex floats, underscores) are rejected up front so they cannot
// poison min/max.
func classifyFloat(s string) (float64, bool) {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '+' || r == '-' || r == '.' || r == 'e' || r == 'E':
		default:
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// classifyBoolean matches the configured truthy/falsy token sets,
// case-insensitively.
func classifyBoolean(s string, truthy, falsy []string) (bool, bool) {
	v := strings.ToLower(s)
	for _, t := range truthy {
		if v == t {
			return true, true
		}
	}
	for _, f := range falsy {
		if v == f {
			return false, true
		}
	}
	return false, false
}

// classifyDate tries the configured layouts in order; the first match wins
// and its layout is returned alongside the parsed time.
func classifyDate(s string, layouts []string) (time.Time, string, bool) {
	for _, lay := range layouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, lay, true
		}
	}
	return time.Time{}, "", false
}

// inferColumnTypes assigns one ColumnType per header column using the
// narrowest-common-type rule: the most specific classification every
// non-null cell satisfies, in Integer > Float > Boolean > Date order, with
// String as the fallback that always holds. Empty (after trim) cells are
// nulls and contribute no evidence; a column with no evidence is String.
//
// The decision is a pure conjunction over cells, so reordering rows can
// never change the outcome.
func inferColumnTypes(t ParsedTable, cfg InferenceConfig) []ColumnType {
	out := make([]ColumnType, len(t.Header))
	for i := range out {
		out[i] = TypeString
	}

	for col := range t.Header {
		var seen bool
		allInt := true
		allFloat := true
		allBool := true
		allDate := true

		for _, row := range t.Rows {
			if row.Malformed {
				continue
			}
			v := strings.TrimSpace(row.Cells[col])
			if v == "" {
				continue
			}
			seen = true

			if allInt {
				if _, ok := classifyInteger(v); !ok {
					allInt = false
				}
			}
			if allFloat {
				if _, ok := classifyFloat(v); !ok {
					allFloat = false
				}
			}
			if allBool {
				if _, ok := classifyBoolean(v, cfg.Truthy, cfg.Falsy); !ok {
					allBool = false
				}
			}
			if allDate {
				if _, _, ok := classifyDate(v, cfg.DatePatterns); !ok {
					allDate = false
				}
			}
			if !allInt && !allFloat && !allBool && !allDate {
				break
			}
		}

		if !seen {
			continue
		}
		switch {
		case allInt:
			out[col] = TypeInteger
		case allFloat:
			out[col] = TypeFloat
		case allBool:
			out[col] = TypeBoolean
		case allDate:
			out[col] = TypeDate
		default:
			out[col] = TypeString
		}
	}

	return out
}

// detectDateLayouts picks a display layout per date column by majority vote
// over the layouts that matched each cell. Non-date columns get "".
func detectDateLayouts(t ParsedTable, types []ColumnType, patterns []string) []string {
	out := make([]string, len(types))
	for col := range types {
		if types[col] != TypeDate {
			continue
		}
		counts := map[string]int{}
		for _, row := range t.Rows {
			if row.Malformed {
				continue
			}
			v := strings.TrimSpace(row.Cells[col])
			if v == "" {
				continue
			}
			if _, lay, ok := classifyDate(v, patterns); ok {
				counts[lay]++
			}
		}
		best := ""
		bestN := 0
		for lay, n := range counts {
			if n > bestN || (n == bestN && lay < best) {
				best = lay
				bestN = n
			}
		}
		out[col] = best
	}
	return out
}
