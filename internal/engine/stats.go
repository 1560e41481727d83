package engine

import (
	"strconv"
	"strings"
	"time"
)

// sampleValuesPerColumn bounds the per-column SampleValues slice.
const sampleValuesPerColumn = 5

// collectProfiles computes one ColumnProfile per header column.
//
// Null count is the number of empty-after-trim cells. Distinct counting
// canonicalizes through the parsed value for ordered types, so "01", "+1"
// and "1" in an integer column are one distinct value; String and Boolean
// columns compare trimmed decoded text. Min/Max use the type's natural
// ordering and are omitted for String/Boolean. Malformed rows never reach
// this function's loops.
func collectProfiles(t ParsedTable, types []ColumnType, layouts []string, cfg InferenceConfig) []ColumnProfile {
	profiles := make([]ColumnProfile, len(t.Header))

	for col, name := range t.Header {
		acc := newColumnAccumulator(types[col], layouts[col], cfg)

		for _, row := range t.Rows {
			if row.Malformed {
				continue
			}
			acc.add(strings.TrimSpace(row.Cells[col]))
		}

		profiles[col] = acc.profile(name)
	}
	return profiles
}

// columnAccumulator folds one column's cells into a profile. It interprets
// cells through the already-inferred column type; the classifiers are total
// and the narrowing rule guarantees they succeed here, but every path still
// has a text fallback so a profile can never fail.
type columnAccumulator struct {
	typ    ColumnType
	layout string
	cfg    InferenceConfig

	nulls    int
	nonNull  int
	distinct map[string]struct{}
	samples  []string

	minInt, maxInt     int64
	minFloat, maxFloat float64
	minTime, maxTime   time.Time
	minRaw, maxRaw     string // display form of the current min/max
	hasOrdered         bool
}

func newColumnAccumulator(typ ColumnType, layout string, cfg InferenceConfig) *columnAccumulator {
	return &columnAccumulator{
		typ:      typ,
		layout:   layout,
		cfg:      cfg,
		distinct: make(map[string]struct{}),
	}
}

func (a *columnAccumulator) add(v string) {
	if v == "" {
		a.nulls++
		return
	}
	a.nonNull++
	if len(a.samples) < sampleValuesPerColumn {
		a.samples = append(a.samples, v)
	}

	switch a.typ {
	case TypeInteger:
		n, ok := classifyInteger(v)
		if !ok {
			a.distinct[v] = struct{}{}
			return
		}
		a.distinct[strconv.FormatInt(n, 10)] = struct{}{}
		if !a.hasOrdered || n < a.minInt {
			a.minInt, a.minRaw = n, strconv.FormatInt(n, 10)
		}
		if !a.hasOrdered || n > a.maxInt {
			a.maxInt, a.maxRaw = n, strconv.FormatInt(n, 10)
		}
		a.hasOrdered = true

	case TypeFloat:
		f, ok := classifyFloat(v)
		if !ok {
			a.distinct[v] = struct{}{}
			return
		}
		a.distinct[strconv.FormatFloat(f, 'g', -1, 64)] = struct{}{}
		if !a.hasOrdered || f < a.minFloat {
			a.minFloat, a.minRaw = f, strconv.FormatFloat(f, 'g', -1, 64)
		}
		if !a.hasOrdered || f > a.maxFloat {
			a.maxFloat, a.maxRaw = f, strconv.FormatFloat(f, 'g', -1, 64)
		}
		a.hasOrdered = true

	case TypeDate:
		ts, lay, ok := classifyDate(v, a.cfg.DatePatterns)
		if !ok {
			a.distinct[v] = struct{}{}
			return
		}
		a.distinct[ts.UTC().Format(time.RFC3339Nano)] = struct{}{}
		if !a.hasOrdered || ts.Before(a.minTime) {
			a.minTime, a.minRaw = ts, a.formatDate(ts, lay)
		}
		if !a.hasOrdered || ts.After(a.maxTime) {
			a.maxTime, a.maxRaw = ts, a.formatDate(ts, lay)
		}
		a.hasOrdered = true

	case TypeBoolean, TypeString:
		a.distinct[v] = struct{}{}

	default:
		a.distinct[v] = struct{}{}
	}
}

func (a *columnAccumulator) formatDate(ts time.Time, cellLayout string) string {
	lay := a.layout
	if lay == "" {
		lay = cellLayout
	}
	return ts.Format(lay)
}

func (a *columnAccumulator) profile(name string) ColumnProfile {
	p := ColumnProfile{
		Name:          name,
		Type:          a.typ,
		NullCount:     a.nulls,
		DistinctCount: len(a.distinct),
		SampleValues:  a.samples,
	}
	if a.nonNull > 0 {
		p.UniqueRatio = float64(len(a.distinct)) / float64(a.nonNull)
	}
	if a.typ.Ordered() && a.hasOrdered {
		p.Min = a.minRaw
		p.Max = a.maxRaw
	}
	return p
}
