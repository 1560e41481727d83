package engine

import (
	"reflect"
	"testing"
)

// TestParseTable verifies header/row splitting for the default dialect.
func TestParseTable(t *testing.T) {
	t.Parallel()

	got := parseTable("a,b\n1,2\n3,4\n", ',', '"')

	if !reflect.DeepEqual(got.Header, []string{"a", "b"}) {
		t.Fatalf("header = %v, want [a b]", got.Header)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(got.Rows))
	}
	if !reflect.DeepEqual(got.Rows[0].Cells, []string{"1", "2"}) {
		t.Fatalf("row 0 = %v", got.Rows[0].Cells)
	}
	if got.Rows[0].Malformed || got.Rows[1].Malformed {
		t.Fatal("well-formed rows flagged malformed")
	}
}

// TestParseTable_Quoting verifies the quoting convention: doubled quotes,
// embedded delimiters, and embedded line breaks are literal content.
func TestParseTable_Quoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "embedded delimiter",
			in:   "h\n\"a,b\"\n",
			want: []string{"a,b"},
		},
		{
			name: "doubled quote",
			in:   "h\n\"say \"\"hi\"\"\"\n",
			want: []string{`say "hi"`},
		},
		{
			name: "embedded newline",
			in:   "h\n\"line1\nline2\"\n",
			want: []string{"line1\nline2"},
		},
		{
			name: "quoted empty field",
			in:   "h\n\"\"\n",
			want: []string{""},
		},
		{
			name: "quote inside unquoted field is literal",
			in:   "h\nit\"s\n",
			want: []string{`it"s`},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := parseTable(tt.in, ',', '"')
			if len(got.Rows) != 1 {
				t.Fatalf("rows = %d, want 1", len(got.Rows))
			}
			if !reflect.DeepEqual(got.Rows[0].Cells, tt.want) {
				t.Fatalf("cells = %q, want %q", got.Rows[0].Cells, tt.want)
			}
		})
	}
}

// TestParseTable_CustomDialect verifies a non-default delimiter and quote
// character work together.
func TestParseTable_CustomDialect(t *testing.T) {
	t.Parallel()

	got := parseTable("a;b\n'x;y';2\n", ';', '\'')

	if !reflect.DeepEqual(got.Header, []string{"a", "b"}) {
		t.Fatalf("header = %v", got.Header)
	}
	if !reflect.DeepEqual(got.Rows[0].Cells, []string{"x;y", "2"}) {
		t.Fatalf("cells = %q, want [x;y 2]", got.Rows[0].Cells)
	}
}

// TestParseTable_LineEndings verifies LF, CRLF and bare CR all terminate
// records, including CR-only files from old Mac exports.
func TestParseTable_LineEndings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{name: "crlf", in: "a,b\r\n1,2\r\n3,4\r\n"},
		{name: "bare cr", in: "a,b\r1,2\r3,4\r"},
		{name: "mixed", in: "a,b\r\n1,2\n3,4\r"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := parseTable(tt.in, ',', '"')
			if !reflect.DeepEqual(got.Header, []string{"a", "b"}) {
				t.Fatalf("header = %v, want [a b]", got.Header)
			}
			if len(got.Rows) != 2 {
				t.Fatalf("rows = %d, want 2", len(got.Rows))
			}
			if !reflect.DeepEqual(got.Rows[0].Cells, []string{"1", "2"}) {
				t.Fatalf("row 0 = %q", got.Rows[0].Cells)
			}
			if !reflect.DeepEqual(got.Rows[1].Cells, []string{"3", "4"}) {
				t.Fatalf("row 1 = %q", got.Rows[1].Cells)
			}
			if got.Rows[0].Malformed || got.Rows[1].Malformed {
				t.Fatal("well-formed rows flagged malformed")
			}
		})
	}
}

// TestParseTable_MalformedRows verifies wrong-arity rows are flagged, kept
// in order, and not padded or truncated.
func TestParseTable_MalformedRows(t *testing.T) {
	t.Parallel()

	got := parseTable("a,b\n1\n2,3\n4,5,6\n", ',', '"')

	if len(got.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(got.Rows))
	}
	if !got.Rows[0].Malformed {
		t.Fatal("short row not flagged malformed")
	}
	if got.Rows[1].Malformed {
		t.Fatal("well-formed row flagged malformed")
	}
	if !got.Rows[2].Malformed {
		t.Fatal("long row not flagged malformed")
	}
	if !reflect.DeepEqual(got.Rows[2].Cells, []string{"4", "5", "6"}) {
		t.Fatalf("long row cells = %q, want original content", got.Rows[2].Cells)
	}
}

// TestParseTable_BlankLinesSkipped verifies empty lines between records do
// not become malformed rows.
func TestParseTable_BlankLinesSkipped(t *testing.T) {
	t.Parallel()

	got := parseTable("a,b\n1,2\n\n\n3,4\n", ',', '"')
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(got.Rows))
	}
}

// TestParseTable_NoTrailingNewline verifies the final record is flushed
// without a trailing newline.
func TestParseTable_NoTrailingNewline(t *testing.T) {
	t.Parallel()

	got := parseTable("a,b\n1,2", ',', '"')
	if len(got.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(got.Rows))
	}
}

// TestParseTable_CellsVerbatim verifies data cells keep their original
// surrounding whitespace (only headers are trimmed).
func TestParseTable_CellsVerbatim(t *testing.T) {
	t.Parallel()

	got := parseTable(" a , b \n x , y\n", ',', '"')
	if !reflect.DeepEqual(got.Header, []string{"a", "b"}) {
		t.Fatalf("header = %q, want trimmed names", got.Header)
	}
	if !reflect.DeepEqual(got.Rows[0].Cells, []string{" x ", " y"}) {
		t.Fatalf("cells = %q, want verbatim whitespace", got.Rows[0].Cells)
	}
}

// TestParseTable_Empty verifies empty input yields an empty table.
func TestParseTable_Empty(t *testing.T) {
	t.Parallel()

	got := parseTable("", ',', '"')
	if len(got.Header) != 0 || len(got.Rows) != 0 {
		t.Fatalf("expected empty table, got header=%v rows=%d", got.Header, len(got.Rows))
	}
}
