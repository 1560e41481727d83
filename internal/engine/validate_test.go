package engine

import (
	"strings"
	"testing"
)

// TestCheckSize verifies the byte cap and its observed-vs-limit detail.
func TestCheckSize(t *testing.T) {
	t.Parallel()

	limits := Limits{MaxBytes: 100}

	if rej := checkSize(100, limits); rej != nil {
		t.Fatalf("size at limit rejected: %v", rej)
	}

	rej := checkSize(101, limits)
	if rej == nil {
		t.Fatal("size over limit not rejected")
	}
	if rej.Rule != RuleFileTooLarge {
		t.Fatalf("rule = %q, want %q", rej.Rule, RuleFileTooLarge)
	}
	if !strings.Contains(rej.Detail, "101") || !strings.Contains(rej.Detail, "100") {
		t.Fatalf("detail %q missing observed/limit values", rej.Detail)
	}
}

// TestCheckSize_Unlimited verifies a zero cap disables the check.
func TestCheckSize_Unlimited(t *testing.T) {
	t.Parallel()

	if rej := checkSize(1 << 40, Limits{}); rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
}

// TestValidateTable verifies each structural rule fires with its rule name
// and that checks short-circuit in the documented order.
func TestValidateTable(t *testing.T) {
	t.Parallel()

	limits := Limits{MaxRows: 3, MaxColumns: 2}

	tests := []struct {
		name     string
		table    ParsedTable
		wantRule string
	}{
		{
			name:     "no header",
			table:    ParsedTable{},
			wantRule: RuleEmptyFile,
		},
		{
			name: "too many rows",
			table: tableOf([]string{"a"},
				[]string{"1"}, []string{"2"}, []string{"3"}, []string{"4"}),
			wantRule: RuleTooManyRows,
		},
		{
			name:     "too many columns",
			table:    tableOf([]string{"a", "b", "c"}),
			wantRule: RuleTooManyColumns,
		},
		{
			name:     "duplicate column",
			table:    tableOf([]string{"a", "a"}),
			wantRule: RuleDuplicateColumn,
		},
		{
			name:     "accepted",
			table:    tableOf([]string{"a", "b"}, []string{"1", "2"}),
			wantRule: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rej := validateTable(tt.table, limits)
			if tt.wantRule == "" {
				if rej != nil {
					t.Fatalf("unexpected rejection: %v", rej)
				}
				return
			}
			if rej == nil {
				t.Fatalf("expected %s rejection", tt.wantRule)
			}
			if rej.Rule != tt.wantRule {
				t.Fatalf("rule = %q, want %q", rej.Rule, tt.wantRule)
			}
		})
	}
}

// TestValidateTable_DuplicateIsCaseSensitive verifies header comparison is
// an exact match: "Name" and "name" are distinct columns.
func TestValidateTable_DuplicateIsCaseSensitive(t *testing.T) {
	t.Parallel()

	table := tableOf([]string{"Name", "name"})
	if rej := validateTable(table, Limits{}); rej != nil {
		t.Fatalf("case-differing headers rejected: %v", rej)
	}
}

// TestValidateTable_RowCapBeforeColumnCap verifies the documented check
// order when several rules would fire.
func TestValidateTable_RowCapBeforeColumnCap(t *testing.T) {
	t.Parallel()

	limits := Limits{MaxRows: 1, MaxColumns: 1}
	table := tableOf([]string{"a", "b"},
		[]string{"1", "2"}, []string{"3", "4"})

	rej := validateTable(table, limits)
	if rej == nil || rej.Rule != RuleTooManyRows {
		t.Fatalf("rejection = %v, want %s first", rej, RuleTooManyRows)
	}
}
