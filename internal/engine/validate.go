package engine

import "strings"

// checkSize enforces the byte-size cap. It runs on the raw payload before
// any decoding cost is paid.
func checkSize(size int64, limits Limits) *RejectedError {
	if limits.MaxBytes > 0 && size > limits.MaxBytes {
		return rejectf(RuleFileTooLarge, "file size %d bytes exceeds limit of %d bytes", size, limits.MaxBytes)
	}
	return nil
}

// validateTable runs the structural checks in their fixed order,
// short-circuiting on the first failure: empty file, row cap, column cap,
// duplicate header names. It looks only at the header and at counts, never
// at cell values.
func validateTable(t ParsedTable, limits Limits) *RejectedError {
	if len(t.Header) == 0 {
		return rejectf(RuleEmptyFile, "file contains no header row")
	}

	if limits.MaxRows > 0 && len(t.Rows) > limits.MaxRows {
		return rejectf(RuleTooManyRows, "row count %d exceeds limit of %d", len(t.Rows), limits.MaxRows)
	}

	if limits.MaxColumns > 0 && len(t.Header) > limits.MaxColumns {
		return rejectf(RuleTooManyColumns, "column count %d exceeds limit of %d", len(t.Header), limits.MaxColumns)
	}

	seen := make(map[string]struct{}, len(t.Header))
	for _, h := range t.Header {
		if _, dup := seen[h]; dup {
			return rejectf(RuleDuplicateColumn, "duplicate column name %q", h)
		}
		seen[h] = struct{}{}
	}

	return nil
}

// isBlank reports whether decoded text holds nothing analyzable.
func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
