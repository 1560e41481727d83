package engine

import "strings"

// parseTable splits decoded text into a header row plus data rows using the
// configured dialect (field delimiter + quote character).
//
// Quoting convention:
//   - A field is quoted when it begins with the quote character.
//   - Inside a quoted field, a doubled quote is one literal quote.
//   - Delimiters and line breaks inside a quoted field are literal content.
//   - Text after a closing quote is kept literally (lazy, matching how the
//     stdlib reader behaves with LazyQuotes).
//
// Rows whose cell count differs from the header are flagged Malformed, not
// dropped: they still count and still show up in the preview. Blank lines
// between records are skipped. Cell content is preserved verbatim; only
// header names are trimmed.
func parseTable(text string, delim, quote rune) ParsedTable {
	records := splitRecords(text, delim, quote)
	if len(records) == 0 {
		return ParsedTable{}
	}

	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, Row{
			Cells:     rec,
			Malformed: len(rec) != len(header),
		})
	}
	return ParsedTable{Header: header, Rows: rows}
}

// splitRecords is the dialect scanner. It exists because encoding/csv pins
// the quote character to '"'; the behavior for the default dialect matches
// the stdlib reader with FieldsPerRecord=-1, except that a bare CR outside
// quotes is a record terminator here rather than field content.
func splitRecords(text string, delim, quote rune) [][]string {
	if delim == 0 {
		delim = ','
	}
	if quote == 0 {
		quote = '"'
	}

	var (
		records [][]string
		fields  []string
		field   strings.Builder
		sawAny  bool // current record has content or delimiters
		quoted  bool // current field started with a quote
		inQuote bool // scanner is inside the quoted section
	)

	endField := func() {
		fields = append(fields, field.String())
		field.Reset()
		quoted = false
	}
	endRecord := func() {
		endField()
		// Consecutive newlines produce an empty single-field record; skip
		// those like the stdlib reader skips blank lines.
		if len(fields) == 1 && fields[0] == "" && !sawAny {
			fields = nil
			return
		}
		records = append(records, fields)
		fields = nil
		sawAny = false
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inQuote {
			if r == quote {
				if i+1 < len(runes) && runes[i+1] == quote {
					field.WriteRune(quote)
					i++
					continue
				}
				inQuote = false
				continue
			}
			field.WriteRune(r)
			continue
		}

		switch r {
		case quote:
			if field.Len() == 0 && !quoted {
				quoted = true
				inQuote = true
				sawAny = true
				continue
			}
			// Quote inside an unquoted field, or after a closing quote:
			// keep it literally.
			field.WriteRune(r)
		case delim:
			sawAny = true
			endField()
		case '\r':
			// CR, LF and CRLF all terminate the record. CRLF consumes
			// both runes so it does not also produce a blank line.
			if i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			endRecord()
		case '\n':
			endRecord()
		default:
			sawAny = true
			field.WriteRune(r)
		}
	}

	// Flush a final record with no trailing newline.
	if field.Len() > 0 || len(fields) > 0 || sawAny || inQuote {
		endRecord()
	}
	return records
}
