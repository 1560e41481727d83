package engine

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const bom = "\uFEFF"

// decodeText decodes raw bytes to a string under the named encoding.
//
// Decoding is strict on purpose: a substitution character silently folded
// into the text would flow into distinct counts and min/max, so any input
// that cannot be represented fails with *EncodingError instead. An empty
// hint means UTF-8. A UTF-8 BOM is stripped.
func decodeText(data []byte, hint string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(hint))

	switch name {
	case "", "utf-8", "utf8":
		if !utf8.Valid(data) {
			return "", &EncodingError{Encoding: displayEncoding(name), Detail: "invalid UTF-8 byte sequence"}
		}
		s := string(data)
		return strings.TrimPrefix(s, bom), nil
	}

	enc, ok := lookupEncoding(name)
	if !ok {
		return "", &EncodingError{Encoding: hint, Detail: "unsupported encoding"}
	}

	out, err := enc.NewDecoder().String(string(data))
	if err != nil {
		return "", &EncodingError{Encoding: name, Detail: err.Error()}
	}
	// x/text decoders report most errors in-band as U+FFFD rather than
	// returning one. Strict mode treats any replacement rune as failure.
	if strings.ContainsRune(out, utf8.RuneError) {
		return "", &EncodingError{Encoding: name, Detail: "input contains bytes that are invalid in this encoding"}
	}
	return strings.TrimPrefix(out, bom), nil
}

// lookupEncoding resolves the supported encoding names. The set is closed:
// unknown names are an EncodingError, not a silent UTF-8 fallback.
func lookupEncoding(name string) (encoding.Encoding, bool) {
	switch name {
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), true
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), true
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), true
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1, true
	case "windows-1250", "cp1250":
		return charmap.Windows1250, true
	case "windows-1252", "cp1252":
		return charmap.Windows1252, true
	default:
		return nil, false
	}
}

func displayEncoding(name string) string {
	if name == "" {
		return "utf-8"
	}
	return name
}
