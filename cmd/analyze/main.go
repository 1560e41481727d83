// Command analyze runs the file analysis engine over a local CSV file and
// prints the resulting report as JSON.
//
// It is the offline counterpart of the HTTP API: the same validation,
// inference, and statistics run over a file on disk, without a database or
// a server. Useful for inspecting a file before uploading it, and for
// scripting.
//
// Output modes:
//
//   - Accepted files: the full analysis report is printed to stdout.
//   - Rejected files: the validation outcome (status, rule, detail) is
//     printed to stdout and the command exits with status 1, so scripts can
//     branch on the exit code and still parse the reason.
//
// The default limits match the HTTP API defaults (10MB, one million rows,
// one hundred columns). Dialect flags cover files exported with
// nonstandard separators, e.g. semicolon-delimited European spreadsheets.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"datapeek/internal/engine"
)

func main() {
	var (
		// flagFile is the path of the CSV file to analyze.
		flagFile = flag.String("file", "", "Path of the CSV file to analyze")

		// flagEncoding is the declared character encoding of the file.
		// Decoding is strict: bytes invalid under this encoding reject the
		// file rather than being replaced.
		flagEncoding = flag.String("encoding", "utf-8", "Character encoding (utf-8, latin-1, windows-1252, utf-16, ...)")

		// flagDelimiter and flagQuote define the CSV dialect. Each must be a
		// single character.
		flagDelimiter = flag.String("delimiter", ",", "Field delimiter (single character)")
		flagQuote     = flag.String("quote", `"`, "Quote character (single character)")

		// Structural limits. Zero disables the corresponding cap.
		flagMaxBytes   = flag.Int64("max-bytes", engine.DefaultLimits().MaxBytes, "Maximum file size in bytes (0 disables)")
		flagMaxRows    = flag.Int("max-rows", engine.DefaultLimits().MaxRows, "Maximum number of data rows (0 disables)")
		flagMaxColumns = flag.Int("max-columns", engine.DefaultLimits().MaxColumns, "Maximum number of columns (0 disables)")
		flagPreview    = flag.Int("preview", engine.DefaultLimits().PreviewSize, "Number of preview rows in the report")

		// flagPretty controls JSON indentation.
		flagPretty = flag.Bool("pretty", true, "Pretty-print JSON output")
	)
	flag.Parse()

	if *flagFile == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		flag.Usage()
		os.Exit(2)
	}

	delim, err := singleRune(*flagDelimiter)
	if err != nil {
		log.Fatalf("-delimiter: %v", err)
	}
	quote, err := singleRune(*flagQuote)
	if err != nil {
		log.Fatalf("-quote: %v", err)
	}

	data, err := os.ReadFile(*flagFile)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	limits := engine.Limits{
		MaxBytes:    *flagMaxBytes,
		MaxRows:     *flagMaxRows,
		MaxColumns:  *flagMaxColumns,
		PreviewSize: *flagPreview,
	}
	cfg := engine.DefaultInference()
	cfg.Delimiter = delim
	cfg.QuoteChar = quote

	report, err := engine.Analyze(data, *flagEncoding, limits, cfg)
	if err != nil {
		var rejected *engine.RejectedError
		if errors.As(err, &rejected) {
			printJSON(engine.ValidationOutcome{
				Status: engine.StatusRejected,
				Rule:   rejected.Rule,
				Detail: rejected.Detail,
			}, *flagPretty)
			os.Exit(1)
		}
		log.Fatalf("analyze: %v", err)
	}

	printJSON(report, *flagPretty)
}

func singleRune(s string) (rune, error) {
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, fmt.Errorf("want exactly one character, got %q", s)
	}
	return runes[0], nil
}

func printJSON(v any, pretty bool) {
	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode output: %v", err)
	}
}
