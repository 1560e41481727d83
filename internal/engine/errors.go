package engine

import "fmt"

// Validation rule names carried by RejectedError. These are part of the
// engine's contract: callers branch on the rule, humans read the detail.
const (
	RuleFileTooLarge    = "FileTooLarge"
	RuleEmptyFile       = "EmptyFile"
	RuleTooManyRows     = "TooManyRows"
	RuleTooManyColumns  = "TooManyColumns"
	RuleDuplicateColumn = "DuplicateColumn"
	RuleNoValidRows     = "NoValidRows"
)

// EncodingError reports undecodable input: an unsupported encoding name or
// byte sequences that are invalid under the requested encoding. Decoding is
// strict; the engine never substitutes replacement characters, so this
// error is fatal for the request.
type EncodingError struct {
	Encoding string
	Detail   string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %q: %s", e.Encoding, e.Detail)
}

// RejectedError is a deterministic structural rejection. Re-running with
// the same input and limits always yields the same rejection; the caller
// may retry after adjusting the file or the limits.
type RejectedError struct {
	Rule   string
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Detail)
}

func rejectf(rule, format string, args ...any) *RejectedError {
	return &RejectedError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}
