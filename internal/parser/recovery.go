package parser

import (
	"fmt"
	"strings"
)

// FaultKind classifies a parse or structure fault.
type FaultKind string

const (
	// Syntactic faults.
	FaultTrailingComma      FaultKind = "TrailingComma"
	FaultMissingDelimiter   FaultKind = "MissingDelimiter"
	FaultUnterminatedString FaultKind = "UnterminatedString"
	FaultPropertyName       FaultKind = "PropertyNameMissing"
	FaultExtraData          FaultKind = "ExtraData"
	FaultUnknownSyntax      FaultKind = "UnknownSyntax"

	// Structural faults.
	FaultInvalidRootType FaultKind = "InvalidRootType"
	FaultMissingField    FaultKind = "MissingField"
	FaultWrongType       FaultKind = "WrongType"
	FaultInvalidPathName FaultKind = "InvalidPathName"
	FaultInvalidMethod   FaultKind = "InvalidMethod"
)

// Strategy is the advisory recovery action for a fault. The pipeline picks
// whether to honor it based on strict mode.
type Strategy int

const (
	StrategyFailFast Strategy = iota
	StrategySkipSection
	StrategyUseDefault
	StrategyRetry
	StrategyPartialParse
)

// String names the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategySkipSection:
		return "skip-section"
	case StrategyUseDefault:
		return "use-default"
	case StrategyRetry:
		return "retry"
	case StrategyPartialParse:
		return "partial-parse"
	default:
		return "fail-fast"
	}
}

// ParseError is one recorded fault with its location and advice.
type ParseError struct {
	Kind       FaultKind `json:"kind"`
	Path       string    `json:"path,omitempty"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	Line       int       `json:"line,omitempty"`
	Column     int       `json:"column,omitempty"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ClassifySyntaxError maps a raw JSON decode error message to a fault kind.
func ClassifySyntaxError(err error) FaultKind {
	if err == nil {
		return FaultUnknownSyntax
	}
	msg := err.Error()
	closerAt := strings.Contains(msg, "'}'") || strings.Contains(msg, "']'")
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "looking for beginning of object key string"):
		// A ',' followed directly by a closer reads as a bad key position.
		if closerAt {
			return FaultTrailingComma
		}
		return FaultPropertyName
	case strings.Contains(msg, "looking for beginning of value"):
		if closerAt {
			return FaultTrailingComma
		}
		return FaultMissingDelimiter
	case strings.Contains(lower, "unexpected end of json") ||
		strings.Contains(lower, "unexpected eof"):
		return FaultUnterminatedString
	case strings.Contains(msg, "object key is not a string"):
		return FaultPropertyName
	case strings.Contains(msg, "after top-level value") ||
		strings.Contains(lower, "extra data"):
		return FaultExtraData
	case strings.Contains(msg, "after object key") ||
		strings.Contains(msg, "after array element"):
		return FaultMissingDelimiter
	default:
		return FaultUnknownSyntax
	}
}

// StrategyFor returns the advisory strategy for a fault. In strict mode
// every fault fails fast.
func StrategyFor(kind FaultKind, strict bool) Strategy {
	if strict {
		return StrategyFailFast
	}
	switch kind {
	case FaultTrailingComma, FaultUnterminatedString:
		return StrategyRetry
	case FaultExtraData:
		return StrategyPartialParse
	case FaultMissingField:
		return StrategyUseDefault
	case FaultInvalidPathName, FaultInvalidMethod, FaultWrongType:
		return StrategySkipSection
	case FaultInvalidRootType, FaultPropertyName, FaultMissingDelimiter:
		return StrategyFailFast
	default:
		return StrategyFailFast
	}
}

// RemoveTrailingCommas strips commas immediately preceding a closing brace
// or bracket, skipping string literals. One automatic repair attempt.
func RemoveTrailingCommas(data []byte) []byte {
	var out []byte
	inString := false
	escaped := false
	start := 0
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			continue
		}
		if c == ',' {
			// Look ahead past whitespace for a closer.
			j := i + 1
			for j < len(data) && (data[j] == ' ' || data[j] == '\t' || data[j] == '\n' || data[j] == '\r') {
				j++
			}
			if j < len(data) && (data[j] == '}' || data[j] == ']') {
				out = append(out, data[start:i]...)
				start = i + 1
			}
		}
	}
	if out == nil {
		return data
	}
	return append(out, data[start:]...)
}

// EscapeBareQuotes attempts to escape unescaped double quotes inside string
// values on a single line. Heuristic repair for hand-edited files: a quote
// is considered interior when the next non-space character is neither a
// JSON structural character nor end of line.
func EscapeBareQuotes(line []byte) []byte {
	var out []byte
	inString := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c != '"' {
			if c == '\\' && i+1 < len(line) {
				out = append(out, c, line[i+1])
				i++
				continue
			}
			out = append(out, c)
			continue
		}
		if !inString {
			inString = true
			out = append(out, c)
			continue
		}
		// Closing quote or interior quote?
		j := i + 1
		for j < len(line) && (line[j] == ' ' || line[j] == '\t') {
			j++
		}
		if j >= len(line) || line[j] == ':' || line[j] == ',' || line[j] == '}' || line[j] == ']' {
			inString = false
			out = append(out, c)
			continue
		}
		out = append(out, '\\', c)
	}
	return out
}

// SuggestionFor returns a human-actionable hint for a fault kind.
func SuggestionFor(kind FaultKind) string {
	switch kind {
	case FaultTrailingComma:
		return "remove the trailing comma before the closing brace or bracket"
	case FaultUnterminatedString:
		return "check for a missing closing quote"
	case FaultPropertyName:
		return "object keys must be double-quoted strings"
	case FaultExtraData:
		return "remove content after the closing brace of the document"
	case FaultInvalidRootType:
		return "the document root must be a JSON object"
	case FaultMissingField:
		return "add the missing required field"
	case FaultInvalidPathName:
		return "path keys must start with '/'"
	case FaultInvalidMethod:
		return "use one of: get, post, put, delete, patch, head, options, trace"
	default:
		return ""
	}
}

// ErrorCollector accumulates recoverable faults up to a bound.
type ErrorCollector struct {
	MaxErrors int
	Strict    bool

	errors   []ParseError
	warnings []ParseError
}

// NewErrorCollector creates a collector with the given bound.
func NewErrorCollector(maxErrors int, strict bool) *ErrorCollector {
	if maxErrors <= 0 {
		maxErrors = 25
	}
	return &ErrorCollector{MaxErrors: maxErrors, Strict: strict}
}

// Add records a fault. It returns false when parsing must abort: strict
// mode aborts on the first error, otherwise on exceeding MaxErrors.
func (c *ErrorCollector) Add(e ParseError) bool {
	if e.Suggestion == "" {
		e.Suggestion = SuggestionFor(e.Kind)
	}
	c.errors = append(c.errors, e)
	if c.Strict {
		return false
	}
	return len(c.errors) <= c.MaxErrors
}

// Warn records a non-fatal observation.
func (c *ErrorCollector) Warn(e ParseError) {
	if e.Suggestion == "" {
		e.Suggestion = SuggestionFor(e.Kind)
	}
	c.warnings = append(c.warnings, e)
}

// Errors returns recorded errors.
func (c *ErrorCollector) Errors() []ParseError { return c.errors }

// Warnings returns recorded warnings.
func (c *ErrorCollector) Warnings() []ParseError { return c.warnings }

// Exhausted reports whether the error budget is spent.
func (c *ErrorCollector) Exhausted() bool {
	if c.Strict {
		return len(c.errors) > 0
	}
	return len(c.errors) > c.MaxErrors
}
