// Package codesafety decides whether a code snippet may mutate the file system
// or spawn processes before it is handed to an interpreter.
//
// Python snippets are parsed into a syntax tree and calls are resolved through
// the snippet's own import aliases, so only operations named in a module's
// dangerous set are rejected. JavaScript snippets are checked with identifier
// heuristics.
package codesafety

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnsupportedLanguage is returned for languages the analyzer cannot inspect.
// It signals invalid input, not unsafe code.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language identifies a supported scripting language.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
)

// ParseLanguage maps user supplied names onto a Language.
func ParseLanguage(name string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "python", "python3", "py":
		return Python, nil
	case "javascript", "js", "node", "nodejs":
		return JavaScript, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, name)
}

// Verdict is the outcome of one analysis.
type Verdict struct {
	Safe               bool     `json:"safe"`
	Reason             string   `json:"reason,omitempty"`
	DetectedOperations []string `json:"detected_operations"`
}

// Analyzer classifies snippets. It holds no per-analysis state and is safe
// for concurrent use.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer builds an analyzer. A nil logger falls back to slog.Default.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger}
}

// Analyze inspects code written in lang. Internal failures are reported as an
// unsafe verdict rather than an error.
func (a *Analyzer) Analyze(code string, lang Language) (verdict Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("code analysis panicked", "language", lang, "panic", r)
			verdict = Verdict{
				Safe:               false,
				Reason:             fmt.Sprintf("Code analysis failed: %v", r),
				DetectedOperations: []string{},
			}
			err = nil
		}
	}()

	var ops []string
	switch lang {
	case Python:
		ops = a.analyzePython(code)
	case JavaScript:
		ops = analyzeJavaScript(code)
	default:
		return Verdict{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	if len(ops) == 0 {
		return Verdict{Safe: true, DetectedOperations: []string{}}, nil
	}
	a.logger.Info("unsafe code rejected", "language", lang, "operations", ops)
	return Verdict{
		Safe:               false,
		Reason:             "Code contains modification operations: " + strings.Join(ops, ", "),
		DetectedOperations: ops,
	}, nil
}

// IsCodeSafe is the boolean form of Analyze keyed by a language name.
func (a *Analyzer) IsCodeSafe(code, language string) (bool, string) {
	lang, err := ParseLanguage(language)
	if err != nil {
		return false, "Unsupported language: " + language
	}
	verdict, _ := a.Analyze(code, lang)
	return verdict.Safe, verdict.Reason
}

// opSet collects detected operations once each, in discovery order.
type opSet struct {
	seen map[string]bool
	ops  []string
}

func (s *opSet) add(op string) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[op] {
		return
	}
	s.seen[op] = true
	s.ops = append(s.ops, op)
}
