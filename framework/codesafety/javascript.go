package codesafety

import (
	"regexp"
	"strings"
)

var (
	jsIdentifierPatterns []textPattern
	jsEvalCall           = regexp.MustCompile(`(?i)\beval\s*\(`)
	jsFunctionCtor       = regexp.MustCompile(`(?i)\bnew\s+Function\s*\(`)
	jsFSAccess           = regexp.MustCompile(`(?i)\bfs\.\w+`)
	jsFSMutation         *regexp.Regexp
)

func init() {
	for _, ident := range jsMutationIdentifiers {
		jsIdentifierPatterns = append(jsIdentifierPatterns, textPattern{
			op: ident,
			re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(ident) + `(?:Sync)?\b`),
		})
	}
	quoted := make([]string, len(jsFSMutators))
	for i, m := range jsFSMutators {
		quoted[i] = regexp.QuoteMeta(m)
	}
	jsFSMutation = regexp.MustCompile(`(?i)\bfs\.(?:` + strings.Join(quoted, "|") + `)`)
}

// analyzeJavaScript is a heuristic: without a syntax tree, identifiers that
// indicate mutation are matched on word boundaries. Reads through fs are not
// flagged; only the write/delete subset of fs methods is.
func analyzeJavaScript(code string) []string {
	var ops opSet
	for _, p := range jsIdentifierPatterns {
		if p.re.MatchString(code) {
			ops.add(p.op)
		}
	}
	if jsEvalCall.MatchString(code) {
		ops.add("eval")
	}
	if jsFunctionCtor.MatchString(code) {
		ops.add("Function constructor")
	}
	if jsFSAccess.MatchString(code) && jsFSMutation.MatchString(code) {
		ops.add("fs operation")
	}
	return ops.ops
}
