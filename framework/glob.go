package framework

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Glob is a compiled file pattern. Patterns without a slash match the base
// name only; patterns with a slash match the whole slash separated path, and
// "**" spans directories.
type Glob struct {
	pattern string
	re      *regexp.Regexp
}

// CompileGlob validates pattern.
func CompileGlob(pattern string) (*Glob, error) {
	pattern = filepath.ToSlash(pattern)
	g := &Glob{pattern: pattern}
	if !strings.Contains(pattern, "**") {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, err
		}
		return g, nil
	}
	re, err := regexp.Compile(globRegex(pattern))
	if err != nil {
		return nil, err
	}
	g.re = re
	return g, nil
}

// Match reports whether rel, a path relative to the search root, matches.
func (g *Glob) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	if g.re != nil {
		return g.re.MatchString(rel)
	}
	if !strings.Contains(g.pattern, "/") {
		rel = path.Base(rel)
	}
	ok, _ := path.Match(g.pattern, rel)
	return ok
}

// MatchGlob is the one-shot form of CompileGlob(pattern).Match(value).
func MatchGlob(pattern, value string) bool {
	g, err := CompileGlob(pattern)
	if err != nil || pattern == "" {
		return false
	}
	return g.Match(value)
}

func globRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch ch {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				i++
				// "**/" also matches zero directories.
				if i+1 < len(runes) && runes[i+1] == '/' {
					i++
					b.WriteString("(?:.*/)?")
				} else {
					b.WriteString(".*")
				}
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	b.WriteString("$")
	return b.String()
}
