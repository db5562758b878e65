package store

import (
	"regexp"
	"strings"
)

// Pattern selects assets by name in FindAssets.
//
// A non-nil Regexp takes precedence; otherwise Literal is matched as a
// plain substring. The zero Pattern matches every asset.
type Pattern struct {
	Literal string
	Regexp  *regexp.Regexp
}

// LiteralPattern returns a substring pattern.
func LiteralPattern(s string) Pattern {
	return Pattern{Literal: s}
}

// RegexpPattern returns a regular expression pattern.
func RegexpPattern(re *regexp.Regexp) Pattern {
	return Pattern{Regexp: re}
}

// Match reports whether an asset called name is selected by the pattern.
func (p Pattern) Match(name string) bool {
	if p.Regexp != nil {
		return p.Regexp.MatchString(name)
	}
	return strings.Contains(name, p.Literal)
}

// String renders the pattern for logs.
func (p Pattern) String() string {
	if p.Regexp != nil {
		return "/" + p.Regexp.String() + "/"
	}
	return "\"" + p.Literal + "\""
}
