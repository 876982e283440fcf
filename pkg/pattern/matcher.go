// Package pattern decides whether a hash's text form has the shape a user is
// searching for.
//
// Patterns use Go regular expression syntax (RE2). A Matcher is compiled once,
// before any hashing starts, and is immutable afterwards so every worker can
// share it without locking.
package pattern

import (
	"fmt"
	"regexp"
)

// PatternError reports a pattern string that failed to compile.
type PatternError struct {
	Pattern string
	Index   int
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("pattern %d %q: %v", e.Index, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Pattern is one compiled matching rule.
type Pattern struct {
	index int
	re    *regexp.Regexp
}

// Index returns the position of the pattern in the configured list.
func (p *Pattern) Index() int { return p.index }

// String returns the source text of the pattern.
func (p *Pattern) String() string { return p.re.String() }

// Matcher tests hash text against a fixed set of patterns.
type Matcher struct {
	patterns []*Pattern
}

// Compile builds a Matcher from raw pattern strings. The first invalid
// string aborts compilation with a *PatternError. An empty list yields a
// Matcher that matches nothing.
func Compile(sources []string) (*Matcher, error) {
	m := &Matcher{patterns: make([]*Pattern, 0, len(sources))}
	for i, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, &PatternError{Pattern: src, Index: i, Err: err}
		}
		m.patterns = append(m.patterns, &Pattern{index: i, re: re})
	}
	return m, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level fixtures.
func MustCompile(sources ...string) *Matcher {
	m, err := Compile(sources)
	if err != nil {
		panic(err)
	}
	return m
}

// Match returns the first pattern, in configuration order, that matches text.
func (m *Matcher) Match(text string) (*Pattern, bool) {
	for _, p := range m.patterns {
		if p.re.MatchString(text) {
			return p, true
		}
	}
	return nil, false
}

// Len returns the number of patterns.
func (m *Matcher) Len() int { return len(m.patterns) }

// Patterns returns the source text of every pattern.
func (m *Matcher) Patterns() []string {
	out := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.String()
	}
	return out
}
