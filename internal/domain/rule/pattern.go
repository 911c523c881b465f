package rule

import (
	"fmt"
	"regexp"
)

// CaptureSet maps a named capture group to the text it matched during
// one rule evaluation. It is evaluation-local and discarded after the
// destination template has been rendered.
type CaptureSet map[string]string

// merge copies every capture from other into s. Later checks overwrite
// earlier ones on a name collision, so a catalog reusing a group name
// across patterns gets the value from the last check that matched.
func (s CaptureSet) merge(other CaptureSet) {
	for name, value := range other {
		s[name] = value
	}
}

// Pattern is a compiled rule predicate expression. It wraps the regexp
// engine so the evaluator and resolver stay agnostic to it.
type Pattern struct {
	expr string
	re   *regexp.Regexp
}

// CompilePattern compiles a predicate expression. Match uses search
// semantics: the expression may match anywhere in the text unless it is
// anchored explicitly.
func CompilePattern(expr string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	return &Pattern{expr: expr, re: re}, nil
}

// MustCompilePattern is CompilePattern for patterns known at compile
// time, such as test fixtures. It panics on error.
func MustCompilePattern(expr string) *Pattern {
	p, err := CompilePattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether text matches the pattern and, on match, returns
// the values bound by the pattern's named capture groups. Unnamed groups
// are ignored, and a named group that did not take part in the match
// stays unbound rather than binding an empty string, so a template
// referencing it fails loudly instead of rendering a blank. The
// returned set is non-nil whenever ok is true.
func (p *Pattern) Match(text string) (CaptureSet, bool) {
	idx := p.re.FindStringSubmatchIndex(text)
	if idx == nil {
		return nil, false
	}
	captures := make(CaptureSet)
	for i, name := range p.re.SubexpNames() {
		if name == "" || 2*i+1 >= len(idx) {
			continue
		}
		start, end := idx[2*i], idx[2*i+1]
		if start < 0 {
			continue
		}
		captures[name] = text[start:end]
	}
	return captures, true
}

// String returns the original expression.
func (p *Pattern) String() string {
	return p.expr
}
