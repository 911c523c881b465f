package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tagmill/tagmill/internal/domain/build"
)

// placeholderRe matches a destination template placeholder, a reference
// to a named capture group in the form \g<name>.
var placeholderRe = regexp.MustCompile(`\\g<([A-Za-z_][A-Za-z0-9_]*)>`)

// Resolution is the outcome of resolving a build against a catalog.
type Resolution struct {
	// RuleID is the ID of the rule that matched.
	RuleID string
	// Destination is the rendered destination tag.
	Destination string
	// Captures are the values that were substituted into the template.
	Captures CaptureSet
}

// Resolve walks the catalog in declaration order and returns the first
// matching rule's rendered destination. Resolution is pure and
// stateless: the same catalog and build always yield the same result,
// and concurrent calls against one catalog need no coordination.
//
// ErrNoMatch is returned when the catalog is exhausted; this can only
// happen without a catch-all fallback rule. A matched rule whose
// template references an unbound capture yields an
// *UnresolvedPlaceholderError.
func Resolve(c Catalog, b build.Descriptor) (Resolution, error) {
	for _, r := range c.Rules() {
		matched, captures := Evaluate(r, b)
		if !matched {
			continue
		}
		dest, err := RenderTemplate(r.DestinationTemplate, captures, r.ID)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{RuleID: r.ID, Destination: dest, Captures: captures}, nil
	}
	return Resolution{}, ErrNoMatch
}

// RenderTemplate substitutes every \g<name> placeholder in the template
// with the matched text from captures. A placeholder whose name was
// never bound is an *UnresolvedPlaceholderError, never a silent blank.
func RenderTemplate(template string, captures CaptureSet, ruleID string) (string, error) {
	locs := placeholderRe.FindAllStringSubmatchIndex(template, -1)
	if locs == nil {
		return template, nil
	}

	var out strings.Builder
	last := 0
	for _, loc := range locs {
		name := template[loc[2]:loc[3]]
		value, ok := captures[name]
		if !ok {
			return "", &UnresolvedPlaceholderError{RuleID: ruleID, Placeholder: name}
		}
		out.WriteString(template[last:loc[0]])
		out.WriteString(value)
		last = loc[1]
	}
	out.WriteString(template[last:])
	return out.String(), nil
}

// ValidateTemplate rejects templates with malformed placeholder syntax,
// i.e. a \g token not followed by a well-formed <name>. Whether the
// referenced names are actually bound is a per-evaluation concern and is
// checked during rendering instead.
func ValidateTemplate(template string) error {
	valid := make(map[int]bool)
	for _, loc := range placeholderRe.FindAllStringIndex(template, -1) {
		valid[loc[0]] = true
	}
	for i := 0; ; {
		j := strings.Index(template[i:], `\g`)
		if j < 0 {
			return nil
		}
		i += j
		if !valid[i] {
			return fmt.Errorf("malformed placeholder at offset %d: expected \\g<name>", i)
		}
		i += 2
	}
}
