// Package rule implements the tag resolution engine: an ordered catalog
// of matching rules, a predicate evaluator producing named captures, and
// a resolver that renders the first matching rule's destination template.
package rule

import (
	"github.com/tagmill/tagmill/internal/domain/build"
)

// TypeModule is the only rule discriminator in this domain. The field
// exists so catalogs stay forward compatible with other artifact kinds.
const TypeModule = "module"

// dependencyCategories is the fixed evaluation order for dependency
// conditions. The order only affects which value wins a capture-name
// collision; the checks themselves are commutative.
var dependencyCategories = []string{"buildrequires", "requires", "runtime"}

// DependencyConditions holds per-role patterns for each of the three
// dependency relationships. A nil map means the category is not part of
// the rule's predicate.
type DependencyConditions struct {
	BuildRequires map[string]*Pattern
	Requires      map[string]*Pattern
	Runtime       map[string]*Pattern
}

func (c DependencyConditions) category(name string) map[string]*Pattern {
	switch name {
	case "buildrequires":
		return c.BuildRequires
	case "requires":
		return c.Requires
	case "runtime":
		return c.Runtime
	default:
		return nil
	}
}

// Empty reports whether no dependency condition is defined.
func (c DependencyConditions) Empty() bool {
	return len(c.BuildRequires) == 0 && len(c.Requires) == 0 && len(c.Runtime) == 0
}

// Rule is one entry of a tagging rule catalog. Rules are built once by
// the catalog loader and never mutated afterwards, so a single catalog
// can serve concurrent evaluations without locking.
//
// Every predicate field is optional. An absent field is a don't-care; a
// rule with no predicate fields at all matches every build and serves as
// the catalog's fallback.
type Rule struct {
	// ID identifies the rule in logs and history records. Not matched.
	ID string
	// Description is free-form catalog documentation. Not matched.
	Description string

	// NamePatterns match the build name. Multiple patterns are ORed;
	// an empty list matches any name.
	NamePatterns []*Pattern
	// StreamPattern and VersionPattern match the build stream/version.
	StreamPattern  *Pattern
	VersionPattern *Pattern

	// Scratch and Development, when set, must equal the build's flags.
	Scratch     *bool
	Development *bool

	// State, when set, must equal the build's completion state. A build
	// without a state never matches a rule that requires one.
	State *build.State

	// Dependencies conditions a role's observed values per category.
	Dependencies DependencyConditions

	// DestinationTemplate is the destination tag, with optional
	// \g<name> references to captures bound by the patterns above.
	DestinationTemplate string
}

// HasPredicates reports whether the rule constrains anything at all.
// A rule without predicates is a catch-all fallback.
func (r Rule) HasPredicates() bool {
	return len(r.NamePatterns) > 0 ||
		r.StreamPattern != nil ||
		r.VersionPattern != nil ||
		r.Scratch != nil ||
		r.Development != nil ||
		r.State != nil ||
		!r.Dependencies.Empty()
}

// Catalog is an ordered, immutable sequence of rules. Order is
// significant: resolution walks the catalog top to bottom and the first
// matching rule wins.
type Catalog struct {
	rules []Rule
}

// NewCatalog builds a catalog from rules in declaration order. The
// slice is copied so later mutation of the argument cannot reach the
// catalog.
func NewCatalog(rules []Rule) Catalog {
	owned := make([]Rule, len(rules))
	copy(owned, rules)
	return Catalog{rules: owned}
}

// Rules returns the catalog's rules in declaration order. Callers must
// treat the slice as read-only.
func (c Catalog) Rules() []Rule {
	return c.rules
}

// Len returns the number of rules.
func (c Catalog) Len() int {
	return len(c.rules)
}

// HasFallback reports whether the final rule has no predicates. A
// well-formed catalog ends with such a rule so every build resolves to
// some destination.
func (c Catalog) HasFallback() bool {
	if len(c.rules) == 0 {
		return false
	}
	return !c.rules[len(c.rules)-1].HasPredicates()
}
