package rule

import (
	"sort"

	"github.com/tagmill/tagmill/internal/domain/build"
)

// Evaluate decides whether a rule matches a build. All predicate fields
// present on the rule are ANDed; evaluation short-circuits on the first
// failed check. On match, the returned CaptureSet holds every named
// capture bound by the matching patterns, merged in check order (name,
// stream, version, then dependency conditions). On a capture-name
// collision the later check wins; catalogs should avoid reusing group
// names across patterns.
func Evaluate(r Rule, b build.Descriptor) (bool, CaptureSet) {
	captures := make(CaptureSet)

	if !matchName(r, b.Name, captures) {
		return false, nil
	}
	if !matchOptional(r.StreamPattern, b.Stream, captures) {
		return false, nil
	}
	if !matchOptional(r.VersionPattern, b.Version, captures) {
		return false, nil
	}
	if r.Scratch != nil && *r.Scratch != b.Scratch {
		return false, nil
	}
	if r.Development != nil && *r.Development != b.Development {
		return false, nil
	}
	if r.State != nil && *r.State != b.State {
		return false, nil
	}
	if !matchDependencies(r.Dependencies, b.Dependencies, captures) {
		return false, nil
	}

	return true, captures
}

// matchName checks the ORed name patterns. The first matching pattern
// supplies the captures; an empty pattern list matches any name.
func matchName(r Rule, name string, captures CaptureSet) bool {
	if len(r.NamePatterns) == 0 {
		return true
	}
	for _, p := range r.NamePatterns {
		if got, ok := p.Match(name); ok {
			captures.merge(got)
			return true
		}
	}
	return false
}

// matchOptional treats a nil pattern as a don't-care.
func matchOptional(p *Pattern, text string, captures CaptureSet) bool {
	if p == nil {
		return true
	}
	got, ok := p.Match(text)
	if !ok {
		return false
	}
	captures.merge(got)
	return true
}

// matchDependencies checks every required role across the three
// dependency categories. A role condition is satisfied existentially:
// the role must be present on the build and at least one of its
// observed values must match the role's pattern. The first matching
// value (in the build's value order) supplies the captures. Roles are
// visited in sorted order so collisions resolve deterministically.
func matchDependencies(conds DependencyConditions, deps build.Dependencies, captures CaptureSet) bool {
	for _, category := range dependencyCategories {
		required := conds.category(category)
		if len(required) == 0 {
			continue
		}
		observed := deps.Category(category)

		roles := make([]string, 0, len(required))
		for role := range required {
			roles = append(roles, role)
		}
		sort.Strings(roles)

		for _, role := range roles {
			values := observed.Values(role)
			if len(values) == 0 {
				return false
			}
			if !matchAnyValue(required[role], values, captures) {
				return false
			}
		}
	}
	return true
}

func matchAnyValue(p *Pattern, values []string, captures CaptureSet) bool {
	for _, v := range values {
		if got, ok := p.Match(v); ok {
			captures.merge(got)
			return true
		}
	}
	return false
}
