// Package rulesfile loads tagging rule catalogs from YAML documents.
//
// The on-disk shape is an ordered list of rule records:
//
//	- id: scratch-builds
//	  type: module
//	  description: Route scratch builds to the scratch tag.
//	  rule:
//	    scratch: true
//	  destinations: modular-scratch-builds
//
// A rule block may constrain name (one pattern or a list, ORed), stream,
// version, scratch, development, state, and per-role dependency patterns
// under dependencies.buildrequires/requires/runtime. Any load error
// rejects the whole catalog; no partially loaded catalog is ever
// returned.
package rulesfile

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tagmill/tagmill/internal/domain/build"
	"github.com/tagmill/tagmill/internal/domain/rule"
)

// ruleDoc is the YAML shape of one catalog entry.
type ruleDoc struct {
	ID           string        `yaml:"id"`
	Description  string        `yaml:"description"`
	Type         string        `yaml:"type"`
	Rule         *predicateDoc `yaml:"rule"`
	Destinations string        `yaml:"destinations"`
}

// predicateDoc is the YAML shape of a rule's predicate block. All
// fields are optional; a nil block is the catch-all fallback.
type predicateDoc struct {
	Name        stringList       `yaml:"name"`
	Stream      *string          `yaml:"stream"`
	Version     *string          `yaml:"version"`
	Scratch     *bool            `yaml:"scratch"`
	Development *bool            `yaml:"development"`
	State       *string          `yaml:"state"`
	Deps        *dependenciesDoc `yaml:"dependencies"`
}

type dependenciesDoc struct {
	BuildRequires map[string]string `yaml:"buildrequires"`
	Requires      map[string]string `yaml:"requires"`
	Runtime       map[string]string `yaml:"runtime"`
}

// stringList accepts either a single YAML scalar or a sequence.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = []string{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		*l = ss
		return nil
	default:
		return fmt.Errorf("expected string or list of strings, got yaml kind %d", node.Kind)
	}
}

// Loader loads a rule catalog from a YAML file. It satisfies the
// catalog source needed by the resolver service, so a reload re-reads
// the same path.
type Loader struct {
	path string
}

// NewLoader creates a Loader for the given catalog file.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads and parses the catalog file.
func (l *Loader) Load(ctx context.Context) (rule.Catalog, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return rule.Catalog{}, fmt.Errorf("read rule catalog %s: %w", l.path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return rule.Catalog{}, fmt.Errorf("rule catalog %s: %w", l.path, err)
	}
	return c, nil
}

// Parse builds an immutable catalog from YAML bytes, rejecting the
// whole document on the first malformed record, uncompilable pattern,
// or malformed destination template.
func Parse(data []byte) (rule.Catalog, error) {
	var docs []ruleDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return rule.Catalog{}, fmt.Errorf("parse: %w", err)
	}

	rules := make([]rule.Rule, 0, len(docs))
	for i, doc := range docs {
		r, err := buildRule(doc)
		if err != nil {
			return rule.Catalog{}, fmt.Errorf("rule %d (%s): %w", i, doc.ID, err)
		}
		rules = append(rules, r)
	}
	return rule.NewCatalog(rules), nil
}

func buildRule(doc ruleDoc) (rule.Rule, error) {
	if doc.ID == "" {
		return rule.Rule{}, fmt.Errorf("missing id")
	}
	if doc.Type != rule.TypeModule {
		return rule.Rule{}, fmt.Errorf("unsupported type %q", doc.Type)
	}
	if doc.Destinations == "" {
		return rule.Rule{}, fmt.Errorf("missing destinations")
	}
	if err := rule.ValidateTemplate(doc.Destinations); err != nil {
		return rule.Rule{}, fmt.Errorf("destinations: %w", err)
	}

	r := rule.Rule{
		ID:                  doc.ID,
		Description:         doc.Description,
		DestinationTemplate: doc.Destinations,
	}
	if doc.Rule == nil {
		return r, nil
	}
	p := doc.Rule

	for _, expr := range p.Name {
		compiled, err := rule.CompilePattern(expr)
		if err != nil {
			return rule.Rule{}, fmt.Errorf("name: %w", err)
		}
		r.NamePatterns = append(r.NamePatterns, compiled)
	}
	var err error
	if r.StreamPattern, err = compileOptional(p.Stream); err != nil {
		return rule.Rule{}, fmt.Errorf("stream: %w", err)
	}
	if r.VersionPattern, err = compileOptional(p.Version); err != nil {
		return rule.Rule{}, fmt.Errorf("version: %w", err)
	}
	r.Scratch = p.Scratch
	r.Development = p.Development

	if p.State != nil {
		state := build.State(*p.State)
		if state == build.StateUnknown || !state.IsValid() {
			return rule.Rule{}, fmt.Errorf("state: unknown value %q", *p.State)
		}
		r.State = &state
	}

	if p.Deps != nil {
		if r.Dependencies.BuildRequires, err = compileRoles(p.Deps.BuildRequires); err != nil {
			return rule.Rule{}, fmt.Errorf("dependencies.buildrequires: %w", err)
		}
		if r.Dependencies.Requires, err = compileRoles(p.Deps.Requires); err != nil {
			return rule.Rule{}, fmt.Errorf("dependencies.requires: %w", err)
		}
		if r.Dependencies.Runtime, err = compileRoles(p.Deps.Runtime); err != nil {
			return rule.Rule{}, fmt.Errorf("dependencies.runtime: %w", err)
		}
	}

	return r, nil
}

func compileOptional(expr *string) (*rule.Pattern, error) {
	if expr == nil {
		return nil, nil
	}
	return rule.CompilePattern(*expr)
}

func compileRoles(roles map[string]string) (map[string]*rule.Pattern, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	compiled := make(map[string]*rule.Pattern, len(roles))

	// Sorted so a catalog with two bad roles reports the same one every
	// load.
	names := make([]string, 0, len(roles))
	for role := range roles {
		names = append(names, role)
	}
	sort.Strings(names)

	for _, role := range names {
		p, err := rule.CompilePattern(roles[role])
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
		compiled[role] = p
	}
	return compiled, nil
}
