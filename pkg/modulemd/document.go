// Package modulemd parses modulemd YAML documents, the metadata format
// module builds publish alongside their artifacts. Only the fields the
// tagging engine consumes are modeled; unknown fields are ignored.
package modulemd

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is a parsed modulemd document.
type Document struct {
	// Document is the document kind, "modulemd" for module metadata.
	Document string `yaml:"document"`
	// Version is the modulemd schema version (2 for current documents).
	Version int `yaml:"version"`
	// Data is the module metadata payload.
	Data Data `yaml:"data"`
}

// Data is the metadata payload of a modulemd document.
type Data struct {
	Name    string     `yaml:"name"`
	Stream  flexString `yaml:"stream"`
	Version flexString `yaml:"version"`
	Context string     `yaml:"context"`

	// Scratch and Development default to false when absent, matching
	// how build pipelines emit them.
	Scratch     bool `yaml:"scratch"`
	Development bool `yaml:"development"`

	// Dependencies lists one block per resolved dependency context.
	Dependencies []DependencyBlock `yaml:"dependencies"`
}

// DependencyBlock is one resolved dependency context: the module
// streams required to build, and to run against.
type DependencyBlock struct {
	BuildRequires map[string][]string `yaml:"buildrequires"`
	Requires      map[string][]string `yaml:"requires"`
}

// flexString accepts YAML scalars that may be quoted strings or bare
// numbers. Streams like 8.2 and versions are numeric in many documents.
type flexString string

func (s *flexString) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar, got yaml kind %d", node.Kind)
	}
	*s = flexString(node.Value)
	return nil
}

// Parse decodes a modulemd document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse modulemd: %w", err)
	}
	if doc.Document != "" && doc.Document != "modulemd" {
		return nil, fmt.Errorf("unexpected document kind %q", doc.Document)
	}
	return &doc, nil
}

// BuildRequires merges the buildrequires mappings of every dependency
// block: role -> all observed values, in block order. Duplicates are
// kept; the engine's existential matching is unaffected by them.
func (d *Document) BuildRequires() map[string][]string {
	return mergeBlocks(d.Data.Dependencies, func(b DependencyBlock) map[string][]string {
		return b.BuildRequires
	})
}

// Requires merges the requires mappings of every dependency block.
func (d *Document) Requires() map[string][]string {
	return mergeBlocks(d.Data.Dependencies, func(b DependencyBlock) map[string][]string {
		return b.Requires
	})
}

func mergeBlocks(blocks []DependencyBlock, pick func(DependencyBlock) map[string][]string) map[string][]string {
	merged := make(map[string][]string)
	for _, b := range blocks {
		for role, values := range pick(b) {
			merged[role] = append(merged[role], values...)
		}
	}
	return merged
}
