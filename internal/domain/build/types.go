// Package build contains domain types describing a module build event.
package build

import "strings"

// State is the completion status of a module build.
type State string

const (
	// StateUnknown means the event did not carry a build state.
	StateUnknown State = ""
	// StatePending means the build is queued but not finished.
	StatePending State = "pending"
	// StateDone means the build finished successfully.
	StateDone State = "done"
	// StateFailed means the build finished with an error.
	StateFailed State = "failed"
	// StateReady means the build finished and passed post-build gating.
	StateReady State = "ready"
)

// ValidStates lists every state accepted from rule catalogs and events.
var ValidStates = []State{StatePending, StateDone, StateFailed, StateReady}

// IsValid reports whether s is a known build state. The empty state is
// valid: it means the event carried no state at all.
func (s State) IsValid() bool {
	if s == StateUnknown {
		return true
	}
	for _, v := range ValidStates {
		if s == v {
			return true
		}
	}
	return false
}

// DependencyMap maps a dependency role (e.g. "platform") to the
// version/stream values observed for that role in one build. A role may
// carry several values when the build resolved against multiple contexts.
type DependencyMap map[string][]string

// Values returns the observed values for a role. A missing role yields
// an empty slice, never nil semantics that differ from "present but empty".
func (m DependencyMap) Values(role string) []string {
	if m == nil {
		return nil
	}
	return m[role]
}

// Dependencies groups the three dependency relationships a module build
// declares: build-time requirements, declared runtime requirements, and
// resolved runtime requirements.
type Dependencies struct {
	BuildRequires DependencyMap `yaml:"buildrequires" json:"buildrequires"`
	Requires      DependencyMap `yaml:"requires" json:"requires"`
	Runtime       DependencyMap `yaml:"runtime" json:"runtime"`
}

// Category selects one of the three dependency mappings by name.
// Unknown categories yield a nil map, which never satisfies a condition.
func (d Dependencies) Category(name string) DependencyMap {
	switch name {
	case "buildrequires":
		return d.BuildRequires
	case "requires":
		return d.Requires
	case "runtime":
		return d.Runtime
	default:
		return nil
	}
}

// Descriptor is the metadata of one module build, as delivered by the
// build pipeline. It is the sole input to rule evaluation.
type Descriptor struct {
	Name    string `yaml:"name" json:"name"`
	Stream  string `yaml:"stream" json:"stream"`
	Version string `yaml:"version" json:"version"`
	// Context disambiguates builds of the same name/stream/version that
	// were resolved against different dependency contexts.
	Context string `yaml:"context" json:"context"`

	Scratch     bool `yaml:"scratch" json:"scratch"`
	Development bool `yaml:"development" json:"development"`

	State State `yaml:"state" json:"state"`

	Dependencies Dependencies `yaml:"dependencies" json:"dependencies"`
}

// NSVC returns the name-stream-version-context identifier of the build.
func (d Descriptor) NSVC() string {
	return d.Name + "-" + d.Stream + "-" + d.Version + "-" + d.Context
}

// NVR returns the build's name-version-release identifier as known to
// the tagging system: dashes in the stream become underscores and the
// context is appended to the version as a release suffix.
func (d Descriptor) NVR() string {
	stream := strings.ReplaceAll(d.Stream, "-", "_")
	return d.Name + "-" + stream + "-" + d.Version + "." + d.Context
}
