package build

import "fmt"

// Event is a build state change notification from the build pipeline.
// It identifies the build by NSVC; the full descriptor is either
// embedded or fetched from the modulemd source by the handler.
type Event struct {
	Name    string `json:"name" yaml:"name"`
	Stream  string `json:"stream" yaml:"stream"`
	Version string `json:"version" yaml:"version"`
	Context string `json:"context" yaml:"context"`
	State   State  `json:"state" yaml:"state"`

	// Build, when present, carries the full descriptor inline so no
	// modulemd lookup is needed.
	Build *Descriptor `json:"build,omitempty" yaml:"build,omitempty"`
}

// NSVC returns the event's name-stream-version-context identifier.
func (e Event) NSVC() string {
	return fmt.Sprintf("%s-%s-%s-%s", e.Name, e.Stream, e.Version, e.Context)
}

// Validate checks the minimal shape an event must have.
func (e Event) Validate() error {
	if e.Name == "" || e.Stream == "" || e.Version == "" {
		return fmt.Errorf("event missing name/stream/version: %q", e.NSVC())
	}
	if !e.State.IsValid() {
		return fmt.Errorf("event %q has unknown state %q", e.NSVC(), e.State)
	}
	return nil
}
