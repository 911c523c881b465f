// Package tagging contains domain types for tag resolution outcomes and
// their application to the build system.
package tagging

import (
	"time"
)

// Outcome constants for history records.
const (
	// OutcomeTagged means the destination tag was applied to the build.
	OutcomeTagged = "tagged"
	// OutcomeDryRun means a destination was resolved but application was
	// skipped because the service runs in dry-run mode.
	OutcomeDryRun = "dry_run"
	// OutcomeNoMatch means no catalog rule matched the build.
	OutcomeNoMatch = "no_match"
	// OutcomeRenderError means a rule matched but its destination
	// template referenced an unbound capture.
	OutcomeRenderError = "render_error"
	// OutcomeTagError means tag application to the build system failed.
	OutcomeTagError = "tag_error"
	// OutcomeFetchError means the build's descriptor could not be
	// retrieved, so no resolution happened.
	OutcomeFetchError = "fetch_error"
)

// Record is one tag resolution outcome for one build event.
type Record struct {
	// ID is a unique identifier for this record.
	ID string `json:"id"`
	// Timestamp is when the build event was processed.
	Timestamp time.Time `json:"timestamp"`
	// NSVC identifies the module build (name-stream-version-context).
	NSVC string `json:"nsvc"`
	// NVR is the build identifier the tag was applied to, when any.
	NVR string `json:"nvr,omitempty"`
	// RuleID is the catalog rule that matched, empty on no match.
	RuleID string `json:"rule_id,omitempty"`
	// Destination is the rendered destination tag, empty on no match.
	Destination string `json:"destination,omitempty"`
	// Outcome is one of the Outcome* constants.
	Outcome string `json:"outcome"`
	// Error holds the failure detail for error outcomes.
	Error string `json:"error,omitempty"`
}
