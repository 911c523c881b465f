package rule

import (
	"errors"
	"fmt"
)

// ErrNoMatch is returned by Resolve when no rule in the catalog matched
// the build. It is an explicit outcome, not a failure: it can only
// happen when the catalog was authored without a catch-all fallback,
// which callers should surface as a catalog-quality warning.
var ErrNoMatch = errors.New("no rule matched")

// UnresolvedPlaceholderError reports a destination template referencing
// a capture name that none of the rule's matched patterns bound. It
// indicates a catalog authoring bug and should be logged loudly; it is
// scoped to the one build being resolved, not fatal to the process.
type UnresolvedPlaceholderError struct {
	RuleID      string
	Placeholder string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("rule %q: destination references capture %q which no pattern bound", e.RuleID, e.Placeholder)
}
