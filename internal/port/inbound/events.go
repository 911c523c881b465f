// Package inbound defines the inbound port interfaces for the tagging
// core. Inbound adapters (HTTP listener, CLI) call these interfaces.
package inbound

import (
	"context"

	"github.com/tagmill/tagmill/internal/domain/build"
	"github.com/tagmill/tagmill/internal/domain/tagging"
)

// EventHandler processes one build event end to end: descriptor lookup,
// rule resolution, and tag application.
type EventHandler interface {
	// HandleEvent resolves and applies the destination tag for one
	// build event. The returned record describes the outcome even when
	// err is non-nil, except for fetch failures where no resolution
	// happened at all.
	HandleEvent(ctx context.Context, ev build.Event) (tagging.Record, error)
}
