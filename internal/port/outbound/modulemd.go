// Package outbound defines the outbound port interfaces for reaching
// the build pipeline's metadata store.
package outbound

import (
	"context"

	"github.com/tagmill/tagmill/internal/domain/build"
)

// DescriptorSource retrieves the full build descriptor for an event
// that does not carry one inline. Adapters implement this against the
// pipeline's modulemd storage.
type DescriptorSource interface {
	// Fetch returns the descriptor for the event's NSVC.
	Fetch(ctx context.Context, ev build.Event) (build.Descriptor, error)
}
