package tagging

import "context"

// Tagger applies a destination tag to a build in the build system.
// Interface owned by domain per hexagonal architecture.
type Tagger interface {
	// Tag moves the build identified by nvr into the destination tag.
	Tag(ctx context.Context, destination, nvr string) error
}

// HistoryStore persists tag resolution records.
type HistoryStore interface {
	// Append stores records. Batching is the implementation's concern.
	Append(ctx context.Context, records ...Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Close releases resources.
	Close() error
}
