package memory

import (
	"context"
	"sync"

	"github.com/tagmill/tagmill/internal/domain/tagging"
)

// AppliedTag is one recorded tag application.
type AppliedTag struct {
	Destination string
	NVR         string
}

// Tagger implements tagging.Tagger by recording applications instead of
// calling a build system. Used in tests and as the sink when no hub is
// configured.
type Tagger struct {
	mu       sync.Mutex
	applied  []AppliedTag
	failWith error
}

// NewTagger creates a recording tagger.
func NewTagger() *Tagger {
	return &Tagger{}
}

// FailWith makes every subsequent Tag call return err. Pass nil to
// restore success.
func (t *Tagger) FailWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failWith = err
}

// Tag records the application.
func (t *Tagger) Tag(ctx context.Context, destination, nvr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failWith != nil {
		return t.failWith
	}
	t.applied = append(t.applied, AppliedTag{Destination: destination, NVR: nvr})
	return nil
}

// Applied returns a copy of all recorded applications.
func (t *Tagger) Applied() []AppliedTag {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]AppliedTag(nil), t.applied...)
}

// Compile-time interface verification.
var _ tagging.Tagger = (*Tagger)(nil)
