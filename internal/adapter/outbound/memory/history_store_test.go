package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/tagmill/tagmill/internal/domain/tagging"
)

func record(id string) tagging.Record {
	return tagging.Record{ID: id, NSVC: "nodejs-18-36-a75119d5", Outcome: tagging.OutcomeTagged}
}

func TestHistoryStore_AppendAndRecent(t *testing.T) {
	s := NewHistoryStore(0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, record(fmt.Sprintf("r%d", i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Newest first.
	if got[0].ID != "r4" || got[2].ID != "r2" {
		t.Errorf("order = [%s .. %s], want newest first", got[0].ID, got[2].ID)
	}
}

func TestHistoryStore_RecentZeroLimitReturnsAll(t *testing.T) {
	s := NewHistoryStore(0)
	ctx := context.Background()
	_ = s.Append(ctx, record("a"), record("b"))

	got, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want all records", len(got))
	}
}

func TestHistoryStore_EvictsOldestOverCapacity(t *testing.T) {
	s := NewHistoryStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = s.Append(ctx, record(fmt.Sprintf("r%d", i)))
	}

	if s.Size() != 3 {
		t.Fatalf("Size = %d, want capacity", s.Size())
	}
	got, _ := s.Recent(ctx, 0)
	if got[len(got)-1].ID != "r2" {
		t.Errorf("oldest surviving = %s, want r2", got[len(got)-1].ID)
	}
}

func TestTagger_RecordsApplications(t *testing.T) {
	tagger := NewTagger()
	ctx := context.Background()

	if err := tagger.Tag(ctx, "f39-modular", "nodejs-18-36.a75119d5"); err != nil {
		t.Fatalf("Tag: %v", err)
	}

	applied := tagger.Applied()
	if len(applied) != 1 {
		t.Fatalf("len = %d, want 1", len(applied))
	}
	if applied[0].Destination != "f39-modular" {
		t.Errorf("destination = %q", applied[0].Destination)
	}
}

func TestTagger_FailWith(t *testing.T) {
	tagger := NewTagger()
	tagger.FailWith(context.DeadlineExceeded)

	if err := tagger.Tag(context.Background(), "t", "n"); err == nil {
		t.Fatal("expected injected error")
	}
	if len(tagger.Applied()) != 0 {
		t.Error("failed call must not be recorded")
	}
}
