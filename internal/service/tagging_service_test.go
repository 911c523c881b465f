package service

import (
	"context"
	"errors"
	"testing"

	"github.com/tagmill/tagmill/internal/adapter/outbound/memory"
	"github.com/tagmill/tagmill/internal/domain/build"
	"github.com/tagmill/tagmill/internal/domain/rule"
	"github.com/tagmill/tagmill/internal/domain/tagging"
)

// mockDescriptorSource implements outbound.DescriptorSource for testing.
type mockDescriptorSource struct {
	descriptor build.Descriptor
	err        error
}

func (m *mockDescriptorSource) Fetch(_ context.Context, ev build.Event) (build.Descriptor, error) {
	if m.err != nil {
		return build.Descriptor{}, m.err
	}
	d := m.descriptor
	d.Name, d.Stream, d.Version, d.Context = ev.Name, ev.Stream, ev.Version, ev.Context
	return d, nil
}

func newTestResolver(t *testing.T, rules ...rule.Rule) *ResolverService {
	t.Helper()
	s, err := NewResolverService(context.Background(), newMockCatalogSource(rules...), testLogger())
	if err != nil {
		t.Fatalf("NewResolverService: %v", err)
	}
	return s
}

func inlineEvent() build.Event {
	return build.Event{
		Name:    "nodejs",
		Stream:  "18",
		Version: "3620230213115218",
		Context: "a75119d5",
		State:   build.StateDone,
		Build:   &build.Descriptor{State: build.StateDone},
	}
}

func TestTaggingService_TagsBuild(t *testing.T) {
	resolver := newTestResolver(t, nameRule("nodejs", "^nodejs$", "nodejs-candidate"))
	tagger := memory.NewTagger()
	s := NewTaggingService(resolver, testLogger(), WithTagger(tagger))

	record, err := s.HandleEvent(context.Background(), inlineEvent())
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if record.Outcome != tagging.OutcomeTagged {
		t.Errorf("outcome = %q, want tagged", record.Outcome)
	}
	if record.RuleID != "nodejs" || record.Destination != "nodejs-candidate" {
		t.Errorf("record = %+v", record)
	}
	if record.NVR != "nodejs-18-3620230213115218.a75119d5" {
		t.Errorf("NVR = %q", record.NVR)
	}

	applied := tagger.Applied()
	if len(applied) != 1 || applied[0].Destination != "nodejs-candidate" {
		t.Errorf("applied = %+v", applied)
	}
}

func TestTaggingService_InvalidEventRejected(t *testing.T) {
	resolver := newTestResolver(t, fallbackRule("fallback", "tag"))
	s := NewTaggingService(resolver, testLogger())

	if _, err := s.HandleEvent(context.Background(), build.Event{Name: "x"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestTaggingService_DryRunSkipsTagger(t *testing.T) {
	resolver := newTestResolver(t, fallbackRule("fallback", "default-tag"))
	tagger := memory.NewTagger()
	s := NewTaggingService(resolver, testLogger(), WithTagger(tagger), WithDryRun(true))

	record, err := s.HandleEvent(context.Background(), inlineEvent())
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if record.Outcome != tagging.OutcomeDryRun {
		t.Errorf("outcome = %q, want dry_run", record.Outcome)
	}
	if record.Destination != "default-tag" {
		t.Errorf("destination = %q, want resolved even in dry-run", record.Destination)
	}
	if len(tagger.Applied()) != 0 {
		t.Error("dry-run must not call the tagger")
	}
}

func TestTaggingService_NoTaggerBehavesAsDryRun(t *testing.T) {
	resolver := newTestResolver(t, fallbackRule("fallback", "tag"))
	s := NewTaggingService(resolver, testLogger())

	record, err := s.HandleEvent(context.Background(), inlineEvent())
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if record.Outcome != tagging.OutcomeDryRun {
		t.Errorf("outcome = %q, want dry_run without a tagger", record.Outcome)
	}
}

func TestTaggingService_NoMatchIsNotAnError(t *testing.T) {
	resolver := newTestResolver(t, nameRule("only", "^perl$", "perl-tag"))
	s := NewTaggingService(resolver, testLogger(), WithTagger(memory.NewTagger()))

	record, err := s.HandleEvent(context.Background(), inlineEvent())
	if err != nil {
		t.Fatalf("HandleEvent: %v, want no-match to be a clean outcome", err)
	}
	if record.Outcome != tagging.OutcomeNoMatch {
		t.Errorf("outcome = %q, want no_match", record.Outcome)
	}
	if record.Destination != "" {
		t.Errorf("destination = %q, want empty", record.Destination)
	}
}

func TestTaggingService_RenderErrorIdentifiesRule(t *testing.T) {
	broken := rule.Rule{
		ID:                  "broken",
		DestinationTemplate: `tag-\g<stream>`,
	}
	resolver := newTestResolver(t, broken)
	s := NewTaggingService(resolver, testLogger(), WithTagger(memory.NewTagger()))

	record, err := s.HandleEvent(context.Background(), inlineEvent())
	if err == nil {
		t.Fatal("expected render error")
	}
	if record.Outcome != tagging.OutcomeRenderError {
		t.Errorf("outcome = %q, want render_error", record.Outcome)
	}
	if record.RuleID != "broken" {
		t.Errorf("RuleID = %q, want the offending rule identified", record.RuleID)
	}
}

func TestTaggingService_TagErrorRecorded(t *testing.T) {
	resolver := newTestResolver(t, fallbackRule("fallback", "tag"))
	tagger := memory.NewTagger()
	tagger.FailWith(errors.New("hub unavailable"))
	s := NewTaggingService(resolver, testLogger(), WithTagger(tagger))

	record, err := s.HandleEvent(context.Background(), inlineEvent())
	if err == nil {
		t.Fatal("expected tag error")
	}
	if record.Outcome != tagging.OutcomeTagError {
		t.Errorf("outcome = %q, want tag_error", record.Outcome)
	}
	if record.Error == "" {
		t.Error("record.Error must carry the failure detail")
	}
}

func TestTaggingService_FetchesDescriptorWhenNotInline(t *testing.T) {
	resolver := newTestResolver(t,
		rule.Rule{
			ID: "platform",
			Dependencies: rule.DependencyConditions{
				Requires: map[string]*rule.Pattern{
					"platform": rule.MustCompilePattern(`^(?P<platform>f\d+)$`),
				},
			},
			DestinationTemplate: `\g<platform>-modular`,
		},
		fallbackRule("fallback", "default"),
	)
	source := &mockDescriptorSource{
		descriptor: build.Descriptor{
			Dependencies: build.Dependencies{
				Requires: build.DependencyMap{"platform": {"f39"}},
			},
		},
	}
	s := NewTaggingService(resolver, testLogger(),
		WithDescriptorSource(source), WithTagger(memory.NewTagger()))

	ev := inlineEvent()
	ev.Build = nil
	record, err := s.HandleEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if record.Destination != "f39-modular" {
		t.Errorf("destination = %q, want the fetched dependencies to drive resolution", record.Destination)
	}
}

func TestTaggingService_FetchErrorRecorded(t *testing.T) {
	resolver := newTestResolver(t, fallbackRule("fallback", "tag"))
	source := &mockDescriptorSource{err: errors.New("metadata store down")}
	s := NewTaggingService(resolver, testLogger(), WithDescriptorSource(source))

	ev := inlineEvent()
	ev.Build = nil
	record, err := s.HandleEvent(context.Background(), ev)
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if record.Outcome != tagging.OutcomeFetchError {
		t.Errorf("outcome = %q, want fetch_error", record.Outcome)
	}
}

func TestTaggingService_NoSourceNoInlineDescriptor(t *testing.T) {
	resolver := newTestResolver(t, fallbackRule("fallback", "tag"))
	s := NewTaggingService(resolver, testLogger())

	ev := inlineEvent()
	ev.Build = nil
	record, err := s.HandleEvent(context.Background(), ev)
	if err == nil {
		t.Fatal("expected error without source or inline descriptor")
	}
	if record.Outcome != tagging.OutcomeFetchError {
		t.Errorf("outcome = %q, want fetch_error", record.Outcome)
	}
}

func TestTaggingService_RecordsHistory(t *testing.T) {
	resolver := newTestResolver(t, fallbackRule("fallback", "tag"))
	store := &mockHistoryStore{}
	history := NewHistoryService(store, testLogger(), WithHistoryBatchSize(1))
	history.Start()

	s := NewTaggingService(resolver, testLogger(),
		WithTagger(memory.NewTagger()), WithHistory(history))

	if _, err := s.HandleEvent(context.Background(), inlineEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	history.Stop()

	recent, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("history records = %d, want 1", len(recent))
	}
	if recent[0].Outcome != tagging.OutcomeTagged || recent[0].ID == "" {
		t.Errorf("record = %+v", recent[0])
	}
}
