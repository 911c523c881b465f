package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tagmill/tagmill/internal/domain/build"
	"github.com/tagmill/tagmill/internal/domain/rule"
	"github.com/tagmill/tagmill/internal/domain/tagging"
	"github.com/tagmill/tagmill/internal/port/inbound"
	"github.com/tagmill/tagmill/internal/port/outbound"
)

// TaggingService handles build events end to end: it obtains the full
// build descriptor, resolves the destination tag, applies it, and
// records the outcome in the tag history.
type TaggingService struct {
	resolver *ResolverService
	source   outbound.DescriptorSource // nil: events must embed a descriptor
	tagger   tagging.Tagger            // nil: resolved tags are not applied
	history  *HistoryService           // nil: outcomes are only logged
	dryRun   bool
	logger   *slog.Logger
}

// TaggingOption configures TaggingService.
type TaggingOption func(*TaggingService)

// WithDescriptorSource sets the modulemd source used for events that do
// not carry a descriptor inline.
func WithDescriptorSource(source outbound.DescriptorSource) TaggingOption {
	return func(s *TaggingService) {
		s.source = source
	}
}

// WithTagger sets the build-system client tags are applied through.
func WithTagger(tagger tagging.Tagger) TaggingOption {
	return func(s *TaggingService) {
		s.tagger = tagger
	}
}

// WithHistory sets the async history recorder.
func WithHistory(history *HistoryService) TaggingOption {
	return func(s *TaggingService) {
		s.history = history
	}
}

// WithDryRun resolves destinations but skips tag application.
func WithDryRun(dryRun bool) TaggingOption {
	return func(s *TaggingService) {
		s.dryRun = dryRun
	}
}

// NewTaggingService creates a TaggingService around the resolver.
func NewTaggingService(resolver *ResolverService, logger *slog.Logger, opts ...TaggingOption) *TaggingService {
	s := &TaggingService{
		resolver: resolver,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleEvent processes one build event. The returned record describes
// the outcome; err is non-nil for failures the caller may want to
// retry or alert on (descriptor fetch, template rendering, tag
// application). No-match is an explicit outcome, not an error.
func (s *TaggingService) HandleEvent(ctx context.Context, ev build.Event) (tagging.Record, error) {
	if err := ev.Validate(); err != nil {
		return tagging.Record{}, err
	}

	record := tagging.Record{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		NSVC:      ev.NSVC(),
	}

	desc, err := s.descriptor(ctx, ev)
	if err != nil {
		record.Outcome = tagging.OutcomeFetchError
		record.Error = err.Error()
		s.finish(record)
		return record, err
	}
	record.NVR = desc.NVR()

	res, err := s.resolver.Resolve(ctx, desc)
	switch {
	case errors.Is(err, rule.ErrNoMatch):
		// Only possible without a catch-all fallback rule.
		record.Outcome = tagging.OutcomeNoMatch
		s.logger.Warn("build matched no rule", "nsvc", record.NSVC)
		s.finish(record)
		return record, nil
	case err != nil:
		record.Outcome = tagging.OutcomeRenderError
		record.Error = err.Error()
		var unresolved *rule.UnresolvedPlaceholderError
		if errors.As(err, &unresolved) {
			record.RuleID = unresolved.RuleID
		}
		s.logger.Error("destination rendering failed", "nsvc", record.NSVC, "error", err)
		s.finish(record)
		return record, err
	}

	record.RuleID = res.RuleID
	record.Destination = res.Destination

	if s.dryRun || s.tagger == nil {
		record.Outcome = tagging.OutcomeDryRun
		s.logger.Info("dry-run: tag application skipped",
			"nvr", record.NVR, "tag", res.Destination, "rule", res.RuleID)
		s.finish(record)
		return record, nil
	}

	if err := s.tagger.Tag(ctx, res.Destination, record.NVR); err != nil {
		record.Outcome = tagging.OutcomeTagError
		record.Error = err.Error()
		s.logger.Error("tag application failed",
			"nvr", record.NVR, "tag", res.Destination, "error", err)
		s.finish(record)
		return record, err
	}

	record.Outcome = tagging.OutcomeTagged
	s.logger.Info("build tagged", "nvr", record.NVR, "tag", res.Destination, "rule", res.RuleID)
	s.finish(record)
	return record, nil
}

// descriptor returns the event's embedded descriptor or fetches one.
func (s *TaggingService) descriptor(ctx context.Context, ev build.Event) (build.Descriptor, error) {
	if ev.Build != nil {
		d := *ev.Build
		// The event identity is authoritative over the embedded copy.
		d.Name, d.Stream, d.Version, d.Context = ev.Name, ev.Stream, ev.Version, ev.Context
		if d.State == build.StateUnknown {
			d.State = ev.State
		}
		return d, nil
	}
	if s.source == nil {
		return build.Descriptor{}, fmt.Errorf("event %s carries no descriptor and no modulemd source is configured", ev.NSVC())
	}
	return s.source.Fetch(ctx, ev)
}

func (s *TaggingService) finish(record tagging.Record) {
	if s.history != nil {
		s.history.Record(record)
	}
}

// Compile-time interface verification.
var _ inbound.EventHandler = (*TaggingService)(nil)
