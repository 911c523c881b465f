package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tagmill/tagmill/internal/domain/build"
	"github.com/tagmill/tagmill/internal/domain/rule"
)

// mockCatalogSource implements rule.CatalogSource for testing.
type mockCatalogSource struct {
	mu      sync.Mutex
	catalog rule.Catalog
	err     error
	loads   atomic.Int32
}

func newMockCatalogSource(rules ...rule.Rule) *mockCatalogSource {
	return &mockCatalogSource{catalog: rule.NewCatalog(rules)}
}

func (m *mockCatalogSource) Load(_ context.Context) (rule.Catalog, error) {
	m.loads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return rule.Catalog{}, m.err
	}
	return m.catalog, nil
}

func (m *mockCatalogSource) set(rules []rule.Rule, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog = rule.NewCatalog(rules)
	m.err = err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fallbackRule(id, dest string) rule.Rule {
	return rule.Rule{ID: id, DestinationTemplate: dest}
}

func nameRule(id, pattern, dest string) rule.Rule {
	return rule.Rule{
		ID:                  id,
		NamePatterns:        []*rule.Pattern{rule.MustCompilePattern(pattern)},
		DestinationTemplate: dest,
	}
}

func TestResolverService_Resolve(t *testing.T) {
	source := newMockCatalogSource(
		nameRule("nodejs", "^nodejs$", "nodejs-tag"),
		fallbackRule("fallback", "default-tag"),
	)
	s, err := NewResolverService(context.Background(), source, testLogger())
	if err != nil {
		t.Fatalf("NewResolverService: %v", err)
	}

	res, err := s.Resolve(context.Background(), build.Descriptor{Name: "nodejs"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.RuleID != "nodejs" || res.Destination != "nodejs-tag" {
		t.Errorf("res = %+v", res)
	}
}

func TestResolverService_InitialLoadError(t *testing.T) {
	source := newMockCatalogSource()
	source.set(nil, errors.New("boom"))

	if _, err := NewResolverService(context.Background(), source, testLogger()); err == nil {
		t.Fatal("expected error from initial load")
	}
}

func TestResolverService_CacheHitsSkipEvaluation(t *testing.T) {
	source := newMockCatalogSource(fallbackRule("fallback", "default-tag"))
	s, err := NewResolverService(context.Background(), source, testLogger(), WithCacheSize(10))
	if err != nil {
		t.Fatalf("NewResolverService: %v", err)
	}

	b := build.Descriptor{Name: "nodejs", Stream: "18"}
	if _, err := s.Resolve(context.Background(), b); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.CacheSize() != 1 {
		t.Errorf("CacheSize = %d, want 1", s.CacheSize())
	}

	// Same build again: still one entry.
	if _, err := s.Resolve(context.Background(), b); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.CacheSize() != 1 {
		t.Errorf("CacheSize = %d after repeat, want 1", s.CacheSize())
	}

	// A different build adds an entry.
	b.Stream = "20"
	if _, err := s.Resolve(context.Background(), b); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.CacheSize() != 2 {
		t.Errorf("CacheSize = %d, want 2", s.CacheSize())
	}
}

func TestResolverService_CacheDisabled(t *testing.T) {
	source := newMockCatalogSource(fallbackRule("fallback", "default-tag"))
	s, err := NewResolverService(context.Background(), source, testLogger(), WithCacheSize(0))
	if err != nil {
		t.Fatalf("NewResolverService: %v", err)
	}

	if _, err := s.Resolve(context.Background(), build.Descriptor{Name: "x"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.CacheSize() != 0 {
		t.Errorf("CacheSize = %d, want 0 with caching disabled", s.CacheSize())
	}
}

func TestResolverService_CachesNoMatch(t *testing.T) {
	source := newMockCatalogSource(nameRule("only", "^perl$", "perl-tag"))
	s, err := NewResolverService(context.Background(), source, testLogger(), WithCacheSize(10))
	if err != nil {
		t.Fatalf("NewResolverService: %v", err)
	}

	b := build.Descriptor{Name: "nodejs"}
	for i := 0; i < 2; i++ {
		if _, err := s.Resolve(context.Background(), b); !errors.Is(err, rule.ErrNoMatch) {
			t.Fatalf("Resolve #%d err = %v, want ErrNoMatch", i, err)
		}
	}
	if s.CacheSize() != 1 {
		t.Errorf("CacheSize = %d, want the no-match memoized once", s.CacheSize())
	}
}

func TestResolverService_ReloadSwapsCatalogAndClearsCache(t *testing.T) {
	source := newMockCatalogSource(fallbackRule("old", "old-tag"))
	s, err := NewResolverService(context.Background(), source, testLogger(), WithCacheSize(10))
	if err != nil {
		t.Fatalf("NewResolverService: %v", err)
	}

	b := build.Descriptor{Name: "nodejs"}
	res, _ := s.Resolve(context.Background(), b)
	if res.Destination != "old-tag" {
		t.Fatalf("destination = %q", res.Destination)
	}

	source.set([]rule.Rule{fallbackRule("new", "new-tag")}, nil)
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if s.CacheSize() != 0 {
		t.Errorf("CacheSize = %d after reload, want 0", s.CacheSize())
	}

	res, _ = s.Resolve(context.Background(), b)
	if res.Destination != "new-tag" {
		t.Errorf("destination = %q, want the reloaded catalog to serve", res.Destination)
	}
}

func TestResolverService_ReloadErrorKeepsCatalog(t *testing.T) {
	source := newMockCatalogSource(fallbackRule("keep", "keep-tag"))
	s, err := NewResolverService(context.Background(), source, testLogger())
	if err != nil {
		t.Fatalf("NewResolverService: %v", err)
	}

	source.set(nil, errors.New("catalog file corrupted"))
	if err := s.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}

	res, err := s.Resolve(context.Background(), build.Descriptor{Name: "x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Destination != "keep-tag" {
		t.Errorf("destination = %q, want the previous catalog preserved", res.Destination)
	}
	if s.CatalogSize() != 1 {
		t.Errorf("CatalogSize = %d, want 1", s.CatalogSize())
	}
}

func TestResolverService_ConcurrentResolveAndReload(t *testing.T) {
	source := newMockCatalogSource(fallbackRule("fallback", "tag"))
	s, err := NewResolverService(context.Background(), source, testLogger(), WithCacheSize(100))
	if err != nil {
		t.Fatalf("NewResolverService: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b := build.Descriptor{Name: fmt.Sprintf("mod-%d-%d", g, i%10)}
				if _, err := s.Resolve(context.Background(), b); err != nil {
					t.Errorf("Resolve: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := s.Reload(context.Background()); err != nil {
				t.Errorf("Reload: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestComputeCacheKey_Deterministic(t *testing.T) {
	b := build.Descriptor{
		Name:   "nodejs",
		Stream: "18",
		Dependencies: build.Dependencies{
			BuildRequires: build.DependencyMap{
				"platform": {"f39"},
				"golang":   {"1.21"},
			},
		},
	}
	first := computeCacheKey(b)
	for i := 0; i < 20; i++ {
		if got := computeCacheKey(b); got != first {
			t.Fatalf("key changed across calls: %x vs %x", first, got)
		}
	}
}

func TestComputeCacheKey_DistinguishesFields(t *testing.T) {
	base := build.Descriptor{Name: "nodejs", Stream: "18"}

	variants := []build.Descriptor{
		{Name: "nodejs", Stream: "20"},
		{Name: "nodejs", Stream: "18", Scratch: true},
		{Name: "nodejs", Stream: "18", Development: true},
		{Name: "nodejs", Stream: "18", State: build.StateDone},
		{Name: "nodejs", Stream: "18", Dependencies: build.Dependencies{
			Requires: build.DependencyMap{"platform": {"f39"}},
		}},
	}
	baseKey := computeCacheKey(base)
	for i, v := range variants {
		if computeCacheKey(v) == baseKey {
			t.Errorf("variant %d hashed equal to base", i)
		}
	}
}

func TestComputeCacheKey_DistinguishesDependencyStructure(t *testing.T) {
	// Same roles and values in flattened order, different structure.
	oneValueEach := build.Descriptor{Name: "nodejs", Dependencies: build.Dependencies{
		Requires: build.DependencyMap{"a": {"b"}, "c": {"d"}},
	}}
	allUnderOneRole := build.Descriptor{Name: "nodejs", Dependencies: build.Dependencies{
		Requires: build.DependencyMap{"a": {"b", "c", "d"}},
	}}
	if computeCacheKey(oneValueEach) == computeCacheKey(allUnderOneRole) {
		t.Error("descriptors with different dependency maps hashed alike")
	}

	// A role/value boundary must not shift with string lengths either.
	shiftedBoundary := build.Descriptor{Name: "nodejs", Dependencies: build.Dependencies{
		Requires: build.DependencyMap{"ab": {"cd"}},
	}}
	splitDifferently := build.Descriptor{Name: "nodejs", Dependencies: build.Dependencies{
		Requires: build.DependencyMap{"abc": {"d"}},
	}}
	if computeCacheKey(shiftedBoundary) == computeCacheKey(splitDifferently) {
		t.Error("descriptors with shifted role/value boundaries hashed alike")
	}
}

func TestResolverService_CacheKeysDependencyShape(t *testing.T) {
	requiresRole := rule.Rule{
		ID: "role-c",
		Dependencies: rule.DependencyConditions{
			Requires: map[string]*rule.Pattern{"c": rule.MustCompilePattern("^d$")},
		},
		DestinationTemplate: "role-c-tag",
	}
	source := newMockCatalogSource(requiresRole, fallbackRule("fallback", "default-tag"))
	s, err := NewResolverService(context.Background(), source, testLogger(), WithCacheSize(10))
	if err != nil {
		t.Fatalf("NewResolverService: %v", err)
	}

	withRoleC := build.Descriptor{Name: "nodejs", Dependencies: build.Dependencies{
		Requires: build.DependencyMap{"a": {"b"}, "c": {"d"}},
	}}
	res, err := s.Resolve(context.Background(), withRoleC)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Destination != "role-c-tag" {
		t.Fatalf("destination = %q, want role-c-tag", res.Destination)
	}

	// Same values all under role a: role c is absent, so the fallback
	// must serve. A cache hit here would replay the wrong destination.
	withoutRoleC := build.Descriptor{Name: "nodejs", Dependencies: build.Dependencies{
		Requires: build.DependencyMap{"a": {"b", "c", "d"}},
	}}
	res, err = s.Resolve(context.Background(), withoutRoleC)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Destination != "default-tag" {
		t.Errorf("destination = %q, want default-tag", res.Destination)
	}
	if s.CacheSize() != 2 {
		t.Errorf("CacheSize = %d, want two distinct entries", s.CacheSize())
	}
}

func TestResultCache_EvictsLRU(t *testing.T) {
	c := newResultCache(2)
	c.put(1, cachedResolution{})
	c.put(2, cachedResolution{})

	// Touch 1 so 2 becomes the eviction candidate.
	if _, ok := c.get(1); !ok {
		t.Fatal("expected hit for key 1")
	}
	c.put(3, cachedResolution{})

	if _, ok := c.get(2); ok {
		t.Error("key 2 should have been evicted")
	}
	if _, ok := c.get(1); !ok {
		t.Error("key 1 should have survived")
	}
	if _, ok := c.get(3); !ok {
		t.Error("key 3 should be present")
	}
}
