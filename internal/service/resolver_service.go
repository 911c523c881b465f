// Package service contains application services.
package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/tagmill/tagmill/internal/domain/build"
	"github.com/tagmill/tagmill/internal/domain/rule"
)

// catalogSnapshot is the immutable snapshot stored in atomic.Value.
type catalogSnapshot struct {
	catalog rule.Catalog
}

// cachedResolution is one memoized resolution outcome. Resolution is
// deterministic, so every outcome (including errors) is safe to cache
// until the catalog is reloaded.
type cachedResolution struct {
	resolution rule.Resolution
	err        error
}

// lruEntry is a doubly-linked list node for the LRU cache.
type lruEntry struct {
	key    uint64
	cached cachedResolution
	prev   *lruEntry
	next   *lruEntry
}

// resultCache provides bounded LRU caching for resolution results.
// Thread-safe with Mutex (both Get and Put mutate LRU order).
type resultCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry // most recently used
	tail    *lruEntry // least recently used
	maxSize int
}

func newResultCache(maxSize int) *resultCache {
	return &resultCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

// get retrieves a cached resolution, promoting the entry on hit.
func (c *resultCache) get(key uint64) (cachedResolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.cached, true
	}
	return cachedResolution{}, false
}

// put stores a resolution, evicting the least recently used entry at
// capacity.
func (c *resultCache) put(key uint64, cached cachedResolution) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.cached = cached
		c.moveToHeadLocked(e)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}

	e := &lruEntry{key: key, cached: cached}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// clear empties the cache. Called on catalog reload.
func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*lruEntry, c.maxSize)
	c.head = nil
	c.tail = nil
}

// size returns current cache size.
func (c *resultCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *resultCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *resultCache) pushHeadLocked(e *lruEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *resultCache) unlinkLocked(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *resultCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// computeCacheKey hashes every field that participates in matching.
// Dependency roles are visited in sorted order so equal descriptors
// hash equally regardless of map iteration. Strings are
// length-prefixed and each role carries its value count, so two
// descriptors hash alike only when their dependency structure is
// identical, not merely their concatenated contents.
func computeCacheKey(b build.Descriptor) uint64 {
	h := xxhash.New()
	var buf [binary.MaxVarintLen64]byte
	writeUint := func(v uint64) {
		n := binary.PutUvarint(buf[:], v)
		_, _ = h.Write(buf[:n])
	}
	writeString := func(s string) {
		writeUint(uint64(len(s)))
		_, _ = h.WriteString(s)
	}

	for _, s := range []string{b.Name, b.Stream, b.Version, b.Context, string(b.State)} {
		writeString(s)
	}
	_, _ = h.Write([]byte{boolByte(b.Scratch), boolByte(b.Development)})

	for _, category := range []string{"buildrequires", "requires", "runtime"} {
		deps := b.Dependencies.Category(category)
		writeString(category)

		roles := make([]string, 0, len(deps))
		for role := range deps {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		writeUint(uint64(len(roles)))
		for _, role := range roles {
			writeString(role)
			writeUint(uint64(len(deps[role])))
			for _, v := range deps[role] {
				writeString(v)
			}
		}
	}
	return h.Sum64()
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ResolverService resolves builds against the loaded rule catalog. The
// catalog is compiled once at startup and swapped atomically on reload,
// so the resolution hot path is lock-free. Results are memoized in a
// bounded LRU keyed by a hash of the build descriptor.
type ResolverService struct {
	source   rule.CatalogSource
	snapshot atomic.Value // stores *catalogSnapshot
	mu       sync.Mutex   // only for Reload() writes
	cache    *resultCache // nil when caching is disabled
	logger   *slog.Logger
}

// ResolverOption configures ResolverService.
type ResolverOption func(*ResolverService)

// WithCacheSize sets the maximum number of cached resolutions.
// A size <= 0 disables the cache.
func WithCacheSize(size int) ResolverOption {
	return func(s *ResolverService) {
		if size <= 0 {
			s.cache = nil
			return
		}
		s.cache = newResultCache(size)
	}
}

// NewResolverService loads the catalog from source and returns a ready
// resolver. A catalog without a trailing catch-all rule loads fine but
// is logged as a catalog-quality warning, since builds may then resolve
// to no destination.
func NewResolverService(ctx context.Context, source rule.CatalogSource, logger *slog.Logger, opts ...ResolverOption) (*ResolverService, error) {
	s := &ResolverService{
		source: source,
		cache:  newResultCache(1000),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	catalog, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rule catalog: %w", err)
	}
	s.snapshot.Store(&catalogSnapshot{catalog: catalog})

	if !catalog.HasFallback() {
		logger.Warn("rule catalog has no catch-all fallback; some builds may resolve to no destination",
			"rules", catalog.Len())
	}
	logger.Info("resolver initialized", "rules", catalog.Len(), "cache_enabled", s.cache != nil)

	return s, nil
}

func (s *ResolverService) loadSnapshot() *catalogSnapshot {
	return s.snapshot.Load().(*catalogSnapshot)
}

// Resolve returns the destination for a build per the current catalog.
// It is safe for concurrent use; each call is independent and
// deterministic. rule.ErrNoMatch and *rule.UnresolvedPlaceholderError
// pass through from the engine.
func (s *ResolverService) Resolve(ctx context.Context, b build.Descriptor) (rule.Resolution, error) {
	var key uint64
	if s.cache != nil {
		key = computeCacheKey(b)
		if cached, ok := s.cache.get(key); ok {
			return cached.resolution, cached.err
		}
	}

	res, err := rule.Resolve(s.loadSnapshot().catalog, b)

	if s.cache != nil {
		s.cache.put(key, cachedResolution{resolution: res, err: err})
	}
	return res, err
}

// Reload re-reads the catalog from its source and swaps it in
// atomically. Safe to call concurrently with Resolve. A source error
// leaves the current catalog in place.
func (s *ResolverService) Reload(ctx context.Context) error {
	catalog, err := s.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload rule catalog: %w", err)
	}

	s.mu.Lock()
	s.snapshot.Store(&catalogSnapshot{catalog: catalog})
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.clear()
	}

	if !catalog.HasFallback() {
		s.logger.Warn("reloaded rule catalog has no catch-all fallback", "rules", catalog.Len())
	}
	s.logger.Info("rule catalog reloaded", "rules", catalog.Len(), "cache_cleared", s.cache != nil)
	return nil
}

// CatalogSize returns the number of rules currently loaded.
func (s *ResolverService) CatalogSize() int {
	return s.loadSnapshot().catalog.Len()
}

// CacheSize returns the number of memoized resolutions.
func (s *ResolverService) CacheSize() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.size()
}
