package cache

import (
	"context"
	"sync"
	"time"

	"slotcore/pkg/config"
	"slotcore/pkg/logger"
)

// InvalidateMode selects how matching entries are retired.
type InvalidateMode int

const (
	// Immediate evicts matching entries synchronously before returning.
	Immediate InvalidateMode = iota
	// Debounced marks entries stale right away but coalesces the refresh
	// work into a bounded window. Used for high-churn tags to avoid
	// rebuild thrash; staleness is still never served.
	Debounced
)

// Refresher rebuilds the entries behind a tag after a debounced
// invalidation. Registered by the read path that owns the payloads.
type Refresher func(ctx context.Context, tag string)

// Entry is one cached availability view. Entries remember the generation
// of every tag they were built against; a bumped generation makes the
// entry a miss even before eviction.
type Entry struct {
	Key        string
	Tags       []string
	Payload    any
	ValidUntil time.Time

	tagGens map[string]uint64
}

// Store is the tag-indexed, generation-versioned availability cache.
// Writers bump tag generations synchronously before acknowledging their
// mutation, so a reader that observes the ack can never get pre-mutation
// data out of the cache.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	tagIndex map[string]map[string]struct{} // tag -> entry keys
	tagGens  map[string]uint64

	ttl            time.Duration
	debounceWindow time.Duration

	refresher    Refresher
	pendingTags  map[string]struct{}
	debounceTick *time.Timer

	stopCh  chan struct{}
	stopped bool

	log *logger.Logger
}

func NewStore(cfg *config.Config) *Store {
	s := &Store{
		entries:        make(map[string]*Entry),
		tagIndex:       make(map[string]map[string]struct{}),
		tagGens:        make(map[string]uint64),
		ttl:            cfg.CacheTTL,
		debounceWindow: cfg.CacheDebounceWindow,
		pendingTags:    make(map[string]struct{}),
		stopCh:         make(chan struct{}),
		log:            cfg.Log.WithComponent("cache"),
	}
	go s.cleanup()
	return s
}

// SetRefresher registers the rebuild callback used after debounced
// invalidations.
func (s *Store) SetRefresher(fn Refresher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresher = fn
}

// Put stores a payload under key, recording the current generation of each
// tag. The payload must have been built from post-mutation authoritative
// state; putting first and invalidating after would reorder the guarantee.
func (s *Store) Put(key string, tags []string, payload any) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	gens := make(map[string]uint64, len(tags))
	for _, tag := range tags {
		gens[tag] = s.tagGens[tag]
	}

	s.removeLocked(key)
	s.entries[key] = &Entry{
		Key:        key,
		Tags:       tags,
		Payload:    payload,
		ValidUntil: now.Add(s.ttl),
		tagGens:    gens,
	}
	for _, tag := range tags {
		idx, ok := s.tagIndex[tag]
		if !ok {
			idx = make(map[string]struct{})
			s.tagIndex[tag] = idx
		}
		idx[key] = struct{}{}
	}
}

// Get returns the cached payload, or a miss when the entry expired or any
// of its tags was invalidated since it was written. Stale-but-unevicted
// entries are misses, never served.
func (s *Store) Get(key string) (any, bool) {
	now := time.Now()

	s.mu.RLock()
	entry, ok := s.entries[key]
	if ok {
		ok = entry.ValidUntil.After(now)
	}
	if ok {
		for tag, gen := range entry.tagGens {
			if s.tagGens[tag] != gen {
				ok = false
				break
			}
		}
	}
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return entry.Payload, true
}

// Invalidate retires every entry carrying any of the tags. Both modes bump
// the tag generation synchronously, so readers miss from the moment this
// returns; the mode only controls eviction and refresh scheduling.
func (s *Store) Invalidate(tags []string, mode InvalidateMode) {
	s.mu.Lock()
	for _, tag := range tags {
		s.tagGens[tag]++
	}

	switch mode {
	case Immediate:
		for _, tag := range tags {
			for key := range s.tagIndex[tag] {
				s.removeLocked(key)
			}
			delete(s.tagIndex, tag)
		}
		s.mu.Unlock()
	case Debounced:
		for _, tag := range tags {
			s.pendingTags[tag] = struct{}{}
		}
		s.scheduleRefreshLocked()
		s.mu.Unlock()
	default:
		s.mu.Unlock()
	}
}

// scheduleRefreshLocked arms the debounce timer if it is not running.
// Called with s.mu held.
func (s *Store) scheduleRefreshLocked() {
	if s.stopped || s.debounceTick != nil {
		return
	}
	s.debounceTick = time.AfterFunc(s.debounceWindow, s.flushPending)
}

func (s *Store) flushPending() {
	s.mu.Lock()
	s.debounceTick = nil
	if len(s.pendingTags) == 0 || s.stopped {
		s.mu.Unlock()
		return
	}
	tags := make([]string, 0, len(s.pendingTags))
	for tag := range s.pendingTags {
		tags = append(tags, tag)
		for key := range s.tagIndex[tag] {
			s.removeLocked(key)
		}
		delete(s.tagIndex, tag)
	}
	s.pendingTags = make(map[string]struct{})
	refresher := s.refresher
	s.mu.Unlock()

	if refresher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.debounceWindow*4)
	defer cancel()
	for _, tag := range tags {
		refresher(ctx, tag)
	}
}

// Generation exposes a tag's current generation. Read path callers stamp
// responses with it so staleness is observable in tests.
func (s *Store) Generation(tag string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tagGens[tag]
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// removeLocked drops an entry and its index links. Called with s.mu held.
func (s *Store) removeLocked(key string) {
	entry, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	for _, tag := range entry.Tags {
		if idx, ok := s.tagIndex[tag]; ok {
			delete(idx, key)
			if len(idx) == 0 {
				delete(s.tagIndex, tag)
			}
		}
	}
}

func (s *Store) cleanup() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, entry := range s.entries {
				if !entry.ValidUntil.After(now) {
					s.removeLocked(key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Stop halts the cleanup goroutine and any pending debounce timer.
func (s *Store) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.debounceTick != nil {
		s.debounceTick.Stop()
		s.debounceTick = nil
	}
	s.mu.Unlock()
	close(s.stopCh)
}
