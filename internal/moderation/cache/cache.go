// Package cache holds each node's disposable copy of current moderation state.
//
// Entries are keyed by subject and hold one slot per restriction key. Writes are
// gated by revision so out-of-order bus delivery converges on the newest
// decision. Subjects hash onto independently locked shards, each with its own
// LRU list, so a busy subject never serializes lookups for unrelated players.
package cache

import (
	"container/list"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"nucleus/internal/moderation/models"
)

const (
	DefaultTTL        = 3 * time.Minute
	DefaultMaxEntries = 100_000
	DefaultShards     = 32
)

// Cache is safe for concurrent use.
type Cache struct {
	shards []*shard
	ttl    time.Duration
	now    func() time.Time
}

type shard struct {
	mu       sync.Mutex
	items    map[models.SubjectID]*list.Element
	lru      *list.List
	capacity int
}

type slot struct {
	restriction models.Restriction
	storedAt    time.Time
}

type entry struct {
	subject   models.SubjectID
	slots     map[models.Key]slot
	complete  bool
	expiresAt time.Time
}

type Option func(*config)

type config struct {
	ttl        time.Duration
	maxEntries int
	shards     int
	now        func() time.Time
}

// WithTTL bounds how long a loaded subject is trusted without a store read.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxEntries caps the number of cached subjects across all shards.
func WithMaxEntries(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func WithShards(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shards = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

func New(opts ...Option) *Cache {
	cfg := config{
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		shards:     DefaultShards,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.shards > cfg.maxEntries {
		cfg.shards = cfg.maxEntries
	}
	perShard := (cfg.maxEntries + cfg.shards - 1) / cfg.shards

	c := &Cache{
		shards: make([]*shard, cfg.shards),
		ttl:    cfg.ttl,
		now:    cfg.now,
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			items:    make(map[models.SubjectID]*list.Element),
			lru:      list.New(),
			capacity: perShard,
		}
	}
	return c
}

// Now returns the cache clock. Callers record it before a store read and pass
// it to Fill so writes that land during the read are not lost.
func (c *Cache) Now() time.Time {
	return c.now()
}

func (c *Cache) shardFor(subject models.SubjectID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subject))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get returns the active restrictions of a fully loaded, unexpired subject.
// ok is false on a miss, in which case the caller must consult the store.
func (c *Cache) Get(subject models.SubjectID) (restrictions []models.Restriction, ok bool) {
	s := c.shardFor(subject)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	elem, found := s.items[subject]
	if !found {
		return nil, false
	}
	e := elem.Value.(*entry)
	if !e.complete || !now.Before(e.expiresAt) {
		return nil, false
	}
	s.lru.MoveToFront(elem)
	return e.active(now), true
}

// Stale returns the active restrictions of a loaded subject even when its TTL
// has elapsed. Used for degraded answers while the store is unreachable.
func (c *Cache) Stale(subject models.SubjectID) (restrictions []models.Restriction, ok bool) {
	s := c.shardFor(subject)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	elem, found := s.items[subject]
	if !found {
		return nil, false
	}
	e := elem.Value.(*entry)
	if !e.complete {
		return nil, false
	}
	return e.active(now), true
}

// Put merges one restriction. It is a no-op, returning false, when the cached
// revision for the same key is greater than or equal to r.Revision. A put for
// an unknown subject creates a partial entry that gates revisions but still
// reports a miss to Get.
func (c *Cache) Put(r models.Restriction) bool {
	s := c.shardFor(r.Subject.ID)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(r.Subject.ID, now.Add(c.ttl))
	key := r.Key()
	if cur, ok := e.slots[key]; ok && r.Revision <= cur.restriction.Revision {
		return false
	}
	e.slots[key] = slot{restriction: r, storedAt: now}
	return true
}

// Revision returns the cached revision for key, including revoked and expired
// slots. ok is false when the key has no slot.
func (c *Cache) Revision(key models.Key) (revision uint64, ok bool) {
	s := c.shardFor(key.Subject)
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, found := s.items[key.Subject]
	if !found {
		return 0, false
	}
	sl, found := elem.Value.(*entry).slots[key]
	if !found {
		return 0, false
	}
	return sl.restriction.Revision, true
}

// Fill replaces a subject's state with a store snapshot read at readStartedAt
// and marks it fully loaded. Cached slots written after the read began, holding
// a newer revision than the snapshot, or already inactive survive the
// replacement.
func (c *Cache) Fill(subject models.SubjectID, snapshot []models.Restriction, readStartedAt time.Time) {
	s := c.shardFor(subject)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(subject, now.Add(c.ttl))

	slots := make(map[models.Key]slot, len(snapshot))
	for _, r := range snapshot {
		key := r.Key()
		if cur, ok := slots[key]; ok && r.Revision <= cur.restriction.Revision {
			continue
		}
		slots[key] = slot{restriction: r, storedAt: readStartedAt}
	}
	for key, cur := range e.slots {
		fresh, ok := slots[key]
		switch {
		case ok && cur.restriction.Revision > fresh.restriction.Revision:
			slots[key] = cur
		case !ok && cur.storedAt.After(readStartedAt):
			slots[key] = cur
		case !ok && !cur.restriction.IsActiveAt(now):
			// Tombstones never appear in an active snapshot but must keep
			// gating late deliveries of older revisions.
			slots[key] = cur
		}
	}
	e.slots = slots
	e.complete = true
	e.expiresAt = now.Add(c.ttl)
}

// Invalidate drops a subject; the next Get misses.
func (c *Cache) Invalidate(subject models.SubjectID) {
	s := c.shardFor(subject)
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[subject]; ok {
		s.lru.Remove(elem)
		delete(s.items, subject)
	}
}

// Purge drops every entry.
func (c *Cache) Purge() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.items = make(map[models.SubjectID]*list.Element)
		s.lru.Init()
		s.mu.Unlock()
	}
}

// Len returns the number of cached subjects.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

// getOrCreate must be called with s.mu held.
func (s *shard) getOrCreate(subject models.SubjectID, expiresAt time.Time) *entry {
	if elem, ok := s.items[subject]; ok {
		s.lru.MoveToFront(elem)
		return elem.Value.(*entry)
	}
	e := &entry{
		subject:   subject,
		slots:     make(map[models.Key]slot),
		expiresAt: expiresAt,
	}
	s.items[subject] = s.lru.PushFront(e)
	for len(s.items) > s.capacity {
		oldest := s.lru.Back()
		if oldest == nil {
			break
		}
		s.lru.Remove(oldest)
		delete(s.items, oldest.Value.(*entry).subject)
	}
	return e
}

func (e *entry) active(now time.Time) []models.Restriction {
	out := make([]models.Restriction, 0, len(e.slots))
	for _, sl := range e.slots {
		if sl.restriction.IsActiveAt(now) {
			out = append(out, sl.restriction)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind.Severity() != out[j].Kind.Severity() {
			return out[i].Kind.Severity() > out[j].Kind.Severity()
		}
		return out[i].Scope < out[j].Scope
	})
	return out
}
