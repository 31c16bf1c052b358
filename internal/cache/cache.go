// Package cache holds graph query results and manuscript reads in process
// memory with time-based expiry and chapter-aware invalidation.
//
// The cache is an optimization layer. Every payload must be reproducible from
// its source, so faults degrade to a miss and are never returned as errors.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Yates-Labs/storyloom/internal/clock"
)

// DefaultTTL is the entry lifetime used when Options.TTL is zero.
const DefaultTTL = 5 * time.Minute

// Options configures a Cache. Zero values select defaults.
type Options struct {
	TTL time.Duration
	// SweepInterval defaults to twice the TTL.
	SweepInterval time.Duration
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Stats is a point-in-time snapshot of the cache.
type Stats struct {
	Total   int
	Valid   int
	Expired int
	Hits    int64
	Misses  int64
}

type entry struct {
	key      Key
	payload  any
	storedAt time.Time
}

// Cache is safe for concurrent use. Bulk removals take the write lock once
// per key, so readers never wait longer than a single deletion.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	// gens counts invalidations per novel.
	gens    map[string]uint64

	ttl      time.Duration
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an empty cache. Call Start to run the background sweeper.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 2 * opts.TTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Cache{
		entries:  make(map[string]*entry),
		gens:     make(map[string]uint64),
		ttl:      opts.TTL,
		interval: opts.SweepInterval,
		clock:    opts.Clock,
		logger:   opts.Logger.With("component", "cache"),
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.storedAt) > c.ttl
}

// Get returns the payload stored under key if it is younger than the TTL.
// An expired entry is evicted by the lookup.
func (c *Cache) Get(key Key) (any, bool) {
	if err := key.Valid(); err != nil {
		c.misses.Add(1)
		return nil, false
	}
	fp := key.String()
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.entries[fp]
	if ok && !c.expired(e, now) {
		payload := e.payload
		c.mu.RUnlock()
		c.hits.Add(1)
		return payload, true
	}
	c.mu.RUnlock()

	if ok {
		c.removeIf(fp, func(cur *entry) bool { return c.expired(cur, now) })
	}
	c.misses.Add(1)
	return nil, false
}

// Put stores payload under key, replacing any previous entry.
func (c *Cache) Put(key Key, payload any) {
	if err := key.Valid(); err != nil {
		c.logger.Warn("dropping cache write", "key", key.String(), "error", err)
		return
	}

	e := &entry{key: key, payload: payload, storedAt: c.clock.Now()}

	c.mu.Lock()
	c.entries[key.String()] = e
	c.mu.Unlock()
}

// Generation returns the novel's invalidation counter. Read it before
// fetching a payload and pass it to PutAt.
func (c *Cache) Generation(novelID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[novelID]
}

// PutAt stores payload only if no invalidation of the key's novel happened
// since gen was read. It reports whether the payload was stored.
func (c *Cache) PutAt(key Key, payload any, gen uint64) bool {
	if err := key.Valid(); err != nil {
		c.logger.Warn("dropping cache write", "key", key.String(), "error", err)
		return false
	}

	e := &entry{key: key, payload: payload, storedAt: c.clock.Now()}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key.NovelID] != gen {
		return false
	}
	c.entries[key.String()] = e
	return true
}

func (c *Cache) bump(novelID string) {
	c.mu.Lock()
	c.gens[novelID]++
	c.mu.Unlock()
}

// InvalidateNovel removes every entry of the novel and returns the count.
func (c *Cache) InvalidateNovel(novelID string) int {
	c.bump(novelID)
	n := c.removeMatching(func(e *entry) bool {
		return e.key.NovelID == novelID
	})
	c.logger.Debug("invalidated novel", "novel", novelID, "removed", n)
	return n
}

// InvalidateFromChapter removes entries of the novel whose chapter is at or
// after chapter. Novel-wide entries are kept.
func (c *Cache) InvalidateFromChapter(novelID string, chapter int) int {
	c.bump(novelID)
	n := c.removeMatching(func(e *entry) bool {
		return e.key.NovelID == novelID && e.key.HasChapter() && e.key.Chapter >= chapter
	})
	c.logger.Debug("invalidated chapters", "novel", novelID, "from", chapter, "removed", n)
	return n
}

// SweepExpired removes all expired entries and returns the count.
func (c *Cache) SweepExpired() int {
	now := c.clock.Now()
	n := c.removeMatching(func(e *entry) bool { return c.expired(e, now) })
	if n > 0 {
		c.logger.Debug("swept expired entries", "removed", n)
	}
	return n
}

// removeMatching snapshots matching fingerprints under the read lock, then
// deletes them one write lock at a time, rechecking each entry.
func (c *Cache) removeMatching(match func(*entry) bool) int {
	c.mu.RLock()
	var victims []string
	for fp, e := range c.entries {
		if match(e) {
			victims = append(victims, fp)
		}
	}
	c.mu.RUnlock()

	removed := 0
	for _, fp := range victims {
		if c.removeIf(fp, match) {
			removed++
		}
	}
	return removed
}

func (c *Cache) removeIf(fp string, match func(*entry) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fp]
	if !ok || !match(e) {
		return false
	}
	delete(c.entries, fp)
	return true
}

// Stats reports entry counts against the current clock plus hit counters.
func (c *Cache) Stats() Stats {
	now := c.clock.Now()

	c.mu.RLock()
	s := Stats{Total: len(c.entries)}
	for _, e := range c.entries {
		if c.expired(e, now) {
			s.Expired++
		} else {
			s.Valid++
		}
	}
	c.mu.RUnlock()

	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	return s
}

// Start launches the background sweeper. It stops when ctx is cancelled or
// Close is called. Calling Start twice is a no-op.
func (c *Cache) Start(ctx context.Context) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	ticker := c.clock.NewTicker(c.interval)
	go c.sweepLoop(ctx, ticker, c.done)
}

func (c *Cache) sweepLoop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SweepExpired()
		}
	}
}

// Close stops the sweeper and waits for it to exit. Entries are kept.
func (c *Cache) Close() {
	c.lifecycle.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
