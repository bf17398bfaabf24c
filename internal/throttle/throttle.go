// Package throttle provides the in-process activity cache that de-duplicates
// "last seen" writes. It is advisory only: losing the cache on restart costs
// one extra write per session, never correctness, so it needs no
// cross-instance coordination.
package throttle

import (
	"sync"
	"time"
)

// Config controls write spacing and eviction.
type Config struct {
	// MinInterval is the floor between two persisted activity writes for the
	// same session id.
	MinInterval time.Duration
	// MaxEntryAge evicts entries untouched for this long.
	MaxEntryAge time.Duration
	// SweepInterval is how often the eviction pass runs. Zero disables the
	// background sweeper (tests sweep manually).
	SweepInterval time.Duration
}

// Cache is the session-id → last-write map consulted before issuing a
// background activity touch. A nil *Cache is valid and always says "write".
type Cache struct {
	cfg       Config
	mu        sync.Mutex
	entries   map[string]time.Time
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Cache and starts its sweeper when SweepInterval is set.
func New(cfg Config) *Cache {
	c := &Cache{
		cfg:     cfg,
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop()
	}

	return c
}

// ShouldWrite reports whether a persisted activity write is due for the
// session and, when it is, records now as the last write.
func (c *Cache) ShouldWrite(sessionID string, now time.Time) bool {
	if c == nil {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.entries[sessionID]
	if ok && now.Sub(last) < c.cfg.MinInterval {
		return false
	}
	c.entries[sessionID] = now
	return true
}

// Forget drops a session's entry, typically on revocation.
func (c *Cache) Forget(sessionID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, sessionID)
	c.mu.Unlock()
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep evicts entries older than MaxEntryAge relative to now.
func (c *Cache) Sweep(now time.Time) int {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for id, last := range c.entries {
		if now.Sub(last) > c.cfg.MaxEntryAge {
			delete(c.entries, id)
			evicted++
		}
	}
	return evicted
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			c.Sweep(now)
		case <-c.done:
			return
		}
	}
}

// Close stops the sweeper. Idempotent.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
	})
}
