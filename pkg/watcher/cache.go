package watcher

// evictionCache is a bounded FIFO set of conversation ids. It keeps a
// just-processed conversation from being re-selected before the mailbox
// UI has caught up, without growing unbounded: once full, the oldest
// entry is evicted first.
type evictionCache struct {
	capacity int
	order    []string
	present  map[string]struct{}
}

func newEvictionCache(capacity int) *evictionCache {
	return &evictionCache{
		capacity: capacity,
		present:  make(map[string]struct{}, capacity),
	}
}

// Add inserts id unless already present, evicting the oldest entries to
// stay within capacity.
func (c *evictionCache) Add(id string) {
	if _, ok := c.present[id]; ok {
		return
	}
	c.order = append(c.order, id)
	c.present[id] = struct{}{}
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.present, oldest)
	}
}

// Contains reports whether id is cached.
func (c *evictionCache) Contains(id string) bool {
	_, ok := c.present[id]
	return ok
}

// Snapshot returns the cached ids as a set.
func (c *evictionCache) Snapshot() map[string]bool {
	out := make(map[string]bool, len(c.order))
	for id := range c.present {
		out[id] = true
	}
	return out
}

// Ordered returns the cached ids oldest first.
func (c *evictionCache) Ordered() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of cached ids.
func (c *evictionCache) Len() int { return len(c.order) }
