package cache

import "sync/atomic"

// Counters tracks cache hit/miss/degraded-hit totals. All fields are
// monotonic and updated with relaxed atomic increments, matching the
// spec's counter semantics. The zero value is ready to use; a nil
// *Counters is also safe to record against (recording is a no-op) so
// callers that don't care about statistics can pass nil.
type Counters struct {
	hits         atomic.Int64
	misses       atomic.Int64
	degradedHits atomic.Int64
}

func (c *Counters) recordHit() {
	if c == nil {
		return
	}
	c.hits.Add(1)
}

func (c *Counters) recordMiss() {
	if c == nil {
		return
	}
	c.misses.Add(1)
}

func (c *Counters) recordDegradedHit() {
	if c == nil {
		return
	}
	c.degradedHits.Add(1)
}

// Hits returns the cumulative hit count.
func (c *Counters) Hits() int64 {
	if c == nil {
		return 0
	}
	return c.hits.Load()
}

// Misses returns the cumulative miss count.
func (c *Counters) Misses() int64 {
	if c == nil {
		return 0
	}
	return c.misses.Load()
}

// DegradedHits returns the cumulative degraded-hit count.
func (c *Counters) DegradedHits() int64 {
	if c == nil {
		return 0
	}
	return c.degradedHits.Load()
}
