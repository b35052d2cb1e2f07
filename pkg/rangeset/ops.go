package rangeset

// Subset reports whether a ⊆ b. It stops at the first element of a that b
// does not contain.
func Subset(a, b Iterator) bool {
	_, found := Diff(a, b).Next()
	return !found
}

// Size consumes it and returns the number of integers it covers.
func Size(it Iterator) int {
	n := 0
	for r, ok := it.Next(); ok; r, ok = it.Next() {
		n += r.Size()
	}
	return n
}

// Collect consumes it and returns its ranges as a Set.
func Collect(it Iterator) Set {
	var out Set
	for r, ok := it.Next(); ok; r, ok = it.Next() {
		out = append(out, r)
	}
	return out
}

// ValueIterator enumerates the individual integers of a range iterator in
// increasing order.
type ValueIterator struct {
	src     Iterator
	cur     Range
	next    int
	has     bool
	started bool
}

// Values wraps a range iterator into a value iterator.
func Values(it Iterator) *ValueIterator {
	return &ValueIterator{src: it}
}

// Next returns the next value and true, or 0 and false when exhausted.
func (vi *ValueIterator) Next() (int, bool) {
	if !vi.started {
		vi.started = true
		vi.cur, vi.has = vi.src.Next()
		vi.next = vi.cur.Min
	}
	if !vi.has {
		return 0, false
	}
	v := vi.next
	if v == vi.cur.Max {
		vi.cur, vi.has = vi.src.Next()
		vi.next = vi.cur.Min
	} else {
		vi.next++
	}
	return v, true
}

// Reset rewinds to the first value.
func (vi *ValueIterator) Reset() {
	vi.src.Reset()
	vi.started = false
}

// Cached is an Iterator that records the ranges of its source on the first
// scan and replays them on every later scan. The source is read at most
// once, so an expensive composed chain (a Diff of Unions, say) is computed
// a single time however often the result is rescanned.
type Cached struct {
	src    Iterator
	ranges []Range
	pos    int
	filled bool
}

// Cache wraps it in a caching adapter.
func Cache(it Iterator) *Cached {
	return &Cached{src: it}
}

// Next implements Iterator.
func (c *Cached) Next() (Range, bool) {
	if c.pos < len(c.ranges) {
		r := c.ranges[c.pos]
		c.pos++
		return r, true
	}
	if c.filled {
		return Range{}, false
	}
	r, ok := c.src.Next()
	if !ok {
		c.filled = true
		return Range{}, false
	}
	c.ranges = append(c.ranges, r)
	c.pos++
	return r, true
}

// Reset rewinds to the first range. If the first scan was abandoned early,
// the rest of the source is drained into the cache first.
func (c *Cached) Reset() {
	if !c.filled {
		for r, ok := c.src.Next(); ok; r, ok = c.src.Next() {
			c.ranges = append(c.ranges, r)
		}
		c.filled = true
	}
	c.pos = 0
}

// Set returns the cached ranges as a Set, completing the scan if needed.
// The cursor is left where it was.
func (c *Cached) Set() Set {
	pos := c.pos
	c.Reset()
	c.pos = pos
	out := make(Set, len(c.ranges))
	copy(out, c.ranges)
	return out
}
