package rangeset

import (
	"container/heap"
	"fmt"
)

// Iterator produces the ranges of a canonical sequence in increasing order.
// Iterators are lazy: composed iterators (Union of Diffs, ...) compute each
// range only when Next is called. Reset rewinds the iterator to its first
// range; for composed iterators this recomputes the whole chain, which is
// what Cache avoids.
type Iterator interface {
	// Next returns the next range and true, or the zero Range and false
	// once the sequence is exhausted.
	Next() (Range, bool)

	// Reset rewinds the iterator to the beginning of its sequence.
	Reset()
}

// sliceIter walks a Set, checking the canonical-form invariant as it goes.
type sliceIter struct {
	ranges Set
	pos    int
}

func (it *sliceIter) Next() (Range, bool) {
	if it.pos >= len(it.ranges) {
		return Range{}, false
	}
	r := it.ranges[it.pos]
	if r.Min > r.Max || r.Min < MinValue || r.Max > MaxValue ||
		(it.pos > 0 && !follows(it.ranges[it.pos-1], r)) {
		panic(fmt.Errorf("%w: %v at position %d", ErrNotCanonical, it.ranges, it.pos))
	}
	it.pos++
	return r, true
}

func (it *sliceIter) Reset() {
	it.pos = 0
}

// Union returns the n-ary union of its. Overlapping and adjacent ranges
// from different inputs are merged, so the result is canonical. The merge
// keeps one pending range per input in a min-heap: O(N log k) for N input
// ranges over k inputs. Union of no iterators is the empty set.
func Union(its ...Iterator) Iterator {
	return &union{its: its}
}

type heapItem struct {
	r   Range
	src int
}

type rangeHeap []heapItem

func (h rangeHeap) Len() int            { return len(h) }
func (h rangeHeap) Less(i, j int) bool  { return h[i].r.Min < h[j].r.Min }
func (h rangeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *rangeHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *rangeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type union struct {
	its     []Iterator
	pending rangeHeap
	started bool
}

func (u *union) fill(src int) {
	if r, ok := u.its[src].Next(); ok {
		heap.Push(&u.pending, heapItem{r: r, src: src})
	}
}

func (u *union) Next() (Range, bool) {
	if !u.started {
		u.started = true
		u.pending = make(rangeHeap, 0, len(u.its))
		for i := range u.its {
			u.fill(i)
		}
	}
	if len(u.pending) == 0 {
		return Range{}, false
	}

	top := heap.Pop(&u.pending).(heapItem)
	cur := top.r
	u.fill(top.src)
	for len(u.pending) > 0 && u.pending[0].r.Min <= cur.Max+1 {
		next := heap.Pop(&u.pending).(heapItem)
		if next.r.Max > cur.Max {
			cur.Max = next.r.Max
		}
		u.fill(next.src)
	}
	return cur, true
}

func (u *union) Reset() {
	for _, it := range u.its {
		it.Reset()
	}
	u.pending = u.pending[:0]
	u.started = false
}

// Diff returns the iterator of a − b.
func Diff(a, b Iterator) Iterator {
	return &diff{a: a, b: b}
}

type diff struct {
	a, b       Iterator
	ra, rb     Range
	hasA, hasB bool
	started    bool
	// advance is set once ra has been emitted whole; a is read again only
	// when the caller asks for more.
	advance bool
}

func (d *diff) Next() (Range, bool) {
	if !d.started {
		d.started = true
		d.ra, d.hasA = d.a.Next()
		d.rb, d.hasB = d.b.Next()
	}
	if d.advance {
		d.advance = false
		d.ra, d.hasA = d.a.Next()
	}
	for d.hasA {
		for d.hasB && d.rb.Max < d.ra.Min {
			d.rb, d.hasB = d.b.Next()
		}
		if !d.hasB || d.rb.Min > d.ra.Max {
			d.advance = true
			return d.ra, true
		}
		if d.rb.Min > d.ra.Min {
			// Emit the part of ra below rb; the remainder starts inside rb.
			out := Range{d.ra.Min, d.rb.Min - 1}
			d.ra.Min = d.rb.Min
			return out, true
		}
		if d.rb.Max >= d.ra.Max {
			d.ra, d.hasA = d.a.Next()
			continue
		}
		d.ra.Min = d.rb.Max + 1
		d.rb, d.hasB = d.b.Next()
	}
	return Range{}, false
}

func (d *diff) Reset() {
	d.a.Reset()
	d.b.Reset()
	d.started = false
	d.advance = false
}

// Inter returns the iterator of a ∩ b.
func Inter(a, b Iterator) Iterator {
	return &inter{a: a, b: b}
}

type inter struct {
	a, b       Iterator
	ra, rb     Range
	hasA, hasB bool
	started    bool
}

func (x *inter) Next() (Range, bool) {
	if !x.started {
		x.started = true
		x.ra, x.hasA = x.a.Next()
		x.rb, x.hasB = x.b.Next()
	}
	for x.hasA && x.hasB {
		if x.ra.Max < x.rb.Min {
			x.ra, x.hasA = x.a.Next()
			continue
		}
		if x.rb.Max < x.ra.Min {
			x.rb, x.hasB = x.b.Next()
			continue
		}
		out := Range{max(x.ra.Min, x.rb.Min), min(x.ra.Max, x.rb.Max)}
		if x.ra.Max < x.rb.Max {
			x.ra, x.hasA = x.a.Next()
		} else {
			x.rb, x.hasB = x.b.Next()
		}
		return out, true
	}
	return Range{}, false
}

func (x *inter) Reset() {
	x.a.Reset()
	x.b.Reset()
	x.started = false
}
