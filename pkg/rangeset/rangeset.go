// Package rangeset implements finite integer sets represented as canonical
// sequences of closed ranges, together with the lazy range-iterator algebra
// (n-ary union, difference, intersection, subset, cardinality, value
// enumeration and caching) used by set-variable propagators.
//
// A range sequence is canonical when its ranges are strictly increasing,
// pairwise disjoint and non-adjacent: {[1,3],[5,5]} is canonical,
// {[1,3],[4,5]} and {[3,4],[1,2]} are not. Every operation in this package
// requires canonical input and produces canonical output. Feeding a
// non-canonical sequence to an iterator is a programming error and panics
// with ErrNotCanonical.
package rangeset

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Limits of the value domain. Keeping values well inside the int range means
// Max+1 and Min-1 never overflow inside the algebra.
const (
	MinValue = -(1 << 30)
	MaxValue = 1 << 30
)

// ErrNotCanonical reports a range sequence that is unsorted, overlapping,
// adjacent, reversed or outside [MinValue, MaxValue].
var ErrNotCanonical = errors.New("rangeset: range sequence is not canonical")

// Range is the closed integer interval [Min, Max].
type Range struct {
	Min int
	Max int
}

// Size returns the number of integers covered by the range.
func (r Range) Size() int {
	return r.Max - r.Min + 1
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// String returns "a..b", or "a" for a single value.
func (r Range) String() string {
	if r.Min == r.Max {
		return fmt.Sprintf("%d", r.Min)
	}
	return fmt.Sprintf("%d..%d", r.Min, r.Max)
}

// Set is a finite set of integers stored as a canonical range sequence.
// The zero value is the empty set. Sets are treated as immutable values:
// every method that changes membership returns a new Set.
type Set []Range

// New validates ranges and returns them as a Set.
func New(ranges ...Range) (Set, error) {
	s := Set(ranges)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	out := make(Set, len(ranges))
	copy(out, ranges)
	return out, nil
}

// Must is like New but panics on non-canonical input.
// Intended for literals in tests and examples.
func Must(ranges ...Range) Set {
	s, err := New(ranges...)
	if err != nil {
		panic(err)
	}
	return s
}

// Interval returns the set {lo, ..., hi}, or the empty set when lo > hi.
// It panics with ErrNotCanonical if the range leaves [MinValue, MaxValue].
func Interval(lo, hi int) Set {
	if lo > hi {
		return nil
	}
	return Must(Range{lo, hi})
}

// Of builds the set containing the given values. Values may be unsorted
// and may repeat. Of panics with ErrNotCanonical if a value lies outside
// [MinValue, MaxValue].
func Of(values ...int) Set {
	if len(values) == 0 {
		return nil
	}
	vs := make([]int, len(values))
	copy(vs, values)
	sort.Ints(vs)

	out := make(Set, 0, len(vs))
	cur := Range{vs[0], vs[0]}
	for _, v := range vs[1:] {
		if v <= cur.Max+1 {
			if v > cur.Max {
				cur.Max = v
			}
			continue
		}
		out = append(out, cur)
		cur = Range{v, v}
	}
	out = append(out, cur)
	if err := out.Validate(); err != nil {
		panic(err)
	}
	return out
}

// Validate returns ErrNotCanonical (wrapped with the offending position)
// if s is not a canonical range sequence.
func (s Set) Validate() error {
	for i, r := range s {
		if r.Min > r.Max || r.Min < MinValue || r.Max > MaxValue {
			return fmt.Errorf("%w: range %d is %v", ErrNotCanonical, i, r)
		}
		if i > 0 && !follows(s[i-1], r) {
			return fmt.Errorf("%w: range %d (%v) does not follow %v", ErrNotCanonical, i, r, s[i-1])
		}
	}
	return nil
}

// follows reports whether next may come directly after prev in a canonical
// sequence: strictly greater and separated by at least one missing value.
func follows(prev, next Range) bool {
	return next.Min > prev.Max && next.Min-1 != prev.Max
}

// Empty reports whether s has no elements.
func (s Set) Empty() bool {
	return len(s) == 0
}

// Size returns the number of integers in s.
func (s Set) Size() int {
	n := 0
	for _, r := range s {
		n += r.Size()
	}
	return n
}

// Min returns the smallest element of s, or 0 if s is empty.
func (s Set) Min() int {
	if len(s) == 0 {
		return 0
	}
	return s[0].Min
}

// Max returns the largest element of s, or 0 if s is empty.
func (s Set) Max() int {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].Max
}

// Contains reports whether v is an element of s. O(log ranges).
func (s Set) Contains(v int) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].Max >= v })
	return i < len(s) && s[i].Min <= v
}

// Equal reports whether s and other contain the same elements.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Include returns s ∪ {v}.
func (s Set) Include(v int) Set {
	if s.Contains(v) {
		return s
	}
	return Collect(Union(s.Iter(), Set{{v, v}}.Iter()))
}

// Exclude returns s − {v}.
func (s Set) Exclude(v int) Set {
	if !s.Contains(v) {
		return s
	}
	return Collect(Diff(s.Iter(), Set{{v, v}}.Iter()))
}

// Iter returns a restartable iterator over the ranges of s.
func (s Set) Iter() Iterator {
	return &sliceIter{ranges: s}
}

// Values returns the elements of s in increasing order.
func (s Set) Values() []int {
	out := make([]int, 0, s.Size())
	s.IterateValues(func(v int) {
		out = append(out, v)
	})
	return out
}

// IterateValues calls f for each element of s in increasing order.
func (s Set) IterateValues(f func(value int)) {
	for _, r := range s {
		for v := r.Min; v <= r.Max; v++ {
			f(v)
		}
	}
}

// String renders s as e.g. "{1..3,7}".
func (s Set) String() string {
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
