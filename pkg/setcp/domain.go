// Package setcp provides set-variable constraint programming: set domains
// bounded by a greatest lower bound (elements known to be in the set) and a
// least upper bound (elements that may still be in it), a model of set
// variables and constraints, a copy-on-write solver and the propagators that
// narrow the bounds.
//
// This file defines SetDomain, the immutable bound pair of a set variable.
package setcp

import (
	"errors"
	"fmt"

	"github.com/gitrdm/gokanset/pkg/rangeset"
)

// ErrInconsistent is returned (wrapped) whenever bounds become contradictory:
// an element required by the lower bound is removed from the upper bound,
// the cardinality window becomes empty, or a propagator proves that no
// assignment within the current bounds satisfies its constraint.
// Search treats it as a dead branch, not as a bug.
var ErrInconsistent = errors.New("setcp: inconsistent bounds")

// SetDomain is the domain of a set variable: every value the variable can
// take is a set S with Glb ⊆ S ⊆ Lub and CardMin ≤ |S| ≤ CardMax.
//
// SetDomain is immutable. Include and Exclude return new domains, which is
// what lets the solver share domains between search branches without
// copying them.
//
// Domains are kept normalised:
//   - CardMin ≥ |Glb| and CardMax ≤ |Lub|
//   - |Lub| == CardMin forces Glb = Lub
//   - |Glb| == CardMax forces Lub = Glb
type SetDomain struct {
	glb     rangeset.Set
	lub     rangeset.Set
	cardMin int
	cardMax int
}

// NewSetDomain creates a domain with the given bounds and the widest
// cardinality window they allow. Returns an error wrapping ErrInconsistent
// if glb ⊄ lub, or rangeset.ErrNotCanonical if either bound is malformed.
func NewSetDomain(glb, lub rangeset.Set) (*SetDomain, error) {
	if err := glb.Validate(); err != nil {
		return nil, fmt.Errorf("lower bound: %w", err)
	}
	if err := lub.Validate(); err != nil {
		return nil, fmt.Errorf("upper bound: %w", err)
	}
	return (&SetDomain{
		glb:     glb,
		lub:     lub,
		cardMin: 0,
		cardMax: rangeset.MaxValue,
	}).normalize()
}

// MustSetDomain is like NewSetDomain but panics on error.
func MustSetDomain(glb, lub rangeset.Set) *SetDomain {
	d, err := NewSetDomain(glb, lub)
	if err != nil {
		panic(err)
	}
	return d
}

// WithCard returns a copy of d whose cardinality is further restricted to
// [min, max].
func (d *SetDomain) WithCard(min, max int) (*SetDomain, error) {
	nd := *d
	nd.cardMin = maxInt(d.cardMin, min)
	nd.cardMax = minInt(d.cardMax, max)
	return nd.normalize()
}

// normalize tightens the cardinality window against the bounds and decides
// the domain when the window leaves no choice.
func (d *SetDomain) normalize() (*SetDomain, error) {
	if !rangeset.Subset(d.glb.Iter(), d.lub.Iter()) {
		return nil, fmt.Errorf("%w: lower bound %v not within upper bound %v", ErrInconsistent, d.glb, d.lub)
	}
	glbSize, lubSize := d.glb.Size(), d.lub.Size()
	d.cardMin = maxInt(d.cardMin, glbSize)
	d.cardMax = minInt(d.cardMax, lubSize)
	if d.cardMin > d.cardMax {
		return nil, fmt.Errorf("%w: cardinality window [%d,%d] empty for bounds %v..%v",
			ErrInconsistent, d.cardMin, d.cardMax, d.glb, d.lub)
	}
	switch {
	case lubSize == d.cardMin && glbSize != lubSize:
		d.glb = d.lub
	case glbSize == d.cardMax && glbSize != lubSize:
		d.lub = d.glb
	}
	return d, nil
}

// Glb returns the lower bound: elements certainly in the set.
func (d *SetDomain) Glb() rangeset.Set {
	return d.glb
}

// Lub returns the upper bound: elements possibly in the set.
func (d *SetDomain) Lub() rangeset.Set {
	return d.lub
}

// CardMin returns the smallest admissible cardinality.
func (d *SetDomain) CardMin() int {
	return d.cardMin
}

// CardMax returns the largest admissible cardinality.
func (d *SetDomain) CardMax() int {
	return d.cardMax
}

// Unknown returns Lub − Glb, the elements not yet decided.
func (d *SetDomain) Unknown() rangeset.Set {
	return rangeset.Collect(rangeset.Diff(d.lub.Iter(), d.glb.Iter()))
}

// IsAssigned reports whether the domain holds exactly one set.
func (d *SetDomain) IsAssigned() bool {
	return d.glb.Equal(d.lub)
}

// Contains reports whether a is known to be in the set.
func (d *SetDomain) Contains(a int) bool {
	return d.glb.Contains(a)
}

// NotContains reports whether a is known to be absent from the set.
func (d *SetDomain) NotContains(a int) bool {
	return !d.lub.Contains(a)
}

// Include returns the domain with a added to the lower bound.
func (d *SetDomain) Include(a int) (*SetDomain, error) {
	if d.glb.Contains(a) {
		return d, nil
	}
	if !d.lub.Contains(a) {
		return nil, fmt.Errorf("%w: cannot include %d, not in upper bound %v", ErrInconsistent, a, d.lub)
	}
	nd := *d
	nd.glb = d.glb.Include(a)
	return nd.normalize()
}

// Exclude returns the domain with a removed from the upper bound.
func (d *SetDomain) Exclude(a int) (*SetDomain, error) {
	if !d.lub.Contains(a) {
		return d, nil
	}
	if d.glb.Contains(a) {
		return nil, fmt.Errorf("%w: cannot exclude %d, required by lower bound %v", ErrInconsistent, a, d.glb)
	}
	nd := *d
	nd.lub = d.lub.Exclude(a)
	return nd.normalize()
}

// IncludeSet returns the domain with every element of s added to the lower
// bound.
func (d *SetDomain) IncludeSet(s rangeset.Set) (*SetDomain, error) {
	if rangeset.Subset(s.Iter(), d.glb.Iter()) {
		return d, nil
	}
	if missing := rangeset.Collect(rangeset.Diff(s.Iter(), d.lub.Iter())); !missing.Empty() {
		return nil, fmt.Errorf("%w: cannot include %v, not in upper bound %v", ErrInconsistent, missing, d.lub)
	}
	nd := *d
	nd.glb = rangeset.Collect(rangeset.Union(d.glb.Iter(), s.Iter()))
	return nd.normalize()
}

// IntersectLub returns the domain with the upper bound restricted to s.
func (d *SetDomain) IntersectLub(s rangeset.Set) (*SetDomain, error) {
	if rangeset.Subset(d.lub.Iter(), s.Iter()) {
		return d, nil
	}
	nd := *d
	nd.lub = rangeset.Collect(rangeset.Inter(d.lub.Iter(), s.Iter()))
	return nd.normalize()
}

// Equal reports whether both domains have the same bounds and cardinality
// window.
func (d *SetDomain) Equal(other *SetDomain) bool {
	if d == other {
		return true
	}
	if d == nil || other == nil {
		return false
	}
	return d.cardMin == other.cardMin && d.cardMax == other.cardMax &&
		d.glb.Equal(other.glb) && d.lub.Equal(other.lub)
}

// String renders the domain as "{1}..{1..4}#[2,3]".
func (d *SetDomain) String() string {
	if d.IsAssigned() {
		return d.glb.String()
	}
	return fmt.Sprintf("%v..%v#[%d,%d]", d.glb, d.lub, d.cardMin, d.cardMax)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
