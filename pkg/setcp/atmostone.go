// Package setcp provides set-variable constraint programming.
// This file implements the AtMostOne propagator.
package setcp

import (
	"fmt"

	"github.com/google/uuid"
	set "github.com/hashicorp/go-set/v3"

	"github.com/gitrdm/gokanset/pkg/rangeset"
)

// AtMostOneKind is the stable name of the AtMostOne constraint kind.
const AtMostOneKind = "setcp.AtMostOne"

// AtMostOne bounds how many of its set variables may share a value.
//
// For sets of cardinality c that pairwise share at most one element, every
// set containing a value a needs c−1 further elements of its own, all drawn
// from T(a), the union of the upper bounds of the sets that may still
// contain a. Hence at most (|T(a)|−1)/(c−1) sets can contain a. The
// propagator enforces that bound with three rules per value a:
//
//   - Rule A: more sets already contain a than allowed → fail.
//   - Rule B: exactly as many as allowed → remove a from every other set.
//   - Rule C: if Δ(a) = T(a) − ∪{glb(s) | a ∈ glb(s)} has exactly c−1
//     elements, a set that takes a must take all of Δ(a), so a is removed
//     from every undecided set whose upper bound does not cover Δ(a).
//
// The reasoning follows Sadler and Gervet, "Global Reasoning on Sets"
// (FORMUL'01). Each pass recomputes everything from the current bounds;
// no state survives between passes.
type AtMostOne struct {
	id   string
	vars []*SetVariable
	c    int
}

// NewAtMostOne creates the propagator over vars with threshold c.
// Returns ErrInvalidConstraint if vars is empty, contains nil or the same
// variable twice, or if c < 2.
func NewAtMostOne(vars []*SetVariable, c int) (*AtMostOne, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("%w: AtMostOne requires at least one variable", ErrInvalidConstraint)
	}
	if c < 2 {
		return nil, fmt.Errorf("%w: AtMostOne requires c >= 2, got %d", ErrInvalidConstraint, c)
	}
	varsCopy := make([]*SetVariable, len(vars))
	seen := set.New[int](len(vars))
	for i, v := range vars {
		if v == nil {
			return nil, fmt.Errorf("%w: AtMostOne variable %d is nil", ErrInvalidConstraint, i)
		}
		if !seen.Insert(v.ID()) {
			return nil, fmt.Errorf("%w: AtMostOne variable %s appears twice", ErrInvalidConstraint, v.Name())
		}
		varsCopy[i] = v
	}
	return &AtMostOne{
		id:   "atmostone-" + uuid.NewString(),
		vars: varsCopy,
		c:    c,
	}, nil
}

// PostAtMostOne fixes the cardinality of every variable to exactly c, then
// posts AtMostOne over them: the variables become c-element sets that
// pairwise share at most one element. Must be called during model
// construction. On error no variable is modified and nothing is posted.
func PostAtMostOne(model *Model, vars []*SetVariable, c int) (*AtMostOne, error) {
	prop, err := NewAtMostOne(vars, c)
	if err != nil {
		return nil, err
	}
	fixed := make([]*SetDomain, len(vars))
	for i, v := range vars {
		d, err := v.Domain().WithCard(c, c)
		if err != nil {
			return nil, fmt.Errorf("post AtMostOne: variable %s: %w", v.Name(), err)
		}
		fixed[i] = d
	}
	for i, v := range vars {
		v.SetDomain(fixed[i])
	}
	model.AddConstraint(prop)
	return prop, nil
}

// ID returns the unique identifier of this instance.
func (p *AtMostOne) ID() string {
	return p.id
}

// C returns the threshold parameter.
func (p *AtMostOne) C() int {
	return p.c
}

// Variables implements ModelConstraint.
func (p *AtMostOne) Variables() []*SetVariable {
	return p.vars
}

// Type implements ModelConstraint.
func (p *AtMostOne) Type() string {
	return AtMostOneKind
}

// String implements ModelConstraint.
func (p *AtMostOne) String() string {
	ids := make([]int, len(p.vars))
	for i, v := range p.vars {
		ids[i] = v.ID()
	}
	return fmt.Sprintf("AtMostOne(%v, c=%d)", ids, p.c)
}

// Clone implements PropagationConstraint. The clone gets a fresh ID and its
// own variable slice; bounds are always read through the Store, so the
// clone never sees narrowing done for another branch.
func (p *AtMostOne) Clone() PropagationConstraint {
	varsCopy := make([]*SetVariable, len(p.vars))
	copy(varsCopy, p.vars)
	return &AtMostOne{
		id:   "atmostone-" + uuid.NewString(),
		vars: varsCopy,
		c:    p.c,
	}
}

// Spec implements PropagationConstraint.
func (p *AtMostOne) Spec() ConstraintSpec {
	ids := make([]int, len(p.vars))
	for i, v := range p.vars {
		ids[i] = v.ID()
	}
	return ConstraintSpec{Kind: AtMostOneKind, Vars: ids, C: p.c}
}

// Propagate implements PropagationConstraint.
func (p *AtMostOne) Propagate(store Store) (Status, error) {
	log := store.Logger().WithValues("constraint", p.id)

	lubs := make([]rangeset.Iterator, len(p.vars))
	for i, v := range p.vars {
		lubs[i] = store.Upper(v).Iter()
	}
	candidates := rangeset.Values(rangeset.Union(lubs...))

	status := StatusUnchanged
	for a, ok := candidates.Next(); ok; a, ok = candidates.Next() {
		// count sets whose lower bound holds a; collect upper bounds of the
		// sets that may still hold a
		count := 0
		var reach []rangeset.Set
		var holders []rangeset.Set
		for _, v := range p.vars {
			d := store.Domain(v)
			if d.Contains(a) {
				count++
				holders = append(holders, d.Glb())
			}
			if !d.NotContains(a) {
				reach = append(reach, d.Lub())
			}
		}
		if len(reach) == 0 {
			continue
		}

		maxAllowed := (rangeset.Size(rangeset.Union(iters(reach)...)) - 1) / (p.c - 1)

		if count > maxAllowed {
			log.V(4).Info("rule A: too many sets hold value", "value", a, "count", count, "max", maxAllowed)
			return StatusFailed, fmt.Errorf("%w: %s: value %d is in %d sets, at most %d allowed",
				ErrInconsistent, p, a, count, maxAllowed)
		}

		if count == maxAllowed {
			for _, v := range p.vars {
				d := store.Domain(v)
				if d.Contains(a) || d.NotContains(a) {
					continue
				}
				log.V(4).Info("rule B: quota full, excluding", "value", a, "variable", v.Name())
				if err := store.Exclude(v, a); err != nil {
					return StatusFailed, err
				}
				status = StatusChanged
			}
			continue
		}

		delta := rangeset.Cache(rangeset.Diff(
			rangeset.Union(iters(reach)...),
			rangeset.Union(iters(holders)...),
		))
		if rangeset.Size(delta) != p.c-1 {
			continue
		}
		for _, v := range p.vars {
			d := store.Domain(v)
			if d.Contains(a) || d.NotContains(a) {
				continue
			}
			delta.Reset()
			if rangeset.Subset(delta, d.Lub().Iter()) {
				continue
			}
			log.V(4).Info("rule C: upper bound cannot cover delta, excluding",
				"value", a, "variable", v.Name(), "delta", delta.Set())
			if err := store.Exclude(v, a); err != nil {
				return StatusFailed, err
			}
			status = StatusChanged
		}
	}
	return status, nil
}

func iters(sets []rangeset.Set) []rangeset.Iterator {
	its := make([]rangeset.Iterator, len(sets))
	for i, s := range sets {
		its[i] = s.Iter()
	}
	return its
}
