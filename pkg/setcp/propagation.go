// Package setcp provides constraint propagation for set-variable constraint
// programming.
//
// This file defines the contract between propagators and the engine that
// owns variable bounds:
//   - Propagators read bounds and narrow them only through a Store
//   - Narrowing is visible to every later read within the same pass
//   - A failed narrowing is reported as an error wrapping ErrInconsistent
//   - The engine, not the propagator, decides when a fixpoint is reached
package setcp

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/gitrdm/gokanset/pkg/rangeset"
)

var (
	// ErrInvalidConstraint reports a constraint that cannot be posted:
	// no variables, a nil or duplicated variable, or a bad parameter.
	ErrInvalidConstraint = errors.New("setcp: invalid constraint")

	// ErrUnknownKind reports a ConstraintSpec whose kind has no constructor.
	ErrUnknownKind = errors.New("setcp: unknown constraint kind")
)

// Status is the result of one propagation pass.
type Status int

const (
	// StatusUnchanged means the pass narrowed nothing.
	StatusUnchanged Status = iota
	// StatusChanged means the pass narrowed at least one bound; running the
	// propagator again may narrow more.
	StatusChanged
	// StatusFailed means the current bounds admit no solution.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusUnchanged:
		return "unchanged"
	case StatusChanged:
		return "changed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Store is the engine-side view of variable bounds offered to propagators.
type Store interface {
	// Domain returns the current domain of v.
	Domain(v *SetVariable) *SetDomain

	// Lower returns the current lower bound of v.
	Lower(v *SetVariable) rangeset.Set

	// Upper returns the current upper bound of v.
	Upper(v *SetVariable) rangeset.Set

	// Exclude removes a from the upper bound of v. It returns an error
	// wrapping ErrInconsistent if that empties the domain.
	Exclude(v *SetVariable, a int) error

	// Logger returns the logger propagators should trace to.
	Logger() logr.Logger
}

// PropagationConstraint is a ModelConstraint with a filtering algorithm.
type PropagationConstraint interface {
	ModelConstraint

	// Propagate runs one pass over the bounds in store. It returns
	// StatusFailed together with an error wrapping ErrInconsistent when it
	// detects a contradiction; otherwise the error is nil and the status
	// tells whether anything was narrowed.
	//
	// Propagators keep no state between passes.
	Propagate(store Store) (Status, error)

	// Clone returns an independent copy observing the same variables.
	Clone() PropagationConstraint

	// Spec returns the description needed to rebuild the constraint.
	Spec() ConstraintSpec
}

// ConstraintSpec describes a posted constraint: its kind, its variables in
// order (by ID), and its integer parameter.
type ConstraintSpec struct {
	Kind string `json:"kind"`
	Vars []int  `json:"vars"`
	C    int    `json:"c"`
}

// Rebuild reconstructs the constraint described by spec over the variables
// of model and posts it. The set of kinds is closed; unknown kinds return
// ErrUnknownKind.
func Rebuild(model *Model, spec ConstraintSpec) (PropagationConstraint, error) {
	vars := make([]*SetVariable, len(spec.Vars))
	for i, id := range spec.Vars {
		v := model.GetVariable(id)
		if v == nil {
			return nil, fmt.Errorf("%w: %s references unknown variable %d", ErrInvalidConstraint, spec.Kind, id)
		}
		vars[i] = v
	}

	switch spec.Kind {
	case AtMostOneKind:
		c, err := NewAtMostOne(vars, spec.C)
		if err != nil {
			return nil, err
		}
		model.AddConstraint(c)
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}

// Arena is a self-contained Store: one domain per variable ID, held by
// value. Cloning an Arena copies the slice of domain pointers; domains are
// immutable, so the clone shares them until either side narrows.
//
// Arena is useful for running propagators outside a Solver and for
// explicit branch-by-copy exploration.
type Arena struct {
	domains []*SetDomain
	log     logr.Logger
}

// NewArena creates an arena holding the initial domains of vars. Variable
// IDs index the arena, so vars should come from a single model.
func NewArena(vars []*SetVariable) *Arena {
	maxID := -1
	for _, v := range vars {
		maxID = maxInt(maxID, v.ID())
	}
	a := &Arena{domains: make([]*SetDomain, maxID+1), log: logr.Discard()}
	for _, v := range vars {
		a.domains[v.ID()] = v.Domain()
	}
	return a
}

// WithLogger sets the logger returned by Logger.
func (a *Arena) WithLogger(log logr.Logger) *Arena {
	a.log = log
	return a
}

// Domain implements Store.
func (a *Arena) Domain(v *SetVariable) *SetDomain {
	return a.domains[v.ID()]
}

// Lower implements Store.
func (a *Arena) Lower(v *SetVariable) rangeset.Set {
	return a.domains[v.ID()].Glb()
}

// Upper implements Store.
func (a *Arena) Upper(v *SetVariable) rangeset.Set {
	return a.domains[v.ID()].Lub()
}

// Exclude implements Store.
func (a *Arena) Exclude(v *SetVariable, value int) error {
	d, err := a.domains[v.ID()].Exclude(value)
	if err != nil {
		return fmt.Errorf("exclude %d from %s: %w", value, v.Name(), err)
	}
	a.domains[v.ID()] = d
	return nil
}

// Include adds value to the lower bound of v.
func (a *Arena) Include(v *SetVariable, value int) error {
	d, err := a.domains[v.ID()].Include(value)
	if err != nil {
		return fmt.Errorf("include %d in %s: %w", value, v.Name(), err)
	}
	a.domains[v.ID()] = d
	return nil
}

// Set replaces the domain of v.
func (a *Arena) Set(v *SetVariable, d *SetDomain) {
	a.domains[v.ID()] = d
}

// Logger implements Store.
func (a *Arena) Logger() logr.Logger {
	return a.log
}

// Clone returns an independent arena with the same domains.
func (a *Arena) Clone() *Arena {
	domains := make([]*SetDomain, len(a.domains))
	copy(domains, a.domains)
	return &Arena{domains: domains, log: a.log}
}
