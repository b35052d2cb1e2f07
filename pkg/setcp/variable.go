// Package setcp provides set-variable constraint programming abstractions.
// This file defines SetVariable, the decision variable whose value is a
// finite set of integers.
package setcp

import "fmt"

// SetVariable is a decision variable ranging over finite integer sets.
//
// SetVariable stores the initial domain only. During solving the Solver
// tracks the current domain of each variable by ID in a SolverState chain,
// so the variable itself can be shared by every search branch and every
// parallel worker.
type SetVariable struct {
	id     int        // Unique identifier within the model
	domain *SetDomain // Initial domain
	name   string     // Optional name for debugging
}

// NewSetVariable creates a variable with the given ID and initial domain.
func NewSetVariable(id int, domain *SetDomain) *SetVariable {
	return &SetVariable{
		id:     id,
		domain: domain,
		name:   fmt.Sprintf("s%d", id),
	}
}

// NewSetVariableWithName creates a named variable for easier debugging.
func NewSetVariableWithName(id int, domain *SetDomain, name string) *SetVariable {
	return &SetVariable{
		id:     id,
		domain: domain,
		name:   name,
	}
}

// ID returns the unique identifier of this variable.
func (v *SetVariable) ID() int {
	return v.id
}

// Domain returns the initial domain.
func (v *SetVariable) Domain() *SetDomain {
	return v.domain
}

// Name returns the variable's name.
func (v *SetVariable) Name() string {
	return v.name
}

// IsAssigned reports whether the initial domain is already decided.
func (v *SetVariable) IsAssigned() bool {
	return v.domain.IsAssigned()
}

// SetDomain replaces the initial domain during model construction.
// It must not be called once solving has started; solving tracks domain
// changes in SolverState instead.
func (v *SetVariable) SetDomain(domain *SetDomain) {
	v.domain = domain
}

// String returns a human-readable representation.
func (v *SetVariable) String() string {
	return fmt.Sprintf("%s∈%s", v.name, v.domain.String())
}
