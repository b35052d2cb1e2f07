// Package setcp provides set-variable constraint programming infrastructure.
// This file defines the Model abstraction for declaratively building set
// constraint problems.
package setcp

import (
	"fmt"
	"sync"

	"github.com/gitrdm/gokanset/pkg/rangeset"
)

// Model is a set constraint satisfaction problem: set variables with
// initial domains, the constraints posted over them, and solver
// configuration.
//
// Models are built incrementally and must not change once solving starts,
// which makes them safe to share between solver instances and parallel
// workers.
type Model struct {
	// variables holds all decision variables in order of creation
	variables []*SetVariable

	// constraints holds all constraints posted to the model
	constraints []ModelConstraint

	// variableIndex maps variable IDs to variables
	variableIndex map[int]*SetVariable

	// config holds solver configuration
	config *SolverConfig

	// mu protects the model during construction
	mu sync.RWMutex
}

// ModelConstraint is a constraint posted to a model.
type ModelConstraint interface {
	// Variables returns the variables involved in this constraint.
	Variables() []*SetVariable

	// Type returns a string identifying the constraint kind.
	Type() string

	// String returns a human-readable representation.
	String() string
}

// NewModel creates an empty model with default configuration.
func NewModel() *Model {
	return NewModelWithConfig(nil)
}

// NewModelWithConfig creates a model with custom solver configuration.
func NewModelWithConfig(config *SolverConfig) *Model {
	if config == nil {
		config = DefaultSolverConfig()
	}
	return &Model{
		variables:     make([]*SetVariable, 0),
		constraints:   make([]ModelConstraint, 0),
		variableIndex: make(map[int]*SetVariable),
		config:        config,
	}
}

// NewSetVariable adds a variable with the given initial domain.
func (m *Model) NewSetVariable(domain *SetDomain) *SetVariable {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := NewSetVariable(len(m.variables), domain)
	m.variables = append(m.variables, v)
	m.variableIndex[v.ID()] = v
	return v
}

// NewSetVariableWithName adds a named variable.
func (m *Model) NewSetVariableWithName(domain *SetDomain, name string) *SetVariable {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := NewSetVariableWithName(len(m.variables), domain, name)
	m.variables = append(m.variables, v)
	m.variableIndex[v.ID()] = v
	return v
}

// NewSetVariableFromBounds adds a variable with domain glb..lub.
func (m *Model) NewSetVariableFromBounds(glb, lub rangeset.Set) (*SetVariable, error) {
	d, err := NewSetDomain(glb, lub)
	if err != nil {
		return nil, err
	}
	return m.NewSetVariable(d), nil
}

// NewSetVariables adds count variables sharing the same initial domain.
// Sharing is safe because domains are immutable.
func (m *Model) NewSetVariables(count int, domain *SetDomain) []*SetVariable {
	vars := make([]*SetVariable, count)
	for i := range vars {
		vars[i] = m.NewSetVariable(domain)
	}
	return vars
}

// GetVariable returns the variable with the given ID, or nil.
func (m *Model) GetVariable(id int) *SetVariable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.variableIndex[id]
}

// Variables returns all variables in creation order.
// The returned slice should not be modified.
func (m *Model) Variables() []*SetVariable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.variables
}

// VariableCount returns the number of variables.
func (m *Model) VariableCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.variables)
}

// AddConstraint posts a constraint to the model.
func (m *Model) AddConstraint(constraint ModelConstraint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constraints = append(m.constraints, constraint)
}

// Constraints returns all posted constraints.
// The returned slice should not be modified.
func (m *Model) Constraints() []ModelConstraint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.constraints
}

// ConstraintCount returns the number of posted constraints.
func (m *Model) ConstraintCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.constraints)
}

// Config returns the solver configuration.
func (m *Model) Config() *SolverConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig replaces the solver configuration. Nil is ignored.
func (m *Model) SetConfig(config *SolverConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if config != nil {
		m.config = config
	}
}

// String returns a short summary of the model.
func (m *Model) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("Model{variables: %d, constraints: %d}", len(m.variables), len(m.constraints))
}

// Validate checks that the model is ready for solving: every variable has
// a domain and every constraint references variables of this model.
func (m *Model) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.variables {
		if v.Domain() == nil {
			return fmt.Errorf("variable %s has no domain", v.Name())
		}
	}
	for _, c := range m.constraints {
		for _, v := range c.Variables() {
			if m.variableIndex[v.ID()] != v {
				return fmt.Errorf("constraint %s references unknown variable %d", c.Type(), v.ID())
			}
		}
	}
	return nil
}
