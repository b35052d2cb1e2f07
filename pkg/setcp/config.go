// Package setcp provides set-variable constraint programming infrastructure.
// This file defines solver configuration and search heuristics.
package setcp

import "fmt"

// VariableHeuristic selects which undecided variable to branch on.
type VariableHeuristic int

const (
	// HeuristicLex branches on the lowest-ID undecided variable.
	HeuristicLex VariableHeuristic = iota
	// HeuristicMinUnknown branches on the variable with the fewest undecided elements.
	HeuristicMinUnknown
	// HeuristicMaxUnknown branches on the variable with the most undecided elements.
	HeuristicMaxUnknown
)

// String returns the heuristic's name.
func (h VariableHeuristic) String() string {
	switch h {
	case HeuristicLex:
		return "lex"
	case HeuristicMinUnknown:
		return "min-unknown"
	case HeuristicMaxUnknown:
		return "max-unknown"
	default:
		return fmt.Sprintf("VariableHeuristic(%d)", int(h))
	}
}

// ValueHeuristic selects which alternative of a binary branch is tried first.
// Branching always picks the smallest undecided element a of the chosen
// variable and splits into "a ∈ S" and "a ∉ S".
type ValueHeuristic int

const (
	// IncludeFirst tries "a ∈ S" before "a ∉ S".
	IncludeFirst ValueHeuristic = iota
	// ExcludeFirst tries "a ∉ S" before "a ∈ S".
	ExcludeFirst
)

// String returns the heuristic's name.
func (h ValueHeuristic) String() string {
	switch h {
	case IncludeFirst:
		return "include-first"
	case ExcludeFirst:
		return "exclude-first"
	default:
		return fmt.Sprintf("ValueHeuristic(%d)", int(h))
	}
}

// SolverConfig holds solver configuration.
type SolverConfig struct {
	// VariableHeuristic picks the branching variable.
	VariableHeuristic VariableHeuristic

	// ValueHeuristic orders the two alternatives of each branch.
	ValueHeuristic ValueHeuristic

	// MaxPropagationIterations limits the number of scheduling rounds of one
	// fixpoint computation. Propagators only ever shrink finite bounds, so
	// the limit is a guard against buggy propagators.
	MaxPropagationIterations int
}

// DefaultSolverConfig returns the default configuration.
func DefaultSolverConfig() *SolverConfig {
	return &SolverConfig{
		VariableHeuristic:        HeuristicMinUnknown,
		ValueHeuristic:           IncludeFirst,
		MaxPropagationIterations: 1000,
	}
}
