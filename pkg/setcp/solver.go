// Package setcp provides set-variable constraint solving infrastructure.
// This file implements the solver with copy-on-write state management.
//
// # Architecture Overview
//
// The solver separates the immutable problem definition from mutable
// solving state:
//
//	Model (immutable during solving):
//	  - Set variables with initial domains
//	  - Constraints over those variables
//	  - Shared by every search branch and parallel worker
//
//	SolverState (copy-on-write):
//	  - Chain of domain modifications, one variable per node
//	  - A branch is a new child of a shared parent node
//	  - Narrowing on one branch is never visible on another
//
// # How Propagation Works
//
//  1. A propagator reads bounds through a Store backed by the current state
//  2. Each successful Exclude appends a node to the chain immediately, so
//     later reads in the same pass see it
//  3. Propagators watching a changed variable are rescheduled
//  4. The loop stops when a full round changes nothing (fixpoint) or a
//     propagator fails
package setcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	set "github.com/hashicorp/go-set/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gitrdm/gokanset/pkg/rangeset"
)

const tracerName = "github.com/gitrdm/gokanset/pkg/setcp"

// Solution is one assignment: the value of every model variable, in
// variable ID order.
type Solution []rangeset.Set

// String renders the solution as "[{1..3} {4,7}]".
func (s Solution) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Outcome summarises one fixpoint computation.
type Outcome struct {
	// Status is StatusFailed on contradiction, StatusChanged if any domain
	// was narrowed, StatusUnchanged otherwise.
	Status Status

	// Rounds is the number of scheduling rounds run.
	Rounds int

	// Changed lists, in increasing order, the IDs of narrowed variables.
	Changed []int
}

// Solver propagates and searches set constraint models.
//
// Thread safety: a Solver may be used by several goroutines as long as each
// works on its own SolverState chain; SolveParallel does exactly that.
// Configuration setters must be called before solving.
type Solver struct {
	// model is the problem being solved (read-only during search)
	model *Model

	// config holds solver configuration and heuristics
	config *SolverConfig

	// propagators are the model's propagation constraints, in posting order
	propagators []PropagationConstraint

	// watchers maps a variable ID to the indexes of the propagators over it
	watchers map[int][]int

	// statePool recycles state nodes
	statePool *sync.Pool

	// monitor tracks solving statistics (optional)
	monitor *SolverMonitor

	// metrics exports Prometheus metrics (optional)
	metrics *Metrics

	log logr.Logger

	// baseState caches the root-level propagated state of the last Solve so
	// that GetDomain(nil, id) reports root propagation effects. Solve holds
	// one reference to it until the next Solve.
	baseState *SolverState
}

// SolverState is one node of a persistent chain of domain modifications.
// Each node records the new domain of a single variable; the domain of any
// variable is found by walking towards the root. Creating a node is O(1)
// and never affects other chains sharing the same ancestors.
type SolverState struct {
	// parent points to the previous state (nil for root)
	parent *SolverState

	// modifiedVarID is the ID of the variable whose domain changed
	modifiedVarID int

	// modifiedDomain is the new domain for the modified variable
	modifiedDomain *SetDomain

	// depth is the length of the chain up to and including this node
	depth int

	// refCount is the number of holders of this node: the caller that
	// created it plus each child node. At zero the node returns to the pool.
	refCount atomic.Int64
}

// Depth returns the number of modifications recorded up to this state.
func (st *SolverState) Depth() int {
	if st == nil {
		return 0
	}
	return st.depth
}

// NewSolver creates a solver for a fully constructed model.
func NewSolver(model *Model) *Solver {
	return NewSolverWithConfig(model, nil)
}

// NewSolverWithConfig creates a solver whose configuration overrides the
// model's.
func NewSolverWithConfig(model *Model, config *SolverConfig) *Solver {
	if config == nil {
		config = model.Config()
	}
	s := &Solver{
		model:    model,
		config:   config,
		watchers: make(map[int][]int),
		statePool: &sync.Pool{
			New: func() interface{} {
				return &SolverState{}
			},
		},
		log: logr.Discard(),
	}
	for _, mc := range model.Constraints() {
		pc, ok := mc.(PropagationConstraint)
		if !ok {
			continue
		}
		idx := len(s.propagators)
		s.propagators = append(s.propagators, pc)
		for _, v := range pc.Variables() {
			s.watchers[v.ID()] = append(s.watchers[v.ID()], idx)
		}
	}
	return s
}

// Model returns the model being solved.
func (s *Solver) Model() *Model {
	return s.model
}

// SetMonitor enables statistics collection.
func (s *Solver) SetMonitor(monitor *SolverMonitor) {
	s.monitor = monitor
}

// SetMetrics enables Prometheus metrics.
func (s *Solver) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
}

// SetLogger sets the logger used by the solver and handed to propagators.
func (s *Solver) SetLogger(log logr.Logger) {
	s.log = log
}

// GetDomain returns the domain of a variable in the given state.
// O(depth) in the worst case.
//
// The two read paths differ: a nil state reads the root-propagated
// domains of the last Solve, if any, while a non-nil state falls back to
// the model's initial domains for variables its chain never modified.
// States returned by Propagate and search already carry the root
// narrowing in their chain.
func (s *Solver) GetDomain(state *SolverState, varID int) *SetDomain {
	for current := state; current != nil; current = current.parent {
		if current.modifiedVarID == varID && current.modifiedDomain != nil {
			return current.modifiedDomain
		}
	}

	if state == nil && s.baseState != nil {
		for current := s.baseState; current != nil; current = current.parent {
			if current.modifiedVarID == varID && current.modifiedDomain != nil {
				return current.modifiedDomain
			}
		}
	}

	if varID >= 0 && varID < len(s.model.variables) {
		return s.model.variables[varID].Domain()
	}
	return nil
}

// SetDomain returns a child of state in which varID has the given domain,
// and true. If the domain equals the current one it returns state and
// false. The caller owns the returned node.
func (s *Solver) SetDomain(state *SolverState, varID int, domain *SetDomain) (*SolverState, bool) {
	if s.GetDomain(state, varID).Equal(domain) {
		return state, false
	}

	newState := s.statePool.Get().(*SolverState)
	newState.parent = state
	newState.modifiedVarID = varID
	newState.modifiedDomain = domain

	if state != nil {
		newState.depth = state.depth + 1
		state.refCount.Add(1)
	} else {
		newState.depth = 1
	}
	newState.refCount.Store(1)

	return newState, true
}

// ReleaseState drops the caller's hold on state. Nodes nobody holds any
// more go back to the pool, releasing their parents in turn.
func (s *Solver) ReleaseState(state *SolverState) {
	for cur := state; cur != nil; {
		if cur.refCount.Add(-1) > 0 {
			return
		}
		parent := cur.parent

		cur.parent = nil
		cur.modifiedDomain = nil
		cur.modifiedVarID = 0
		cur.depth = 0
		cur.refCount.Store(0)
		s.statePool.Put(cur)

		cur = parent
	}
}

// pass is the Store handed to propagators during one fixpoint computation.
// Writes extend the chain immediately.
type pass struct {
	solver  *Solver
	root    *SolverState
	state   *SolverState
	touched *set.Set[int]
	current string
}

func (p *pass) Domain(v *SetVariable) *SetDomain {
	return p.solver.GetDomain(p.state, v.ID())
}

func (p *pass) Lower(v *SetVariable) rangeset.Set {
	return p.Domain(v).Glb()
}

func (p *pass) Upper(v *SetVariable) rangeset.Set {
	return p.Domain(v).Lub()
}

func (p *pass) Exclude(v *SetVariable, a int) error {
	d, err := p.Domain(v).Exclude(a)
	if err != nil {
		return fmt.Errorf("exclude %d from %s: %w", a, v.Name(), err)
	}
	if p.update(v.ID(), d) {
		p.solver.metrics.exclusion(p.current)
		if p.solver.monitor != nil {
			p.solver.monitor.RecordExclusion()
		}
	}
	return nil
}

func (p *pass) Logger() logr.Logger {
	return p.solver.log
}

func (p *pass) update(varID int, d *SetDomain) bool {
	next, changed := p.solver.SetDomain(p.state, varID, d)
	if !changed {
		return false
	}
	// An intermediate node is now held by its child alone.
	if p.state != p.root {
		p.state.refCount.Add(-1)
	}
	p.state = next
	p.touched.Insert(varID)
	return true
}

// Propagate runs every propagator of the model to a fixpoint starting from
// state. On success it returns the narrowed state, owned by the caller
// (it is state itself when nothing changed). On contradiction it returns a
// nil state, an Outcome with StatusFailed and an error wrapping
// ErrInconsistent; state is left untouched.
func (s *Solver) Propagate(ctx context.Context, state *SolverState) (*SolverState, Outcome, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "setcp.Propagate",
		trace.WithAttributes(
			attribute.Int("propagators", len(s.propagators)),
			attribute.Int("depth", state.Depth()),
		))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, Outcome{}, err
	}
	next, out, err := s.propagate(state)
	span.SetAttributes(
		attribute.String("status", out.Status.String()),
		attribute.Int("rounds", out.Rounds),
		attribute.Int("changed", len(out.Changed)),
	)
	if err != nil && !errors.Is(err, ErrInconsistent) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "propagation did not converge")
	}
	return next, out, err
}

// propagate is the fixpoint loop:
//  1. Schedule every propagator
//  2. Run the scheduled propagators in posting order
//  3. Schedule the watchers of every variable a run narrowed
//  4. Repeat until a round narrows nothing
func (s *Solver) propagate(state *SolverState) (*SolverState, Outcome, error) {
	out := Outcome{Status: StatusUnchanged}
	if len(s.propagators) == 0 {
		return state, out, nil
	}

	start := time.Now()
	p := &pass{solver: s, root: state, state: state}
	changed := set.New[int](0)
	queue := set.New[int](len(s.propagators))
	for i := range s.propagators {
		queue.Insert(i)
	}

	fail := func(err error) (*SolverState, Outcome, error) {
		if p.state != state {
			s.ReleaseState(p.state)
		}
		out.Status = StatusFailed
		if s.monitor != nil {
			s.monitor.RecordFailure()
			s.monitor.RecordPropagation(time.Since(start))
		}
		s.metrics.fixpoint(out.Rounds)
		return nil, out, err
	}

	for queue.Size() > 0 {
		if out.Rounds >= s.config.MaxPropagationIterations {
			return fail(fmt.Errorf("propagation failed to reach fixed-point after %d iterations", out.Rounds))
		}
		out.Rounds++
		if s.monitor != nil {
			s.monitor.RecordQueueSize(queue.Size())
		}

		pending := queue.Slice()
		sort.Ints(pending)
		queue = set.New[int](len(s.propagators))

		for _, idx := range pending {
			prop := s.propagators[idx]
			p.current = prop.Type()
			p.touched = set.New[int](0)

			status, err := prop.Propagate(p)
			s.metrics.propagation(prop.Type())
			if status == StatusFailed && err == nil {
				err = fmt.Errorf("%w: %s failed", ErrInconsistent, prop)
			}
			if err != nil {
				s.metrics.failure(prop.Type())
				s.log.V(2).Info("propagation failed", "constraint", prop.String(), "round", out.Rounds, "reason", err.Error())
				return fail(err)
			}

			for _, id := range p.touched.Slice() {
				changed.Insert(id)
				for _, w := range s.watchers[id] {
					queue.Insert(w)
				}
			}
		}
	}

	if p.state != state {
		out.Status = StatusChanged
	}
	out.Changed = changed.Slice()
	sort.Ints(out.Changed)

	if s.monitor != nil {
		s.monitor.RecordPropagation(time.Since(start))
	}
	s.metrics.fixpoint(out.Rounds)
	s.log.V(2).Info("fixpoint reached", "rounds", out.Rounds, "changed", len(out.Changed), "depth", p.state.Depth())
	return p.state, out, nil
}

// Solve searches for solutions. It returns up to maxSolutions solutions,
// or all of them if maxSolutions <= 0. A model that is inconsistent at the
// root yields an empty result and no error.
//
// The search can be cancelled via the context.
func (s *Solver) Solve(ctx context.Context, maxSolutions int) ([]Solution, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "setcp.Solve",
		trace.WithAttributes(
			attribute.Int("variables", s.model.VariableCount()),
			attribute.Int("constraints", s.model.ConstraintCount()),
			attribute.Int("max_solutions", maxSolutions),
		))
	defer span.End()

	if err := s.model.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid model")
		return nil, fmt.Errorf("invalid model: %w", err)
	}

	if s.monitor != nil {
		defer s.monitor.FinishSearch()
	}
	s.log.V(1).Info("solve started", "model", s.model.String(), "maxSolutions", maxSolutions)

	// Root propagation must start from the model, not from the last root.
	if s.baseState != nil {
		s.ReleaseState(s.baseState)
		s.baseState = nil
	}

	root, _, err := s.propagate(nil)
	if err != nil {
		if errors.Is(err, ErrInconsistent) {
			s.log.V(1).Info("model inconsistent at root", "reason", err.Error())
			return []Solution{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "root propagation failed")
		return nil, err
	}

	// Retain an extra reference so search/backtracking won't release it.
	s.baseState = root
	if root != nil {
		root.refCount.Add(1)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	solutions := make([]Solution, 0)
	s.search(ctx, root, func(sol Solution) bool {
		solutions = append(solutions, sol)
		return maxSolutions <= 0 || len(solutions) < maxSolutions
	})

	span.SetAttributes(attribute.Int("solutions", len(solutions)))
	s.log.V(1).Info("solve finished", "solutions", len(solutions))
	return solutions, ctx.Err()
}

// search runs depth-first search below state, which it takes ownership of.
// Every branch splits the smallest undecided element a of the selected
// variable into "a ∈ S" and "a ∉ S". emit receives each solution and
// returns false to stop the search; search returns false if it was
// stopped by emit or by the context.
func (s *Solver) search(ctx context.Context, state *SolverState, emit func(Solution) bool) bool {
	type searchFrame struct {
		state *SolverState
		varID int
		value int
		next  int
	}

	varID, value := s.selectBranch(state)
	if varID == -1 {
		solution := s.extractSolution(state)
		s.ReleaseState(state)
		s.recordSolution()
		return emit(solution)
	}

	alternatives := s.alternatives()
	stack := make([]*searchFrame, 0, 64)
	stack = append(stack, &searchFrame{state: state, varID: varID, value: value})
	abandon := func() bool {
		for i := len(stack) - 1; i >= 0; i-- {
			s.ReleaseState(stack[i].state)
		}
		return false
	}

	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return abandon()
		default:
		}

		frame := stack[len(stack)-1]
		if frame.next >= len(alternatives) {
			s.ReleaseState(frame.state)
			stack = stack[:len(stack)-1]
			if s.monitor != nil {
				s.monitor.RecordBacktrack()
			}
			continue
		}

		if s.monitor != nil {
			s.monitor.RecordNode()
			s.monitor.RecordDepth(len(stack))
		}
		s.metrics.node()

		include := alternatives[frame.next]
		frame.next++

		child, ok := s.branch(frame.state, frame.varID, frame.value, include)
		if !ok {
			continue
		}

		propagated, _, err := s.propagate(child)
		if err != nil {
			s.ReleaseState(child)
			if s.monitor != nil {
				s.monitor.RecordBacktrack()
			}
			continue
		}
		if propagated != child {
			s.ReleaseState(child)
		}

		nextVar, nextValue := s.selectBranch(propagated)
		if nextVar == -1 {
			solution := s.extractSolution(propagated)
			s.ReleaseState(propagated)
			s.recordSolution()
			if !emit(solution) {
				return abandon()
			}
			continue
		}

		stack = append(stack, &searchFrame{state: propagated, varID: nextVar, value: nextValue})
	}
	return true
}

// branch applies one alternative of a binary branch and returns the
// resulting child state, owned by the caller.
func (s *Solver) branch(state *SolverState, varID, value int, include bool) (*SolverState, bool) {
	d := s.GetDomain(state, varID)
	var (
		nd  *SetDomain
		err error
	)
	if include {
		nd, err = d.Include(value)
	} else {
		nd, err = d.Exclude(value)
	}
	if err != nil {
		return nil, false
	}
	child, changed := s.SetDomain(state, varID, nd)
	if !changed {
		return nil, false
	}
	return child, true
}

func (s *Solver) recordSolution() {
	if s.monitor != nil {
		s.monitor.RecordSolution()
	}
	s.metrics.solution()
}

// alternatives returns the order of the two branch alternatives; true
// means "include".
func (s *Solver) alternatives() []bool {
	if s.config.ValueHeuristic == ExcludeFirst {
		return []bool{false, true}
	}
	return []bool{true, false}
}

// extractSolution reads the value of every variable from an assigned state.
func (s *Solver) extractSolution(state *SolverState) Solution {
	solution := make(Solution, s.model.VariableCount())
	for i := range solution {
		solution[i] = s.GetDomain(state, i).Glb()
	}
	return solution
}

// selectBranch picks the branching variable per the configured heuristic
// and its smallest undecided element. Returns (-1, 0) if every variable is
// assigned.
func (s *Solver) selectBranch(state *SolverState) (int, int) {
	best, bestScore := -1, 0
	for i := 0; i < s.model.VariableCount(); i++ {
		d := s.GetDomain(state, i)
		if d.IsAssigned() {
			continue
		}
		unknown := d.Lub().Size() - d.Glb().Size()

		var score int
		switch s.config.VariableHeuristic {
		case HeuristicLex:
			score = i
		case HeuristicMaxUnknown:
			score = -unknown
		default:
			score = unknown
		}
		if best == -1 || score < bestScore {
			best, bestScore = i, score
		}
	}
	if best == -1 {
		return -1, 0
	}
	return best, s.GetDomain(state, best).Unknown().Min()
}
