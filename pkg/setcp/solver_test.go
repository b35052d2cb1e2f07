package setcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrdm/gokanset/pkg/rangeset"
)

// blocksModel posts AtMostOne over n sets of size c drawn from 1..v.
func blocksModel(t *testing.T, n, v, c int) (*Model, []*SetVariable) {
	t.Helper()
	model := NewModel()
	vars := model.NewSetVariables(n, MustSetDomain(nil, rangeset.Interval(1, v)))
	_, err := PostAtMostOne(model, vars, c)
	require.NoError(t, err)
	return model, vars
}

// checkBlocks asserts that every solution consists of c-element sets that
// pairwise share at most one element.
func checkBlocks(t *testing.T, solutions []Solution, c int) {
	t.Helper()
	for _, sol := range solutions {
		for i := range sol {
			require.Equal(t, c, sol[i].Size(), "solution %v", sol)
			for j := i + 1; j < len(sol); j++ {
				shared := rangeset.Size(rangeset.Inter(sol[i].Iter(), sol[j].Iter()))
				require.LessOrEqual(t, shared, 1, "solution %v", sol)
			}
		}
	}
}

func solutionKeys(solutions []Solution) []string {
	keys := make([]string, len(solutions))
	for i, s := range solutions {
		keys[i] = s.String()
	}
	sort.Strings(keys)
	return keys
}

func TestSolver_PropagateReportsFailure(t *testing.T) {
	model, vars := boundsModel(t,
		bnd(rangeset.Of(1), rangeset.Interval(1, 3)),
		bnd(rangeset.Of(1), rangeset.Interval(1, 3)),
		bnd(rangeset.Of(1), rangeset.Interval(1, 3)),
	)
	p, err := NewAtMostOne(vars, 2)
	require.NoError(t, err)
	model.AddConstraint(p)
	solver := NewSolver(model)

	state, out, err := solver.Propagate(context.Background(), nil)
	assert.Nil(t, state)
	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestSolver_PropagateFixpoint(t *testing.T) {
	model, vars := boundsModel(t,
		bnd(rangeset.Of(1), rangeset.Of(1, 2)),
		bnd(nil, rangeset.Of(1, 2)),
		bnd(nil, rangeset.Of(1, 2)),
	)
	p, err := NewAtMostOne(vars, 2)
	require.NoError(t, err)
	model.AddConstraint(p)
	solver := NewSolver(model)
	ctx := context.Background()

	state, out, err := solver.Propagate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusChanged, out.Status)
	assert.Equal(t, []int{1, 2}, out.Changed)
	assert.Equal(t, 2, out.Rounds)
	assert.Equal(t, 2, state.Depth())

	assert.True(t, solver.GetDomain(state, 1).Lub().Equal(rangeset.Of(2)))
	assert.True(t, solver.GetDomain(state, 2).Lub().Equal(rangeset.Of(2)))

	// The initial domains are untouched.
	assert.True(t, vars[1].Domain().Lub().Equal(rangeset.Of(1, 2)))
	assert.True(t, solver.GetDomain(nil, 1).Lub().Equal(rangeset.Of(1, 2)))

	// Running again from the fixpoint changes nothing.
	again, out, err := solver.Propagate(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, out.Status)
	assert.Same(t, state, again)
	assert.Empty(t, out.Changed)

	solver.ReleaseState(state)
}

func TestSolver_PropagateMonotone(t *testing.T) {
	model, vars := boundsModel(t,
		bnd(rangeset.Of(1, 2), rangeset.Of(1, 2)),
		bnd(rangeset.Of(1, 3), rangeset.Of(1, 3)),
		bnd(nil, rangeset.Of(1, 5)),
		bnd(nil, rangeset.Of(1, 2)),
	)
	p, err := NewAtMostOne(vars, 2)
	require.NoError(t, err)
	model.AddConstraint(p)
	solver := NewSolver(model)

	state, _, err := solver.Propagate(context.Background(), nil)
	require.NoError(t, err)
	for _, v := range vars {
		before, after := v.Domain(), solver.GetDomain(state, v.ID())
		assert.True(t, rangeset.Subset(after.Lub().Iter(), before.Lub().Iter()), "upper bound of %s grew", v.Name())
		assert.True(t, rangeset.Subset(before.Glb().Iter(), after.Glb().Iter()), "lower bound of %s shrank", v.Name())
	}
	assert.True(t, solver.GetDomain(state, 3).NotContains(1))
}

func TestSolver_BranchIsolation(t *testing.T) {
	model, _ := blocksModel(t, 3, 4, 2)
	solver := NewSolver(model)
	ctx := context.Background()

	root, _, err := solver.Propagate(ctx, nil)
	require.NoError(t, err)

	d := solver.GetDomain(root, 0)
	withOne, err := d.Include(1)
	require.NoError(t, err)
	withoutOne, err := d.Exclude(1)
	require.NoError(t, err)

	left, changed := solver.SetDomain(root, 0, withOne)
	require.True(t, changed)
	right, changed := solver.SetDomain(root, 0, withoutOne)
	require.True(t, changed)

	left2, _, err := solver.Propagate(ctx, left)
	require.NoError(t, err)
	right2, _, err := solver.Propagate(ctx, right)
	require.NoError(t, err)

	assert.True(t, solver.GetDomain(left2, 0).Contains(1))
	assert.True(t, solver.GetDomain(right2, 0).NotContains(1))
	assert.False(t, solver.GetDomain(root, 0).Contains(1))
	assert.False(t, solver.GetDomain(root, 0).NotContains(1))

	same, changed := solver.SetDomain(root, 0, solver.GetDomain(root, 0))
	assert.False(t, changed)
	assert.True(t, same == root)
}

func TestSolver_IterationLimit(t *testing.T) {
	model, vars := boundsModel(t,
		bnd(rangeset.Of(1), rangeset.Of(1, 2)),
		bnd(nil, rangeset.Of(1, 2)),
		bnd(nil, rangeset.Of(1, 2)),
	)
	p, err := NewAtMostOne(vars, 2)
	require.NoError(t, err)
	model.AddConstraint(p)

	cfg := DefaultSolverConfig()
	cfg.MaxPropagationIterations = 1
	solver := NewSolverWithConfig(model, cfg)

	state, out, err := solver.Propagate(context.Background(), nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInconsistent))
	assert.Nil(t, state)
	assert.Equal(t, StatusFailed, out.Status)

	_, err = solver.Solve(context.Background(), 0)
	assert.Error(t, err)
}

func TestSolver_PropagateCancelled(t *testing.T) {
	model, _ := blocksModel(t, 3, 4, 2)
	solver := NewSolver(model)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := solver.Propagate(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolver_SolveAllPairs(t *testing.T) {
	// Ordered triples of distinct pairs from {1..4}: 6*5*4.
	model, _ := blocksModel(t, 3, 4, 2)
	solver := NewSolver(model)

	solutions, err := solver.Solve(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, solutions, 120)
	checkBlocks(t, solutions, 2)

	keys := solutionKeys(solutions)
	for i := 1; i < len(keys); i++ {
		require.NotEqual(t, keys[i-1], keys[i], "duplicate solution")
	}
}

func TestSolver_SolveHeuristicsAgree(t *testing.T) {
	configs := []*SolverConfig{
		{VariableHeuristic: HeuristicLex, ValueHeuristic: IncludeFirst, MaxPropagationIterations: 1000},
		{VariableHeuristic: HeuristicMinUnknown, ValueHeuristic: ExcludeFirst, MaxPropagationIterations: 1000},
		{VariableHeuristic: HeuristicMaxUnknown, ValueHeuristic: IncludeFirst, MaxPropagationIterations: 1000},
	}
	var want []string
	for _, cfg := range configs {
		t.Run(fmt.Sprintf("%s/%s", cfg.VariableHeuristic, cfg.ValueHeuristic), func(t *testing.T) {
			model, _ := blocksModel(t, 3, 4, 2)
			solutions, err := NewSolverWithConfig(model, cfg).Solve(context.Background(), 0)
			require.NoError(t, err)
			keys := solutionKeys(solutions)
			if want == nil {
				want = keys
				return
			}
			assert.Equal(t, want, keys)
		})
	}
}

func TestSolver_SolveLimit(t *testing.T) {
	model, _ := blocksModel(t, 3, 4, 2)
	solutions, err := NewSolver(model).Solve(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, solutions, 5)
}

func TestSolver_SolveFanoPlane(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping search in short mode")
	}
	model, _ := blocksModel(t, 7, 7, 3)
	solutions, err := NewSolver(model).Solve(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, solutions, 1)
	checkBlocks(t, solutions, 3)

	// Seven triples on seven points pairwise meeting in at most one point
	// cover every pair exactly once.
	pairs := map[[2]int]int{}
	for _, block := range solutions[0] {
		vs := block.Values()
		for i := range vs {
			for j := i + 1; j < len(vs); j++ {
				pairs[[2]int{vs[i], vs[j]}]++
			}
		}
	}
	assert.Len(t, pairs, 21)
}

func TestSolver_SolveRootInconsistent(t *testing.T) {
	model, vars := boundsModel(t,
		bnd(rangeset.Of(1), rangeset.Interval(1, 3)),
		bnd(rangeset.Of(1), rangeset.Interval(1, 3)),
		bnd(rangeset.Of(1), rangeset.Interval(1, 3)),
	)
	_, err := PostAtMostOne(model, vars, 2)
	require.NoError(t, err)

	solutions, err := NewSolver(model).Solve(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, solutions)
	assert.Empty(t, solutions)
}

func TestSolver_SolveAssignedModel(t *testing.T) {
	model, vars := boundsModel(t,
		bnd(rangeset.Of(1, 2), rangeset.Of(1, 2)),
		bnd(rangeset.Of(2, 3), rangeset.Of(2, 3)),
	)
	_, err := PostAtMostOne(model, vars, 2)
	require.NoError(t, err)

	solutions, err := NewSolver(model).Solve(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, solutions, 1)
	assert.Equal(t, "[{1..2} {2..3}]", solutions[0].String())
}

func TestSolver_SolveInvalidModel(t *testing.T) {
	model := NewModel()
	model.NewSetVariables(2, MustSetDomain(nil, rangeset.Interval(1, 4)))
	other := NewModel()
	foreign := other.NewSetVariables(3, MustSetDomain(nil, rangeset.Interval(1, 4)))
	p, err := NewAtMostOne(foreign, 2)
	require.NoError(t, err)
	model.AddConstraint(p)

	_, err = NewSolver(model).Solve(context.Background(), 0)
	assert.Error(t, err)
}

func TestSolver_SolveCancelled(t *testing.T) {
	model, _ := blocksModel(t, 3, 4, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSolver(model).Solve(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolver_Monitor(t *testing.T) {
	model, _ := blocksModel(t, 3, 4, 2)
	solver := NewSolver(model)
	monitor := NewSolverMonitor()
	monitor.CaptureInitialDomains(model)
	solver.SetMonitor(monitor)

	solutions, err := solver.Solve(context.Background(), 0)
	require.NoError(t, err)

	root, _, err := solver.Propagate(context.Background(), nil)
	require.NoError(t, err)
	monitor.CaptureFinalDomains(solver, root)

	stats := monitor.GetStats()
	assert.Equal(t, len(solutions), stats.SolutionsFound)
	assert.Positive(t, stats.NodesExplored)
	assert.Positive(t, stats.PropagationCount)
	assert.Positive(t, stats.MaxDepth)
	assert.Positive(t, stats.Backtracks)
	assert.Equal(t, []int{4, 4, 4}, stats.InitialUnknown)
	assert.Len(t, stats.DomainReductions, 3)
	assert.Contains(t, stats.String(), "120 solutions")
}

func TestSolver_Metrics(t *testing.T) {
	model, _ := blocksModel(t, 3, 4, 2)
	solver := NewSolver(model)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	solver.SetMetrics(metrics)

	solutions, err := solver.Solve(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, float64(len(solutions)), testutil.ToFloat64(metrics.solutions))
	assert.Positive(t, testutil.ToFloat64(metrics.nodes))
	assert.Positive(t, testutil.ToFloat64(metrics.propagations.WithLabelValues(AtMostOneKind)))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.rounds))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.propagation(AtMostOneKind)
		m.exclusion(AtMostOneKind)
		m.failure(AtMostOneKind)
		m.fixpoint(3)
		m.node()
		m.solution()
	})
}

func TestSolver_ReleaseStateReturnsChain(t *testing.T) {
	model, _ := blocksModel(t, 2, 3, 2)
	solver := NewSolver(model)

	d := solver.GetDomain(nil, 0)
	d1, err := d.Exclude(1)
	require.NoError(t, err)
	s1, _ := solver.SetDomain(nil, 0, d1)

	d2, err := solver.GetDomain(s1, 1).Include(1)
	require.NoError(t, err)
	s2, _ := solver.SetDomain(s1, 1, d2)

	assert.Equal(t, int64(2), s1.refCount.Load())
	solver.ReleaseState(s1)
	assert.Equal(t, int64(1), s1.refCount.Load(), "child still holds the parent")
	assert.True(t, solver.GetDomain(s2, 0).NotContains(1))

	solver.ReleaseState(s2)
	assert.Equal(t, int64(0), s1.refCount.Load())
}

func TestSolver_SolveTwiceReleasesRoot(t *testing.T) {
	model, vars := boundsModel(t,
		bnd(rangeset.Of(1, 2), rangeset.Of(1, 2)),
		bnd(rangeset.Of(1, 3), rangeset.Of(1, 3)),
		bnd(nil, rangeset.Interval(1, 3)),
	)
	_, err := PostAtMostOne(model, vars, 2)
	require.NoError(t, err)
	solver := NewSolver(model)

	first, err := solver.Solve(context.Background(), 0)
	require.NoError(t, err)
	root := solver.baseState
	require.NotNil(t, root, "root propagation narrows s2")
	assert.Equal(t, int64(1), root.refCount.Load(), "only the solver holds the root")
	assert.True(t, solver.GetDomain(nil, 2).Lub().Equal(rangeset.Of(2, 3)))

	// Keep the old root alive to observe the solver letting go of it.
	root.refCount.Add(1)
	second, err := solver.Solve(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), root.refCount.Load())
	assert.NotSame(t, root, solver.baseState)
	assert.Equal(t, solutionKeys(first), solutionKeys(second))
	solver.ReleaseState(root)
}
