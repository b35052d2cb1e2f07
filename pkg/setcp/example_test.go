package setcp_test

import (
	"context"
	"fmt"

	"github.com/gitrdm/gokanset/pkg/rangeset"
	"github.com/gitrdm/gokanset/pkg/setcp"
)

// ExamplePostAtMostOne shows a propagation-only run: s0 and s1 already
// share 1 and only {1,2,3} is reachable, so s2 cannot take 1 as well.
func ExamplePostAtMostOne() {
	model := setcp.NewModel()
	s0 := model.NewSetVariable(setcp.MustSetDomain(rangeset.Of(1, 2), rangeset.Of(1, 2)))
	s1 := model.NewSetVariable(setcp.MustSetDomain(rangeset.Of(1, 3), rangeset.Of(1, 3)))
	s2 := model.NewSetVariable(setcp.MustSetDomain(nil, rangeset.Interval(1, 3)))

	if _, err := setcp.PostAtMostOne(model, []*setcp.SetVariable{s0, s1, s2}, 2); err != nil {
		fmt.Println("post:", err)
		return
	}

	solver := setcp.NewSolver(model)
	state, out, err := solver.Propagate(context.Background(), nil)
	if err != nil {
		fmt.Println("propagate:", err)
		return
	}
	fmt.Println(out.Status)
	fmt.Println(solver.GetDomain(state, s2.ID()))
	// Output:
	// changed
	// {2..3}
}

// ExampleSolver_Solve lists every way to pick two 2-element subsets of
// {1,2,3} that share at most one element, in search order.
func ExampleSolver_Solve() {
	model := setcp.NewModel()
	vars := model.NewSetVariables(2, setcp.MustSetDomain(nil, rangeset.Interval(1, 3)))
	if _, err := setcp.PostAtMostOne(model, vars, 2); err != nil {
		fmt.Println("post:", err)
		return
	}

	solutions, err := setcp.NewSolver(model).Solve(context.Background(), 0)
	if err != nil {
		fmt.Println("solve:", err)
		return
	}
	for _, s := range solutions {
		fmt.Println(s)
	}
	// Output:
	// [{1..2} {1,3}]
	// [{1..2} {2..3}]
	// [{1,3} {1..2}]
	// [{1,3} {2..3}]
	// [{2..3} {1..2}]
	// [{2..3} {1,3}]
}
