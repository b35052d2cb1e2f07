// Package oracle decides set-bounds problems exactly by reduction to SAT.
//
// A problem is a list of set variables, each given by a lower bound, an
// upper bound and a cardinality window, under the constraint that any two
// of the sets share at most one element. Every candidate membership a ∈ S_i
// becomes one boolean; pairwise intersections and cardinalities are coded
// with sorting networks. It is meant for small instances, as ground truth
// for the propagator.
package oracle

import (
	"errors"
	"fmt"

	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"

	"github.com/gitrdm/gokanset/pkg/rangeset"
)

const satisfiable = 1

// ErrUnknownMembership reports a Membership naming a variable the problem
// does not have.
var ErrUnknownMembership = errors.New("oracle: membership of unknown variable")

// Bounds describes one set variable.
type Bounds struct {
	Lower   rangeset.Set
	Upper   rangeset.Set
	CardMin int
	CardMax int
}

// Membership is an extra assumption: Value is (In) or is not (!In) an
// element of variable Var.
type Membership struct {
	Var   int
	Value int
	In    bool
}

// String renders the assumption as "3 ∈ s1" or "3 ∉ s1".
func (m Membership) String() string {
	op := "∈"
	if !m.In {
		op = "∉"
	}
	return fmt.Sprintf("%d %s s%d", m.Value, op, m.Var)
}

// Problem is a compiled instance ready for repeated queries.
type Problem struct {
	vars  []Bounds
	g     *gini.Gini
	lits  []map[int]z.Lit
	order [][]int
	empty bool
}

// Compile translates vars into a SAT problem.
func Compile(vars []Bounds) *Problem {
	p := &Problem{
		vars:  vars,
		g:     gini.New(),
		lits:  make([]map[int]z.Lit, len(vars)),
		order: make([][]int, len(vars)),
	}

	total := 0
	for _, b := range vars {
		total += b.Upper.Size()
	}
	c := logic.NewCCap(total)

	for i, b := range vars {
		p.lits[i] = make(map[int]z.Lit, b.Upper.Size())
		b.Upper.IterateValues(func(a int) {
			p.lits[i][a] = c.Lit()
			p.order[i] = append(p.order[i], a)
		})
	}

	var roots []z.Lit
	for i, b := range vars {
		if b.CardMin > len(p.order[i]) || b.CardMax < b.CardMin || !rangeset.Subset(b.Lower.Iter(), b.Upper.Iter()) {
			p.empty = true
		}
		b.Lower.IterateValues(func(a int) {
			if m, ok := p.lits[i][a]; ok {
				roots = append(roots, m)
			}
		})

		ms := make([]z.Lit, len(p.order[i]))
		for k, a := range p.order[i] {
			ms[k] = p.lits[i][a]
		}
		if len(ms) > 0 && (b.CardMin > 0 || b.CardMax < len(ms)) {
			cs := c.CardSort(ms)
			if b.CardMin > 0 {
				roots = append(roots, cs.Geq(b.CardMin))
			}
			if b.CardMax < len(ms) {
				roots = append(roots, cs.Leq(b.CardMax))
			}
		}
	}

	for i := range vars {
		for j := i + 1; j < len(vars); j++ {
			var shared []z.Lit
			for _, a := range p.order[i] {
				if mj, ok := p.lits[j][a]; ok {
					shared = append(shared, c.And(p.lits[i][a], mj))
				}
			}
			if len(shared) > 1 {
				roots = append(roots, c.CardSort(shared).Leq(1))
			}
		}
	}

	c.ToCnf(p.g)
	for _, m := range roots {
		p.g.Add(m)
		p.g.Add(z.LitNull)
	}
	return p
}

// Feasible reports whether some assignment satisfies the problem together
// with the given memberships.
func (p *Problem) Feasible(assume ...Membership) (bool, error) {
	if p.empty {
		return false, nil
	}
	lits := make([]z.Lit, 0, len(assume))
	for _, m := range assume {
		if m.Var < 0 || m.Var >= len(p.lits) {
			return false, fmt.Errorf("%w: %s", ErrUnknownMembership, m)
		}
		lit, ok := p.lits[m.Var][m.Value]
		if !ok {
			if m.In {
				return false, nil
			}
			continue
		}
		if !m.In {
			lit = lit.Not()
		}
		lits = append(lits, lit)
	}
	p.g.Assume(lits...)
	return p.g.Solve() == satisfiable, nil
}

// Count returns the number of solutions, stopping at limit when limit > 0.
// Counting adds blocking clauses, so the problem must not be queried
// afterwards.
func (p *Problem) Count(limit int) int {
	if p.empty {
		return 0
	}
	n := 0
	for limit <= 0 || n < limit {
		if p.g.Solve() != satisfiable {
			break
		}
		n++
		for i := range p.order {
			for _, a := range p.order[i] {
				m := p.lits[i][a]
				if p.g.Value(m) {
					p.g.Add(m.Not())
				} else {
					p.g.Add(m)
				}
			}
		}
		p.g.Add(z.LitNull)
	}
	return n
}

// Feasible compiles vars and reports whether they admit a solution under
// the given memberships.
func Feasible(vars []Bounds, assume ...Membership) (bool, error) {
	return Compile(vars).Feasible(assume...)
}

// Unsupported returns every membership a ∈ S_i, with a undecided in vars
// but not in narrowed, for which vars has a solution. An empty result
// means narrowed removed no solution of vars. narrowed must have one entry
// per variable.
func Unsupported(vars, narrowed []Bounds) ([]Membership, error) {
	if len(narrowed) != len(vars) {
		return nil, fmt.Errorf("oracle: %d narrowed bounds for %d variables", len(narrowed), len(vars))
	}
	p := Compile(vars)
	var bad []Membership
	for i := range vars {
		pruned := rangeset.Values(rangeset.Diff(vars[i].Upper.Iter(), narrowed[i].Upper.Iter()))
		for a, ok := pruned.Next(); ok; a, ok = pruned.Next() {
			m := Membership{Var: i, Value: a, In: true}
			sat, err := p.Feasible(m)
			if err != nil {
				return nil, err
			}
			if sat {
				bad = append(bad, m)
			}
		}
	}
	return bad, nil
}
