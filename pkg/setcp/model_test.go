package setcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrdm/gokanset/pkg/rangeset"
)

func TestModel_Variables(t *testing.T) {
	model := NewModel()
	d := MustSetDomain(nil, rangeset.Interval(1, 3))

	a := model.NewSetVariable(d)
	b := model.NewSetVariableWithName(d, "block")
	cs := model.NewSetVariables(2, d)
	e, err := model.NewSetVariableFromBounds(rangeset.Of(1), rangeset.Of(1, 2))
	require.NoError(t, err)

	assert.Equal(t, 0, a.ID())
	assert.Equal(t, "s0", a.Name())
	assert.Equal(t, "block", b.Name())
	assert.Equal(t, []int{2, 3}, []int{cs[0].ID(), cs[1].ID()})
	assert.Equal(t, 4, e.ID())
	assert.Equal(t, 5, model.VariableCount())
	assert.Same(t, b, model.GetVariable(1))
	assert.Nil(t, model.GetVariable(42))

	_, err = model.NewSetVariableFromBounds(rangeset.Of(7), rangeset.Of(1))
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.Equal(t, 5, model.VariableCount())
}

func TestModel_Constraints(t *testing.T) {
	model := NewModel()
	vars := model.NewSetVariables(3, MustSetDomain(nil, rangeset.Interval(1, 4)))

	_, err := PostAtMostOne(model, vars, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, model.ConstraintCount())
	assert.Equal(t, AtMostOneKind, model.Constraints()[0].Type())
	assert.Equal(t, "Model{variables: 3, constraints: 1}", model.String())
	assert.NoError(t, model.Validate())

	for _, v := range vars {
		assert.Equal(t, 2, v.Domain().CardMin())
		assert.Equal(t, 2, v.Domain().CardMax())
	}
}

func TestModel_ValidateForeignVariable(t *testing.T) {
	model := NewModel()
	other := NewModel()
	d := MustSetDomain(nil, rangeset.Interval(1, 4))

	model.NewSetVariables(2, d)
	foreign := other.NewSetVariables(3, d)

	prop, err := NewAtMostOne(foreign, 2)
	require.NoError(t, err)
	model.AddConstraint(prop)

	assert.Error(t, model.Validate())
}

func TestModel_Config(t *testing.T) {
	model := NewModel()
	assert.Equal(t, DefaultSolverConfig(), model.Config())

	cfg := &SolverConfig{VariableHeuristic: HeuristicLex, ValueHeuristic: ExcludeFirst, MaxPropagationIterations: 10}
	model.SetConfig(cfg)
	assert.Same(t, cfg, model.Config())

	model.SetConfig(nil)
	assert.Same(t, cfg, model.Config())

	assert.Equal(t, "lex", HeuristicLex.String())
	assert.Equal(t, "min-unknown", HeuristicMinUnknown.String())
	assert.Equal(t, "max-unknown", HeuristicMaxUnknown.String())
	assert.Equal(t, "include-first", IncludeFirst.String())
	assert.Equal(t, "exclude-first", ExcludeFirst.String())
}
