package main

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/gitrdm/gokanset/internal/oracle"
	"github.com/gitrdm/gokanset/pkg/rangeset"
	"github.com/gitrdm/gokanset/pkg/setcp"
)

// Instance is an AtMostOne problem read from a YAML file:
//
//	c: 3
//	variables:
//	  - name: s0
//	    lower: [[1, 2]]
//	    upper: [[1, 7]]
//	  - name: s1
//	    upper: [[1, 3], [5, 5]]
//	    card: [0, 3]
//
// Bounds are lists of closed [lo, hi] ranges in any order. Every variable
// takes part in a single AtMostOne constraint with threshold c.
type Instance struct {
	C         int            `json:"c"`
	Variables []VariableSpec `json:"variables"`
}

// VariableSpec describes the initial domain of one set variable.
type VariableSpec struct {
	Name  string  `json:"name,omitempty"`
	Lower [][]int `json:"lower,omitempty"`
	Upper [][]int `json:"upper"`
	Card  []int   `json:"card,omitempty"`
}

// LoadInstance reads and parses the instance file at path.
func LoadInstance(path string) (*Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instance: %w", err)
	}
	inst, err := ParseInstance(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inst, nil
}

// ParseInstance decodes a YAML instance. Unknown fields are rejected.
func ParseInstance(data []byte) (*Instance, error) {
	var inst Instance
	if err := yaml.UnmarshalStrict(data, &inst); err != nil {
		return nil, fmt.Errorf("parse instance: %w", err)
	}
	if len(inst.Variables) == 0 {
		return nil, fmt.Errorf("instance has no variables")
	}
	return &inst, nil
}

// Build creates the model: one variable per entry, in order, and
// AtMostOne over all of them.
func (inst *Instance) Build() (*setcp.Model, []*setcp.SetVariable, error) {
	model := setcp.NewModel()
	vars := make([]*setcp.SetVariable, len(inst.Variables))
	for i, vs := range inst.Variables {
		d, err := vs.domain()
		if err != nil {
			return nil, nil, fmt.Errorf("variable %d (%s): %w", i, vs.Name, err)
		}
		name := vs.Name
		if name == "" {
			name = fmt.Sprintf("s%d", i)
		}
		vars[i] = model.NewSetVariableWithName(d, name)
	}
	if _, err := setcp.PostAtMostOne(model, vars, inst.C); err != nil {
		return nil, nil, err
	}
	return model, vars, nil
}

func (vs VariableSpec) domain() (*setcp.SetDomain, error) {
	glb, err := toSet(vs.Lower)
	if err != nil {
		return nil, fmt.Errorf("lower: %w", err)
	}
	lub, err := toSet(vs.Upper)
	if err != nil {
		return nil, fmt.Errorf("upper: %w", err)
	}
	d, err := setcp.NewSetDomain(glb, lub)
	if err != nil {
		return nil, err
	}
	switch len(vs.Card) {
	case 0:
		return d, nil
	case 2:
		return d.WithCard(vs.Card[0], vs.Card[1])
	default:
		return nil, fmt.Errorf("card must be [min, max], got %v", vs.Card)
	}
}

func toSet(ranges [][]int) (rangeset.Set, error) {
	its := make([]rangeset.Iterator, 0, len(ranges))
	for _, r := range ranges {
		if len(r) != 2 || r[0] > r[1] {
			return nil, fmt.Errorf("range must be [lo, hi] with lo <= hi, got %v", r)
		}
		if r[0] < rangeset.MinValue || r[1] > rangeset.MaxValue {
			return nil, fmt.Errorf("range %v outside [%d, %d]", r, rangeset.MinValue, rangeset.MaxValue)
		}
		its = append(its, rangeset.Interval(r[0], r[1]).Iter())
	}
	return rangeset.Collect(rangeset.Union(its...)), nil
}

func bounds(domains []*setcp.SetDomain) []oracle.Bounds {
	out := make([]oracle.Bounds, len(domains))
	for i, d := range domains {
		out[i] = oracle.Bounds{Lower: d.Glb(), Upper: d.Lub(), CardMin: d.CardMin(), CardMax: d.CardMax()}
	}
	return out
}
