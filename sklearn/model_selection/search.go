package model_selection

import (
	"sort"

	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
)

// ParameterGrid enumerates the cartesian product of candidate values.
// Keys are iterated in sorted order with the last key varying fastest, so
// the enumeration order is stable.
type ParameterGrid struct {
	keys   []string
	values [][]interface{}
}

// NewParameterGrid builds a grid. Every key needs at least one value.
func NewParameterGrid(space map[string][]interface{}) (*ParameterGrid, error) {
	keys := make([]string, 0, len(space))
	for k := range space {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	g := &ParameterGrid{keys: keys, values: make([][]interface{}, len(keys))}
	for i, k := range keys {
		if len(space[k]) == 0 {
			return nil, errors.NewConfigurationErrorf("NewParameterGrid", "parameter %q has no candidate values", k)
		}
		g.values[i] = space[k]
	}
	return g, nil
}

// Len returns the number of parameter combinations. An empty grid has a
// single empty combination.
func (g *ParameterGrid) Len() int {
	n := 1
	for _, v := range g.values {
		n *= len(v)
	}
	return n
}

// At returns combination i in enumeration order.
func (g *ParameterGrid) At(i int) model.Params {
	p := make(model.Params, len(g.keys))
	for k := len(g.keys) - 1; k >= 0; k-- {
		vals := g.values[k]
		p[g.keys[k]] = vals[i%len(vals)]
		i /= len(vals)
	}
	return p
}

// All returns every combination.
func (g *ParameterGrid) All() []model.Params {
	out := make([]model.Params, g.Len())
	for i := range out {
		out[i] = g.At(i)
	}
	return out
}

// ParameterSampler draws NIter distinct combinations from a grid without
// replacement. If NIter is at least the grid size the whole grid is
// returned in shuffled order.
type ParameterSampler struct {
	Grid  *ParameterGrid
	NIter int
	Seed  uint64
}

// NewParameterSampler creates a sampler over space.
func NewParameterSampler(space map[string][]interface{}, nIter int, seed uint64) (*ParameterSampler, error) {
	if nIter < 1 {
		return nil, errors.NewConfigurationErrorf("NewParameterSampler", "n_iter must be >= 1, got %d", nIter)
	}
	g, err := NewParameterGrid(space)
	if err != nil {
		return nil, err
	}
	return &ParameterSampler{Grid: g, NIter: nIter, Seed: seed}, nil
}

// Sample returns the drawn combinations.
func (s *ParameterSampler) Sample() []model.Params {
	n := s.Grid.Len()
	perm := newRand(s.Seed).Perm(n)
	if s.NIter < n {
		perm = perm[:s.NIter]
	}
	out := make([]model.Params, len(perm))
	for i, idx := range perm {
		out[i] = s.Grid.At(idx)
	}
	return out
}
