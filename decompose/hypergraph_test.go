package decompose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHypergraphSplitsTwoNaturalBlocksWithSharedCutset(t *testing.T) {
	// c constraints: block A {x,c}, block B {y,c}; c is the only shared
	// variable, matching the two-block single-cutset scenario.
	problem := Problem{
		Variables: []string{"x", "y", "c"},
		Constraints: []Constraint{
			{Vars: []string{"x", "c"}},
			{Vars: []string{"x"}},
			{Vars: []string{"y", "c"}},
			{Vars: []string{"y"}},
		},
	}
	blocks, cutset, err := Hypergraph{Cutset: []string{"c"}}.Decompose(problem, 2)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, []string{"c"}, cutset)

	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	assert.Equal(t, len(problem.Constraints), total)
}

func TestHypergraphMergesExcessComponentsDownToK(t *testing.T) {
	problem := Problem{
		Variables: []string{"a", "b", "c", "d"},
		Constraints: []Constraint{
			{Vars: []string{"a"}},
			{Vars: []string{"b"}},
			{Vars: []string{"c"}},
			{Vars: []string{"d"}},
		},
	}
	blocks, _, err := Hypergraph{}.Decompose(problem, 2)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
}

func TestHypergraphSplitsSingleComponentUpToK(t *testing.T) {
	problem := Problem{
		Variables: []string{"x"},
		Constraints: []Constraint{
			{Vars: []string{"x"}},
			{Vars: []string{"x"}},
			{Vars: []string{"x"}},
			{Vars: []string{"x"}},
		},
	}
	blocks, _, err := Hypergraph{}.Decompose(problem, 3)
	require.NoError(t, err)
	assert.Len(t, blocks, 3)
	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	assert.Equal(t, 4, total)
}
