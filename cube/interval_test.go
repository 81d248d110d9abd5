package cube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallia/parsolve/consistency"
	"github.com/gallia/parsolve/solver"
)

func TestLexicographicIntervalFallsBackToValuesWithinBudget(t *testing.T) {
	domains := []VariableDomain{{Name: "x", Lo: 0, Hi: 2}}
	g := NewLexicographicInterval(domains, consistency.Null{}, 0, 10)
	cubes := drain(t, context.Background(), g, 10)
	assert.Len(t, cubes, 3)
	for _, c := range cubes {
		require.Len(t, c, 1)
		assert.Equal(t, "x", c[0].Variable)
	}
}

func TestLexicographicIntervalFoldsWideDomainIntoBuckets(t *testing.T) {
	// Domain of 100 values, budget of 4: at most 4 branches at this level,
	// each a (Ge, Lt) pair rather than a single Eq value.
	domains := []VariableDomain{{Name: "x", Lo: 0, Hi: 99}}
	g := NewLexicographicInterval(domains, consistency.Null{}, 0, 4)
	cubes := drain(t, context.Background(), g, 10)
	assert.LessOrEqual(t, len(cubes), 4)
	for _, c := range cubes {
		require.Len(t, c, 2)
		assert.Equal(t, solver.Ge, c[0].Relation)
		assert.Equal(t, solver.Lt, c[1].Relation)
	}
}
