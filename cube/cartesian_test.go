package cube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallia/parsolve/consistency"
	"github.com/gallia/parsolve/solver"
)

func TestCartesianRefinementEnumeratesFullCartesianProduct(t *testing.T) {
	domains := []VariableDomain{{Name: "x", Lo: 0, Hi: 1}, {Name: "y", Lo: 0, Hi: 1}}
	g := NewCartesianRefinement(domains, consistency.Null{}, nil)
	cubes := drain(t, context.Background(), g, 10)
	assert.Len(t, cubes, 4)
	for _, c := range cubes {
		assert.Len(t, c, 2)
	}
}

func TestCartesianRefinementPopsHighestScoreFirst(t *testing.T) {
	domains := []VariableDomain{{Name: "x", Lo: 0, Hi: 2}, {Name: "y", Lo: 0, Hi: 0}}
	// A scorer that strongly prefers the x=0 branch: its only child
	// (y=0, the only value) should be emitted before any x=1/x=2 cube.
	scorer := Scorer(func(domains []VariableDomain, cube solver.Cube) float64 {
		for _, a := range cube {
			if a.Variable == "x" && a.Value.Int64() == 0 {
				return 100
			}
		}
		return 0
	})
	g := NewCartesianRefinement(domains, consistency.Null{}, scorer)
	c, err := g.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, c, 2)
	assert.Equal(t, "x", c[0].Variable)
	assert.Equal(t, int64(0), c[0].Value.Int64())
}

func TestCartesianRefinementCancelStopsGenerator(t *testing.T) {
	domains := []VariableDomain{{Name: "x", Lo: 0, Hi: 1000}}
	g := NewCartesianRefinement(domains, consistency.Null{}, nil)
	ctx := context.Background()
	_, err := g.Next(ctx)
	assert.NoError(t, err)
	g.Cancel()
	c, err := g.Next(ctx)
	assert.NoError(t, err)
	assert.True(t, c.Empty())
}
