package cube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallia/parsolve/consistency"
	"github.com/gallia/parsolve/solver"
)

func drain(t *testing.T, ctx context.Context, g Generator, limit int) []solver.Cube {
	t.Helper()
	var out []solver.Cube
	for i := 0; i < limit; i++ {
		c, err := g.Next(ctx)
		require.NoError(t, err)
		if c.Empty() {
			return out
		}
		out = append(out, c)
	}
	t.Fatalf("generator did not exhaust within %d cubes", limit)
	return nil
}

func TestLexicographicEnumeratesFullCartesianProduct(t *testing.T) {
	domains := []VariableDomain{{Name: "x", Lo: 0, Hi: 1}, {Name: "y", Lo: 0, Hi: 1}}
	g := NewLexicographic(domains, consistency.Null{}, 0)
	cubes := drain(t, context.Background(), g, 10)
	assert.Len(t, cubes, 4)
	for _, c := range cubes {
		assert.Len(t, c, 2)
	}
}

func TestLexicographicRespectsMaxCubes(t *testing.T) {
	domains := []VariableDomain{{Name: "x", Lo: 0, Hi: 9}, {Name: "y", Lo: 0, Hi: 9}}
	g := NewLexicographic(domains, consistency.Null{}, 3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c, err := g.Next(ctx)
		require.NoError(t, err)
		assert.False(t, c.Empty())
	}
	c, err := g.Next(ctx)
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestLexicographicCancelStopsGenerator(t *testing.T) {
	domains := []VariableDomain{{Name: "x", Lo: 0, Hi: 1000}}
	g := NewLexicographic(domains, consistency.Null{}, 0)
	ctx := context.Background()
	_, err := g.Next(ctx)
	require.NoError(t, err)
	g.Cancel()
	for i := 0; i < 2000; i++ {
		c, err := g.Next(ctx)
		require.NoError(t, err)
		if c.Empty() {
			return
		}
	}
	t.Fatal("cancel did not stop generator")
}
