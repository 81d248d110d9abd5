package consistency

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallia/parsolve/solver"
	"github.com/gallia/parsolve/solver/toycsp"
)

func bigInt(v int64) *big.Int { return big.NewInt(v) }

func writeTempInstance(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instance.toycsp")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNullAlwaysAccepts(t *testing.T) {
	var n Null
	ok, err := n.CheckPartial(context.Background(), solver.Cube{})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = n.CheckFinal(context.Background(), solver.Cube{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPartialPrunesInconsistentPrefix(t *testing.T) {
	path := writeTempInstance(t, "var x 0 5\nvar y 0 5\nconstraint eq x y\n")
	ctx := context.Background()
	p, err := NewPartial(ctx, func() solver.Solver { return toycsp.New() }, path)
	require.NoError(t, err)

	// x=0, y=3 can never satisfy x==y: the auxiliary solver should prove it
	// inconsistent under assumption.
	bad := solver.Cube{
		{Variable: "x", Relation: solver.Eq, Value: bigInt(0)},
		{Variable: "y", Relation: solver.Eq, Value: bigInt(3)},
	}
	ok, err := p.CheckPartial(ctx, bad)
	require.NoError(t, err)
	assert.False(t, ok)

	good := solver.Cube{
		{Variable: "x", Relation: solver.Eq, Value: bigInt(2)},
		{Variable: "y", Relation: solver.Eq, Value: bigInt(2)},
	}
	ok, err = p.CheckPartial(ctx, good)
	require.NoError(t, err)
	assert.True(t, ok)

	// Final is a no-op for Partial.
	ok, err = p.CheckFinal(ctx, bad)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFinalVerifiesOnlyCompleteCube(t *testing.T) {
	path := writeTempInstance(t, "var x 0 5\nvar y 0 5\nconstraint eq x y\n")
	ctx := context.Background()
	f, err := NewFinal(ctx, func() solver.Solver { return toycsp.New() }, path)
	require.NoError(t, err)

	// CheckPartial always accepts, even an inconsistent prefix.
	bad := solver.Cube{{Variable: "x", Relation: solver.Eq, Value: bigInt(0)}}
	ok, err := f.CheckPartial(ctx, bad)
	require.NoError(t, err)
	assert.True(t, ok)

	badFull := solver.Cube{
		{Variable: "x", Relation: solver.Eq, Value: bigInt(0)},
		{Variable: "y", Relation: solver.Eq, Value: bigInt(3)},
	}
	ok, err = f.CheckFinal(ctx, badFull)
	require.NoError(t, err)
	assert.False(t, ok)

	goodFull := solver.Cube{
		{Variable: "x", Relation: solver.Eq, Value: bigInt(1)},
		{Variable: "y", Relation: solver.Eq, Value: bigInt(1)},
	}
	ok, err = f.CheckFinal(ctx, goodFull)
	require.NoError(t, err)
	assert.True(t, ok)
}
