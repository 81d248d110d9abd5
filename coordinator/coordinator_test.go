package coordinator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallia/parsolve/allocation"
	"github.com/gallia/parsolve/coordinator"
	"github.com/gallia/parsolve/dispatcher"
	"github.com/gallia/parsolve/solver"
	"github.com/gallia/parsolve/solver/toycsp"
	"github.com/gallia/parsolve/strategy/portfolio"
	"github.com/gallia/parsolve/transport"
	"github.com/gallia/parsolve/transport/inproc"
)

func writeTempInstance(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instance.toycsp")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// spawnWorkers starts n dispatcher loops over tr, one per worker id, each
// driving its own toycsp.Solver. It returns at once; the returned channel
// is closed once every dispatcher has returned (normally after the
// coordinator's end-search broadcast).
func spawnWorkers(t *testing.T, ctx context.Context, tr transport.Transport) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Start(ctx, func(ctx context.Context, self transport.Transport) {
			d := dispatcher.New(toycsp.New(), self, tr.Size())
			_ = d.Run(ctx)
		})
	}()
	return done
}

func TestCoordinatorPortfolioDecisionSatisfiable(t *testing.T) {
	const n = 3
	path := writeTempInstance(t, "var x 0 1\nvar y 0 1\nconstraint neq x y\n")

	tr := inproc.New(n)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	workersDone := spawnWorkers(t, ctx, tr)

	strat := portfolio.New(allocation.Linear{}, false)
	c, err := coordinator.New(tr, coordinator.Config{InstanceFile: path}, strat)
	require.NoError(t, err)

	require.NoError(t, c.LoadInstance(ctx))

	result, err := c.Solve(ctx)
	require.NoError(t, err)
	assert.Equal(t, solver.Satisfiable, result)

	sol, ok := c.Solution()
	require.True(t, ok)
	x, hasX := sol.Values["x"]
	y, hasY := sol.Values["y"]
	require.True(t, hasX)
	require.True(t, hasY)
	assert.NotEqual(t, 0, x.Cmp(y))

	require.NoError(t, tr.Finalize())
	<-workersDone
}

func TestCoordinatorPortfolioDecisionUnsatisfiable(t *testing.T) {
	const n = 2
	path := writeTempInstance(t, "var x 0 0\nvar y 0 0\nconstraint neq x y\n")

	tr := inproc.New(n)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	workersDone := spawnWorkers(t, ctx, tr)

	strat := portfolio.New(allocation.Linear{}, false)
	c, err := coordinator.New(tr, coordinator.Config{InstanceFile: path}, strat)
	require.NoError(t, err)

	require.NoError(t, c.LoadInstance(ctx))

	result, err := c.Solve(ctx)
	require.NoError(t, err)
	assert.Equal(t, solver.Unsatisfiable, result)

	_, ok := c.Solution()
	assert.False(t, ok)

	require.NoError(t, tr.Finalize())
	<-workersDone
}

func TestCoordinatorPortfolioOptimization(t *testing.T) {
	const n = 3
	path := writeTempInstance(t,
		"var x 0 9\n"+
			"objective x minimize\n")

	tr := inproc.New(n)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	workersDone := spawnWorkers(t, ctx, tr)

	strat := portfolio.New(allocation.Linear{}, false)
	c, err := coordinator.New(tr, coordinator.Config{InstanceFile: path}, strat)
	require.NoError(t, err)

	require.NoError(t, c.LoadInstance(ctx))

	result, err := c.Solve(ctx)
	require.NoError(t, err)
	assert.Equal(t, solver.OptimumFound, result)

	sol, ok := c.Solution()
	require.True(t, ok)
	v, present := sol.Values["x"]
	require.True(t, present)
	assert.Equal(t, int64(0), v.Int64())

	require.NoError(t, tr.Finalize())
	<-workersDone
}

// TestCoordinatorPortfolioOptimizationRebalancesPastEmptySubRange: the
// objective's low sub-ranges are all infeasible (x is forced to at least 7),
// so the workers assigned to them report unsatisfiable, the global lower
// bound ratchets upward, and the fleet is re-allocated until the true
// optimum at 7 is proven.
func TestCoordinatorPortfolioOptimizationRebalancesPastEmptySubRange(t *testing.T) {
	const n = 3
	path := writeTempInstance(t,
		"var x 0 9\nvar seven 7 7\n"+
			"objective x minimize\n"+
			"constraint le seven x\n")

	tr := inproc.New(n)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	workersDone := spawnWorkers(t, ctx, tr)

	strat := portfolio.New(allocation.Linear{}, false)
	c, err := coordinator.New(tr, coordinator.Config{InstanceFile: path}, strat)
	require.NoError(t, err)

	require.NoError(t, c.LoadInstance(ctx))

	result, err := c.Solve(ctx)
	require.NoError(t, err)
	assert.Equal(t, solver.OptimumFound, result)

	sol, ok := c.Solution()
	require.True(t, ok)
	v, present := sol.Values["x"]
	require.True(t, present)
	assert.Equal(t, int64(7), v.Int64())

	require.NoError(t, tr.Finalize())
	<-workersDone
}

func TestCoordinatorRejectsZeroWorkers(t *testing.T) {
	tr := inproc.New(0)
	strat := portfolio.New(allocation.Linear{}, false)
	_, err := coordinator.New(tr, coordinator.Config{}, strat)
	assert.Error(t, err)
}

func TestCoordinatorRejectsNilStrategy(t *testing.T) {
	tr := inproc.New(1)
	_, err := coordinator.New(tr, coordinator.Config{}, nil)
	assert.Error(t, err)
}

func TestCoordinatorSolveBeforeLoadRejected(t *testing.T) {
	tr := inproc.New(1)
	strat := portfolio.New(allocation.Linear{}, false)
	c, err := coordinator.New(tr, coordinator.Config{}, strat)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = c.Solve(ctx)
	assert.Error(t, err)
}
