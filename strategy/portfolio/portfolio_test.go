package portfolio_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallia/parsolve/allocation"
	"github.com/gallia/parsolve/solver"
	"github.com/gallia/parsolve/strategy"
	"github.com/gallia/parsolve/strategy/portfolio"
)

// fakeCoordinator is a minimal strategy.Coordinator recording every call a
// strategy makes, so portfolio's rebalancing decisions can be asserted
// directly without spinning up a real transport/dispatcher/solver stack
// (that end-to-end path is covered by coordinator_test.go's S1-S4 scenarios).
type fakeCoordinator struct {
	n                   int
	isOptimization      bool
	sense               solver.Sense
	lower, upper        *big.Int
	running             []bool
	best                int
	haveBest            bool
	done                chan struct{}
	setBoundCalls       map[int][2]string
	interruptedWorkers  map[int]bool
	resetAndSolveCalled map[int]bool
	published           solver.Result
	publishedWorker     int
	verbositySet        map[int]int
}

func newFake(n int, sense solver.Sense, lower, upper int64) *fakeCoordinator {
	running := make([]bool, n)
	for i := range running {
		running[i] = true
	}
	return &fakeCoordinator{
		n:                   n,
		isOptimization:      true,
		sense:               sense,
		lower:               big.NewInt(lower),
		upper:               big.NewInt(upper),
		running:             running,
		done:                make(chan struct{}),
		setBoundCalls:       map[int][2]string{},
		interruptedWorkers:  map[int]bool{},
		resetAndSolveCalled: map[int]bool{},
		verbositySet:        map[int]int{},
	}
}

func (f *fakeCoordinator) Size() int { return f.n }
func (f *fakeCoordinator) Worker(i int) solver.Solver {
	return fakeSolver{
		isOptimization: f.isOptimization,
		onVerbosity:    func(level int) { f.verbositySet[i] = level },
	}
}
func (f *fakeCoordinator) Descriptor(i int) solver.WorkerDescriptor {
	return solver.WorkerDescriptor{ID: i, Running: f.running[i]}
}
func (f *fakeCoordinator) Objective() (*big.Int, *big.Int, solver.Sense) {
	return new(big.Int).Set(f.lower), new(big.Int).Set(f.upper), f.sense
}
func (f *fakeCoordinator) SetObjective(lower, upper *big.Int) {
	f.lower, f.upper = new(big.Int).Set(lower), new(big.Int).Set(upper)
}
func (f *fakeCoordinator) SetWorkerBound(ctx context.Context, i int, lower, upper *big.Int) error {
	f.setBoundCalls[i] = [2]string{lower.String(), upper.String()}
	return nil
}
func (f *fakeCoordinator) Interrupt(ctx context.Context, i int) error {
	f.interruptedWorkers[i] = true
	f.running[i] = false
	return nil
}
func (f *fakeCoordinator) ResetAndSolve(ctx context.Context, i int) error {
	f.resetAndSolveCalled[i] = true
	f.running[i] = true
	return nil
}
func (f *fakeCoordinator) SolveCube(ctx context.Context, i int, cube solver.Cube) error {
	return nil
}
func (f *fakeCoordinator) Broadcast(ctx context.Context, cube solver.Cube) error { return nil }
func (f *fakeCoordinator) PublishSatisfiable(ctx context.Context, worker int) error {
	f.haveBest, f.best = true, worker
	return nil
}
func (f *fakeCoordinator) PublishUnsatisfiable(ctx context.Context) error {
	f.published = solver.Unsatisfiable
	close(f.done)
	return nil
}
func (f *fakeCoordinator) PublishOptimumFound(ctx context.Context, worker int) error {
	f.published, f.publishedWorker = solver.OptimumFound, worker
	close(f.done)
	return nil
}
func (f *fakeCoordinator) PublishMergedSolution(ctx context.Context, solution solver.Solution) error {
	return nil
}
func (f *fakeCoordinator) BestKnown() (int, bool) { return f.best, f.haveBest }
func (f *fakeCoordinator) Done() <-chan struct{}  { return f.done }

var _ strategy.Coordinator = (*fakeCoordinator)(nil)

// fakeSolver stubs the one solver.Solver method portfolio.BeforeSearch
// actually calls (IsOptimization); every other method is unused by this
// package's tests.
type fakeSolver struct {
	solver.Solver
	isOptimization bool
	onVerbosity    func(level int)
}

func (f fakeSolver) IsOptimization(ctx context.Context) (bool, error) {
	return f.isOptimization, nil
}

func (f fakeSolver) SetVerbosity(ctx context.Context, level int) error {
	if f.onVerbosity != nil {
		f.onVerbosity(level)
	}
	return nil
}

func TestPortfolioInitialAllocationLinear(t *testing.T) {
	f := newFake(3, solver.Minimize, 0, 30)
	p := portfolio.New(allocation.Linear{}, false)
	ctx := context.Background()

	require.NoError(t, p.BeforeSearch(ctx, f))
	for i := 0; i < f.n; i++ {
		require.NoError(t, p.BeforeSearchWorker(ctx, f, i))
	}

	assert.Equal(t, [2]string{"0", "10"}, f.setBoundCalls[0])
	assert.Equal(t, [2]string{"10", "20"}, f.setBoundCalls[1])
	assert.Equal(t, [2]string{"20", "30"}, f.setBoundCalls[2])
}

// TestRebalanceDoesNotRestartNarrowedRunningWorker: a running worker whose
// sub-range narrows without closing is sent the new bound and gets no
// Interrupt/ResetAndSolve at all.
func TestRebalanceDoesNotRestartNarrowedRunningWorker(t *testing.T) {
	f := newFake(2, solver.Minimize, 0, 100)
	p := portfolio.New(allocation.Linear{}, false)
	ctx := context.Background()

	require.NoError(t, p.BeforeSearch(ctx, f))
	for i := 0; i < f.n; i++ {
		require.NoError(t, p.BeforeSearchWorker(ctx, f, i))
	}
	f.setBoundCalls = map[int][2]string{}

	// Worker 0 finds an improved bound (90), narrowing the global upper end
	// from 100 to 90; worker 1's own sub-range [50,100) narrows in turn to
	// [50,90). It should be told the new bound but never interrupted or
	// reset — it stays running, left to notice the new ceiling mid-search.
	require.NoError(t, p.OnNewBoundFound(ctx, f, 0, big.NewInt(90)))

	assert.Equal(t, [2]string{"50", "90"}, f.setBoundCalls[1])
	assert.False(t, f.interruptedWorkers[1])
	assert.False(t, f.resetAndSolveCalled[1])
}

// TestUnsatRebalanceRevivesIdleWorker covers "if the worker was idle
// (because it had just returned unsat), reset it and re-issue solve": a
// worker that just reported unsatisfiable is idle, and if the rebalance
// following the resulting bound tightening hands it a fresh non-empty
// sub-range, it must be reset and resolved rather than left idle.
func TestUnsatRebalanceRevivesIdleWorker(t *testing.T) {
	f := newFake(2, solver.Minimize, 0, 10)
	p := portfolio.New(allocation.Linear{}, false)
	ctx := context.Background()

	require.NoError(t, p.BeforeSearch(ctx, f)) // bounds = [0, 5, 10]
	for i := 0; i < f.n; i++ {
		require.NoError(t, p.BeforeSearchWorker(ctx, f, i))
	}
	f.setBoundCalls = map[int][2]string{}
	f.running[0] = false // worker 0 just reported unsatisfiable

	require.NoError(t, p.OnUnsatisfiableFound(ctx, f, 0))

	select {
	case <-f.done:
		t.Fatal("search should not have terminated: [1, 10) is still open")
	default:
	}
	// Global lower raised to bounds[0]+1 = 1; new allocation over [1, 10)
	// across 2 workers gives worker 0 room again, so it must be revived.
	assert.True(t, f.resetAndSolveCalled[0])
	_, ok := f.setBoundCalls[0]
	assert.True(t, ok)
}

// TestUnsatClosesRangePublishesUnsatisfiable covers the case where tightening
// the bound on the last open worker's unsat closes the global interval
// entirely with no solution ever found.
func TestUnsatClosesRangePublishesUnsatisfiable(t *testing.T) {
	f := newFake(1, solver.Minimize, 0, 0)
	p := portfolio.New(allocation.Linear{}, false)
	ctx := context.Background()

	require.NoError(t, p.BeforeSearch(ctx, f)) // bounds = [0, 0]
	require.NoError(t, p.BeforeSearchWorker(ctx, f, 0))
	f.running[0] = false

	require.NoError(t, p.OnUnsatisfiableFound(ctx, f, 0))

	<-f.done
	assert.Equal(t, solver.Unsatisfiable, f.published)
}

// TestUnsatClosesRangeWithBestKnownPublishesOptimum mirrors the above but
// with a previously published solution: closing the range means that
// solution is now proven optimal.
func TestUnsatClosesRangeWithBestKnownPublishesOptimum(t *testing.T) {
	f := newFake(1, solver.Minimize, 5, 5)
	f.haveBest, f.best = true, 0
	p := portfolio.New(allocation.Linear{}, false)
	ctx := context.Background()

	require.NoError(t, p.BeforeSearch(ctx, f)) // bounds = [5, 5]
	require.NoError(t, p.BeforeSearchWorker(ctx, f, 0))
	f.running[0] = false

	require.NoError(t, p.OnUnsatisfiableFound(ctx, f, 0))

	<-f.done
	assert.Equal(t, solver.OptimumFound, f.published)
	assert.Equal(t, 0, f.publishedWorker)
}

// TestWithConfigurationsAppliesPerWorkerVerbosity covers portfolio diversity:
// each worker's Configuration is applied exactly once, before its first
// bound assignment, and a worker with no entry is left untouched.
func TestWithConfigurationsAppliesPerWorkerVerbosity(t *testing.T) {
	f := newFake(3, solver.Minimize, 0, 30)
	p := portfolio.New(allocation.Linear{}, false)
	p.WithConfigurations(portfolio.VerbosityAndHeuristicConfig{}, []solver.Configuration{
		{"verbosity": "2"},
		nil,
	})
	ctx := context.Background()

	require.NoError(t, p.BeforeSearch(ctx, f))
	for i := 0; i < f.n; i++ {
		require.NoError(t, p.BeforeSearchWorker(ctx, f, i))
	}

	assert.Equal(t, 2, f.verbositySet[0])
	_, ok := f.verbositySet[1]
	assert.False(t, ok)
	_, ok = f.verbositySet[2]
	assert.False(t, ok)
}

func TestPortfolioDecisionUnsatIsImmediatelyTerminal(t *testing.T) {
	f := newFake(3, solver.Minimize, 0, 0)
	f.isOptimization = false
	p := portfolio.New(allocation.Linear{}, false)
	ctx := context.Background()
	require.NoError(t, p.BeforeSearch(ctx, f))

	require.NoError(t, p.OnUnsatisfiableFound(ctx, f, 1))

	<-f.done
	assert.Equal(t, solver.Unsatisfiable, f.published)
}
