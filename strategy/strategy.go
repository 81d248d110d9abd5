// Package strategy declares the contract the coordinator delegates to for
// the three concrete search strategies (portfolio, EPS, partition): the
// hooks called at well-defined points in the coordinator's state machine,
// and the narrow coordinator surface a strategy needs to call back into.
package strategy

import (
	"context"
	"math/big"

	"github.com/gallia/parsolve/solver"
)

// Coordinator is the subset of coordinator.Coordinator a strategy is
// allowed to observe and mutate. Strategies never see the coordinator's
// transport, reader-thread internals, or semaphores directly.
type Coordinator interface {
	// Size returns the worker count N.
	Size() int
	// Worker returns the solver.Solver proxy addressing worker i.
	Worker(i int) solver.Solver
	// Descriptor returns the coordinator-owned descriptor for worker i.
	// Strategies may read it; only the coordinator's reader thread writes
	// to it directly, strategies mutate it only through the methods below.
	Descriptor(i int) solver.WorkerDescriptor

	// Objective returns the current global bound state.
	Objective() (lower, upper *big.Int, sense solver.Sense)
	// SetObjective narrows the global bound state. Both ends may be
	// supplied unchanged; callers should pass the previous value for the
	// end they don't intend to move.
	SetObjective(lower, upper *big.Int)

	// SetWorkerBound records worker i's currently assigned objective
	// sub-range [lower, upper) and sends the corresponding set-bounds
	// message, using the instance's fixed objective sense for both ends.
	// The descriptor's CurrentBound is updated to the tightening end: upper
	// for minimization, lower for maximization.
	SetWorkerBound(ctx context.Context, i int, lower, upper *big.Int) error
	// Interrupt sends interrupt to worker i and marks it not running.
	Interrupt(ctx context.Context, i int) error
	// ResetAndSolve resets worker i's local solver state and re-issues a
	// plain solve() request, used when a worker that just went idle is
	// handed a fresh sub-range or cube.
	ResetAndSolve(ctx context.Context, i int) error
	// SolveCube resets worker i then sends solve(cube).
	SolveCube(ctx context.Context, i int, cube solver.Cube) error
	// Broadcast sends solve(cube) to every worker (partition strategy's
	// synchronized wave).
	Broadcast(ctx context.Context, cube solver.Cube) error

	// PublishSatisfiable records worker i's current solution snapshot as
	// the best known one. For a decision instance this is terminal
	// (releases the solved semaphore); for an optimization instance it
	// only updates the snapshot, since a satisfiable report there means
	// "improved", not "done".
	PublishSatisfiable(ctx context.Context, worker int) error
	// PublishUnsatisfiable declares the whole problem unsatisfiable.
	PublishUnsatisfiable(ctx context.Context) error
	// PublishOptimumFound declares worker i's solution optimal.
	PublishOptimumFound(ctx context.Context, worker int) error
	// PublishMergedSolution directly stores solution as the final answer
	// and releases the solved semaphore, used by the partition strategy to
	// publish a solution assembled across every worker's partial answer
	// rather than a single worker's own snapshot.
	PublishMergedSolution(ctx context.Context, solution solver.Solution) error

	// BestKnown reports the worker currently holding the best recorded
	// solution snapshot, if any has been published yet.
	BestKnown() (worker int, ok bool)
	// Done returns a channel closed once a terminal outcome has been
	// published, letting a strategy's own background goroutines (EPS's
	// generator task, partition's round loop) stop promptly instead of
	// polling or leaking past the end of the search.
	Done() <-chan struct{}
}

// Strategy is implemented by portfolio, eps, and partition. The coordinator
// calls these hooks at the points named in its own state-machine doc
// comment; a strategy must not block the calling goroutine indefinitely
// except where noted (StartSearch's initial wave is expected to return
// promptly, launching any long-lived work of its own as goroutines).
type Strategy interface {
	// BeforeSearch runs once, after loadInstance, before any per-worker
	// hook or solve request.
	BeforeSearch(ctx context.Context, c Coordinator) error
	// BeforeSearchWorker runs once per worker, after BeforeSearch.
	BeforeSearchWorker(ctx context.Context, c Coordinator, worker int) error
	// StartSearch issues the first wave of solve requests.
	StartSearch(ctx context.Context, c Coordinator) error

	// OnSatisfiableFound is the reader thread's dispatch for a worker
	// reporting satisfiable. Unlike the other terminal reports this is not
	// inherently final: whether (and how) it ends the search is a
	// strategy-specific judgment call — a decision-problem portfolio
	// publishes immediately, EPS publishes and cancels its generator, and
	// partition waits for every worker in the current cube wave before
	// merging and publishing. Every strategy ultimately drives this
	// through the Coordinator.PublishSatisfiable/PublishMergedSolution
	// calls rather than the coordinator deciding unilaterally.
	OnSatisfiableFound(ctx context.Context, c Coordinator, worker int) error
	// OnUnsatisfiableFound is the reader thread's dispatch for a worker
	// reporting unsatisfiable.
	OnUnsatisfiableFound(ctx context.Context, c Coordinator, worker int) error
	// OnUnknown is the reader thread's dispatch for a worker reporting
	// unknown (interrupted before a definite answer).
	OnUnknown(ctx context.Context, c Coordinator, worker int) error
	// OnNewBoundFound is the reader thread's dispatch for an intermediate
	// optimization improvement.
	OnNewBoundFound(ctx context.Context, c Coordinator, worker int, bound *big.Int) error
	// OnOptimumFound is the reader thread's dispatch for a worker
	// declaring its own search optimal. For portfolio this means the
	// worker's assigned sub-range is exhausted at the given bound, which
	// may or may not be the global optimum depending on whether any other
	// sub-range is still alive; for EPS/partition (decision-only in this
	// module) it is unused.
	OnOptimumFound(ctx context.Context, c Coordinator, worker int, bound *big.Int) error
}
