package solver

import (
	"context"
	"io"
	"time"
)

// Solver is the narrow interface the core relies on to drive a sequential
// constraint solver, whether backed by a local in-process toy implementation
// or a remote worker reached through the rpcsolver proxy. It deliberately
// exposes only the subset of a full solver API the coordinator and worker
// dispatcher need; a concrete backend may expose a much wider
// constraint-posting surface through its own type, never through this
// interface.
type Solver interface {
	// Setup.
	LoadInstance(ctx context.Context, file string) error
	Reset(ctx context.Context) error

	// Introspection.
	NVariables(ctx context.Context) (int, error)
	NConstraints(ctx context.Context) (int, error)
	IsOptimization(ctx context.Context) (bool, error)
	IsMinimization(ctx context.Context) (bool, error)
	GetAuxiliaryVariables(ctx context.Context) ([]string, error)

	// Search. On a local solver the Solve variants return when the solve
	// completes, so the dispatcher runs them on a background task and reads
	// Result afterwards. On the remote proxy they are fire-and-forget: they
	// send the request and return at once, and the terminal outcome is
	// observed by the coordinator's reader thread.
	Solve(ctx context.Context) error
	SolveFile(ctx context.Context, file string) error
	SolveAssumptions(ctx context.Context, cube Cube) error
	Interrupt(ctx context.Context) error

	// Result reports the outcome of the most recently completed solve
	// request, the classification the dispatcher forwards as a terminal
	// message. Unknown before any solve has completed.
	Result(ctx context.Context) (Result, error)

	// Answer retrieval.
	Solution(ctx context.Context) ([]int64, error)
	MapSolution(ctx context.Context, excludeAux bool) (Solution, error)

	// Verification.
	CheckSolution(ctx context.Context) (bool, error)
	CheckSolutionAssignment(ctx context.Context, assignment Solution) (bool, error)

	// Optimization bounds.
	SetLowerBound(ctx context.Context, v Bound) error
	SetUpperBound(ctx context.Context, v Bound) error
	SetBounds(ctx context.Context, lower, upper Bound) error
	GetLowerBound(ctx context.Context) (Bound, error)
	GetUpperBound(ctx context.Context) (Bound, error)
	GetCurrentBound(ctx context.Context) (Bound, error)

	// Heuristics.
	DecisionVariables(ctx context.Context, vars []string) error
	ValueHeuristicStatic(ctx context.Context, vars []string, orderedValues [][]int64) error

	// SetIgnoredConstraints marks exactly the constraints at the given
	// indices as ignored (skipped during search), every other constraint
	// active; used by the partition strategy to restrict a worker's solver
	// to its assigned block of the decomposition.
	SetIgnoredConstraints(ctx context.Context, ignored []int) error

	// Configuration.
	SetTimeout(ctx context.Context, d time.Duration) error
	SetVerbosity(ctx context.Context, level int) error
	SetLogFile(ctx context.Context, path string) error
}

// LocalOnly is implemented by solvers that can report their own variable
// name mapping directly, a worker-local-only operation; the remote proxy
// does not implement this interface.
type LocalOnly interface {
	GetVariablesMapping(ctx context.Context) (map[string]int, error)
}

// LogStreamer is implemented by in-process solvers that can redirect their
// log output to a caller-supplied writer. A live stream handle cannot be
// framed over the wire, so remote workers only ever receive a log file
// path; the proxy does not implement this interface.
type LogStreamer interface {
	SetLogStream(ctx context.Context, w io.Writer) error
}
