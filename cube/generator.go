// Package cube implements the cube generators consumed by the EPS search
// strategy: Lexicographic (enumerate variables in order, values in turn),
// LexicographicInterval (the same, but folding a wide domain into a handful
// of sub-intervals once it exceeds a configured budget), and
// CartesianRefinement (a priority-queue-driven iterative refinement scored
// by remaining search-space size).
package cube

import (
	"context"
	"math/big"

	"github.com/gallia/parsolve/solver"
)

// VariableDomain names a variable and its closed integer domain [Lo, Hi],
// the static information a cube generator needs to enumerate assumptions.
// It is supplied by the caller (derived from the loaded instance) rather
// than queried through solver.Solver, which exposes no per-variable domain
// introspection.
type VariableDomain struct {
	Name   string
	Lo, Hi int64
}

// Size returns the number of integers in the domain.
func (d VariableDomain) Size() int64 { return d.Hi - d.Lo + 1 }

// Generator produces a lazy sequence of cubes partitioning a search space.
// Next blocks until a cube is ready, an error occurs, or the generator is
// exhausted, in which case it returns the empty cube (Cube.Empty()) with a
// nil error. Cancel stops the generator early (the EPS strategy cancels it
// once a worker reports satisfiable) and is safe to call more than once.
type Generator interface {
	Next(ctx context.Context) (solver.Cube, error)
	Cancel()
}

// eqAssumption is a small helper shared by the generators below.
func eqAssumption(name string, v int64) solver.Assumption {
	return solver.Assumption{Variable: name, Relation: solver.Eq, Value: big.NewInt(v)}
}

func intervalAssumptions(name string, lo, hi int64) [2]solver.Assumption {
	return solver.Interval{Variable: name, Lo: big.NewInt(lo), Hi: big.NewInt(hi)}.Assumptions()
}
