// Package consistency implements the plug-in policies used while
// enumerating cubes: Null (always accept), Partial (prune an inconsistent
// prefix early), and Final (verify only the complete cube). Partial and
// Final each own a private auxiliary solver reserved for propagation-only
// queries, never shared with a worker's live solve.
package consistency

import (
	"context"

	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/solver"
)

// Checker is consulted by a cube generator before emitting a cube.
type Checker interface {
	// CheckPartial is called on each prefix as the generator extends a
	// partial cube; returning false prunes the whole branch.
	CheckPartial(ctx context.Context, cube solver.Cube) (bool, error)
	// CheckFinal is called once a cube reaches full length; returning
	// false discards it without emitting.
	CheckFinal(ctx context.Context, cube solver.Cube) (bool, error)
}

// Null always accepts, the degenerate case for generators run with
// consistency checking disabled.
type Null struct{}

func (Null) CheckPartial(ctx context.Context, cube solver.Cube) (bool, error) { return true, nil }
func (Null) CheckFinal(ctx context.Context, cube solver.Cube) (bool, error)   { return true, nil }

// oracle runs cube through a private solver instance and reports whether
// the cube survives: false only when the solver proves it unsatisfiable.
func oracle(ctx context.Context, aux solver.Solver, cube solver.Cube) (bool, error) {
	if err := aux.Reset(ctx); err != nil {
		return false, perr.New(perr.SolverFailure, "consistency.oracle", err)
	}
	if err := aux.SolveAssumptions(ctx, cube); err != nil {
		return false, perr.New(perr.SolverFailure, "consistency.oracle", err)
	}
	result, err := aux.Result(ctx)
	if err != nil {
		return false, perr.New(perr.SolverFailure, "consistency.oracle", err)
	}
	return result != solver.Unsatisfiable, nil
}

// Partial proves a prefix inconsistent as early as possible; a complete
// cube is never independently re-checked.
type Partial struct {
	aux solver.Solver
}

// NewPartial returns a Partial checker whose auxiliary solver is freshly
// loaded with instanceFile via newSolver.
func NewPartial(ctx context.Context, newSolver func() solver.Solver, instanceFile string) (*Partial, error) {
	aux := newSolver()
	if err := aux.LoadInstance(ctx, instanceFile); err != nil {
		return nil, perr.New(perr.SolverFailure, "consistency.NewPartial", err)
	}
	return &Partial{aux: aux}, nil
}

func (p *Partial) CheckPartial(ctx context.Context, cube solver.Cube) (bool, error) {
	return oracle(ctx, p.aux, cube)
}

func (p *Partial) CheckFinal(ctx context.Context, cube solver.Cube) (bool, error) { return true, nil }

// Final trusts every prefix and verifies only the completed cube.
type Final struct {
	aux solver.Solver
}

// NewFinal returns a Final checker whose auxiliary solver is freshly loaded
// with instanceFile via newSolver.
func NewFinal(ctx context.Context, newSolver func() solver.Solver, instanceFile string) (*Final, error) {
	aux := newSolver()
	if err := aux.LoadInstance(ctx, instanceFile); err != nil {
		return nil, perr.New(perr.SolverFailure, "consistency.NewFinal", err)
	}
	return &Final{aux: aux}, nil
}

func (f *Final) CheckPartial(ctx context.Context, cube solver.Cube) (bool, error) { return true, nil }

func (f *Final) CheckFinal(ctx context.Context, cube solver.Cube) (bool, error) {
	return oracle(ctx, f.aux, cube)
}
