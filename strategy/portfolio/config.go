package portfolio

import (
	"context"
	"strconv"

	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/solver"
)

// ConfigStrategy applies a per-worker solver.Configuration before the first
// solve request, giving portfolio members distinct settings instead of
// identical clones. It is the Go counterpart of Panoramyx's
// ISolverConfigurationStrategy::configure, narrowed to mutating an already
// constructed solver.Solver rather than selecting/building one, since this
// module's workers are not built per search.
type ConfigStrategy interface {
	Configure(ctx context.Context, worker solver.Solver, cfg solver.Configuration) error
}

// VerbosityAndHeuristicConfig applies the "verbosity" key via
// solver.Solver.SetVerbosity and, when both "decision-vars" and
// "heuristic-values" are present, a static value-ordering heuristic via
// DecisionVariables/ValueHeuristicStatic. Keys absent from a worker's
// Configuration are left at the solver's default.
type VerbosityAndHeuristicConfig struct{}

func (VerbosityAndHeuristicConfig) Configure(ctx context.Context, worker solver.Solver, cfg solver.Configuration) error {
	if v, ok := cfg["verbosity"]; ok {
		level, err := strconv.Atoi(v)
		if err != nil {
			return perr.New(perr.ContractViolation, "portfolio.Configure", err)
		}
		if err := worker.SetVerbosity(ctx, level); err != nil {
			return err
		}
	}

	vars, hasVars := cfg["decision-vars"]
	values, hasValues := cfg["heuristic-values"]
	if !hasVars || !hasValues {
		return nil
	}
	names := splitNonEmpty(vars)
	if len(names) == 0 {
		return nil
	}
	ordered, err := parseInts(values)
	if err != nil {
		return perr.New(perr.ContractViolation, "portfolio.Configure", err)
	}
	if err := worker.DecisionVariables(ctx, names); err != nil {
		return err
	}
	return worker.ValueHeuristicStatic(ctx, names, [][]int64{ordered})
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func parseInts(s string) ([]int64, error) {
	var out []int64
	for _, tok := range splitNonEmpty(s) {
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
