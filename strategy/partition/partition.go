// Package partition implements the partition search strategy: the
// constraint hypergraph is split into one disjoint block per worker
// (each restricted to its own block via SetIgnoredConstraints), and the
// cutset variables straddling more than one block are enumerated as cubes
// broadcast to every worker in lockstep. A round is satisfiable only if
// every worker is satisfiable on its own block under that cutset
// assignment; the merged solution is the union of every worker's answer.
package partition

import (
	"context"
	"math/big"

	"github.com/gallia/parsolve/consistency"
	"github.com/gallia/parsolve/cube"
	"github.com/gallia/parsolve/decompose"
	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/metrics"
	"github.com/gallia/parsolve/solver"
	"github.com/gallia/parsolve/strategy"
)

type outcome int

const (
	outcomeSatisfiable outcome = iota
	outcomeOther
)

type roundResult struct {
	worker  int
	outcome outcome
}

// Partition is a strategy.Strategy driving a round-synchronized cutset
// search over a Decomposer-computed block assignment.
type Partition struct {
	decomposer decompose.Decomposer
	problem    decompose.Problem
	domains    []cube.VariableDomain
	checker    consistency.Checker
	maxCubes   int

	partitions [][]int
	owned      []map[string]bool // owned[i][name]: worker i's block touches name
	gen        cube.Generator
	results    chan roundResult
}

// New returns a Partition strategy over problem, decomposed at BeforeSearch
// time into as many blocks as there are workers. domains supplies the
// integer domain of every variable in problem (cutset enumeration filters
// this down to just the cutset once the decomposition is known); checker
// prunes the cutset cube walk exactly as EPS's generator does (nil means
// consistency.Null{}).
func New(decomposer decompose.Decomposer, problem decompose.Problem, domains []cube.VariableDomain, checker consistency.Checker, maxCubes int) *Partition {
	return &Partition{decomposer: decomposer, problem: problem, domains: domains, checker: checker, maxCubes: maxCubes}
}

func (p *Partition) BeforeSearch(ctx context.Context, c strategy.Coordinator) error {
	partitions, cutset, err := p.decomposer.Decompose(p.problem, c.Size())
	if err != nil {
		return perr.New(perr.SolverFailure, "partition.BeforeSearch", err)
	}
	p.partitions = partitions
	p.owned = make([]map[string]bool, len(partitions))
	for i, indices := range partitions {
		names := make(map[string]bool)
		for _, ci := range indices {
			for _, v := range p.problem.Constraints[ci].Vars {
				names[v] = true
			}
		}
		p.owned[i] = names
	}

	byName := make(map[string]cube.VariableDomain, len(p.domains))
	for _, d := range p.domains {
		byName[d.Name] = d
	}
	cutDomains := make([]cube.VariableDomain, 0, len(cutset))
	for _, name := range cutset {
		if d, ok := byName[name]; ok {
			cutDomains = append(cutDomains, d)
		}
	}
	p.gen = cube.NewLexicographic(cutDomains, p.checker, p.maxCubes)
	p.results = make(chan roundResult, c.Size())
	return nil
}

func (p *Partition) BeforeSearchWorker(ctx context.Context, c strategy.Coordinator, worker int) error {
	active := make(map[int]bool, len(p.partitions[worker]))
	for _, idx := range p.partitions[worker] {
		active[idx] = true
	}
	ignored := make([]int, 0, len(p.problem.Constraints)-len(active))
	for i := range p.problem.Constraints {
		if !active[i] {
			ignored = append(ignored, i)
		}
	}
	return c.Worker(worker).SetIgnoredConstraints(ctx, ignored)
}

func (p *Partition) StartSearch(ctx context.Context, c strategy.Coordinator) error {
	go p.run(ctx, c)
	return nil
}

// run enumerates cutset cubes one at a time, broadcasting each to every
// worker and waiting for exactly Size() reports before moving on: a round
// never overlaps the next, so a worker's terminal report is always
// attributable to the round currently being judged.
func (p *Partition) run(ctx context.Context, c strategy.Coordinator) {
	for {
		select {
		case <-c.Done():
			return
		case <-ctx.Done():
			return
		default:
		}

		cb, err := p.gen.Next(ctx)
		if err != nil {
			return
		}
		if cb.Empty() {
			_ = c.PublishUnsatisfiable(ctx)
			return
		}
		if err := c.Broadcast(ctx, cb); err != nil {
			return
		}
		metrics.CubesGenerated.Inc()

		n := c.Size()
		allSat := true
		for received := 0; received < n; received++ {
			select {
			case r := <-p.results:
				if r.outcome != outcomeSatisfiable && allSat {
					// The cube is dead: interrupt the stragglers so the
					// round drains quickly. Each replies unknown, which
					// still counts toward this round's report total.
					allSat = false
					for i := 0; i < n; i++ {
						if i != r.worker && c.Descriptor(i).Running {
							_ = c.Interrupt(ctx, i)
						}
					}
				}
			case <-c.Done():
				return
			case <-ctx.Done():
				return
			}
		}
		if !allSat {
			continue
		}

		merged, err := p.merge(ctx, c, cb)
		if err != nil {
			return
		}
		_ = c.PublishMergedSolution(ctx, merged)
		return
	}
}

// merge unions every worker's partial solution by variable-name, each
// worker contributing only the variables its own assigned block of
// constraints actually touches, taking the value from the worker whose
// partition owns it — every worker here loads the same full instance, so
// a non-owned variable in a worker's own solution is whatever arbitrary
// value its unconstrained search happened to leave it at and must not be
// allowed to clobber the owning worker's answer. Cutset variables are
// taken directly from the cube that produced this round rather than from
// any single worker's report, since they are shared and every worker was
// handed the identical assumption.
func (p *Partition) merge(ctx context.Context, c strategy.Coordinator, cb solver.Cube) (solver.Solution, error) {
	merged := solver.Solution{Values: make(map[string]*big.Int)}
	for _, a := range cb {
		merged.Values[a.Variable] = a.Value
	}
	for i := 0; i < c.Size(); i++ {
		sol, err := c.Worker(i).MapSolution(ctx, true)
		if err != nil {
			return solver.Solution{}, perr.New(perr.SolverFailure, "partition.merge", err)
		}
		for name, v := range sol.Values {
			if p.owned[i][name] {
				merged.Values[name] = v
			}
		}
	}
	return merged, nil
}

func (p *Partition) report(worker int, o outcome) {
	select {
	case p.results <- roundResult{worker: worker, outcome: o}:
	default:
	}
}

func (p *Partition) OnSatisfiableFound(ctx context.Context, c strategy.Coordinator, worker int) error {
	p.report(worker, outcomeSatisfiable)
	return nil
}

func (p *Partition) OnUnsatisfiableFound(ctx context.Context, c strategy.Coordinator, worker int) error {
	p.report(worker, outcomeOther)
	return nil
}

func (p *Partition) OnUnknown(ctx context.Context, c strategy.Coordinator, worker int) error {
	p.report(worker, outcomeOther)
	return nil
}

func (p *Partition) OnNewBoundFound(ctx context.Context, c strategy.Coordinator, worker int, bound *big.Int) error {
	return nil
}

func (p *Partition) OnOptimumFound(ctx context.Context, c strategy.Coordinator, worker int, bound *big.Int) error {
	return c.PublishOptimumFound(ctx, worker)
}
