// Package portfolio implements the portfolio search strategy: every worker
// races the same instance, and on an optimization instance
// each is additionally confined to its own slice of the objective interval
// via allocation.Strategy, narrowed and rebalanced as better bounds arrive.
package portfolio

import (
	"context"
	"math/big"
	"sync"

	"github.com/gallia/parsolve/allocation"
	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/metrics"
	"github.com/gallia/parsolve/solver"
	"github.com/gallia/parsolve/strategy"
)

// Portfolio is a strategy.Strategy. On a decision instance every worker
// simply races a full, unrestricted solve of the shared instance: the first
// terminal report (from any worker, any algorithm) is definitive. On an
// optimization instance workers instead race disjoint sub-ranges of the
// objective interval, narrowed and rebalanced as better bounds are proven.
type Portfolio struct {
	alloc      allocation.Strategy
	aggressive bool

	configStrategy ConfigStrategy
	configs        []solver.Configuration // indexed by worker; nil entries are skipped

	mu      sync.Mutex
	isOpt   bool
	bounds  []*big.Int // len n+1; worker i owns [bounds[i], bounds[i+1])
	retired []bool
}

// New returns a Portfolio splitting the objective interval with alloc
// (allocation.Linear{} if nil) and rebalancing aggressively if requested.
// A running worker whose sub-range changes without becoming empty is never
// reset: the new bound is sent and the running solver is left to notice it
// mid-search. A worker whose sub-range closes is retired (and interrupted
// if still running); an idle worker whose sub-range changed is reset and
// re-solved.
func New(alloc allocation.Strategy, aggressive bool) *Portfolio {
	if alloc == nil {
		alloc = allocation.Linear{}
	}
	return &Portfolio{alloc: alloc, aggressive: aggressive}
}

// WithConfigurations installs a per-worker diversity configuration, applied
// once per worker in BeforeSearchWorker before any solve request is issued.
// configs[i] is applied to worker i; a short configs slice or a nil entry
// leaves that worker at its defaults. Mirrors the fluent withX(...)-returns-
// this builder style of Panoramyx's AbstractSolverBuilder, in place of a
// functional-options constructor.
func (p *Portfolio) WithConfigurations(cs ConfigStrategy, configs []solver.Configuration) *Portfolio {
	p.configStrategy = cs
	p.configs = configs
	return p
}

func (p *Portfolio) BeforeSearch(ctx context.Context, c strategy.Coordinator) error {
	isOpt, err := c.Worker(0).IsOptimization(ctx)
	if err != nil {
		return perr.New(perr.SolverFailure, "portfolio.BeforeSearch", err)
	}
	lower, upper, _ := c.Objective()

	p.mu.Lock()
	p.isOpt = isOpt
	p.retired = make([]bool, c.Size())
	if isOpt {
		p.bounds = p.alloc.Allocate(lower, upper, c.Size())
	}
	p.mu.Unlock()
	return nil
}

func (p *Portfolio) BeforeSearchWorker(ctx context.Context, c strategy.Coordinator, worker int) error {
	if p.configStrategy != nil && worker < len(p.configs) && p.configs[worker] != nil {
		if err := p.configStrategy.Configure(ctx, c.Worker(worker), p.configs[worker]); err != nil {
			return err
		}
	}

	p.mu.Lock()
	isOpt := p.isOpt
	var lo, hi *big.Int
	if isOpt {
		lo, hi = p.bounds[worker], p.bounds[worker+1]
	}
	p.mu.Unlock()

	if !isOpt {
		return nil
	}
	return c.SetWorkerBound(ctx, worker, lo, hi)
}

func (p *Portfolio) StartSearch(ctx context.Context, c strategy.Coordinator) error {
	for i := 0; i < c.Size(); i++ {
		if err := c.ResetAndSolve(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (p *Portfolio) OnSatisfiableFound(ctx context.Context, c strategy.Coordinator, worker int) error {
	return c.PublishSatisfiable(ctx, worker)
}

func (p *Portfolio) OnUnsatisfiableFound(ctx context.Context, c strategy.Coordinator, worker int) error {
	p.mu.Lock()
	isOpt := p.isOpt
	p.mu.Unlock()
	if !isOpt {
		// A decision instance races the whole, unrestricted instance: any
		// single worker proving it unsatisfiable is definitive.
		return c.PublishUnsatisfiable(ctx)
	}
	return p.tightenOnUnsat(ctx, c, worker)
}

// tightenOnUnsat applies the "no solution in this worker's sub-range" rule:
// for minimization the global lower bound is raised to bounds[worker]+1,
// for maximization the global upper bound is lowered to bounds[worker+1]-1
// — safe against fixed-width overflow since big.Int arithmetic has none.
// If the resulting interval closes, the search is over (optimum if a
// solution was ever published, otherwise truly unsatisfiable); otherwise
// the allocation is rebalanced across every worker, worker included, since
// it is now idle and may be handed a fresh, non-empty sub-range of its own.
func (p *Portfolio) tightenOnUnsat(ctx context.Context, c strategy.Coordinator, worker int) error {
	lower, upper, sense := c.Objective()
	p.mu.Lock()
	lo, hi := p.bounds[worker], p.bounds[worker+1]
	p.mu.Unlock()

	switch sense {
	case solver.Minimize:
		lower = new(big.Int).Add(lo, big.NewInt(1))
	case solver.Maximize:
		upper = new(big.Int).Sub(hi, big.NewInt(1))
	}

	if lower.Cmp(upper) > 0 {
		if best, ok := c.BestKnown(); ok {
			return c.PublishOptimumFound(ctx, best)
		}
		return c.PublishUnsatisfiable(ctx)
	}

	c.SetObjective(lower, upper)
	return p.rebalance(ctx, c, -1, lower, upper)
}

func (p *Portfolio) OnUnknown(ctx context.Context, c strategy.Coordinator, worker int) error {
	// Expected noise from this strategy's own rebalancing Interrupt calls:
	// only a worker whose sub-range closed is interrupted, and it was
	// retired in the same hook, so there is nothing further to do here.
	return nil
}

func (p *Portfolio) OnNewBoundFound(ctx context.Context, c strategy.Coordinator, worker int, bound *big.Int) error {
	p.mu.Lock()
	isOpt := p.isOpt
	p.mu.Unlock()
	if !isOpt {
		return nil
	}
	lower, upper, changed := p.tighten(c, bound)
	if !changed {
		// Deterministic tie-break: when a second worker proves the same
		// bound, the smallest worker id keeps (or takes over) the win.
		best, hasBest := c.BestKnown()
		if p.matchesTighteningEnd(c, bound) && (!hasBest || worker < best) {
			return c.PublishSatisfiable(ctx, worker)
		}
		return nil
	}
	if err := c.PublishSatisfiable(ctx, worker); err != nil {
		return err
	}
	return p.rebalance(ctx, c, worker, lower, upper)
}

// matchesTighteningEnd reports whether bound equals the interval end a new
// bound would tighten, i.e. the report ties the current best instead of
// being stale.
func (p *Portfolio) matchesTighteningEnd(c strategy.Coordinator, bound *big.Int) bool {
	lower, upper, sense := c.Objective()
	if sense == solver.Minimize {
		return bound.Cmp(upper) == 0
	}
	return bound.Cmp(lower) == 0
}

func (p *Portfolio) OnOptimumFound(ctx context.Context, c strategy.Coordinator, worker int, bound *big.Int) error {
	p.mu.Lock()
	isOpt := p.isOpt
	p.mu.Unlock()
	if !isOpt {
		return c.PublishSatisfiable(ctx, worker)
	}

	lower, upper, improved := p.tighten(c, bound)
	best, hasBest := c.BestKnown()
	// A sub-range optimum only supplants the stored best when it actually
	// improves the global bound (or is the first solution of the session,
	// or ties it from a smaller worker id); a stale report just retires the
	// worker.
	record := improved || !hasBest || (worker < best && p.matchesTighteningEnd(c, bound))
	if record {
		if err := c.PublishSatisfiable(ctx, worker); err != nil {
			return err
		}
	}
	if improved {
		if err := p.rebalance(ctx, c, worker, lower, upper); err != nil {
			return err
		}
	}
	return p.retireAndCheck(ctx, c, worker)
}

// tighten narrows the global objective interval to bound if bound actually
// improves on the current end of the sense's tightening direction,
// reporting the resulting interval and whether it changed.
func (p *Portfolio) tighten(c strategy.Coordinator, bound *big.Int) (lower, upper *big.Int, changed bool) {
	lower, upper, sense := c.Objective()
	switch sense {
	case solver.Minimize:
		if bound.Cmp(upper) < 0 {
			upper = bound
			changed = true
		}
	case solver.Maximize:
		if bound.Cmp(lower) > 0 {
			lower = bound
			changed = true
		}
	}
	if changed {
		c.SetObjective(lower, upper)
	}
	return lower, upper, changed
}

// rebalance recomputes the allocation vector for the narrowed [lower, upper)
// interval and updates every worker except exclude (pass -1 to exclude
// none — the unsat path rebalances every worker, including the one that
// just went idle reporting it). Following the rule that an unchanged bound
// means do not restart it: a worker whose sub-range closed entirely is
// retired and, if still running, interrupted; a worker whose sub-range
// merely narrows is just told its new bound and left running; only a
// worker that is currently idle (already reported a terminal outcome for
// its previous sub-range) is reset and re-solved on its new one.
func (p *Portfolio) rebalance(ctx context.Context, c strategy.Coordinator, exclude int, lower, upper *big.Int) error {
	p.mu.Lock()
	oldBounds := append([]*big.Int(nil), p.bounds...)
	p.bounds = allocation.Rebalance(p.alloc, p.bounds, lower, upper, p.aggressive)
	bounds := append([]*big.Int(nil), p.bounds...)
	retired := append([]bool(nil), p.retired...)
	p.mu.Unlock()
	metrics.RebalanceCount.Inc()

	for i := 0; i < c.Size(); i++ {
		if i == exclude || retired[i] {
			continue
		}
		if bounds[i].Cmp(bounds[i+1]) >= 0 {
			p.mu.Lock()
			p.retired[i] = true
			p.mu.Unlock()
			if c.Descriptor(i).Running {
				if err := c.Interrupt(ctx, i); err != nil {
					return err
				}
			}
			continue
		}
		if bounds[i].Cmp(oldBounds[i]) == 0 && bounds[i+1].Cmp(oldBounds[i+1]) == 0 {
			continue
		}
		if err := c.SetWorkerBound(ctx, i, bounds[i], bounds[i+1]); err != nil {
			return err
		}
		if !c.Descriptor(i).Running {
			if err := c.ResetAndSolve(ctx, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Portfolio) retireAndCheck(ctx context.Context, c strategy.Coordinator, worker int) error {
	p.mu.Lock()
	p.retired[worker] = true
	allRetired := true
	for _, r := range p.retired {
		if !r {
			allRetired = false
			break
		}
	}
	p.mu.Unlock()
	if !allRetired {
		return nil
	}
	if best, ok := c.BestKnown(); ok {
		return c.PublishOptimumFound(ctx, best)
	}
	return c.PublishUnsatisfiable(ctx)
}
