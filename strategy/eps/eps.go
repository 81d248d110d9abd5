// Package eps implements the embarrassingly-parallel-search strategy: a
// background task enumerates disjoint cubes from a cube.Generator and
// hands each to the next idle worker, until a worker reports satisfiable
// (terminal, generator cancelled) or the generator is exhausted with every
// worker idle (globally unsatisfiable). This module scopes EPS to decision
// instances, since cubes partition the decision search space rather than
// the objective interval portfolio uses.
package eps

import (
	"context"
	"math/big"
	"sync"

	"github.com/gallia/parsolve/cube"
	"github.com/gallia/parsolve/metrics"
	"github.com/gallia/parsolve/strategy"
)

// EPS is a strategy.Strategy driving gen: its own background goroutine
// (launched from StartSearch) pulls a free worker id, requests the next
// cube, and dispatches it, stopping promptly once the coordinator's Done
// channel closes.
type EPS struct {
	gen cube.Generator

	idle chan int

	mu        sync.Mutex
	n         int
	idleCount int
	exhausted bool
}

// New returns an EPS strategy enumerating cubes from gen.
func New(gen cube.Generator) *EPS {
	return &EPS{gen: gen}
}

func (e *EPS) BeforeSearch(ctx context.Context, c strategy.Coordinator) error {
	e.mu.Lock()
	e.n = c.Size()
	e.idle = make(chan int, e.n)
	e.mu.Unlock()
	return nil
}

func (e *EPS) BeforeSearchWorker(ctx context.Context, c strategy.Coordinator, worker int) error {
	return nil
}

func (e *EPS) StartSearch(ctx context.Context, c strategy.Coordinator) error {
	for i := 0; i < c.Size(); i++ {
		e.idle <- i
	}
	e.mu.Lock()
	e.idleCount = c.Size()
	e.mu.Unlock()
	go e.generate(ctx, c)
	return nil
}

// generate is the strategy's own long-lived generator task, modeled as a
// goroutine instead of a dedicated process since workers here are
// goroutines too.
func (e *EPS) generate(ctx context.Context, c strategy.Coordinator) {
	for {
		select {
		case <-c.Done():
			e.gen.Cancel()
			return
		case <-ctx.Done():
			e.gen.Cancel()
			return
		default:
		}

		next, err := e.gen.Next(ctx)
		if err != nil {
			return
		}
		if next.Empty() {
			e.onExhausted(ctx, c)
			return
		}

		var worker int
		select {
		case worker = <-e.idle:
		case <-c.Done():
			e.gen.Cancel()
			return
		case <-ctx.Done():
			e.gen.Cancel()
			return
		}
		e.mu.Lock()
		e.idleCount--
		e.mu.Unlock()

		if err := c.SolveCube(ctx, worker, next); err != nil {
			return
		}
		metrics.CubesGenerated.Inc()
	}
}

func (e *EPS) onExhausted(ctx context.Context, c strategy.Coordinator) {
	e.mu.Lock()
	e.exhausted = true
	allIdle := e.idleCount == e.n
	e.mu.Unlock()
	if allIdle {
		_ = c.PublishUnsatisfiable(ctx)
	}
}

// freeWorker returns worker to the idle queue, declaring the search
// unsatisfiable if the generator is already exhausted and every worker has
// now gone idle without ever reporting satisfiable.
func (e *EPS) freeWorker(ctx context.Context, c strategy.Coordinator, worker int) error {
	e.mu.Lock()
	e.idleCount++
	done := e.exhausted && e.idleCount == e.n
	e.mu.Unlock()
	if done {
		return c.PublishUnsatisfiable(ctx)
	}
	select {
	case e.idle <- worker:
	default:
	}
	return nil
}

func (e *EPS) OnSatisfiableFound(ctx context.Context, c strategy.Coordinator, worker int) error {
	e.gen.Cancel()
	return c.PublishSatisfiable(ctx, worker)
}

func (e *EPS) OnUnsatisfiableFound(ctx context.Context, c strategy.Coordinator, worker int) error {
	return e.freeWorker(ctx, c, worker)
}

func (e *EPS) OnUnknown(ctx context.Context, c strategy.Coordinator, worker int) error {
	return e.freeWorker(ctx, c, worker)
}

func (e *EPS) OnNewBoundFound(ctx context.Context, c strategy.Coordinator, worker int, bound *big.Int) error {
	return nil
}

func (e *EPS) OnOptimumFound(ctx context.Context, c strategy.Coordinator, worker int, bound *big.Int) error {
	return c.PublishOptimumFound(ctx, worker)
}
