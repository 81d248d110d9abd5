package cube

import (
	"container/heap"
	"context"
	"sync"

	"github.com/gallia/parsolve/consistency"
	"github.com/gallia/parsolve/solver"
)

// Scorer scores a partial cube for CartesianRefinement's priority queue;
// higher scores are popped first.
type Scorer func(domains []VariableDomain, cube solver.Cube) float64

// DefaultScorer is the negated product of the remaining (unassigned)
// variables' domain sizes, favoring partial cubes with the smallest
// remaining search space.
func DefaultScorer(domains []VariableDomain, cube solver.Cube) float64 {
	product := float64(1)
	for _, d := range domains[len(cube):] {
		product *= float64(d.Size())
	}
	return -product
}

type cubeItem struct {
	cube  solver.Cube
	score float64
}

// cubeHeap is a max-heap on score, grounded on the container/heap idiom
// used elsewhere in the example pack for a timer priority queue.
type cubeHeap []*cubeItem

func (h cubeHeap) Len() int            { return len(h) }
func (h cubeHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h cubeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cubeHeap) Push(x interface{}) { *h = append(*h, x.(*cubeItem)) }
func (h *cubeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// CartesianRefinement iteratively refines the highest-scored partial cube
// by one more assumption at a time, emitting a cube as soon as it reaches
// full length rather than reinserting it. Variables are assigned in the
// fixed order given at construction; only the choice of *which partial
// cube* to extend next is priority-driven.
type CartesianRefinement struct {
	domains []VariableDomain
	checker consistency.Checker
	scorer  Scorer

	mu        sync.Mutex
	pq        cubeHeap
	pending   []solver.Cube
	started   bool
	cancelled bool
}

// NewCartesianRefinement returns a refinement generator over domains in the
// given fixed assignment order. A nil checker is consistency.Null{}; a nil
// scorer is DefaultScorer.
func NewCartesianRefinement(domains []VariableDomain, checker consistency.Checker, scorer Scorer) *CartesianRefinement {
	if checker == nil {
		checker = consistency.Null{}
	}
	if scorer == nil {
		scorer = DefaultScorer
	}
	return &CartesianRefinement{domains: domains, checker: checker, scorer: scorer}
}

func (c *CartesianRefinement) ensureStarted() {
	if c.started {
		return
	}
	c.started = true
	heap.Init(&c.pq)
	heap.Push(&c.pq, &cubeItem{cube: solver.Cube{}, score: c.scorer(c.domains, solver.Cube{})})
}

func (c *CartesianRefinement) Next(ctx context.Context) (solver.Cube, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureStarted()

	for {
		if c.cancelled {
			return solver.Cube{}, nil
		}
		if len(c.pending) > 0 {
			next := c.pending[0]
			c.pending = c.pending[1:]
			return next, nil
		}
		if c.pq.Len() == 0 {
			return solver.Cube{}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		top := heap.Pop(&c.pq).(*cubeItem)
		depth := len(top.cube)
		if depth == len(c.domains) {
			// Full-length cubes are emitted the moment they are produced,
			// never pushed back onto the queue.
			continue
		}
		d := c.domains[depth]
		for v := d.Lo; v <= d.Hi; v++ {
			child := append(top.cube.Clone(), eqAssumption(d.Name, v))
			ok, err := c.checker.CheckPartial(ctx, child)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if len(child) == len(c.domains) {
				ok, err := c.checker.CheckFinal(ctx, child)
				if err != nil {
					return nil, err
				}
				if ok {
					c.pending = append(c.pending, child)
				}
				continue
			}
			heap.Push(&c.pq, &cubeItem{cube: child, score: c.scorer(c.domains, child)})
		}
	}
}

// Cancel discards all pending and queued work; subsequent Next calls report
// the generator exhausted.
func (c *CartesianRefinement) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	c.pq = nil
	c.pending = nil
}
