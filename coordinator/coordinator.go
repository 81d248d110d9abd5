// Package coordinator implements Abraracourcix, the orchestrating process:
// it loads the instance onto every worker, delegates the actual search plan
// to a strategy.Strategy, and demultiplexes terminal messages from the
// worker fleet's reader thread into that strategy's hooks.
package coordinator

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/internal/plog"
	"github.com/gallia/parsolve/internal/wire"
	"github.com/gallia/parsolve/metrics"
	"github.com/gallia/parsolve/rpcsolver"
	"github.com/gallia/parsolve/solver"
	"github.com/gallia/parsolve/strategy"
	"github.com/gallia/parsolve/transport"
)

// state names the coordinator's own position in the CREATED -> LOADED ->
// READY -> SEARCHING -> SOLVED -> END-SEARCH -> DRAINED lifecycle;
// Solve folds READY/SEARCHING into a single call since nothing
// observes the distinction from outside.
type state int

const (
	stateCreated state = iota
	stateLoaded
	stateSearching
	stateSolved
	stateEndSearch
	stateDrained
)

// Coordinator drives a fleet of workers over a transport.Transport,
// delegating search policy to a strategy.Strategy and implementing the
// narrow strategy.Coordinator surface that strategy calls back into.
type Coordinator struct {
	t         transport.Transport
	cfg       Config
	strategy  strategy.Strategy
	sessionID string
	log       *plog.Logger

	workers []solver.Solver

	stateMu sync.Mutex
	state   state

	descMu      sync.Mutex
	descriptors []solver.WorkerDescriptor

	objMu    sync.Mutex
	sense    solver.Sense
	objLower *big.Int
	objUpper *big.Int

	solMu      sync.Mutex
	solution   solver.Solution
	haveBest   bool
	bestWorker int
	result     solver.Result

	solveOnce sync.Once
	solvedCh  chan struct{}

	errMu   sync.Mutex
	hookErr error
}

// New returns a Coordinator addressing every worker reachable over t.
// Worker 0..t.Size()-1 are proxied through rpcsolver; strat drives the
// search once Solve is called.
func New(t transport.Transport, cfg Config, strat strategy.Strategy) (*Coordinator, error) {
	if t.Size() <= 0 {
		return nil, errNoWorkers
	}
	if strat == nil {
		return nil, errNoStrategy
	}
	n := t.Size()
	workers := make([]solver.Solver, n)
	descriptors := make([]solver.WorkerDescriptor, n)
	for i := 0; i < n; i++ {
		workers[i] = rpcsolver.New(t, i)
		descriptors[i] = solver.WorkerDescriptor{ID: i}
	}
	sessionID := uuid.NewString()
	return &Coordinator{
		t:           t,
		cfg:         cfg,
		strategy:    strat,
		sessionID:   sessionID,
		log:         plog.New("coordinator[%s]", sessionID),
		workers:     workers,
		descriptors: descriptors,
		objLower:    big.NewInt(0),
		objUpper:    big.NewInt(0),
		solvedCh:    make(chan struct{}),
	}, nil
}

func (c *Coordinator) setState(s state) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// LoadInstance broadcasts cfg.InstanceFile to every worker and records the
// instance's fixed objective sense and initial bound interval, moving the
// coordinator from CREATED to LOADED.
func (c *Coordinator) LoadInstance(ctx context.Context) error {
	c.stateMu.Lock()
	if c.state != stateCreated {
		c.stateMu.Unlock()
		return perr.New(perr.ContractViolation, "coordinator.LoadInstance", fmt.Errorf("instance already loaded"))
	}
	c.stateMu.Unlock()

	for i, w := range c.workers {
		if err := w.LoadInstance(ctx, c.cfg.InstanceFile); err != nil {
			return perr.New(perr.SolverFailure, "coordinator.LoadInstance", fmt.Errorf("worker %d: %w", i, err))
		}
	}

	isOpt, err := c.workers[0].IsOptimization(ctx)
	if err != nil {
		return perr.New(perr.SolverFailure, "coordinator.LoadInstance", err)
	}
	if !isOpt {
		// Pure decision instance: no objective interval to track: IsMinimization
		// and the bound getters are only defined for optimization instances.
		c.setState(stateLoaded)
		return nil
	}

	minimize, err := c.workers[0].IsMinimization(ctx)
	if err != nil {
		return perr.New(perr.SolverFailure, "coordinator.LoadInstance", err)
	}
	sense := solver.Maximize
	if minimize {
		sense = solver.Minimize
	}
	lower, err := c.workers[0].GetLowerBound(ctx)
	if err != nil {
		return perr.New(perr.SolverFailure, "coordinator.LoadInstance", err)
	}
	upper, err := c.workers[0].GetUpperBound(ctx)
	if err != nil {
		return perr.New(perr.SolverFailure, "coordinator.LoadInstance", err)
	}

	c.objMu.Lock()
	c.sense = sense
	c.objMu.Unlock()
	c.SetObjective(lower.Value, upper.Value)

	c.setState(stateLoaded)
	return nil
}

// Solve runs the configured strategy to completion: BeforeSearch, then
// BeforeSearchWorker for every worker (applying cfg.Timeout/Verbosity
// first), then StartSearch, then waits for a terminal outcome published
// through PublishSatisfiable/PublishUnsatisfiable/PublishOptimumFound/
// PublishMergedSolution, and finally drains every worker with end-search.
func (c *Coordinator) Solve(ctx context.Context) (solver.Result, error) {
	c.stateMu.Lock()
	if c.state != stateLoaded {
		c.stateMu.Unlock()
		return solver.Unknown, perr.New(perr.ContractViolation, "coordinator.Solve", fmt.Errorf("instance not loaded"))
	}
	c.state = stateSearching
	c.stateMu.Unlock()

	timer := metrics.NewTimer(metrics.SearchDuration)
	defer timer.Stop()

	readerCtx, cancelReader := context.WithCancel(context.Background())
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		c.readLoop(readerCtx, ctx)
	}()

	stop := func(err error) (solver.Result, error) {
		cancelReader()
		<-readerDone
		c.setState(stateEndSearch)
		c.broadcastEndSearch(context.Background())
		c.setState(stateDrained)
		if err != nil {
			return solver.Unknown, err
		}
		c.solMu.Lock()
		result := c.result
		c.solMu.Unlock()
		return result, nil
	}

	if err := c.strategy.BeforeSearch(ctx, c); err != nil {
		return stop(perr.New(perr.ContractViolation, "coordinator.Solve", err))
	}
	for i := range c.workers {
		if c.cfg.Timeout > 0 {
			if err := c.workers[i].SetTimeout(ctx, c.cfg.Timeout); err != nil {
				return stop(perr.New(perr.SolverFailure, "coordinator.Solve", fmt.Errorf("worker %d: %w", i, err)))
			}
		}
		if c.cfg.Verbosity != 0 {
			if err := c.workers[i].SetVerbosity(ctx, c.cfg.Verbosity); err != nil {
				return stop(perr.New(perr.SolverFailure, "coordinator.Solve", fmt.Errorf("worker %d: %w", i, err)))
			}
		}
		if err := c.strategy.BeforeSearchWorker(ctx, c, i); err != nil {
			return stop(perr.New(perr.ContractViolation, "coordinator.Solve", err))
		}
	}
	if err := c.strategy.StartSearch(ctx, c); err != nil {
		return stop(perr.New(perr.ContractViolation, "coordinator.Solve", err))
	}

	select {
	case <-c.solvedCh:
		c.setState(stateSolved)
		return stop(nil)
	case <-ctx.Done():
		return stop(ctx.Err())
	}
}

// SessionID returns the unique identity minted for this coordinator at
// construction, carried as the component label on all of its log output.
func (c *Coordinator) SessionID() string { return c.sessionID }

// Solution returns the best solution published during the last Solve call,
// if any was ever published.
func (c *Coordinator) Solution() (solver.Solution, bool) {
	c.solMu.Lock()
	defer c.solMu.Unlock()
	return c.solution, c.haveBest
}

func (c *Coordinator) readLoop(readerCtx, hookCtx context.Context) {
	for {
		msg, err := c.t.Receive(readerCtx, int(wire.Solve), transport.ANY)
		if err != nil {
			return
		}
		if msg.Header.Name == wire.OpEndSearch || msg.Header.Name == wire.OpDeclareIndex {
			continue
		}
		worker := int(msg.Header.Source)
		dec := wire.NewDecoder(msg)
		if _, err := dec.GetInt32(); err != nil {
			c.log.Errorf("decode %s from worker %d: %v", msg.Header.Name, worker, err)
			continue
		}

		switch msg.Header.Name {
		case wire.OpSatisfiable:
			c.setRunning(worker, false)
			c.dispatchErr("OnSatisfiableFound", worker, c.strategy.OnSatisfiableFound(hookCtx, c, worker))
		case wire.OpUnsatisfiable:
			c.setRunning(worker, false)
			c.dispatchErr("OnUnsatisfiableFound", worker, c.strategy.OnUnsatisfiableFound(hookCtx, c, worker))
		case wire.OpUnknown, wire.OpUnsupported:
			c.setRunning(worker, false)
			c.dispatchErr("OnUnknown", worker, c.strategy.OnUnknown(hookCtx, c, worker))
		case wire.OpNewBoundFound:
			bound, err := dec.GetBigInt()
			if err != nil {
				c.log.Errorf("decode bound from worker %d: %v", worker, err)
				continue
			}
			c.dispatchErr("OnNewBoundFound", worker, c.strategy.OnNewBoundFound(hookCtx, c, worker, bound))
		case wire.OpOptimumFound:
			bound, err := dec.GetBigInt()
			if err != nil {
				c.log.Errorf("decode bound from worker %d: %v", worker, err)
				continue
			}
			c.setRunning(worker, false)
			c.dispatchErr("OnOptimumFound", worker, c.strategy.OnOptimumFound(hookCtx, c, worker, bound))
		default:
			c.log.Errorf("%v", errUnknownOpcode("readLoop", msg.Header.Name))
		}
	}
}

// dispatchErr handles a strategy hook failing inside the reader thread. The
// failure must not silently stall the search (nothing else would ever
// release the solved semaphore), so the first one is recorded for Err() and
// the session is terminated with an Unknown result.
func (c *Coordinator) dispatchErr(hook string, worker int, err error) {
	if err == nil {
		return
	}
	c.log.Errorf("%s(worker=%d): %v", hook, worker, err)
	c.errMu.Lock()
	if c.hookErr == nil {
		c.hookErr = err
	}
	c.errMu.Unlock()
	c.finish(solver.Unknown)
}

// Err reports the first reader-loop or strategy-hook failure observed during
// the last Solve call, if the session was terminated by one.
func (c *Coordinator) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.hookErr
}

func (c *Coordinator) broadcastEndSearch(ctx context.Context) {
	for i := range c.workers {
		msg := wire.NewEncoder().Message(wire.Solve, wire.OpEndSearch, int32(c.t.ID()))
		if err := c.t.Send(ctx, i, msg); err != nil {
			c.log.Errorf("end-search to worker %d: %v", i, err)
		}
	}
	for i := range c.workers {
		for {
			msg, err := c.t.Receive(ctx, int(wire.Solve), i)
			if err != nil {
				c.log.Errorf("end-search ack from worker %d: %v", i, err)
				break
			}
			if msg.Header.Name == wire.OpEndSearch {
				break
			}
			// A late terminal from an interrupted solve; the ack always
			// follows it, so keep draining.
		}
	}
}

func (c *Coordinator) setRunning(i int, running bool) {
	c.descMu.Lock()
	was := c.descriptors[i].Running
	c.descriptors[i].Running = running
	c.descMu.Unlock()
	switch {
	case running && !was:
		metrics.WorkersRunning.Inc()
	case !running && was:
		metrics.WorkersRunning.Dec()
	}
}

func (c *Coordinator) finish(result solver.Result) {
	c.solveOnce.Do(func() {
		c.solMu.Lock()
		c.result = result
		c.solMu.Unlock()
		metrics.TerminalOutcomes.WithLabelValues(result.String()).Inc()
		close(c.solvedCh)
	})
}

// --- strategy.Coordinator ---

func (c *Coordinator) Size() int { return len(c.workers) }

func (c *Coordinator) Worker(i int) solver.Solver { return c.workers[i] }

func (c *Coordinator) Descriptor(i int) solver.WorkerDescriptor {
	c.descMu.Lock()
	defer c.descMu.Unlock()
	return c.descriptors[i]
}

func (c *Coordinator) Objective() (lower, upper *big.Int, sense solver.Sense) {
	c.objMu.Lock()
	defer c.objMu.Unlock()
	return new(big.Int).Set(c.objLower), new(big.Int).Set(c.objUpper), c.sense
}

func (c *Coordinator) SetObjective(lower, upper *big.Int) {
	c.objMu.Lock()
	c.objLower = new(big.Int).Set(lower)
	c.objUpper = new(big.Int).Set(upper)
	c.objMu.Unlock()

	span := new(big.Int).Sub(upper, lower)
	if f, _ := new(big.Float).SetInt(span).Float64(); f >= 0 {
		metrics.ObjectiveSpan.Set(f)
	}
}

func (c *Coordinator) SetWorkerBound(ctx context.Context, i int, lower, upper *big.Int) error {
	c.objMu.Lock()
	sense := c.sense
	c.objMu.Unlock()

	lb := solver.Bound{Value: new(big.Int).Set(lower), Sense: sense}
	ub := solver.Bound{Value: new(big.Int).Set(upper), Sense: sense}
	if err := c.workers[i].SetBounds(ctx, lb, ub); err != nil {
		return perr.New(perr.SolverFailure, "coordinator.SetWorkerBound", fmt.Errorf("worker %d: %w", i, err))
	}

	current := ub
	if sense == solver.Maximize {
		current = lb
	}
	c.descMu.Lock()
	c.descriptors[i].CurrentBound = current
	c.descMu.Unlock()
	return nil
}

func (c *Coordinator) Interrupt(ctx context.Context, i int) error {
	if err := c.workers[i].Interrupt(ctx); err != nil {
		return perr.New(perr.SolverFailure, "coordinator.Interrupt", fmt.Errorf("worker %d: %w", i, err))
	}
	c.setRunning(i, false)
	return nil
}

func (c *Coordinator) ResetAndSolve(ctx context.Context, i int) error {
	if err := c.workers[i].Reset(ctx); err != nil {
		return perr.New(perr.SolverFailure, "coordinator.ResetAndSolve", fmt.Errorf("worker %d: %w", i, err))
	}
	if err := c.workers[i].Solve(ctx); err != nil {
		return perr.New(perr.SolverFailure, "coordinator.ResetAndSolve", fmt.Errorf("worker %d: %w", i, err))
	}
	c.setRunning(i, true)
	return nil
}

func (c *Coordinator) SolveCube(ctx context.Context, i int, cube solver.Cube) error {
	if err := c.workers[i].Reset(ctx); err != nil {
		return perr.New(perr.SolverFailure, "coordinator.SolveCube", fmt.Errorf("worker %d: %w", i, err))
	}
	if err := c.workers[i].SolveAssumptions(ctx, cube); err != nil {
		return perr.New(perr.SolverFailure, "coordinator.SolveCube", fmt.Errorf("worker %d: %w", i, err))
	}
	c.setRunning(i, true)
	return nil
}

func (c *Coordinator) Broadcast(ctx context.Context, cube solver.Cube) error {
	for i := range c.workers {
		if err := c.SolveCube(ctx, i, cube); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) PublishSatisfiable(ctx context.Context, worker int) error {
	sol, err := c.workers[worker].MapSolution(ctx, true)
	if err != nil {
		return perr.New(perr.SolverFailure, "coordinator.PublishSatisfiable", fmt.Errorf("worker %d: %w", worker, err))
	}
	c.solMu.Lock()
	c.solution = sol
	c.bestWorker = worker
	c.haveBest = true
	c.solMu.Unlock()

	isOpt, err := c.workers[worker].IsOptimization(ctx)
	if err != nil {
		return perr.New(perr.SolverFailure, "coordinator.PublishSatisfiable", err)
	}
	if !isOpt {
		c.finish(solver.Satisfiable)
	}
	return nil
}

func (c *Coordinator) PublishUnsatisfiable(ctx context.Context) error {
	c.finish(solver.Unsatisfiable)
	return nil
}

func (c *Coordinator) PublishOptimumFound(ctx context.Context, worker int) error {
	sol, err := c.workers[worker].MapSolution(ctx, true)
	if err != nil {
		return perr.New(perr.SolverFailure, "coordinator.PublishOptimumFound", fmt.Errorf("worker %d: %w", worker, err))
	}
	c.solMu.Lock()
	c.solution = sol
	c.bestWorker = worker
	c.haveBest = true
	c.solMu.Unlock()
	c.finish(solver.OptimumFound)
	return nil
}

func (c *Coordinator) PublishMergedSolution(ctx context.Context, solution solver.Solution) error {
	c.solMu.Lock()
	c.solution = solution
	c.haveBest = true
	c.solMu.Unlock()
	c.finish(solver.Satisfiable)
	return nil
}

func (c *Coordinator) BestKnown() (worker int, ok bool) {
	c.solMu.Lock()
	defer c.solMu.Unlock()
	return c.bestWorker, c.haveBest
}

func (c *Coordinator) Done() <-chan struct{} { return c.solvedCh }
