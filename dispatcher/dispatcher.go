// Package dispatcher implements the worker-side message loop (nicknamed
// Gaulois in the glossary): it decodes coordinator messages by opcode,
// drives a local solver.Solver, and streams answers and bounds back.
package dispatcher

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/internal/plog"
	"github.com/gallia/parsolve/internal/wire"
	"github.com/gallia/parsolve/solver"
	"github.com/gallia/parsolve/transport"
)

// Dispatcher runs the long-lived per-worker receive loop described by the
// core's worker dispatcher contract.
type Dispatcher struct {
	solver        solver.Solver
	self          transport.Transport
	coordinatorID int
	log           *plog.Logger

	loadMu    sync.Mutex // guards solving/cancel/solveDone; also held across Reset
	solving   bool
	cancel    context.CancelFunc
	solveDone chan struct{}
}

// New returns a Dispatcher driving solv, communicating over self, with the
// coordinator reachable at coordinatorID.
func New(solv solver.Solver, self transport.Transport, coordinatorID int) *Dispatcher {
	return &Dispatcher{
		solver:        solv,
		self:          self,
		coordinatorID: coordinatorID,
		log:           plog.New("dispatcher[%d]", self.ID()),
	}
}

// Run announces the worker and enters the receive loop. It returns when the
// coordinator sends end-search, or when ctx is canceled or the transport
// reports an error.
func (d *Dispatcher) Run(ctx context.Context) error {
	announce := wire.NewEncoder().Message(wire.Solve, wire.OpDeclareIndex, int32(d.self.ID()))
	if err := d.self.Send(ctx, d.coordinatorID, announce); err != nil {
		return perr.New(perr.Protocol, "dispatcher.Run", err)
	}

	for {
		msg, err := d.self.Receive(ctx, transport.ANY, d.coordinatorID)
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.Run", err)
		}
		if msg.Header.Name == wire.OpEndSearch {
			return d.handleEndSearch(ctx, msg)
		}
		if err := d.dispatch(ctx, msg); err != nil {
			d.log.Errorf("dispatch %s: %v", msg.Header.Name, err)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg wire.Message) error {
	switch msg.Header.Name {
	case wire.OpLoadInstance:
		return d.handleLoadInstance(ctx, msg)
	case wire.OpReset:
		return d.handleReset(ctx)
	case wire.OpSolve, wire.OpSolveFile, wire.OpSolveAssumptions:
		return d.startSolve(ctx, msg)
	case wire.OpInterrupt:
		return d.handleInterrupt(ctx)

	case wire.OpSetTimeout, wire.OpSetTimeoutMs, wire.OpSetVerbosity, wire.OpSetLogFile,
		wire.OpSetLogStream, wire.OpSetLowerBound, wire.OpSetUpperBound, wire.OpSetBounds,
		wire.OpDecisionVariables, wire.OpValueHeuristicStatic, wire.OpSetIgnoredConstraints:
		return d.handleConfig(ctx, msg)

	case wire.OpNVariables, wire.OpNConstraints, wire.OpIsOptimization, wire.OpIsMinimization,
		wire.OpGetLowerBound, wire.OpGetUpperBound, wire.OpGetCurrentBound, wire.OpSolution,
		wire.OpMapSolution, wire.OpGetAuxiliaryVariables, wire.OpCheckSolution, wire.OpCheckSolutionAssign:
		return d.handleInterrogation(ctx, msg)

	default:
		return perr.New(perr.Protocol, "dispatcher.dispatch", fmt.Errorf("unknown opcode %s", msg.Header.Name))
	}
}

func (d *Dispatcher) handleLoadInstance(ctx context.Context, msg wire.Message) error {
	file, err := wire.NewDecoder(msg).GetString()
	if err != nil {
		return perr.New(perr.Protocol, "dispatcher.handleLoadInstance", err)
	}
	if err := d.solver.LoadInstance(ctx, file); err != nil {
		return perr.New(perr.SolverFailure, "dispatcher.handleLoadInstance", err)
	}
	return nil
}

func (d *Dispatcher) handleReset(ctx context.Context) error {
	d.loadMu.Lock()
	defer d.loadMu.Unlock()
	if err := d.solver.Reset(ctx); err != nil {
		return perr.New(perr.SolverFailure, "dispatcher.handleReset", err)
	}
	return nil
}

func (d *Dispatcher) handleInterrupt(ctx context.Context) error {
	d.loadMu.Lock()
	cancel := d.cancel
	d.loadMu.Unlock()
	if cancel != nil {
		cancel()
	}
	if err := d.solver.Interrupt(ctx); err != nil {
		return perr.New(perr.SolverFailure, "dispatcher.handleInterrupt", err)
	}
	return nil
}

// startSolve spawns the background solve task. At most one is ever in
// flight: a new solve request while one is running is a contract violation,
// since the coordinator only ever sends one solve per worker and waits for
// a terminal message before sending the next.
func (d *Dispatcher) startSolve(ctx context.Context, msg wire.Message) error {
	d.loadMu.Lock()
	if d.solving {
		d.loadMu.Unlock()
		return perr.New(perr.ContractViolation, "dispatcher.startSolve", errAlreadySolving)
	}
	solveCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.solving = true
	d.cancel = cancel
	d.solveDone = done
	d.loadMu.Unlock()

	go func() {
		defer func() {
			d.loadMu.Lock()
			d.solving = false
			d.cancel = nil
			d.solveDone = nil
			d.loadMu.Unlock()
			close(done)
		}()
		d.runSolve(ctx, solveCtx, msg)
	}()
	return nil
}

func (d *Dispatcher) runSolve(ctx, solveCtx context.Context, msg wire.Message) {
	var solveErr error
	switch msg.Header.Name {
	case wire.OpSolve:
		solveErr = d.solver.Solve(solveCtx)
	case wire.OpSolveFile:
		file, err := wire.NewDecoder(msg).GetString()
		if err != nil {
			d.reportTerminal(ctx, wire.OpUnknown, nil)
			return
		}
		solveErr = d.solver.SolveFile(solveCtx, file)
	case wire.OpSolveAssumptions:
		cube, err := solver.DecodeCube(wire.NewDecoder(msg))
		if err != nil {
			d.reportTerminal(ctx, wire.OpUnknown, nil)
			return
		}
		solveErr = d.solver.SolveAssumptions(solveCtx, cube)
	}
	if solveErr != nil {
		d.log.Errorf("solve: %v", solveErr)
		d.reportTerminal(ctx, wire.OpUnknown, nil)
		return
	}

	result, err := d.solver.Result(ctx)
	if err != nil {
		d.reportTerminal(ctx, wire.OpUnknown, nil)
		return
	}
	d.reportResult(ctx, result)
}

// reportResult translates the final solver.Result of a completed solve into
// the terminal opcode the coordinator's reader thread expects. It never
// sends new-bound-found; that message is sent only by ReportBoundUpdate.
func (d *Dispatcher) reportResult(ctx context.Context, result solver.Result) {
	switch result {
	case solver.Satisfiable:
		d.reportTerminal(ctx, wire.OpSatisfiable, nil)
	case solver.Unsatisfiable:
		d.reportTerminal(ctx, wire.OpUnsatisfiable, nil)
	case solver.OptimumFound:
		bound, err := d.solver.GetCurrentBound(ctx)
		var params []*big.Int
		if err == nil {
			params = []*big.Int{bound.Value}
		}
		d.reportTerminal(ctx, wire.OpOptimumFound, params)
	case solver.Unsupported:
		d.reportTerminal(ctx, wire.OpUnsupported, nil)
	default:
		d.reportTerminal(ctx, wire.OpUnknown, nil)
	}
}

// ReportBoundUpdate sends new-bound-found(workerId, bound), used by a
// caller-supplied hook when the underlying solver exposes incremental
// improvement during optimization (toycsp reports only the final
// outcome; a richer backend would invoke this mid-search).
func (d *Dispatcher) ReportBoundUpdate(ctx context.Context, bound solver.Bound) error {
	enc := wire.NewEncoder().PutInt32(int32(d.self.ID())).PutBigInt(bound.Value)
	msg := enc.Message(wire.Solve, wire.OpNewBoundFound, int32(d.self.ID()))
	return d.self.Send(ctx, d.coordinatorID, msg)
}

func (d *Dispatcher) reportTerminal(ctx context.Context, op wire.Opcode, extra []*big.Int) {
	enc := wire.NewEncoder().PutInt32(int32(d.self.ID()))
	for _, v := range extra {
		enc.PutBigInt(v)
	}
	msg := enc.Message(wire.Solve, op, int32(d.self.ID()))
	if err := d.self.Send(ctx, d.coordinatorID, msg); err != nil {
		d.log.Errorf("report terminal %s: %v", op, err)
	}
}

// handleEndSearch is the shutdown handshake: interrupt any running solve,
// wait for the background task to drain, then acknowledge.
func (d *Dispatcher) handleEndSearch(ctx context.Context, msg wire.Message) error {
	d.loadMu.Lock()
	cancel := d.cancel
	done := d.solveDone
	d.loadMu.Unlock()
	if cancel != nil {
		cancel()
		_ = d.solver.Interrupt(ctx)
	}
	if done != nil {
		<-done
	}
	ack := wire.NewEncoder().Message(wire.Solve, wire.OpEndSearch, int32(d.self.ID()))
	return d.self.Send(ctx, d.coordinatorID, ack)
}

var errAlreadySolving = fmt.Errorf("dispatcher: a solve request is already in flight")
