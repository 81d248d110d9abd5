// Package rpcsolver implements the coordinator-side solver.Solver backed
// entirely by wire RPCs to a worker's dispatcher: the remote-solver proxy.
package rpcsolver

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/internal/wire"
	"github.com/gallia/parsolve/solver"
	"github.com/gallia/parsolve/transport"
)

// Proxy presents solver.Solver by exchanging wire messages with a single
// worker over a shared transport. A per-proxy mutex serializes
// request/response pairs, since filtered receives match on (tag, source)
// rather than an in-flight RPC id: two concurrent callers on the same proxy
// could otherwise read each other's reply.
type Proxy struct {
	t        transport.Transport
	workerID int

	mu sync.Mutex

	nVariables     *int
	nConstraints   *int
	isOptimization *bool
	auxVariables   []string
}

// New returns a Proxy addressing the worker at workerID over t.
func New(t transport.Transport, workerID int) *Proxy {
	return &Proxy{t: t, workerID: workerID}
}

// sendTimeout bounds how long the proxy waits for a fire-and-forget
// send to be accepted by the transport; it does not bound the solve
// itself, which is observed asynchronously via the coordinator's reader
// thread, never through this proxy.
const sendTimeout = 10 * time.Second

func (p *Proxy) send(ctx context.Context, msg wire.Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := p.t.Send(sendCtx, p.workerID, msg); err != nil {
		return perr.New(perr.Protocol, "rpcsolver.send", err)
	}
	return nil
}

// call sends a request and blocks for the matching Response-tagged reply,
// decoding its leading success flag.
func (p *Proxy) call(ctx context.Context, req wire.Message) (*wire.Decoder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.send(ctx, req); err != nil {
		return nil, err
	}
	reply, err := p.t.Receive(ctx, int(wire.Response), p.workerID)
	if err != nil {
		return nil, perr.New(perr.Protocol, "rpcsolver.call", err)
	}
	dec := wire.NewDecoder(reply)
	ok, err := dec.GetBool()
	if err != nil {
		return nil, perr.New(perr.Protocol, "rpcsolver.call", err)
	}
	if !ok {
		msg, err := dec.GetString()
		if err != nil {
			msg = "remote solver error"
		}
		return nil, perr.New(perr.SolverFailure, "rpcsolver.call", errRemote(msg))
	}
	return dec, nil
}

func (p *Proxy) LoadInstance(ctx context.Context, file string) error {
	msg := wire.NewEncoder().PutString(file).Message(wire.Solve, wire.OpLoadInstance, 0)
	return p.send(ctx, msg)
}

func (p *Proxy) Reset(ctx context.Context) error {
	msg := wire.NewEncoder().Message(wire.Solve, wire.OpReset, 0)
	return p.send(ctx, msg)
}

func (p *Proxy) NVariables(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.nVariables != nil {
		n := *p.nVariables
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	dec, err := p.call(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpNVariables, 0))
	if err != nil {
		return 0, err
	}
	n, err := dec.GetInt32()
	if err != nil {
		return 0, perr.New(perr.Protocol, "rpcsolver.NVariables", err)
	}
	p.mu.Lock()
	v := int(n)
	p.nVariables = &v
	p.mu.Unlock()
	return v, nil
}

func (p *Proxy) NConstraints(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.nConstraints != nil {
		n := *p.nConstraints
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	dec, err := p.call(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpNConstraints, 0))
	if err != nil {
		return 0, err
	}
	n, err := dec.GetInt32()
	if err != nil {
		return 0, perr.New(perr.Protocol, "rpcsolver.NConstraints", err)
	}
	p.mu.Lock()
	v := int(n)
	p.nConstraints = &v
	p.mu.Unlock()
	return v, nil
}

func (p *Proxy) IsOptimization(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.isOptimization != nil {
		v := *p.isOptimization
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()

	dec, err := p.call(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpIsOptimization, 0))
	if err != nil {
		return false, err
	}
	v, err := dec.GetBool()
	if err != nil {
		return false, perr.New(perr.Protocol, "rpcsolver.IsOptimization", err)
	}
	p.mu.Lock()
	p.isOptimization = &v
	p.mu.Unlock()
	return v, nil
}

func (p *Proxy) IsMinimization(ctx context.Context) (bool, error) {
	dec, err := p.call(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpIsMinimization, 0))
	if err != nil {
		return false, err
	}
	v, err := dec.GetBool()
	if err != nil {
		return false, perr.New(perr.Protocol, "rpcsolver.IsMinimization", err)
	}
	return v, nil
}

func (p *Proxy) GetAuxiliaryVariables(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	if p.auxVariables != nil {
		v := append([]string(nil), p.auxVariables...)
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()

	dec, err := p.call(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpGetAuxiliaryVariables, 0))
	if err != nil {
		return nil, err
	}
	vars, err := decodeStrings(dec)
	if err != nil {
		return nil, perr.New(perr.Protocol, "rpcsolver.GetAuxiliaryVariables", err)
	}
	p.mu.Lock()
	p.auxVariables = vars
	p.mu.Unlock()
	return append([]string(nil), vars...), nil
}

// Solve, SolveFile and SolveAssumptions are fire-and-forget: completion is
// observed by the coordinator's reader thread, never by this proxy.

func (p *Proxy) Solve(ctx context.Context) error {
	return p.send(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpSolve, 0))
}

func (p *Proxy) SolveFile(ctx context.Context, file string) error {
	msg := wire.NewEncoder().PutString(file).Message(wire.Solve, wire.OpSolveFile, 0)
	return p.send(ctx, msg)
}

func (p *Proxy) SolveAssumptions(ctx context.Context, cube solver.Cube) error {
	enc := solver.EncodeCube(wire.NewEncoder(), cube)
	return p.send(ctx, enc.Message(wire.Solve, wire.OpSolveAssumptions, 0))
}

func (p *Proxy) Interrupt(ctx context.Context) error {
	return p.send(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpInterrupt, 0))
}

// Result is not an RPC — there is no interrogation opcode for it; the
// coordinator's reader thread infers it from the terminal message it
// observes, never by asking this proxy.
func (p *Proxy) Result(ctx context.Context) (solver.Result, error) {
	return solver.Unknown, perr.New(perr.Unsupported, "rpcsolver.Result", errNotAnRPC)
}

func (p *Proxy) Solution(ctx context.Context) ([]int64, error) {
	dec, err := p.call(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpSolution, 0))
	if err != nil {
		return nil, err
	}
	n, err := dec.GetInt32()
	if err != nil {
		return nil, perr.New(perr.Protocol, "rpcsolver.Solution", err)
	}
	out := make([]int64, n)
	for i := range out {
		v, err := dec.GetInt64()
		if err != nil {
			return nil, perr.New(perr.Protocol, "rpcsolver.Solution", err)
		}
		out[i] = v
	}
	return out, nil
}

func (p *Proxy) MapSolution(ctx context.Context, excludeAux bool) (solver.Solution, error) {
	req := wire.NewEncoder().PutBool(excludeAux).Message(wire.Solve, wire.OpMapSolution, 0)
	dec, err := p.call(ctx, req)
	if err != nil {
		return solver.Solution{}, err
	}
	return decodeSolution(dec)
}

func (p *Proxy) CheckSolution(ctx context.Context) (bool, error) {
	dec, err := p.call(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpCheckSolution, 0))
	if err != nil {
		return false, err
	}
	v, err := dec.GetBool()
	if err != nil {
		return false, perr.New(perr.Protocol, "rpcsolver.CheckSolution", err)
	}
	return v, nil
}

func (p *Proxy) CheckSolutionAssignment(ctx context.Context, assignment solver.Solution) (bool, error) {
	enc := wire.NewEncoder().PutInt32(int32(len(assignment.Values))).PutBool(assignment.IncludesAuxiliary)
	for name, v := range assignment.Values {
		enc.PutString(name).PutBigInt(v)
	}
	dec, err := p.call(ctx, enc.Message(wire.Solve, wire.OpCheckSolutionAssign, 0))
	if err != nil {
		return false, err
	}
	v, err := dec.GetBool()
	if err != nil {
		return false, perr.New(perr.Protocol, "rpcsolver.CheckSolutionAssignment", err)
	}
	return v, nil
}

func (p *Proxy) SetLowerBound(ctx context.Context, v solver.Bound) error {
	msg := encodeBound(wire.NewEncoder(), v).Message(wire.Config, wire.OpSetLowerBound, 0)
	return p.send(ctx, msg)
}

func (p *Proxy) SetUpperBound(ctx context.Context, v solver.Bound) error {
	msg := encodeBound(wire.NewEncoder(), v).Message(wire.Config, wire.OpSetUpperBound, 0)
	return p.send(ctx, msg)
}

func (p *Proxy) SetBounds(ctx context.Context, lower, upper solver.Bound) error {
	enc := wire.NewEncoder()
	encodeBound(enc, lower)
	encodeBound(enc, upper)
	return p.send(ctx, enc.Message(wire.Config, wire.OpSetBounds, 0))
}

func (p *Proxy) GetLowerBound(ctx context.Context) (solver.Bound, error) {
	dec, err := p.call(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpGetLowerBound, 0))
	if err != nil {
		return solver.Bound{}, err
	}
	return decodeBound(dec)
}

func (p *Proxy) GetUpperBound(ctx context.Context) (solver.Bound, error) {
	dec, err := p.call(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpGetUpperBound, 0))
	if err != nil {
		return solver.Bound{}, err
	}
	return decodeBound(dec)
}

func (p *Proxy) GetCurrentBound(ctx context.Context) (solver.Bound, error) {
	dec, err := p.call(ctx, wire.NewEncoder().Message(wire.Solve, wire.OpGetCurrentBound, 0))
	if err != nil {
		return solver.Bound{}, err
	}
	return decodeBound(dec)
}

func (p *Proxy) DecisionVariables(ctx context.Context, vars []string) error {
	enc := wire.NewEncoder().PutInt32(int32(len(vars)))
	for _, v := range vars {
		enc.PutString(v)
	}
	return p.send(ctx, enc.Message(wire.Config, wire.OpDecisionVariables, 0))
}

func (p *Proxy) ValueHeuristicStatic(ctx context.Context, vars []string, orderedValues [][]int64) error {
	enc := wire.NewEncoder().PutInt32(int32(len(vars)))
	for i, v := range vars {
		enc.PutString(v)
		values := orderedValues[i]
		enc.PutInt32(int32(len(values)))
		for _, val := range values {
			enc.PutInt64(val)
		}
	}
	return p.send(ctx, enc.Message(wire.Config, wire.OpValueHeuristicStatic, 0))
}

func (p *Proxy) SetIgnoredConstraints(ctx context.Context, ignored []int) error {
	enc := wire.NewEncoder().PutInt32(int32(len(ignored)))
	for _, i := range ignored {
		enc.PutInt32(int32(i))
	}
	return p.send(ctx, enc.Message(wire.Config, wire.OpSetIgnoredConstraints, 0))
}

func (p *Proxy) SetTimeout(ctx context.Context, d time.Duration) error {
	msg := wire.NewEncoder().PutInt64(int64(d / time.Second)).Message(wire.Config, wire.OpSetTimeout, 0)
	return p.send(ctx, msg)
}

func (p *Proxy) SetVerbosity(ctx context.Context, level int) error {
	msg := wire.NewEncoder().PutInt32(int32(level)).Message(wire.Config, wire.OpSetVerbosity, 0)
	return p.send(ctx, msg)
}

func (p *Proxy) SetLogFile(ctx context.Context, path string) error {
	msg := wire.NewEncoder().PutString(path).Message(wire.Config, wire.OpSetLogFile, 0)
	return p.send(ctx, msg)
}

func encodeBound(enc *wire.Encoder, b solver.Bound) *wire.Encoder {
	return enc.PutBigInt(b.Value).PutBool(b.Sense == solver.Maximize)
}

func decodeBound(dec *wire.Decoder) (solver.Bound, error) {
	value, err := dec.GetBigInt()
	if err != nil {
		return solver.Bound{}, perr.New(perr.Protocol, "rpcsolver.decodeBound", err)
	}
	maximize, err := dec.GetBool()
	if err != nil {
		return solver.Bound{}, perr.New(perr.Protocol, "rpcsolver.decodeBound", err)
	}
	sense := solver.Minimize
	if maximize {
		sense = solver.Maximize
	}
	return solver.Bound{Value: value, Sense: sense}, nil
}

func decodeStrings(dec *wire.Decoder) ([]string, error) {
	n, err := dec.GetInt32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		s, err := dec.GetString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeSolution(dec *wire.Decoder) (solver.Solution, error) {
	n, err := dec.GetInt32()
	if err != nil {
		return solver.Solution{}, err
	}
	aux, err := dec.GetBool()
	if err != nil {
		return solver.Solution{}, err
	}
	values := make(map[string]*big.Int, n)
	for i := int32(0); i < n; i++ {
		name, err := dec.GetString()
		if err != nil {
			return solver.Solution{}, err
		}
		v, err := dec.GetBigInt()
		if err != nil {
			return solver.Solution{}, err
		}
		values[name] = v
	}
	return solver.Solution{Values: values, IncludesAuxiliary: aux}, nil
}
