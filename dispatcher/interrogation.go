package dispatcher

import (
	"context"
	"math/big"

	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/internal/wire"
	"github.com/gallia/parsolve/solver"
)

// handleInterrogation executes a read-only RPC synchronously and replies on
// the Response tag. Every reply payload begins with a success boolean,
// followed either by an error string or the typed answer; this lets a
// solver-side failure (e.g. querying bounds before an objective exists)
// propagate to the coordinator instead of silently hanging the proxy.
func (d *Dispatcher) handleInterrogation(ctx context.Context, msg wire.Message) error {
	enc := wire.NewEncoder()
	err := d.answer(ctx, msg, enc)
	if err != nil {
		enc = wire.NewEncoder().PutBool(false).PutString(err.Error())
	} else {
		enc = prependSuccess(enc)
	}
	reply := enc.Message(wire.Response, msg.Header.Name, int32(d.self.ID()))
	if sendErr := d.self.Send(ctx, d.coordinatorID, reply); sendErr != nil {
		return perr.New(perr.Protocol, "dispatcher.handleInterrogation", sendErr)
	}
	return err
}

// prependSuccess rebuilds enc's payload with a leading success=true byte;
// Encoder has no in-place prepend, so the parameters already written are
// copied after it.
func prependSuccess(enc *wire.Encoder) *wire.Encoder {
	full := wire.NewEncoder()
	full.PutBool(true)
	full.Absorb(enc)
	return full
}

// answer computes the RPC result and writes it (without the leading success
// flag) into enc.
func (d *Dispatcher) answer(ctx context.Context, msg wire.Message, enc *wire.Encoder) error {
	switch msg.Header.Name {
	case wire.OpNVariables:
		n, err := d.solver.NVariables(ctx)
		if err != nil {
			return err
		}
		enc.PutInt32(int32(n))

	case wire.OpNConstraints:
		n, err := d.solver.NConstraints(ctx)
		if err != nil {
			return err
		}
		enc.PutInt32(int32(n))

	case wire.OpIsOptimization:
		b, err := d.solver.IsOptimization(ctx)
		if err != nil {
			return err
		}
		enc.PutBool(b)

	case wire.OpIsMinimization:
		b, err := d.solver.IsMinimization(ctx)
		if err != nil {
			return err
		}
		enc.PutBool(b)

	case wire.OpGetLowerBound:
		b, err := d.solver.GetLowerBound(ctx)
		if err != nil {
			return err
		}
		putBound(enc, b)

	case wire.OpGetUpperBound:
		b, err := d.solver.GetUpperBound(ctx)
		if err != nil {
			return err
		}
		putBound(enc, b)

	case wire.OpGetCurrentBound:
		b, err := d.solver.GetCurrentBound(ctx)
		if err != nil {
			return err
		}
		putBound(enc, b)

	case wire.OpSolution:
		values, err := d.solver.Solution(ctx)
		if err != nil {
			return err
		}
		enc.PutInt32(int32(len(values)))
		for _, v := range values {
			enc.PutInt64(v)
		}

	case wire.OpMapSolution:
		excludeAux, err := wire.NewDecoder(msg).GetBool()
		if err != nil {
			return err
		}
		sol, err := d.solver.MapSolution(ctx, excludeAux)
		if err != nil {
			return err
		}
		putSolution(enc, sol)

	case wire.OpGetAuxiliaryVariables:
		vars, err := d.solver.GetAuxiliaryVariables(ctx)
		if err != nil {
			return err
		}
		putStringList(enc, vars)

	case wire.OpCheckSolution:
		ok, err := d.solver.CheckSolution(ctx)
		if err != nil {
			return err
		}
		enc.PutBool(ok)

	case wire.OpCheckSolutionAssign:
		sol, err := decodeSolution(wire.NewDecoder(msg))
		if err != nil {
			return err
		}
		ok, err := d.solver.CheckSolutionAssignment(ctx, sol)
		if err != nil {
			return err
		}
		enc.PutBool(ok)

	default:
		return errUnreachableConfigOpcode
	}
	return nil
}

func putBound(enc *wire.Encoder, b solver.Bound) {
	enc.PutBigInt(b.Value).PutBool(b.Sense == solver.Maximize)
}

func putStringList(enc *wire.Encoder, vars []string) {
	enc.PutInt32(int32(len(vars)))
	for _, v := range vars {
		enc.PutString(v)
	}
}

func putSolution(enc *wire.Encoder, sol solver.Solution) {
	enc.PutInt32(int32(len(sol.Values))).PutBool(sol.IncludesAuxiliary)
	for name, v := range sol.Values {
		enc.PutString(name).PutBigInt(v)
	}
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
