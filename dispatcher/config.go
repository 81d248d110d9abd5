package dispatcher

import (
	"context"
	"time"

	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/internal/wire"
	"github.com/gallia/parsolve/solver"
)

// handleConfig mutates local solver state synchronously with no reply.
func (d *Dispatcher) handleConfig(ctx context.Context, msg wire.Message) error {
	dec := wire.NewDecoder(msg)
	switch msg.Header.Name {
	case wire.OpSetTimeout:
		seconds, err := dec.GetInt64()
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.handleConfig", err)
		}
		return d.solver.SetTimeout(ctx, time.Duration(seconds)*time.Second)

	case wire.OpSetTimeoutMs:
		ms, err := dec.GetInt64()
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.handleConfig", err)
		}
		return d.solver.SetTimeout(ctx, time.Duration(ms)*time.Millisecond)

	case wire.OpSetVerbosity:
		level, err := dec.GetInt32()
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.handleConfig", err)
		}
		return d.solver.SetVerbosity(ctx, int(level))

	case wire.OpSetLogFile:
		path, err := dec.GetString()
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.handleConfig", err)
		}
		return d.solver.SetLogFile(ctx, path)

	case wire.OpSetLogStream:
		// A live stream handle cannot be framed over the wire; remote
		// workers only ever receive a log file path (set-log-file).
		return perr.New(perr.Unsupported, "dispatcher.handleConfig", errLogStreamUnsupported)

	case wire.OpSetLowerBound:
		b, err := decodeBound(dec)
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.handleConfig", err)
		}
		return d.solver.SetLowerBound(ctx, b)

	case wire.OpSetUpperBound:
		b, err := decodeBound(dec)
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.handleConfig", err)
		}
		return d.solver.SetUpperBound(ctx, b)

	case wire.OpSetBounds:
		lower, err := decodeBound(dec)
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.handleConfig", err)
		}
		upper, err := decodeBound(dec)
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.handleConfig", err)
		}
		return d.solver.SetBounds(ctx, lower, upper)

	case wire.OpDecisionVariables:
		vars, err := decodeStringList(dec)
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.handleConfig", err)
		}
		return d.solver.DecisionVariables(ctx, vars)

	case wire.OpValueHeuristicStatic:
		vars, orderedValues, err := decodeValueHeuristic(dec)
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.handleConfig", err)
		}
		return d.solver.ValueHeuristicStatic(ctx, vars, orderedValues)

	case wire.OpSetIgnoredConstraints:
		ignored, err := decodeIntList(dec)
		if err != nil {
			return perr.New(perr.Protocol, "dispatcher.handleConfig", err)
		}
		return d.solver.SetIgnoredConstraints(ctx, ignored)

	default:
		return perr.New(perr.Protocol, "dispatcher.handleConfig", errUnreachableConfigOpcode)
	}
}

func decodeBound(dec *wire.Decoder) (solver.Bound, error) {
	value, err := dec.GetBigInt()
	if err != nil {
		return solver.Bound{}, err
	}
	maximize, err := dec.GetBool()
	if err != nil {
		return solver.Bound{}, err
	}
	sense := solver.Minimize
	if maximize {
		sense = solver.Maximize
	}
	return solver.Bound{Value: value, Sense: sense}, nil
}

func decodeStringList(dec *wire.Decoder) ([]string, error) {
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

func decodeIntList(dec *wire.Decoder) ([]int, error) {
	n, err := dec.GetInt32()
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, n)
	for i := int32(0); i < n; i++ {
		v, err := dec.GetInt32()
		if err != nil {
			return nil, err
		}
		out = append(out, int(v))
	}
	return out, nil
}

func decodeValueHeuristic(dec *wire.Decoder) ([]string, [][]int64, error) {
	n, err := dec.GetInt32()
	if err != nil {
		return nil, nil, err
	}
	vars := make([]string, 0, n)
	values := make([][]int64, 0, n)
	for i := int32(0); i < n; i++ {
		name, err := dec.GetString()
		if err != nil {
			return nil, nil, err
		}
		count, err := dec.GetInt32()
		if err != nil {
			return nil, nil, err
		}
		vals := make([]int64, 0, count)
		for j := int32(0); j < count; j++ {
			v, err := dec.GetInt64()
			if err != nil {
				return nil, nil, err
			}
			vals = append(vals, v)
		}
		vars = append(vars, name)
		values = append(values, vals)
	}
	return vars, values, nil
}
