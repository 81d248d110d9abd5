package cube

import (
	"context"
	"sync"

	"github.com/gallia/parsolve/consistency"
	"github.com/gallia/parsolve/solver"
)

// Lexicographic enumerates variables in the order given at construction
// time, and for each variable its domain values in turn, consulting a
// consistency checker at each step (partial/final check). It stops
// after emitting maxCubes cubes even if the domain is not exhausted.
type Lexicographic struct {
	domains  []VariableDomain
	checker  consistency.Checker
	maxCubes int

	once   sync.Once
	ch     chan solver.Cube
	errCh  chan error
	cancel context.CancelFunc
}

// NewLexicographic returns a generator over domains in the given order. A
// nil checker is equivalent to consistency.Null{}. maxCubes <= 0 means
// unbounded (limited only by the domain's own size).
func NewLexicographic(domains []VariableDomain, checker consistency.Checker, maxCubes int) *Lexicographic {
	if checker == nil {
		checker = consistency.Null{}
	}
	return &Lexicographic{domains: domains, checker: checker, maxCubes: maxCubes}
}

func (l *Lexicographic) start(parent context.Context) {
	l.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		l.cancel = cancel
		l.ch = make(chan solver.Cube)
		l.errCh = make(chan error, 1)
		go l.run(ctx)
	})
}

func (l *Lexicographic) run(ctx context.Context) {
	defer close(l.ch)
	emitted := 0
	prefix := make(solver.Cube, 0, len(l.domains))
	var walk func(depth int) bool // returns false to stop the whole walk
	walk = func(depth int) bool {
		if l.maxCubes > 0 && emitted >= l.maxCubes {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if depth == len(l.domains) {
			ok, err := l.checker.CheckFinal(ctx, prefix)
			if err != nil {
				select {
				case l.errCh <- err:
				default:
				}
				return false
			}
			if !ok {
				return true
			}
			select {
			case l.ch <- prefix.Clone():
				emitted++
			case <-ctx.Done():
				return false
			}
			return true
		}
		d := l.domains[depth]
		for v := d.Lo; v <= d.Hi; v++ {
			prefix = append(prefix, eqAssumption(d.Name, v))
			ok, err := l.checker.CheckPartial(ctx, prefix)
			if err != nil {
				prefix = prefix[:len(prefix)-1]
				select {
				case l.errCh <- err:
				default:
				}
				return false
			}
			if ok {
				if !walk(depth + 1) {
					prefix = prefix[:len(prefix)-1]
					return false
				}
			}
			prefix = prefix[:len(prefix)-1]
			if l.maxCubes > 0 && emitted >= l.maxCubes {
				return false
			}
		}
		return true
	}
	walk(0)
}

func (l *Lexicographic) Next(ctx context.Context) (solver.Cube, error) {
	l.start(ctx)
	select {
	case c, ok := <-l.ch:
		if !ok {
			select {
			case err := <-l.errCh:
				return nil, err
			default:
				return solver.Cube{}, nil
			}
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Lexicographic) Cancel() {
	if l.cancel != nil {
		l.cancel()
	}
}
