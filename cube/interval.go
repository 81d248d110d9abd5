package cube

import (
	"context"
	"sync"

	"github.com/gallia/parsolve/consistency"
	"github.com/gallia/parsolve/solver"
)

// LexicographicInterval behaves exactly like Lexicographic, except that
// once a variable's domain is wider than budget it is not enumerated value
// by value: the domain is instead split into at most budget contiguous
// sub-intervals [v, v+stride), each contributed as a single (Ge, Lt)
// assumption pair, cutting the branching factor at that level down to
// budget regardless of domain width.
type LexicographicInterval struct {
	domains  []VariableDomain
	checker  consistency.Checker
	maxCubes int
	budget   int

	once   sync.Once
	ch     chan solver.Cube
	errCh  chan error
	cancel context.CancelFunc
}

// NewLexicographicInterval returns an interval-folding generator. budget
// must be >= 1; a domain no wider than budget is enumerated value by value,
// same as Lexicographic.
func NewLexicographicInterval(domains []VariableDomain, checker consistency.Checker, maxCubes, budget int) *LexicographicInterval {
	if checker == nil {
		checker = consistency.Null{}
	}
	if budget < 1 {
		budget = 1
	}
	return &LexicographicInterval{domains: domains, checker: checker, maxCubes: maxCubes, budget: budget}
}

// branches returns the assumption fragment for each branch at this
// variable: one fragment per domain value if the domain fits within the
// budget, otherwise one fragment per sub-interval.
func (l *LexicographicInterval) branches(d VariableDomain) []solver.Cube {
	size := d.Size()
	if size <= int64(l.budget) {
		out := make([]solver.Cube, 0, size)
		for v := d.Lo; v <= d.Hi; v++ {
			out = append(out, solver.Cube{eqAssumption(d.Name, v)})
		}
		return out
	}
	stride := (size + int64(l.budget) - 1) / int64(l.budget)
	var out []solver.Cube
	for lo := d.Lo; lo <= d.Hi; lo += stride {
		hi := lo + stride
		if hi > d.Hi+1 {
			hi = d.Hi + 1
		}
		ivl := intervalAssumptions(d.Name, lo, hi)
		out = append(out, solver.Cube{ivl[0], ivl[1]})
	}
	return out
}

func (l *LexicographicInterval) start(parent context.Context) {
	l.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		l.cancel = cancel
		l.ch = make(chan solver.Cube)
		l.errCh = make(chan error, 1)
		go l.run(ctx)
	})
}

func (l *LexicographicInterval) run(ctx context.Context) {
	defer close(l.ch)
	emitted := 0
	prefix := make(solver.Cube, 0, 2*len(l.domains))
	var walk func(depth int) bool
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
		for _, frag := range l.branches(l.domains[depth]) {
			base := len(prefix)
			prefix = append(prefix, frag...)
			ok, err := l.checker.CheckPartial(ctx, prefix)
			if err != nil {
				prefix = prefix[:base]
				select {
				case l.errCh <- err:
				default:
				}
				return false
			}
			if ok {
				if !walk(depth + 1) {
					prefix = prefix[:base]
					return false
				}
			}
			prefix = prefix[:base]
			if l.maxCubes > 0 && emitted >= l.maxCubes {
				return false
			}
		}
		return true
	}
	walk(0)
}

func (l *LexicographicInterval) Next(ctx context.Context) (solver.Cube, error) {
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

func (l *LexicographicInterval) Cancel() {
	if l.cancel != nil {
		l.cancel()
	}
}
