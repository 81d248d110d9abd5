// Package allocation implements the bound-allocation strategies that split
// an objective's [lower, upper] interval across N portfolio workers, and
// the rebalancing policy applied as new bounds arrive.
package allocation

import (
	"math"
	"math/big"
)

// Strategy produces an ordered vector b[0..N] with b[0] == lower,
// b[N] == upper, and b[i] <= b[i+1], used to assign worker i the half-open
// sub-range [b[i], b[i+1]].
type Strategy interface {
	// Allocate returns a fresh vector of length n+1 for the given interval.
	Allocate(lower, upper *big.Int, n int) []*big.Int
}

// Linear splits the interval into n sub-intervals of (approximately) equal
// width: step = max(1, (upper-lower)/n), clamped at upper.
type Linear struct{}

func (Linear) Allocate(lower, upper *big.Int, n int) []*big.Int {
	b := make([]*big.Int, n+1)
	b[0] = new(big.Int).Set(lower)
	b[n] = new(big.Int).Set(upper)
	if n == 0 {
		return b
	}

	span := new(big.Int).Sub(upper, lower)
	step := new(big.Int).Quo(span, big.NewInt(int64(n)))
	if step.Sign() <= 0 {
		step = big.NewInt(1)
	}

	cur := new(big.Int).Set(lower)
	for i := 1; i < n; i++ {
		cur = new(big.Int).Add(cur, step)
		if cur.Cmp(upper) > 0 {
			cur = new(big.Int).Set(upper)
		}
		b[i] = new(big.Int).Set(cur)
	}
	return b
}

// Logarithmic splits the interval with geometrically growing (or shrinking,
// if Increasing is false) step sizes, using Base as the growth factor.
// Increasing means later sub-intervals are wider, concentrating early
// workers' attention near the current bound (useful when a better bound is
// more likely to be found close to what is already known).
type Logarithmic struct {
	Base       float64 // > 1
	Increasing bool
}

func (l Logarithmic) Allocate(lower, upper *big.Int, n int) []*big.Int {
	b := make([]*big.Int, n+1)
	b[0] = new(big.Int).Set(lower)
	b[n] = new(big.Int).Set(upper)
	if n == 0 {
		return b
	}

	base := l.Base
	if base <= 1 {
		base = 2
	}
	spanF := new(big.Float).SetInt(new(big.Int).Sub(upper, lower))

	prev := new(big.Int).Set(lower)
	for i := 1; i < n; i++ {
		frac := fraction(i, n, base, l.Increasing)
		offset := new(big.Float).Mul(spanF, big.NewFloat(frac))
		offsetInt, _ := offset.Int(nil)
		candidate := new(big.Int).Add(lower, offsetInt)
		// Strictly increasing and within (lower, upper): clamp against the
		// previous cut so rounding never produces a duplicate or inverted
		// pair of bounds.
		if candidate.Cmp(prev) <= 0 {
			candidate = new(big.Int).Add(prev, big.NewInt(1))
		}
		if candidate.Cmp(upper) >= 0 {
			candidate = new(big.Int).Sub(upper, big.NewInt(1))
			if candidate.Cmp(prev) <= 0 {
				candidate = new(big.Int).Set(prev)
			}
		}
		b[i] = candidate
		prev = candidate
	}
	return b
}

// fraction computes the i-th cut of n as a fraction of the span. The base
// curve (1 - base^(-i/n)) / (1 - base^(-1)) rises steeply first, so it
// yields shrinking sub-intervals; the mirror 1 - fraction(n-i, n) yields
// widening ones and is used when increasing is true.
func fraction(i, n int, base float64, increasing bool) float64 {
	if increasing {
		i = n - i
	}
	num := 1 - math.Pow(base, -float64(i)/float64(n))
	den := 1 - math.Pow(base, -1)
	f := num / den
	if increasing {
		return 1 - f
	}
	return f
}
