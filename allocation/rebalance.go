package allocation

import "math/big"

// Rebalance recomputes the allocation vector b after the objective interval
// narrows to [newLower, newUpper], per the non-aggressive policy: unchanged
// interior cuts are preserved so a worker whose assigned bound didn't move
// is left running rather than restarted. aggressive forces a full
// recomputation every time regardless of how much room remains.
func Rebalance(strat Strategy, b []*big.Int, newLower, newUpper *big.Int, aggressive bool) []*big.Int {
	n := len(b) - 1
	if aggressive || n == 0 {
		return strat.Allocate(newLower, newUpper, n)
	}

	iLow := 0
	for iLow <= n && b[iLow].Cmp(newLower) <= 0 {
		iLow++
	}
	iHigh := n
	for iHigh >= 0 && b[iHigh].Cmp(newUpper) >= 0 {
		iHigh--
	}

	if iLow > iHigh {
		return strat.Allocate(newLower, newUpper, n)
	}

	// Room check: iLow integers must fit between newLower and b[iLow], and
	// n-iHigh integers must fit between b[iHigh] and newUpper.
	roomLow := new(big.Int).Sub(b[iLow], newLower)
	if roomLow.Cmp(big.NewInt(int64(iLow))) < 0 {
		return strat.Allocate(newLower, newUpper, n)
	}
	roomHigh := new(big.Int).Sub(newUpper, b[iHigh])
	if roomHigh.Cmp(big.NewInt(int64(n-iHigh))) < 0 {
		return strat.Allocate(newLower, newUpper, n)
	}

	out := make([]*big.Int, n+1)
	low := strat.Allocate(newLower, b[iLow], iLow)
	copy(out[:iLow], low[:iLow])
	for i := iLow; i <= iHigh; i++ {
		out[i] = new(big.Int).Set(b[i])
	}
	high := strat.Allocate(b[iHigh], newUpper, n-iHigh)
	copy(out[iHigh:], high)
	return out
}
