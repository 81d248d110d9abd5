package allocation

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearAllocateProducesMonotoneBounds(t *testing.T) {
	b := Linear{}.Allocate(big.NewInt(0), big.NewInt(100), 4)
	require.Len(t, b, 5)
	assert.Equal(t, int64(0), b[0].Int64())
	assert.Equal(t, int64(100), b[4].Int64())
	for i := 0; i < len(b)-1; i++ {
		assert.True(t, b[i].Cmp(b[i+1]) <= 0, "b[%d]=%s should be <= b[%d]=%s", i, b[i], i+1, b[i+1])
	}
}

func TestLinearAllocateHandlesNarrowRange(t *testing.T) {
	// Fewer integers than workers: step collapses to 1, clamped at upper.
	b := Linear{}.Allocate(big.NewInt(0), big.NewInt(2), 10)
	require.Len(t, b, 11)
	assert.Equal(t, int64(0), b[0].Int64())
	assert.Equal(t, int64(2), b[10].Int64())
	for i := 0; i < len(b)-1; i++ {
		assert.True(t, b[i].Cmp(b[i+1]) <= 0)
	}
}

func TestLogarithmicAllocateProducesStrictlyIncreasingBounds(t *testing.T) {
	b := Logarithmic{Base: 2, Increasing: true}.Allocate(big.NewInt(0), big.NewInt(1000), 5)
	require.Len(t, b, 6)
	for i := 0; i < len(b)-1; i++ {
		assert.True(t, b[i].Cmp(b[i+1]) < 0 || i == len(b)-2, "b[%d]=%s b[%d]=%s", i, b[i], i+1, b[i+1])
	}
	assert.Equal(t, int64(0), b[0].Int64())
	assert.Equal(t, int64(1000), b[5].Int64())
}

func TestRebalanceNonAggressivePreservesInteriorCuts(t *testing.T) {
	b := Linear{}.Allocate(big.NewInt(0), big.NewInt(100), 4)
	// Narrow the upper bound only; the two lowest interior cuts have
	// plenty of room and should survive unchanged.
	nb := Rebalance(Linear{}, b, big.NewInt(0), big.NewInt(90), false)
	require.Len(t, nb, 5)
	assert.Equal(t, b[1].String(), nb[1].String())
	assert.Equal(t, int64(90), nb[4].Int64())
}

func TestRebalanceAggressiveAlwaysRecomputes(t *testing.T) {
	b := Linear{}.Allocate(big.NewInt(0), big.NewInt(100), 4)
	nb := Rebalance(Linear{}, b, big.NewInt(0), big.NewInt(100), true)
	for i := range b {
		assert.Equal(t, b[i].String(), nb[i].String())
	}
}

func TestRebalanceFallsBackWhenNoRoom(t *testing.T) {
	b := Linear{}.Allocate(big.NewInt(0), big.NewInt(100), 4)
	nb := Rebalance(Linear{}, b, big.NewInt(24), big.NewInt(26), false)
	require.Len(t, nb, 5)
	assert.Equal(t, int64(24), nb[0].Int64())
	assert.Equal(t, int64(26), nb[4].Int64())
	for i := 0; i < len(nb)-1; i++ {
		assert.True(t, nb[i].Cmp(nb[i+1]) <= 0)
	}
}
