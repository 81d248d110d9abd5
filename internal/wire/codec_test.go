package wire

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewEncoder()
	enc.PutString("vars.cnf").PutBigInt(big.NewInt(-42)).PutBool(true).PutInt32(7).PutInt64(1 << 40)
	msg := enc.Message(Solve, OpSolveAssumptions, 3)

	assert.Equal(t, uint16(5), msg.Header.ParameterCount)

	raw := Marshal(msg)
	decoded, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, msg.Header, decoded.Header)

	dec := NewDecoder(decoded)
	s, err := dec.GetString()
	require.NoError(t, err)
	assert.Equal(t, "vars.cnf", s)

	bi, err := dec.GetBigInt()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(-42).String(), bi.String())

	b, err := dec.GetBool()
	require.NoError(t, err)
	assert.True(t, b)

	i32, err := dec.GetInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(7), i32)

	i64, err := dec.GetInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), i64)

	assert.True(t, dec.Done())
}

func TestUnmarshalRejectsTruncatedHeader(t *testing.T) {
	_, err := Unmarshal([]byte{0, 1, 2})
	assert.Error(t, err)
}

func TestUnmarshalRejectsPayloadSizeMismatch(t *testing.T) {
	enc := NewEncoder()
	enc.PutString("hello")
	msg := enc.Message(Config, OpSetLogFile, 0)
	raw := Marshal(msg)
	raw = raw[:len(raw)-1] // truncate one payload byte without updating the header

	_, err := Unmarshal(raw)
	assert.Error(t, err)
}

func TestDecoderRejectsUnterminatedString(t *testing.T) {
	msg := Message{Header: Header{PayloadSize: 3}, Payload: []byte{'a', 'b', 'c'}}
	dec := NewDecoder(msg)
	_, err := dec.GetString()
	assert.Error(t, err)
}

func TestOpcodeStringTrimsZeroPadding(t *testing.T) {
	assert.Equal(t, "s", OpSolve.String())
	assert.Equal(t, "sat", OpSatisfiable.String())
	assert.Equal(t, "op?", OpIsOptimization.String())
}

func TestDoneDetectsParameterCountMismatch(t *testing.T) {
	enc := NewEncoder()
	enc.PutString("a").PutString("b")
	msg := enc.Message(Solve, OpLoadInstance, 0)
	dec := NewDecoder(msg)
	_, err := dec.GetString()
	require.NoError(t, err)
	assert.False(t, dec.Done())
}
