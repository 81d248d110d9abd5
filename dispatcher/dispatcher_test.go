package dispatcher

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallia/parsolve/internal/wire"
	"github.com/gallia/parsolve/solver/toycsp"
	"github.com/gallia/parsolve/transport"
	"github.com/gallia/parsolve/transport/inproc"
)

func writeTempInstance(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "instance-*.toycsp")
	require.NoError(t, err)
	_, err = f.WriteString("var x 0 1\nvar y 0 1\nconstraint neq x y\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

// harness wires one worker's dispatcher to an inproc transport whose
// coordinator handle is driven directly by the test.
type harness struct {
	coordinator transport.Transport
	done        chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tr := inproc.New(1)
	h := &harness{coordinator: tr, done: make(chan error, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		_ = tr.Start(ctx, func(ctx context.Context, self transport.Transport) {
			d := New(toycsp.New(), self, tr.ID())
			h.done <- d.Run(ctx)
		})
	}()
	return h
}

func (h *harness) send(t *testing.T, msg wire.Message) {
	t.Helper()
	require.NoError(t, h.coordinator.Send(context.Background(), 0, msg))
}

func (h *harness) recv(t *testing.T, tag wire.Tag) wire.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := h.coordinator.Receive(ctx, int(tag), transport.ANY)
	require.NoError(t, err)
	return msg
}

func TestDispatcherLoadAndSolveReportsSatisfiable(t *testing.T) {
	h := newHarness(t)

	// Consume the worker's startup announcement.
	_ = h.recv(t, wire.Solve)

	file := writeTempInstance(t)
	load := wire.NewEncoder().PutString(file).Message(wire.Solve, wire.OpLoadInstance, 0)
	h.send(t, load)

	solve := wire.NewEncoder().Message(wire.Solve, wire.OpSolve, 0)
	h.send(t, solve)

	terminal := h.recv(t, wire.Solve)
	assert.Equal(t, wire.OpSatisfiable, terminal.Header.Name)
}

func TestDispatcherInterrogationRoundTrip(t *testing.T) {
	h := newHarness(t)
	_ = h.recv(t, wire.Solve)

	file := writeTempInstance(t)
	h.send(t, wire.NewEncoder().PutString(file).Message(wire.Solve, wire.OpLoadInstance, 0))

	h.send(t, wire.NewEncoder().Message(wire.Solve, wire.OpNVariables, 0))
	reply := h.recv(t, wire.Response)
	assert.Equal(t, wire.OpNVariables, reply.Header.Name)

	dec := wire.NewDecoder(reply)
	ok, err := dec.GetBool()
	require.NoError(t, err)
	require.True(t, ok)
	n, err := dec.GetInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(2), n)
}

func TestDispatcherEndSearchHandshake(t *testing.T) {
	h := newHarness(t)
	_ = h.recv(t, wire.Solve)

	endSearch := wire.NewEncoder().Message(wire.Solve, wire.OpEndSearch, 0)
	h.send(t, endSearch)

	ack := h.recv(t, wire.Solve)
	assert.Equal(t, wire.OpEndSearch, ack.Header.Name)

	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not exit after end-search")
	}
}
