package inproc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallia/parsolve/internal/wire"
	"github.com/gallia/parsolve/transport"
)

func TestSendReceiveDirectAddressing(t *testing.T) {
	tr := New(2)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, tr.Start(ctx, func(ctx context.Context, self transport.Transport) {
			if self.ID() != 0 {
				return
			}
			msg, err := self.Receive(ctx, int(wire.Solve), transport.ANY)
			require.NoError(t, err)
			assert.Equal(t, wire.OpSolve, msg.Header.Name)
		}))
	}()

	enc := wire.NewEncoder()
	msg := enc.Message(wire.Solve, wire.OpSolve, int32(tr.ID()))
	require.NoError(t, tr.Send(ctx, 0, msg))

	wg.Wait()
}

func TestReceiveFiltersByTagAndSource(t *testing.T) {
	tr := New(1)
	ctx := context.Background()

	go func() {
		_ = tr.Start(ctx, func(ctx context.Context, self transport.Transport) {})
	}()

	enc1 := wire.NewEncoder()
	configMsg := enc1.Message(wire.Config, wire.OpSetVerbosity, int32(tr.ID()))
	enc2 := wire.NewEncoder()
	solveMsg := enc2.Message(wire.Solve, wire.OpSolve, int32(tr.ID()))

	// Send to worker 0, both tags; worker inbox is id 0.
	require.NoError(t, tr.Send(ctx, 0, configMsg))
	require.NoError(t, tr.Send(ctx, 0, solveMsg))

	h := &handle{r: tr.(*handle).r, id: 0}
	got, err := h.Receive(ctx, int(wire.Solve), transport.ANY)
	require.NoError(t, err)
	assert.Equal(t, wire.OpSolve, got.Header.Name)
}

func TestReceiveRespectsContextCancellation(t *testing.T) {
	tr := New(1)
	h := &handle{r: tr.(*handle).r, id: 0}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Receive(ctx, transport.ANY, transport.ANY)
	assert.Error(t, err)
}

func TestFinalizeUnblocksPendingReceive(t *testing.T) {
	tr := New(1)
	h := &handle{r: tr.(*handle).r, id: 0}

	done := make(chan error, 1)
	go func() {
		_, err := h.Receive(context.Background(), transport.ANY, transport.ANY)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, tr.Finalize())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("receive did not unblock after finalize")
	}
}
