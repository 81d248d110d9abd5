package grpcstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallia/parsolve/internal/wire"
)

func TestSendReceiveAcrossProcesses(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", 1)
	require.NoError(t, err)
	defer srv.Finalize()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	worker, err := Dial(ctx, srv.lis.Addr().String(), 0, 1)
	require.NoError(t, err)
	defer worker.Finalize()

	// The worker announces itself first, per package doc, so the server
	// learns the (id -> stream) mapping before the coordinator ever
	// addresses it.
	announce := wire.NewEncoder().Message(wire.Solve, wire.OpDeclareIndex, 0)
	require.NoError(t, worker.Send(ctx, srv.ID(), announce))

	got, err := srv.Receive(ctx, int(wire.Solve), 0)
	require.NoError(t, err)
	assert.Equal(t, wire.OpDeclareIndex, got.Header.Name)

	solve := wire.NewEncoder().Message(wire.Solve, wire.OpSolve, int32(srv.ID()))
	require.NoError(t, srv.Send(ctx, 0, solve))

	reply, err := worker.Receive(ctx, int(wire.Solve), srv.ID())
	require.NoError(t, err)
	assert.Equal(t, wire.OpSolve, reply.Header.Name)
	assert.Equal(t, int32(srv.ID()), reply.Header.Source)
}

func TestSendToUnknownWorkerBlocksUntilContextDone(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", 2)
	require.NoError(t, err)
	defer srv.Finalize()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	msg := wire.NewEncoder().Message(wire.Solve, wire.OpSolve, int32(srv.ID()))
	err = srv.Send(ctx, 1, msg)
	assert.Error(t, err)
}

func TestStartIsUnsupported(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", 1)
	require.NoError(t, err)
	defer srv.Finalize()

	err = srv.Start(context.Background(), nil)
	assert.Error(t, err)
}
