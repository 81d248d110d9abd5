package rpcsolver

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallia/parsolve/dispatcher"
	"github.com/gallia/parsolve/solver"
	"github.com/gallia/parsolve/solver/toycsp"
	"github.com/gallia/parsolve/transport"
	"github.com/gallia/parsolve/transport/inproc"
)

// pairedWorker starts a real dispatcher+toycsp worker over an inproc
// transport and returns a Proxy addressing it, exercising the proxy
// against the same wire contract the dispatcher actually implements
// rather than a hand-rolled stub.
func pairedWorker(t *testing.T) (*Proxy, transport.Transport, func()) {
	t.Helper()
	tr := inproc.New(1)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		_ = tr.Start(ctx, func(ctx context.Context, self transport.Transport) {
			d := dispatcher.New(toycsp.New(), self, tr.ID())
			_ = d.Run(ctx)
		})
	}()

	// Drain the worker's startup announcement before issuing RPCs.
	recvCtx, recvCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer recvCancel()
	_, err := tr.Receive(recvCtx, transport.ANY, transport.ANY)
	require.NoError(t, err)

	return New(tr, 0), tr, cancel
}

func writeTempInstance(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "instance-*.toycsp")
	require.NoError(t, err)
	_, err = f.WriteString("var x 0 1\nvar y 0 1\nconstraint neq x y\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestProxyLoadAndIntrospect(t *testing.T) {
	p, _, cancel := pairedWorker(t)
	defer cancel()
	ctx := context.Background()

	require.NoError(t, p.LoadInstance(ctx, writeTempInstance(t)))

	n, err := p.NVariables(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	nc, err := p.NConstraints(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, nc)
}

func TestProxyCachesNVariablesAfterFirstQuery(t *testing.T) {
	p, tr, cancel := pairedWorker(t)
	defer cancel()
	ctx := context.Background()
	require.NoError(t, p.LoadInstance(ctx, writeTempInstance(t)))

	n, err := p.NVariables(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A finalized transport fails any further round trip, so a second
	// query can only succeed by answering from the cache.
	require.NoError(t, tr.Finalize())
	n2, err := p.NVariables(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, n2)
}

func TestProxySolveAssumptionsAndCheckSolution(t *testing.T) {
	p, _, cancel := pairedWorker(t)
	defer cancel()
	ctx := context.Background()
	require.NoError(t, p.LoadInstance(ctx, writeTempInstance(t)))

	require.NoError(t, p.SolveAssumptions(ctx, solver.Cube{}))

	// Give the background solve a moment to finish before asking for the
	// solution; the proxy's solve is fire-and-forget by contract.
	time.Sleep(50 * time.Millisecond)

	ok, err := p.CheckSolution(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProxyResultIsUnsupported(t *testing.T) {
	p, _, cancel := pairedWorker(t)
	defer cancel()
	_, err := p.Result(context.Background())
	assert.Error(t, err)
}
