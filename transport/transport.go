// Package transport defines the abstraction the core depends on to deliver
// framed messages between a coordinator and its fleet of workers, and the
// wildcard constant used to filter receives.
package transport

import (
	"context"

	"github.com/gallia/parsolve/internal/wire"
)

// ANY is the wildcard accepted by Receive's tag and source filters.
const ANY = wire.ANY

// Transport delivers variable-length framed messages between processes
// identified by a small integer id in [0, Size()). By convention the
// coordinator's own id is Size() itself, one past the last worker id,
// mirroring how a fixed-size MPI communicator reserves the last rank for
// the orchestrating process.
//
// Implementations must guarantee in-order delivery between a given (src,
// dst) pair for a given tag; no ordering is guaranteed across tags or
// sources.
type Transport interface {
	// ID returns this handle's own process id.
	ID() int
	// Size returns the number of workers (not counting the coordinator).
	Size() int

	// Send enqueues msg for delivery to dst. Safe for concurrent callers.
	Send(ctx context.Context, dst int, msg wire.Message) error

	// Receive blocks until a message matching tag and source arrives, or
	// ctx is done. Passing ANY for either filter accepts any value.
	Receive(ctx context.Context, tag int, source int) (wire.Message, error)

	// Start launches Size() workers, each invoking entryPoint with a handle
	// observing its own distinct id in [0, Size()). This generalizes a bare
	// "entryPoint()" (which relies on a process-global id()) to
	// goroutines, which have no such ambient identity of their own.
	Start(ctx context.Context, entryPoint func(ctx context.Context, self Transport)) error

	// Finalize releases transport resources. Safe to call once, after
	// which Send/Receive must return an error rather than block forever.
	Finalize() error
}
