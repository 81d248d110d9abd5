// Package inproc implements transport.Transport with goroutines standing in
// for processes and a mutex-guarded mailbox standing in for the network.
// This is the degenerate "processes are threads" case the core's transport
// abstraction explicitly allows for.
package inproc

import (
	"context"
	"sync"

	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/internal/wire"
	"github.com/gallia/parsolve/transport"
)

// router is the shared mailbox state behind every handle produced for a
// given New call. Messages are queued per recipient id; Receive does a
// linear scan for the first message matching its filter rather than
// maintaining per-(tag,source) channels, since the set of live filters is
// small and dynamic (an idle strategy loop, a busy dispatcher).
type router struct {
	mu        sync.Mutex
	cond      *sync.Cond
	size      int
	inboxes   [][]wire.Message // index by recipient id, 0..size inclusive (size == coordinator)
	finalized bool
}

func newRouter(size int) *router {
	r := &router{size: size, inboxes: make([][]wire.Message, size+1)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// handle is a per-process view onto a shared router.
type handle struct {
	r  *router
	id int
}

// New returns the coordinator's Transport handle over a fresh in-process
// router sized for size workers. The coordinator's own id is size.
func New(size int) transport.Transport {
	return &handle{r: newRouter(size), id: size}
}

func (h *handle) ID() int   { return h.id }
func (h *handle) Size() int { return h.r.size }

func (h *handle) Send(ctx context.Context, dst int, msg wire.Message) error {
	if dst < 0 || dst > h.r.size {
		return perr.New(perr.Protocol, "inproc.Send", errInvalidID(dst))
	}
	msg.Header.Source = int32(h.id)

	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	if h.r.finalized {
		return perr.New(perr.Protocol, "inproc.Send", errFinalized)
	}
	h.r.inboxes[dst] = append(h.r.inboxes[dst], msg)
	h.r.cond.Broadcast()
	return nil
}

func (h *handle) Receive(ctx context.Context, tag int, source int) (wire.Message, error) {
	done := make(chan struct{})
	defer close(done)
	// Wake a blocked Wait() if ctx is canceled; sync.Cond has no
	// context-aware wait, so a watcher goroutine broadcasts on our behalf.
	go func() {
		select {
		case <-ctx.Done():
			h.r.mu.Lock()
			h.r.cond.Broadcast()
			h.r.mu.Unlock()
		case <-done:
		}
	}()

	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return wire.Message{}, ctx.Err()
		}
		inbox := h.r.inboxes[h.id]
		for i, msg := range inbox {
			if matches(msg, tag, source) {
				h.r.inboxes[h.id] = append(inbox[:i:i], inbox[i+1:]...)
				return msg, nil
			}
		}
		if h.r.finalized {
			return wire.Message{}, perr.New(perr.Protocol, "inproc.Receive", errFinalized)
		}
		h.r.cond.Wait()
	}
}

func matches(msg wire.Message, tag, source int) bool {
	if tag != transport.ANY && int(msg.Header.Tag) != tag {
		return false
	}
	if source != transport.ANY && int(msg.Header.Source) != source {
		return false
	}
	return true
}

func (h *handle) Start(ctx context.Context, entryPoint func(ctx context.Context, self transport.Transport)) error {
	var wg sync.WaitGroup
	for id := 0; id < h.r.size; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			entryPoint(ctx, &handle{r: h.r, id: id})
		}(id)
	}
	wg.Wait()
	return nil
}

func (h *handle) Finalize() error {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	h.r.finalized = true
	h.r.cond.Broadcast()
	return nil
}
