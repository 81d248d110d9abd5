// Package grpcstream implements transport.Transport as a real network
// transport: one coordinator-hosted gRPC server and one client per worker
// process, each side holding a single persistent bidirectional stream that
// carries raw wire.Message frames.
//
// Unlike inproc, the worker set here is not spawned by Transport.Start (that
// method returns an Unsupported error on both sides of this package): the
// operator launches the coordinator and N worker processes independently
// (process hosting is a collaborator concern outside this module's core),
// each worker Dialing the coordinator's listen address with its own fixed
// id.
// Because the server cannot assign ids out of band the way inproc's shared
// router does, every Dialed client announces its id as the first message it
// sends (wire.OpDeclareIndex, see dispatcher.Dispatcher.Run); the server
// learns the (id -> stream) mapping from that announcement before it ever
// needs to address that worker.
package grpcstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/internal/plog"
	"github.com/gallia/parsolve/internal/wire"
	"github.com/gallia/parsolve/transport"
)

const methodName = "/parsolve.Channel/Messages"

// serviceDesc is hand-built rather than generated from a .proto file: the
// wire format is not protobuf, so there is nothing for protoc
// to generate. This relies on google.golang.org/grpc directly as a raw
// byte-passthrough stream, without any generated stubs package.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "parsolve.Channel",
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Messages",
			Handler:       messagesHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "grpcstream",
}

func messagesHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*Server).handleStream(stream)
}

// mailbox is the inbox half shared by Server and client, a linear-scan
// filtered queue woken by a condition variable: the same shape as
// transport/inproc's router, narrowed to the single local recipient each
// side of this transport represents (the server only ever receives as the
// coordinator; a client only ever receives as its own worker id).
type mailbox struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []wire.Message
	finalized bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) push(msg wire.Message) {
	m.mu.Lock()
	if !m.finalized {
		m.queue = append(m.queue, msg)
		m.cond.Broadcast()
	}
	m.mu.Unlock()
}

func (m *mailbox) receive(ctx context.Context, tag, source int) (wire.Message, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		case <-done:
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return wire.Message{}, ctx.Err()
		}
		for i, msg := range m.queue {
			if matches(msg, tag, source) {
				m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
				return msg, nil
			}
		}
		if m.finalized {
			return wire.Message{}, perr.New(perr.Protocol, "grpcstream.Receive", errFinalized)
		}
		m.cond.Wait()
	}
}

func (m *mailbox) finalize() {
	m.mu.Lock()
	m.finalized = true
	m.cond.Broadcast()
	m.mu.Unlock()
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

// workerConn is the coordinator's view of one connected worker: the live
// server-side stream plus a mutex serializing writes to it (grpc streams
// permit only one concurrent SendMsg per stream).
type workerConn struct {
	stream grpc.ServerStream
	mu     sync.Mutex
}

// Server is the coordinator-side transport.Transport: it hosts the gRPC
// listener every worker process dials into.
type Server struct {
	size int
	lis  net.Listener
	grpc *grpc.Server
	log  *plog.Logger

	mailbox *mailbox

	connMu    sync.Mutex
	connCond  *sync.Cond
	conns     map[int]*workerConn
	finalized bool
}

// Listen starts a gRPC server for size workers on addr and returns the
// coordinator's transport.Transport handle. The server accepts connections
// in the background; Send blocks until the addressed worker has connected
// and declared its id.
func Listen(addr string, size int) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, perr.New(perr.Protocol, "grpcstream.Listen", err)
	}
	s := &Server{
		size:    size,
		lis:     lis,
		grpc:    grpc.NewServer(),
		log:     plog.New("grpcstream[coordinator]"),
		mailbox: newMailbox(),
		conns:   make(map[int]*workerConn),
	}
	s.connCond = sync.NewCond(&s.connMu)
	s.grpc.RegisterService(&serviceDesc, s)
	go func() {
		if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Errorf("serve: %v", err)
		}
	}()
	return s, nil
}

func (s *Server) ID() int   { return s.size }
func (s *Server) Size() int { return s.size }

func (s *Server) handleStream(stream grpc.ServerStream) error {
	var workerID = -1
	defer func() {
		if workerID >= 0 {
			s.connMu.Lock()
			delete(s.conns, workerID)
			s.connMu.Unlock()
		}
	}()

	for {
		var f frame
		if err := stream.RecvMsg(&f); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		msg, err := wire.Unmarshal(f)
		if err != nil {
			s.log.Errorf("unmarshal from worker stream: %v", err)
			continue
		}
		if workerID < 0 {
			workerID = int(msg.Header.Source)
			s.connMu.Lock()
			s.conns[workerID] = &workerConn{stream: stream}
			s.connCond.Broadcast()
			s.connMu.Unlock()
		}
		s.mailbox.push(msg)
	}
}

// Send blocks until worker dst has connected (its Dispatcher.Run announces
// itself with OpDeclareIndex as its first message, see package doc), then
// writes msg on that worker's stream.
func (s *Server) Send(ctx context.Context, dst int, msg wire.Message) error {
	if dst < 0 || dst >= s.size {
		return perr.New(perr.Protocol, "grpcstream.Send", errInvalidID(dst))
	}
	msg.Header.Source = int32(s.size)

	conn, err := s.waitForConn(ctx, dst)
	if err != nil {
		return err
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	f := frame(wire.Marshal(msg))
	if err := conn.stream.SendMsg(&f); err != nil {
		return perr.New(perr.Protocol, "grpcstream.Send", err)
	}
	return nil
}

func (s *Server) waitForConn(ctx context.Context, id int) (*workerConn, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.connMu.Lock()
			s.connCond.Broadcast()
			s.connMu.Unlock()
		case <-done:
		}
	}()

	s.connMu.Lock()
	defer s.connMu.Unlock()
	for {
		if conn, ok := s.conns[id]; ok {
			return conn, nil
		}
		if s.finalized {
			return nil, perr.New(perr.Protocol, "grpcstream.Send", errFinalized)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.connCond.Wait()
	}
}

func (s *Server) Receive(ctx context.Context, tag, source int) (wire.Message, error) {
	return s.mailbox.receive(ctx, tag, source)
}

// Start is unsupported on Server: the worker fleet is a set of independently
// launched OS processes, a process-hosting concern outside this module's
// scope, not goroutines this transport can spawn.
func (s *Server) Start(ctx context.Context, entryPoint func(ctx context.Context, self transport.Transport)) error {
	return perr.New(perr.Unsupported, "grpcstream.Start", fmt.Errorf("workers are separate processes; launch them out of band"))
}

// Finalize stops the gRPC server and releases the listener. In-flight
// streams are aborted rather than drained, since Finalize is only called
// after the end-search handshake has already completed.
func (s *Server) Finalize() error {
	s.connMu.Lock()
	s.finalized = true
	s.connCond.Broadcast()
	s.connMu.Unlock()
	s.mailbox.finalize()
	s.grpc.Stop()
	return nil
}

// Client is a worker process's transport.Transport handle: a single
// persistent bidirectional stream to the coordinator.
type Client struct {
	id            int
	size          int
	coordinatorID int
	conn          *grpc.ClientConn
	stream        grpc.ClientStream
	log           *plog.Logger

	mailbox *mailbox
	sendMu  sync.Mutex

	closeOnce sync.Once
}

// Dial connects to a coordinator listening at addr and returns the worker
// transport.Transport handle observing id, in a fleet of size workers.
func Dial(ctx context.Context, addr string, id, size int) (*Client, error) {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, perr.New(perr.Protocol, "grpcstream.Dial", err)
	}
	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "Messages", ServerStreams: true, ClientStreams: true},
		methodName, grpc.CallContentSubtype(codecName))
	if err != nil {
		conn.Close()
		return nil, perr.New(perr.Protocol, "grpcstream.Dial", err)
	}

	c := &Client{
		id:            id,
		size:          size,
		coordinatorID: size,
		conn:          conn,
		stream:        stream,
		log:           plog.New("grpcstream[worker %d]", id),
		mailbox:       newMailbox(),
	}
	go c.recvLoop()
	return c, nil
}

func (c *Client) recvLoop() {
	for {
		var f frame
		if err := c.stream.RecvMsg(&f); err != nil {
			if !errors.Is(err, io.EOF) && status.Code(err) != codes.Canceled {
				c.log.Errorf("recv: %v", err)
			}
			c.mailbox.finalize()
			return
		}
		msg, err := wire.Unmarshal(f)
		if err != nil {
			c.log.Errorf("unmarshal: %v", err)
			continue
		}
		c.mailbox.push(msg)
	}
}

func (c *Client) ID() int   { return c.id }
func (c *Client) Size() int { return c.size }

func (c *Client) Send(ctx context.Context, dst int, msg wire.Message) error {
	if dst != c.coordinatorID {
		return perr.New(perr.Protocol, "grpcstream.Send", errInvalidID(dst))
	}
	msg.Header.Source = int32(c.id)

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	f := frame(wire.Marshal(msg))
	if err := c.stream.SendMsg(&f); err != nil {
		return perr.New(perr.Protocol, "grpcstream.Send", err)
	}
	return nil
}

func (c *Client) Receive(ctx context.Context, tag, source int) (wire.Message, error) {
	return c.mailbox.receive(ctx, tag, source)
}

// Start is unsupported on Client for the same reason as Server.Start: a
// worker process observes exactly one id, assigned at Dial time by the
// operator launching it, not by spawning further workers itself.
func (c *Client) Start(ctx context.Context, entryPoint func(ctx context.Context, self transport.Transport)) error {
	return perr.New(perr.Unsupported, "grpcstream.Start", fmt.Errorf("a worker process observes a single fixed id"))
}

func (c *Client) Finalize() error {
	c.closeOnce.Do(func() {
		c.mailbox.finalize()
		_ = c.stream.CloseSend()
		_ = c.conn.Close()
	})
	return nil
}
