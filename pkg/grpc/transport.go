// Package grpc adapts the teacher's blocking RequestVote/AppendEntries
// RPC transport into the fire-and-forget Send/Receive contract
// raft.Transport requires (SPEC_FULL.md §4.2). Each peer gets one
// outbound goroutine draining a bounded channel and issuing one-way
// Deliver calls; inbound calls land in a buffered channel the replica
// polls from Receive. Neither direction blocks a Replica's Step/Tick.
package grpc

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/quorumdb/raft/pkg/raft"
)

const (
	deliverMethod  = "/quorumdb.raft.Deliver/Deliver"
	outboxCapacity = 256
	inboxCapacity  = 1024
	dialTimeout    = 2 * time.Second
	sendTimeout    = 2 * time.Second
)

// DeliverAck is the empty response to a Deliver call; Deliver carries no
// result, only an error/no-error outcome.
type DeliverAck struct{}

type deliverServer interface {
	Deliver(ctx context.Context, env *raft.Envelope) (*DeliverAck, error)
}

func deliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(raft.Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(deliverServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(deliverServer).Deliver(ctx, req.(*raft.Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

var deliverServiceDesc = grpc.ServiceDesc{
	ServiceName: "quorumdb.raft.Deliver",
	HandlerType: (*deliverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quorumdb/raft.proto",
}

// Transport implements raft.Transport over real gRPC connections, one
// per peer, adapted from the teacher's GRPCTransport (connection
// caching, lazy dial, graceful Stop) but restructured around fire-and-
// forget delivery instead of request/reply RPC pairs.
type Transport struct {
	self       raft.ReplicaID
	listenAddr string
	peerAddrs  map[raft.ReplicaID]string
	logger     *log.Logger

	mu       sync.Mutex
	conns    map[raft.ReplicaID]*grpc.ClientConn
	outboxes map[raft.ReplicaID]chan raft.Envelope

	inbox chan raft.Envelope

	server   *grpc.Server
	listener net.Listener
	wg       sync.WaitGroup
	closing  chan struct{}
}

// NewTransport builds a Transport for self, listening on listenAddr and
// dialing peerAddrs lazily as Send targets them. logger defaults to
// log.Default() when nil, matching the teacher's injected-*log.Logger
// idiom (SPEC_FULL.md §4.5).
func NewTransport(self raft.ReplicaID, listenAddr string, peerAddrs map[raft.ReplicaID]string, logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.Default()
	}
	return &Transport{
		self:       self,
		listenAddr: listenAddr,
		peerAddrs:  peerAddrs,
		logger:     logger,
		conns:      make(map[raft.ReplicaID]*grpc.ClientConn),
		outboxes:   make(map[raft.ReplicaID]chan raft.Envelope),
		inbox:      make(chan raft.Envelope, inboxCapacity),
		closing:    make(chan struct{}),
	}
}

// Start opens the listener, begins serving Deliver calls, and launches
// one outbound pump goroutine per configured peer.
func (t *Transport) Start() error {
	listener, err := net.Listen("tcp", t.listenAddr)
	if err != nil {
		return fmt.Errorf("grpc transport: listen %s: %w", t.listenAddr, err)
	}
	t.listener = listener

	t.server = grpc.NewServer()
	t.server.RegisterService(&deliverServiceDesc, t)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.server.Serve(listener); err != nil {
			t.logger.Printf("grpc transport: serve stopped: %v", err)
		}
	}()

	for id := range t.peerAddrs {
		outbox := make(chan raft.Envelope, outboxCapacity)
		t.outboxes[id] = outbox
		t.wg.Add(1)
		go t.pump(id, outbox)
	}
	return nil
}

// Close stops the server and every outbound pump. Pending outbox
// entries are discarded, consistent with Send's fire-and-forget
// contract.
func (t *Transport) Close() {
	close(t.closing)
	if t.server != nil {
		t.server.GracefulStop()
	}
	t.mu.Lock()
	for _, conn := range t.conns {
		conn.Close()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Send never blocks: a full outbox drops the envelope, same as a lossy
// link would, rather than stalling the caller's Step/Tick.
func (t *Transport) Send(env raft.Envelope) {
	t.mu.Lock()
	outbox, ok := t.outboxes[env.To]
	t.mu.Unlock()
	if !ok {
		return
	}
	select {
	case outbox <- env:
	default:
		t.logger.Printf("grpc transport: outbox to %s full, dropping envelope", env.To)
	}
}

// Receive polls the local inbox non-blockingly.
func (t *Transport) Receive() (raft.Envelope, bool) {
	select {
	case env := <-t.inbox:
		return env, true
	default:
		return raft.Envelope{}, false
	}
}

// Deliver is the server-side handler invoked by a peer's outbound pump.
func (t *Transport) Deliver(ctx context.Context, env *raft.Envelope) (*DeliverAck, error) {
	select {
	case t.inbox <- *env:
	default:
		t.logger.Printf("grpc transport: inbox full, dropping envelope from %s", env.From)
	}
	return &DeliverAck{}, nil
}

func (t *Transport) pump(id raft.ReplicaID, outbox chan raft.Envelope) {
	defer t.wg.Done()
	for {
		select {
		case <-t.closing:
			return
		case env := <-outbox:
			t.deliverOne(id, env)
		}
	}
}

func (t *Transport) deliverOne(id raft.ReplicaID, env raft.Envelope) {
	conn, err := t.clientFor(id)
	if err != nil {
		t.logger.Printf("grpc transport: dial %s: %v", id, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	var ack DeliverAck
	if err := conn.Invoke(ctx, deliverMethod, &env, &ack, grpc.CallContentSubtype(codecName)); err != nil {
		t.logger.Printf("grpc transport: deliver to %s: %v", id, err)
	}
}

func (t *Transport) clientFor(id raft.ReplicaID) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if conn, ok := t.conns[id]; ok {
		return conn, nil
	}
	addr, ok := t.peerAddrs[id]
	if !ok {
		return nil, fmt.Errorf("unknown peer %s", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, err
	}
	t.conns[id] = conn
	return conn, nil
}

var _ raft.Transport = (*Transport)(nil)
