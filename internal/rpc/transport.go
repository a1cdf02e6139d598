package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"hlcrelay/internal/message"
	"hlcrelay/internal/relay"
)

// Listener opens the listener a participant's server accepts on.
type Listener func(addr string) (net.Listener, error)

// Option configures a Transport.
type Option func(*Transport)

// WithListener replaces the TCP listener, e.g. with an in-memory one.
func WithListener(l Listener) Option {
	return func(t *Transport) { t.listen = l }
}

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(t *Transport) { t.dialer = d }
}

// WithInboxSize sets how many messages each participant's queue holds.
func WithInboxSize(size int) Option {
	return func(t *Transport) { t.size = size }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(t *Transport) { t.logger = logger }
}

type participant struct {
	addr   string
	server *grpc.Server
	inbox  chan message.Message
}

// Transport is a relay.Transport backed by gRPC.
type Transport struct {
	mu           sync.Mutex
	addrs        map[string]string // id -> addr
	participants map[string]*participant
	closed       bool
	done         chan struct{}
	serving      sync.WaitGroup
	// sending tracks in-flight Sends so Close never drops their connection.
	sending sync.WaitGroup

	size    int
	listen  Listener
	dialer  Dialer
	clients *ClientManager
	logger  *zap.SugaredLogger
}

// NewTransport creates a transport for the participants in addrs.
func NewTransport(addrs map[string]string, opts ...Option) *Transport {
	t := &Transport{
		addrs:        make(map[string]string, len(addrs)),
		participants: make(map[string]*participant),
		done:         make(chan struct{}),
		listen: func(addr string) (net.Listener, error) {
			return net.Listen("tcp", addr)
		},
		logger: zap.NewNop().Sugar(),
	}
	for id, addr := range addrs {
		t.addrs[id] = addr
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.size < 0 {
		t.size = 0
	}
	t.clients = NewClientManager(t.dialer)
	return t
}

// Register implements relay.Transport. It starts serving the Relay service
// on the participant's address.
func (t *Transport) Register(id string) (<-chan message.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, relay.ErrTransportClosed
	}
	addr, ok := t.addrs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", relay.ErrUnknownParticipant, id)
	}
	if _, exists := t.participants[id]; exists {
		return nil, fmt.Errorf("%w: %s", relay.ErrDuplicateParticipant, id)
	}

	lis, err := t.listen(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	p := &participant{
		addr:   addr,
		server: grpc.NewServer(grpc.ForceServerCodec(codec{})),
		inbox:  make(chan message.Message, t.size),
	}
	p.server.RegisterService(&relayServiceDesc, NewInboxServer(id, p.inbox, t.done, t.logger))
	t.participants[id] = p

	t.serving.Add(1)
	go func() {
		defer t.serving.Done()
		t.logger.Infof("[%s] serving relay on %s", id, addr)
		if err := p.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.logger.Errorf("[%s] relay server stopped: %v", id, err)
		}
	}()

	return p.inbox, nil
}

// Send implements relay.Transport.
func (t *Transport) Send(ctx context.Context, msg message.Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return relay.ErrTransportClosed
	}
	addr, ok := t.addrs[msg.Target]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", relay.ErrUnknownParticipant, msg.Target)
	}
	t.sending.Add(1)
	t.mu.Unlock()
	defer t.sending.Done()

	conn, err := t.clients.GetConn(addr)
	if errors.Is(err, ErrClientManagerClosed) {
		return relay.ErrTransportClosed
	}
	if err != nil {
		return err
	}

	err = conn.Invoke(ctx, deliverMethod, &msg, &ack{})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return relay.ErrTransportClosed
	}

	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", relay.ErrUnknownParticipant, status.Convert(err).Message())
	case codes.Unavailable:
		if status.Convert(err).Message() == "transport closed" {
			return relay.ErrTransportClosed
		}
	}
	return fmt.Errorf("deliver to %s at %s: %w", msg.Target, addr, err)
}

// Close implements relay.Transport. It waits for in-flight Sends, stops
// every server, then closes the inbound queues.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	t.sending.Wait()
	err := t.clients.Close()
	for _, p := range t.participants {
		p.server.GracefulStop()
	}
	t.serving.Wait()
	for _, p := range t.participants {
		close(p.inbox)
	}
	return err
}

var _ relay.Transport = (*Transport)(nil)
