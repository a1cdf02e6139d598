package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrClientManagerClosed is returned by GetConn after Close.
var ErrClientManagerClosed = errors.New("client manager closed")

// Dialer opens a raw connection to addr.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// ClientManager manages gRPC connections to peer nodes.
type ClientManager struct {
	mu     sync.RWMutex
	conns  map[string]*grpc.ClientConn
	dialer Dialer
	closed bool
}

// NewClientManager creates a new client manager. A nil dialer uses TCP.
func NewClientManager(dialer Dialer) *ClientManager {
	if dialer == nil {
		var d net.Dialer
		dialer = func(ctx context.Context, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	return &ClientManager{
		conns:  make(map[string]*grpc.ClientConn),
		dialer: dialer,
	}
}

// GetConn returns a connection to the given node address.
// Creates a new connection if one doesn't exist.
func (cm *ClientManager) GetConn(addr string) (*grpc.ClientConn, error) {
	cm.mu.RLock()
	conn, exists := cm.conns[addr]
	cm.mu.RUnlock()

	if exists {
		return conn, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return nil, ErrClientManagerClosed
	}

	// Double-check after acquiring write lock
	if conn, exists := cm.conns[addr]; exists {
		return conn, nil
	}

	conn, err := grpc.NewClient("passthrough:///"+addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(cm.dialer),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(codec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	cm.conns[addr] = conn
	return conn, nil
}

// Close closes all client connections. Later GetConn calls fail.
func (cm *ClientManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.closed = true

	var firstErr error
	for addr, conn := range cm.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", addr, err)
		}
	}
	cm.conns = make(map[string]*grpc.ClientConn)
	return firstErr
}
