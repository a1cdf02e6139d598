package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hlcrelay/internal/message"
)

var (
	// ErrUnknownParticipant is returned when a message targets a node that
	// has not registered with the transport.
	ErrUnknownParticipant = errors.New("unknown participant")
	// ErrDuplicateParticipant is returned when a node ID registers twice.
	ErrDuplicateParticipant = errors.New("participant already registered")
	// ErrTransportClosed is returned by a transport after Close.
	ErrTransportClosed = errors.New("transport closed")
)

// Transport delivers messages to registered participants.
type Transport interface {
	// Register creates the inbound queue of a participant. The returned
	// channel is closed when the transport is closed.
	Register(id string) (<-chan message.Message, error)
	// Send delivers msg to the inbound queue of msg.Target. It may block
	// until the queue has room or ctx is done.
	Send(ctx context.Context, msg message.Message) error
	// Close stops delivery and closes every inbound queue.
	Close() error
}

// ChanTransport is an in-process Transport with one buffered channel per
// participant.
type ChanTransport struct {
	mu      sync.RWMutex
	size    int
	inboxes map[string]chan message.Message
	closed  bool
	// sending tracks in-flight Sends so Close never closes a channel that
	// is being written to.
	sending sync.WaitGroup
	done    chan struct{}
}

// NewChanTransport creates a transport whose queues hold size messages.
func NewChanTransport(size int) *ChanTransport {
	if size < 0 {
		size = 0
	}
	return &ChanTransport{
		size:    size,
		inboxes: make(map[string]chan message.Message),
		done:    make(chan struct{}),
	}
}

// Register implements Transport.
func (t *ChanTransport) Register(id string) (<-chan message.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}
	if _, exists := t.inboxes[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, id)
	}

	inbox := make(chan message.Message, t.size)
	t.inboxes[id] = inbox
	return inbox, nil
}

// Send implements Transport.
func (t *ChanTransport) Send(ctx context.Context, msg message.Message) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrTransportClosed
	}
	inbox, exists := t.inboxes[msg.Target]
	if !exists {
		t.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, msg.Target)
	}
	t.sending.Add(1)
	t.mu.RUnlock()
	defer t.sending.Done()

	select {
	case inbox <- msg:
		return nil
	case <-t.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements Transport. Messages already queued stay readable until
// the queue is drained.
func (t *ChanTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	t.sending.Wait()
	for _, inbox := range t.inboxes {
		close(inbox)
	}
	return nil
}

var _ Transport = (*ChanTransport)(nil)
