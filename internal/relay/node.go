package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"hlcrelay/internal/clock"
	"hlcrelay/internal/message"
	"hlcrelay/internal/metrics"
)

// ErrMisaddressed is returned when a node is handed a message for another node.
var ErrMisaddressed = errors.New("message addressed to another node")

// EventKind tells whether an event is a send or a receive.
type EventKind int

const (
	Sent EventKind = iota
	Received
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	switch k {
	case Sent:
		return "SENT"
	case Received:
		return "RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the kind by name in traces.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event records one clock-changing operation on a node.
type Event struct {
	Kind EventKind `yaml:"kind"`
	Node string    `yaml:"node"`
	// Seq orders the clock operations of one node.
	Seq     uint64          `yaml:"seq"`
	Message message.Message `yaml:"message"`
	// Local is the node's timestamp right after the operation. For a Sent
	// event it equals Message.Timestamp.
	Local clock.Timestamp `yaml:"local"`
}

// Observer is notified of every event on the nodes it is attached to.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f.
func (f ObserverFunc) Observe(e Event) { f(e) }

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(n *Node) { n.logger = logger }
}

// WithSource sets the time source of the node's clock.
func WithSource(src clock.Source) Option {
	return func(n *Node) { n.src = src }
}

// WithMetrics records the node's activity in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(n *Node) { n.metrics = c }
}

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(n *Node) { n.observer = o }
}

// Node is a participant: it owns one clock and exchanges timestamped
// messages through a Transport.
type Node struct {
	id        string
	clock     *clock.Clock
	transport Transport
	inbox     <-chan message.Message

	// mu pairs each clock operation with its sequence number.
	mu  sync.Mutex
	seq uint64

	src      clock.Source
	logger   *zap.SugaredLogger
	metrics  *metrics.Collector
	observer Observer
}

// NewNode creates a node, starts its clock and registers it with t.
func NewNode(id string, t Transport, opts ...Option) (*Node, error) {
	n := &Node{
		id:        id,
		transport: t,
		src:       clock.SystemSource{},
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(n)
	}

	c, err := clock.New(n.src)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}
	c.SetOnRegression(func(observed, held uint64) {
		n.logger.Warnf("node %s time source went backwards: read %d, holding %d", id, observed, held)
		n.metrics.Regression(id)
	})
	n.clock = c

	inbox, err := t.Register(id)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}
	n.inbox = inbox

	return n, nil
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Now returns the node's current timestamp without advancing it.
func (n *Node) Now() clock.Timestamp {
	return n.clock.Read()
}

// Send advances the clock and sends a message carrying the new timestamp
// to target.
func (n *Node) Send(ctx context.Context, target string) (message.Message, error) {
	n.mu.Lock()
	ts, err := n.clock.Advance()
	seq := n.nextSeq()
	n.mu.Unlock()
	if err != nil {
		return message.Message{}, fmt.Errorf("node %s: %w", n.id, err)
	}

	msg := message.New(n.id, target, ts)
	n.logger.Infof("node %s sending message with HLC %s to node %s", n.id, ts, target)

	if err := n.transport.Send(ctx, msg); err != nil {
		return message.Message{}, fmt.Errorf("node %s send to %s: %w", n.id, target, err)
	}

	n.metrics.Sent(n.id, ts)
	n.notify(Event{Kind: Sent, Node: n.id, Seq: seq, Message: msg, Local: ts})
	return msg, nil
}

// Handle merges the timestamp of an inbound message into the clock.
func (n *Node) Handle(msg message.Message) (clock.Timestamp, error) {
	if msg.Target != n.id {
		return clock.Timestamp{}, fmt.Errorf("%w: node %s got message for %s", ErrMisaddressed, n.id, msg.Target)
	}

	n.logger.Infof("node %s received message from node %s with HLC %s", n.id, msg.Sender, msg.Timestamp)
	n.mu.Lock()
	ts, err := n.clock.Merge(msg.Timestamp)
	seq := n.nextSeq()
	n.mu.Unlock()
	if err != nil {
		return clock.Timestamp{}, fmt.Errorf("node %s: %w", n.id, err)
	}
	n.logger.Infof("node %s updated HLC to %s", n.id, ts)

	n.metrics.Received(n.id, ts)
	n.notify(Event{Kind: Received, Node: n.id, Seq: seq, Message: msg, Local: ts})
	return ts, nil
}

// Receive waits for the next inbound message and handles it. It returns
// ErrTransportClosed once the inbox is closed and drained.
func (n *Node) Receive(ctx context.Context) (message.Message, clock.Timestamp, error) {
	select {
	case msg, ok := <-n.inbox:
		if !ok {
			return message.Message{}, clock.Timestamp{}, ErrTransportClosed
		}
		ts, err := n.Handle(msg)
		return msg, ts, err
	case <-ctx.Done():
		return message.Message{}, clock.Timestamp{}, ctx.Err()
	}
}

// Run handles inbound messages until the inbox is closed or ctx is done.
// A closed inbox is a clean stop and returns nil.
func (n *Node) Run(ctx context.Context) error {
	for {
		_, _, err := n.Receive(ctx)
		switch {
		case errors.Is(err, ErrTransportClosed):
			return nil
		case errors.Is(err, ErrMisaddressed):
			n.logger.Warnf("node %s dropping message: %v", n.id, err)
		case err != nil:
			return err
		}
	}
}

func (n *Node) nextSeq() uint64 {
	n.seq++
	return n.seq
}

func (n *Node) notify(e Event) {
	if n.observer != nil {
		n.observer.Observe(e)
	}
}
