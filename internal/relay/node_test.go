package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"hlcrelay/internal/clock"
	"hlcrelay/internal/message"
	"hlcrelay/internal/metrics"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func newPair(t *testing.T, src1, src2 clock.Source, opts ...Option) (*Node, *Node, *ChanTransport) {
	t.Helper()
	tr := NewChanTransport(8)
	n1, err := NewNode("n1", tr, append([]Option{WithSource(src1)}, opts...)...)
	require.NoError(t, err)
	n2, err := NewNode("n2", tr, append([]Option{WithSource(src2)}, opts...)...)
	require.NoError(t, err)
	return n1, n2, tr
}

func TestNode_SendReceive(t *testing.T) {
	src1 := clock.NewManualSource(1000)
	src2 := clock.NewManualSource(900) // n2's wall clock lags
	n1, n2, _ := newPair(t, src1, src2)

	sent, err := n1.Send(context.Background(), "n2")
	require.NoError(t, err)
	assert.Equal(t, clock.Timestamp{Physical: 1000, Logical: 1}, sent.Timestamp)
	assert.Equal(t, "n1", sent.Sender)
	assert.Equal(t, "n2", sent.Target)

	got, ts, err := n2.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sent, got)
	assert.Equal(t, clock.Timestamp{Physical: 1000, Logical: 2}, ts)
	assert.Equal(t, ts, n2.Now())
}

func TestNode_Handle_Misaddressed(t *testing.T) {
	n1, _, _ := newPair(t, clock.NewManualSource(1), clock.NewManualSource(1))

	before := n1.Now()
	_, err := n1.Handle(message.New("n2", "n3", clock.Timestamp{Physical: 50}))
	assert.ErrorIs(t, err, ErrMisaddressed)
	assert.Equal(t, before, n1.Now())
}

func TestNode_Send_SourceUnavailable(t *testing.T) {
	src := clock.NewManualSource(100)
	n1, _, _ := newPair(t, src, clock.NewManualSource(100))

	src.Fail(true)
	_, err := n1.Send(context.Background(), "n2")
	assert.ErrorIs(t, err, clock.ErrTimeSourceUnavailable)
}

func TestNewNode_SourceUnavailable(t *testing.T) {
	src := clock.NewManualSource(100)
	src.Fail(true)

	_, err := NewNode("n1", NewChanTransport(1), WithSource(src))
	assert.ErrorIs(t, err, clock.ErrTimeSourceUnavailable)
}

func TestNewNode_Duplicate(t *testing.T) {
	tr := NewChanTransport(1)
	_, err := NewNode("n1", tr)
	require.NoError(t, err)

	_, err = NewNode("n1", tr)
	assert.ErrorIs(t, err, ErrDuplicateParticipant)
}

func TestNode_Send_UnknownTarget(t *testing.T) {
	n1, _, _ := newPair(t, clock.NewManualSource(1), clock.NewManualSource(1))

	_, err := n1.Send(context.Background(), "n7")
	assert.ErrorIs(t, err, ErrUnknownParticipant)
}

func TestNode_Run_StopsOnClose(t *testing.T) {
	log := &eventLog{}
	n1, n2, tr := newPair(t, clock.NewManualSource(500), clock.NewManualSource(500), WithObserver(log))

	done := make(chan error, 1)
	go func() { done <- n2.Run(context.Background()) }()

	for i := 0; i < 3; i++ {
		_, err := n1.Send(context.Background(), "n2")
		require.NoError(t, err)
	}
	require.NoError(t, tr.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after Close")
	}

	var received []Event
	for _, e := range log.all() {
		if e.Kind == Received {
			received = append(received, e)
		}
	}
	require.Len(t, received, 3)
	for i, e := range received {
		assert.Equal(t, "n2", e.Node)
		assert.True(t, e.Message.Timestamp.Less(e.Local), "event %d: %v !< %v", i, e.Message.Timestamp, e.Local)
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

func TestNode_Run_ContextCanceled(t *testing.T) {
	_, n2, _ := newPair(t, clock.NewManualSource(1), clock.NewManualSource(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := n2.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNode_Regression(t *testing.T) {
	src := clock.NewManualSource(1000)
	col := metrics.New()
	n1, _, _ := newPair(t, src, clock.NewManualSource(1000), WithMetrics(col))

	src.Set(990)
	msg, err := n1.Send(context.Background(), "n2")
	require.NoError(t, err)
	assert.Equal(t, clock.Timestamp{Physical: 1000, Logical: 1}, msg.Timestamp)

	count, err := testutil.GatherAndCount(col.Registry(), "hlc_regression_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNode_Events(t *testing.T) {
	log := &eventLog{}
	n1, n2, _ := newPair(t, clock.NewManualSource(100), clock.NewManualSource(100), WithObserver(log))

	_, err := n1.Send(context.Background(), "n2")
	require.NoError(t, err)
	_, _, err = n2.Receive(context.Background())
	require.NoError(t, err)

	events := log.all()
	require.Len(t, events, 2)
	assert.Equal(t, Sent, events[0].Kind)
	assert.Equal(t, "n1", events[0].Node)
	assert.Equal(t, events[0].Message.Timestamp, events[0].Local)
	assert.Equal(t, Received, events[1].Kind)
	assert.Equal(t, "n2", events[1].Node)
	assert.Equal(t, "SENT", Sent.String())
	assert.Equal(t, "RECEIVED", Received.String())
}

func TestNode_LogLines(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core).Sugar()
	n1, n2, _ := newPair(t, clock.NewManualSource(100), clock.NewManualSource(100), WithLogger(logger))

	_, err := n1.Send(context.Background(), "n2")
	require.NoError(t, err)
	_, _, err = n2.Receive(context.Background())
	require.NoError(t, err)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, "node n1 sending message with HLC (100, 1) to node n2", entries[0].Message)
	assert.Equal(t, "node n2 received message from node n1 with HLC (100, 1)", entries[1].Message)
	assert.Equal(t, "node n2 updated HLC to (100, 2)", entries[2].Message)
	for _, e := range entries {
		assert.Empty(t, e.Context, "node ID appears only in the message text")
	}
}
