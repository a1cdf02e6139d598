package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hlcrelay/internal/clock"
	"hlcrelay/internal/config"
	"hlcrelay/internal/metrics"
	"hlcrelay/internal/relay"
	"hlcrelay/internal/rpc"
	"hlcrelay/internal/trace"
)

// Option configures a run.
type Option func(*options)

type options struct {
	logger    *zap.SugaredLogger
	metrics   *metrics.Collector
	source    clock.Source
	transport relay.Transport
	observers []relay.Observer
}

// WithLogger sets the logger shared by every node.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records every node's activity in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithSource sets the base time source. Configured skews are applied on top.
func WithSource(src clock.Source) Option {
	return func(o *options) { o.source = src }
}

// WithTransport uses t instead of building one from the configuration.
// The run closes t when it finishes.
func WithTransport(t relay.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithObserver additionally notifies obs of every event.
func WithObserver(obs relay.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// Report summarizes a finished run.
type Report struct {
	Nodes    []string
	Events   []relay.Event
	Sent     int
	Received int
	Elapsed  time.Duration
}

// Verify checks the recorded events for monotonicity and causality.
func (r *Report) Verify() error {
	return trace.Verify(r.Events)
}

// Final returns the last timestamp of each node.
func (r *Report) Final() map[string]clock.Timestamp {
	final := make(map[string]clock.Timestamp, len(r.Nodes))
	last := make(map[string]uint64, len(r.Nodes))
	for _, e := range r.Events {
		if e.Seq >= last[e.Node] {
			last[e.Node] = e.Seq
			final[e.Node] = e.Local
		}
	}
	return final
}

// Run executes one simulation and returns once every node has sent
// cfg.Iterations messages and every delivered message has been merged.
func Run(ctx context.Context, cfg config.Config, opts ...Option) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := &options{
		logger: zap.NewNop().Sugar(),
		source: clock.SystemSource{},
	}
	for _, opt := range opts {
		opt(o)
	}

	tr := o.transport
	if tr == nil {
		tr = newTransport(cfg, o)
	}

	rec := trace.NewRecorder()
	var observer relay.Observer = rec
	if len(o.observers) > 0 {
		observers := append([]relay.Observer{rec}, o.observers...)
		observer = relay.ObserverFunc(func(e relay.Event) {
			for _, obs := range observers {
				obs.Observe(e)
			}
		})
	}

	nodes := make([]*relay.Node, 0, len(cfg.Nodes))
	for _, p := range cfg.Nodes {
		src := o.source
		if skew, ok := cfg.Skews[p.ID]; ok {
			src = clock.SkewedSource{Base: src, Offset: skew}
		}
		n, err := relay.NewNode(p.ID, tr,
			relay.WithSource(src),
			relay.WithLogger(o.logger),
			relay.WithMetrics(o.metrics),
			relay.WithObserver(observer),
		)
		if err != nil {
			tr.Close()
			return nil, err
		}
		o.logger.Debugf("node %s starts at HLC %s", p.ID, n.Now())
		nodes = append(nodes, n)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	for _, n := range nodes {
		n := n
		g.Go(func() error { return n.Run(gctx) })
	}

	var senders sync.WaitGroup
	ids := cfg.NodeIDs()
	for i, n := range nodes {
		n := n
		rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
		peers := without(ids, n.ID())
		senders.Add(1)
		g.Go(func() error {
			defer senders.Done()
			return drive(gctx, n, peers, rng, cfg)
		})
	}

	g.Go(func() error {
		senders.Wait()
		return tr.Close()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Report{
		Nodes:    ids,
		Events:   rec.Events(),
		Sent:     rec.Count(relay.Sent),
		Received: rec.Count(relay.Received),
		Elapsed:  time.Since(start),
	}, nil
}

func newTransport(cfg config.Config, o *options) relay.Transport {
	switch cfg.Transport {
	case config.TransportGRPC:
		return rpc.NewTransport(cfg.Addrs(), rpc.WithInboxSize(cfg.InboxSize), rpc.WithLogger(o.logger))
	default:
		return relay.NewChanTransport(cfg.InboxSize)
	}
}

// drive sends cfg.Iterations messages from n to randomly chosen peers.
func drive(ctx context.Context, n *relay.Node, peers []string, rng *rand.Rand, cfg config.Config) error {
	for i := 0; i < cfg.Iterations; i++ {
		if err := sleep(ctx, delay(rng, cfg.MinDelay, cfg.MaxDelay)); err != nil {
			return err
		}
		target := peers[rng.Intn(len(peers))]
		if _, err := n.Send(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// delay picks a duration in [lo, hi].
func delay(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int63n(int64(hi-lo)+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids)-1)
	for _, other := range ids {
		if other != id {
			out = append(out, other)
		}
	}
	return out
}
