package clock

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTimeSourceUnavailable is returned when the physical time source cannot
// be read. A clock never produces a timestamp without a valid reading.
var ErrTimeSourceUnavailable = errors.New("time source unavailable")

// Timestamp is a snapshot of a hybrid logical clock. Timestamps are ordered
// lexicographically by (Physical, Logical).
type Timestamp struct {
	Physical uint64 `yaml:"physical"`
	Logical  uint64 `yaml:"logical"`
}

// Compare returns -1, 0 or 1 when t is before, equal to or after other.
func (t Timestamp) Compare(other Timestamp) int {
	switch {
	case t.Physical < other.Physical:
		return -1
	case t.Physical > other.Physical:
		return 1
	case t.Logical < other.Logical:
		return -1
	case t.Logical > other.Logical:
		return 1
	default:
		return 0
	}
}

// Less reports whether t is ordered strictly before other.
func (t Timestamp) Less(other Timestamp) bool {
	return t.Compare(other) < 0
}

// String returns the timestamp as "(physical, logical)".
func (t Timestamp) String() string {
	return fmt.Sprintf("(%d, %d)", t.Physical, t.Logical)
}

// Clock is a hybrid logical clock. All operations are atomic with respect
// to each other, so a Clock may be shared by the goroutines of one node.
type Clock struct {
	mu     sync.Mutex
	src    Source
	ts     Timestamp
	onRegr func(observed, held uint64)
}

// New creates a clock initialized to the current reading of src with a zero
// logical counter.
func New(src Source) (*Clock, error) {
	if src == nil {
		src = SystemSource{}
	}
	now, err := src.NowMillis()
	if err != nil {
		return nil, fmt.Errorf("create clock: %w", err)
	}
	return &Clock{src: src, ts: Timestamp{Physical: now}}, nil
}

// NewAt creates a clock holding ts. Later operations read src.
func NewAt(src Source, ts Timestamp) *Clock {
	if src == nil {
		src = SystemSource{}
	}
	return &Clock{src: src, ts: ts}
}

// SetOnRegression sets a callback invoked whenever the time source reads
// behind the physical time the clock already holds. The clock absorbs the
// regression itself; the callback is informational only and must not call
// back into the clock.
func (c *Clock) SetOnRegression(fn func(observed, held uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRegr = fn
}

// Advance ticks the clock for a local event, such as sending a message, and
// returns the new timestamp.
func (c *Clock) Advance() (Timestamp, error) {
	c.mu.Lock()
	now, err := c.src.NowMillis()
	if err != nil {
		c.mu.Unlock()
		return Timestamp{}, fmt.Errorf("advance clock: %w", err)
	}

	held := c.ts.Physical
	if now > held {
		c.ts = Timestamp{Physical: now}
	} else {
		// Same millisecond, or the source stepped backwards. Physical time
		// never decreases; the counter orders the event.
		c.ts.Logical++
	}
	ts, fn := c.ts, c.onRegr
	c.mu.Unlock()

	if now < held && fn != nil {
		fn(now, held)
	}
	return ts, nil
}

// Merge folds a timestamp received from a remote event into the clock and
// returns the new timestamp, which is strictly greater than remote and not
// less than any timestamp this clock produced before.
func (c *Clock) Merge(remote Timestamp) (Timestamp, error) {
	c.mu.Lock()
	now, err := c.src.NowMillis()
	if err != nil {
		c.mu.Unlock()
		return Timestamp{}, fmt.Errorf("merge clock: %w", err)
	}

	local := c.ts
	physical := max(now, remote.Physical, local.Physical)

	var logical uint64
	switch {
	case physical == remote.Physical && physical == local.Physical:
		logical = max(local.Logical, remote.Logical) + 1
	case physical == remote.Physical:
		logical = remote.Logical + 1
	case physical == local.Physical:
		logical = local.Logical + 1
	default:
		logical = 0
	}
	c.ts = Timestamp{Physical: physical, Logical: logical}
	ts, fn := c.ts, c.onRegr
	c.mu.Unlock()

	if now < local.Physical && fn != nil {
		fn(now, local.Physical)
	}
	return ts, nil
}

// Read returns the current timestamp without changing it.
func (c *Clock) Read() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ts
}
