package clock

import (
	"sync"
	"time"
)

// Source supplies the physical component of the clock, in milliseconds
// since the Unix epoch.
type Source interface {
	NowMillis() (uint64, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (uint64, error)

// NowMillis calls f.
func (f SourceFunc) NowMillis() (uint64, error) {
	return f()
}

// SystemSource reads the host wall clock.
type SystemSource struct{}

// NowMillis returns the wall clock in milliseconds. A reading before the
// Unix epoch cannot be represented and is reported as unavailable.
func (SystemSource) NowMillis() (uint64, error) {
	ms := time.Now().UnixMilli()
	if ms < 0 {
		return 0, ErrTimeSourceUnavailable
	}
	return uint64(ms), nil
}

// SkewedSource shifts another source by a fixed offset. It simulates a node
// whose wall clock runs ahead of (positive) or behind (negative) its peers.
type SkewedSource struct {
	Base   Source
	Offset time.Duration
}

// NowMillis returns the base reading shifted by Offset.
func (s SkewedSource) NowMillis() (uint64, error) {
	now, err := s.Base.NowMillis()
	if err != nil {
		return 0, err
	}
	off := s.Offset.Milliseconds()
	if off < 0 && uint64(-off) > now {
		return 0, ErrTimeSourceUnavailable
	}
	return uint64(int64(now) + off), nil
}

// ManualSource is a Source whose reading only changes when told to.
// It is safe for concurrent use.
type ManualSource struct {
	mu   sync.Mutex
	now  uint64
	fail bool
}

// NewManualSource returns a source frozen at now.
func NewManualSource(now uint64) *ManualSource {
	return &ManualSource{now: now}
}

// NowMillis returns the current manual reading.
func (m *ManualSource) NowMillis() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, ErrTimeSourceUnavailable
	}
	return m.now, nil
}

// Set moves the reading to now, forwards or backwards.
func (m *ManualSource) Set(now uint64) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Advance moves the reading forward by d milliseconds.
func (m *ManualSource) Advance(d uint64) {
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()
}

// Fail makes subsequent reads return ErrTimeSourceUnavailable until
// called again with false.
func (m *ManualSource) Fail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

var (
	_ Source = SystemSource{}
	_ Source = SkewedSource{}
	_ Source = (*ManualSource)(nil)
	_ Source = SourceFunc(nil)
)
