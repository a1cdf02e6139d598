package clock

import (
	"sync"
	"testing"
	"time"
)

func TestClock_Advance_BackwardsTime(t *testing.T) {
	src := NewManualSource(1000)
	c := NewAt(src, Timestamp{Physical: 1000, Logical: 4})

	var observed, held uint64
	calls := 0
	c.SetOnRegression(func(o, h uint64) {
		calls++
		observed, held = o, h
	})

	src.Set(990)
	ts, err := c.Advance()
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if ts != (Timestamp{Physical: 1000, Logical: 5}) {
		t.Errorf("Expected physical time held at 1000 with counter 5, got %v", ts)
	}
	if calls != 1 || observed != 990 || held != 1000 {
		t.Errorf("Expected one regression (990 < 1000), got calls=%d observed=%d held=%d", calls, observed, held)
	}
}

func TestClock_Merge_BackwardsTime(t *testing.T) {
	src := NewManualSource(1000)
	c := NewAt(src, Timestamp{Physical: 1000, Logical: 0})

	calls := 0
	c.SetOnRegression(func(_, _ uint64) { calls++ })

	src.Set(900)
	ts, _ := c.Merge(Timestamp{Physical: 950, Logical: 8})
	if ts != (Timestamp{Physical: 1000, Logical: 1}) {
		t.Errorf("Expected (1000, 1), got %v", ts)
	}
	if calls != 1 {
		t.Errorf("Expected one regression callback, got %d", calls)
	}
}

func TestClock_NoRegressionOnSameMillisecond(t *testing.T) {
	src := NewManualSource(1000)
	c := NewAt(src, Timestamp{Physical: 1000})

	calls := 0
	c.SetOnRegression(func(_, _ uint64) { calls++ })

	c.Advance()
	c.Merge(Timestamp{Physical: 1000, Logical: 3})
	if calls != 0 {
		t.Errorf("Expected no regression callbacks, got %d", calls)
	}
}

func TestSkewedSource(t *testing.T) {
	base := NewManualSource(1000)

	ahead := SkewedSource{Base: base, Offset: 50 * time.Millisecond}
	if got, _ := ahead.NowMillis(); got != 1050 {
		t.Errorf("Expected 1050, got %d", got)
	}

	behind := SkewedSource{Base: base, Offset: -250 * time.Millisecond}
	if got, _ := behind.NowMillis(); got != 750 {
		t.Errorf("Expected 750, got %d", got)
	}

	tooFar := SkewedSource{Base: base, Offset: -2 * time.Second}
	if _, err := tooFar.NowMillis(); err == nil {
		t.Error("Expected error when skew moves time before the epoch")
	}
}

func TestSystemSource(t *testing.T) {
	before := uint64(time.Now().UnixMilli())
	got, err := SystemSource{}.NowMillis()
	if err != nil {
		t.Fatalf("NowMillis() error = %v", err)
	}
	if got < before {
		t.Errorf("Expected reading >= %d, got %d", before, got)
	}
}

func TestClock_Concurrent(t *testing.T) {
	src := NewManualSource(1000)
	c := NewAt(src, Timestamp{Physical: 1000})

	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.Advance()
			}
		}()
	}
	wg.Wait()

	// Time never moved, so every advance landed on the counter.
	want := Timestamp{Physical: 1000, Logical: goroutines * perGoroutine}
	if got := c.Read(); got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
