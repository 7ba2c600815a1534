package prayer

import (
	"sync"
	"testing"
	"time"

	"github.com/rickgao/crypto-prayer/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRateEstimator_CountsWithinWindow(t *testing.T) {
	clock := newFakeClock()
	r := NewRateEstimator(WithEstimatorClock(clock.Now))

	for i := 0; i < 5; i++ {
		r.Record(model.SideUp)
		clock.Advance(time.Second)
	}

	if got := r.RatePerMinute(model.SideUp); got != 5 {
		t.Errorf("RatePerMinute(UP) = %v, want 5", got)
	}
	if got := r.RatePerMinute(model.SideDown); got != 0 {
		t.Errorf("RatePerMinute(DOWN) = %v, want 0", got)
	}
}

func TestRateEstimator_EvictsOldEvents(t *testing.T) {
	clock := newFakeClock()
	r := NewRateEstimator(WithEstimatorClock(clock.Now))

	r.RecordN(model.SideDown, 3)
	clock.Advance(30 * time.Second)
	r.RecordN(model.SideDown, 2)

	clock.Advance(31 * time.Second)
	if got := r.RatePerMinute(model.SideDown); got != 2 {
		t.Errorf("RatePerMinute after 61s = %v, want 2", got)
	}

	clock.Advance(30 * time.Second)
	if got := r.RatePerMinute(model.SideDown); got != 0 {
		t.Errorf("RatePerMinute after 91s = %v, want 0", got)
	}
}

func TestRateEstimator_BoundaryIsInclusive(t *testing.T) {
	clock := newFakeClock()
	r := NewRateEstimator(WithEstimatorClock(clock.Now))

	r.Record(model.SideUp)
	clock.Advance(time.Minute)

	// An event exactly one window old is still counted.
	if got := r.RatePerMinute(model.SideUp); got != 1 {
		t.Errorf("RatePerMinute at window edge = %v, want 1", got)
	}
}

func TestRateEstimator_ScalesToMinute(t *testing.T) {
	clock := newFakeClock()
	r := NewRateEstimator(
		WithEstimatorClock(clock.Now),
		WithWindow(30*time.Second),
	)

	r.RecordN(model.SideUp, 4)
	if got := r.RatePerMinute(model.SideUp); got != 8 {
		t.Errorf("RatePerMinute with 30s window = %v, want 8", got)
	}
}

func TestRateEstimator_RecordNIgnoresNonPositive(t *testing.T) {
	r := NewRateEstimator()
	r.RecordN(model.SideUp, 0)
	r.RecordN(model.SideUp, -3)

	if got := r.RatePerMinute(model.SideUp); got != 0 {
		t.Errorf("RatePerMinute = %v, want 0", got)
	}
}

func TestRateEstimator_Concurrent(t *testing.T) {
	r := NewRateEstimator()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Record(model.SideUp)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RatePerMinute(model.SideUp)
			}
		}()
	}
	wg.Wait()

	if got := r.RatePerMinute(model.SideUp); got != 1000 {
		t.Errorf("RatePerMinute = %v, want 1000", got)
	}
}
