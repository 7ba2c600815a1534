package prayer

import (
	"sync"
	"time"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// DefaultWindow is the trailing span RateEstimator counts events over.
const DefaultWindow = time.Minute

// RateEstimator tracks per-side events over a sliding window.
type RateEstimator struct {
	window time.Duration
	now    func() time.Time

	up   sideWindow
	down sideWindow
}

type sideWindow struct {
	mu     sync.Mutex
	events []time.Time
}

// EstimatorOption configures a RateEstimator.
type EstimatorOption func(*RateEstimator)

// WithWindow sets the sliding window length.
func WithWindow(d time.Duration) EstimatorOption {
	return func(r *RateEstimator) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithEstimatorClock overrides the time source.
func WithEstimatorClock(now func() time.Time) EstimatorOption {
	return func(r *RateEstimator) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRateEstimator creates a RateEstimator with a one minute window by default.
func NewRateEstimator(opts ...EstimatorOption) *RateEstimator {
	r := &RateEstimator{
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RateEstimator) side(s model.Side) *sideWindow {
	switch s {
	case model.SideUp:
		return &r.up
	case model.SideDown:
		return &r.down
	default:
		panic("prayer: invalid side")
	}
}

// Record adds one event for side at the current time.
func (r *RateEstimator) Record(side model.Side) {
	r.RecordN(side, 1)
}

// RecordN adds n events for side at the current time.
func (r *RateEstimator) RecordN(side model.Side, n int) {
	if n <= 0 {
		return
	}

	w := r.side(side)
	now := r.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now.Add(-r.window))
	for i := 0; i < n; i++ {
		w.events = append(w.events, now)
	}
}

// RatePerMinute returns the number of events in the window scaled to one minute.
func (r *RateEstimator) RatePerMinute(side model.Side) float64 {
	w := r.side(side)
	now := r.now()

	w.mu.Lock()
	w.evict(now.Add(-r.window))
	n := len(w.events)
	w.mu.Unlock()

	return float64(n) * float64(time.Minute) / float64(r.window)
}

// evict drops events older than cutoff. Events are appended in time order,
// so expired ones are always at the front. Caller holds mu.
func (w *sideWindow) evict(cutoff time.Time) {
	i := 0
	for i < len(w.events) && w.events[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	if i == len(w.events) {
		w.events = w.events[:0]
		return
	}
	w.events = append(w.events[:0], w.events[i:]...)
}
