package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// mockStatsSource returns whatever stats were last set.
type mockStatsSource struct {
	mu    sync.Mutex
	stats model.PrayerStats
	err   error
}

func (m *mockStatsSource) set(up, down int64, upRPM, downRPM float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = model.PrayerStats{
		Count:   model.PrayerCount{Up: up, Down: down},
		UpRPM:   upRPM,
		DownRPM: downRPM,
	}
}

func (m *mockStatsSource) CurrentStats(context.Context) (model.PrayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, m.err
}

type recordingSink struct {
	mu    sync.Mutex
	stats []model.PrayerStats
}

func (r *recordingSink) BroadcastPrayerStats(s model.PrayerStats) {
	r.mu.Lock()
	r.stats = append(r.stats, s)
	r.mu.Unlock()
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stats)
}

func TestScheduler_FirstTickAlwaysBroadcasts(t *testing.T) {
	source := &mockStatsSource{}
	sink := &recordingSink{}
	s := New(DefaultConfig(), source, sink, nil)

	if !s.Tick(context.Background()) {
		t.Error("first Tick = false, want true")
	}
	if sink.len() != 1 {
		t.Errorf("broadcasts = %d, want 1", sink.len())
	}
}

func TestScheduler_ChangeGating(t *testing.T) {
	ctx := context.Background()
	source := &mockStatsSource{}
	sink := &recordingSink{}
	s := New(DefaultConfig(), source, sink, nil)

	source.set(10, 5, 3.0, 1.0)
	s.Tick(ctx)

	tests := []struct {
		name    string
		up      int64
		down    int64
		upRPM   float64
		downRPM float64
		want    bool
	}{
		{"unchanged", 10, 5, 3.0, 1.0, false},
		{"rate within threshold", 10, 5, 3.05, 0.95, false},
		{"up count changed", 11, 5, 3.0, 1.0, true},
		{"down count changed", 11, 6, 3.0, 1.0, true},
		{"up rate moved", 11, 6, 3.5, 1.0, true},
		{"down rate moved", 11, 6, 3.5, 0.5, true},
		{"same again", 11, 6, 3.5, 0.5, false},
	}

	for _, tt := range tests {
		source.set(tt.up, tt.down, tt.upRPM, tt.downRPM)
		if got := s.Tick(ctx); got != tt.want {
			t.Errorf("%s: Tick = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestScheduler_SnapshotOnlyUpdatesOnBroadcast(t *testing.T) {
	ctx := context.Background()
	source := &mockStatsSource{}
	sink := &recordingSink{}
	s := New(DefaultConfig(), source, sink, nil)

	source.set(0, 0, 1.0, 0)
	s.Tick(ctx)

	// Small drifts that add up past the threshold relative to the last broadcast.
	source.set(0, 0, 1.06, 0)
	if s.Tick(ctx) {
		t.Error("Tick at +0.06 = true, want false")
	}
	source.set(0, 0, 1.12, 0)
	if !s.Tick(ctx) {
		t.Error("Tick at +0.12 = false, want true")
	}
}

func TestScheduler_SourceError(t *testing.T) {
	source := &mockStatsSource{err: errors.New("unavailable")}
	sink := &recordingSink{}
	s := New(DefaultConfig(), source, sink, nil)

	if s.Tick(context.Background()) {
		t.Error("Tick with source error = true, want false")
	}
	if sink.len() != 0 {
		t.Errorf("broadcasts = %d, want 0", sink.len())
	}
}

func TestScheduler_StartStop(t *testing.T) {
	source := &mockStatsSource{}
	source.set(1, 1, 0, 0)

	var mu sync.Mutex
	var got []model.PrayerStats
	sink := StatsSinkFunc(func(s model.PrayerStats) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	s := New(Config{Interval: 10 * time.Millisecond}, source, sink, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	// Stats never changed after the first tick.
	if len(got) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(got))
	}
}
