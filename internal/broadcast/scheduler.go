package broadcast

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// StatsSource provides the current prayer stats.
type StatsSource interface {
	CurrentStats(ctx context.Context) (model.PrayerStats, error)
}

// StatsSink receives stats that changed enough to be broadcast.
type StatsSink interface {
	BroadcastPrayerStats(stats model.PrayerStats)
}

// StatsSinkFunc is a function adapter for StatsSink.
type StatsSinkFunc func(model.PrayerStats)

func (f StatsSinkFunc) BroadcastPrayerStats(s model.PrayerStats) {
	f(s)
}

// Config holds scheduler configuration.
type Config struct {
	Interval      time.Duration // Tick interval (default: 200ms)
	RateThreshold float64       // Minimum RPM change that triggers a broadcast (default: 0.1)
	Timeout       time.Duration // Bound on each stats read (default: 2s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      200 * time.Millisecond,
		RateThreshold: 0.1,
		Timeout:       2 * time.Second,
	}
}

// Scheduler periodically reads prayer stats and broadcasts them when they
// changed materially since the last broadcast.
type Scheduler struct {
	cfg    Config
	source StatsSource
	sink   StatsSink
	logger *slog.Logger

	mu   sync.Mutex
	last *model.PrayerStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Scheduler.
func New(cfg Config, source StatsSource, sink StatsSink, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.RateThreshold < 0 {
		cfg.RateThreshold = defaults.RateThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &Scheduler{
		cfg:    cfg,
		source: source,
		sink:   sink,
		logger: logger,
	}
}

// Start begins the broadcast loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("broadcast scheduler started",
		"interval", s.cfg.Interval,
		"rate_threshold", s.cfg.RateThreshold,
	)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("broadcast scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.ctx)
		}
	}
}

// Tick reads the current stats and broadcasts them if they changed.
// It reports whether a broadcast happened.
func (s *Scheduler) Tick(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	stats, err := s.source.CurrentStats(ctx)
	if err != nil {
		s.logger.Warn("failed to read prayer stats", "err", err)
		return false
	}

	s.mu.Lock()
	changed := s.last == nil || s.changed(*s.last, stats)
	if changed {
		s.last = &stats
	}
	s.mu.Unlock()

	if !changed {
		return false
	}

	s.logger.Debug("broadcasting prayer stats",
		"up", stats.Count.Up,
		"down", stats.Count.Down,
		"total_rpm", stats.TotalRPM(),
	)
	s.sink.BroadcastPrayerStats(stats)
	return true
}

func (s *Scheduler) changed(prev, cur model.PrayerStats) bool {
	if prev.Count != cur.Count {
		return true
	}
	return math.Abs(cur.UpRPM-prev.UpRPM) > s.cfg.RateThreshold ||
		math.Abs(cur.DownRPM-prev.DownRPM) > s.cfg.RateThreshold
}
