package prayer

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/crypto-prayer/internal/counter"
	"github.com/rickgao/crypto-prayer/internal/model"
)

// Service records prayers and reports today's stats.
type Service struct {
	store     counter.Store
	estimator *RateEstimator
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for prayer and stats timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service. A nil estimator gets a default one.
func NewService(store counter.Store, estimator *RateEstimator, opts ...Option) *Service {
	if estimator == nil {
		estimator = NewRateEstimator()
	}
	s := &Service{
		store:     store,
		estimator: estimator,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pray records a single prayer for side.
func (s *Service) Pray(ctx context.Context, side model.Side, clientID string) (model.Prayer, error) {
	p := model.NewPrayer(side, clientID, s.now())
	if _, err := s.store.Increment(ctx, side, 1); err != nil {
		return model.Prayer{}, err
	}
	s.estimator.Record(side)
	return p, nil
}

// PrayBatch records count prayers for side in one store increment.
func (s *Service) PrayBatch(ctx context.Context, side model.Side, clientID string, count int) error {
	if count <= 0 {
		return nil
	}
	if _, err := s.store.Increment(ctx, side, int64(count)); err != nil {
		return err
	}
	s.estimator.RecordN(side, count)

	s.logger.Debug("prayers recorded",
		"side", side,
		"client", clientID,
		"count", count,
	)
	return nil
}

// TodayCount returns today's counts.
func (s *Service) TodayCount(ctx context.Context) (model.PrayerCount, error) {
	return s.store.Count(ctx)
}

// CurrentStats returns today's counts with both sides' current rates.
func (s *Service) CurrentStats(ctx context.Context) (model.PrayerStats, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return model.PrayerStats{}, err
	}
	return model.PrayerStats{
		Count:      count,
		UpRPM:      s.estimator.RatePerMinute(model.SideUp),
		DownRPM:    s.estimator.RatePerMinute(model.SideDown),
		ObservedAt: s.now(),
	}, nil
}
