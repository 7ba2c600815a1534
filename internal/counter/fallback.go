package counter

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// FallbackConfig holds FallbackStore configuration.
type FallbackConfig struct {
	ReconcileInterval time.Duration // How often Reconcile runs (default: 30s)
	OpTimeout         time.Duration // Bound on each primary call (default: 2s)
}

// DefaultFallbackConfig returns sensible defaults.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		ReconcileInterval: 30 * time.Second,
		OpTimeout:         2 * time.Second,
	}
}

// FallbackStore serves from a durable primary and fails over to an
// in-memory secondary on the first primary error. Reconcile drains the
// secondary back into the primary once it is reachable again.
type FallbackStore struct {
	primary   Store
	secondary *MemoryStore
	cfg       FallbackConfig
	logger    *slog.Logger

	usingFallback atomic.Bool

	// Operations hold the read lock; Reconcile holds the write lock across
	// take, merge and flip.
	reconcileMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFallbackStore creates a FallbackStore in primary mode.
func NewFallbackStore(primary Store, secondary *MemoryStore, cfg FallbackConfig, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	if secondary == nil {
		secondary = NewMemoryStore()
	}
	defaults := DefaultFallbackConfig()
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = defaults.ReconcileInterval
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaults.OpTimeout
	}
	return &FallbackStore{
		primary:   primary,
		secondary: secondary,
		cfg:       cfg,
		logger:    logger,
	}
}

// UsingFallback reports whether operations are served by the secondary.
func (f *FallbackStore) UsingFallback() bool {
	return f.usingFallback.Load()
}

func (f *FallbackStore) failover(op string, err error) {
	if f.usingFallback.CompareAndSwap(false, true) {
		f.logger.Warn("primary counter store failed, switching to fallback",
			"op", op,
			"err", err,
		)
	}
}

func (f *FallbackStore) primaryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.cfg.OpTimeout)
}

// Increment adds delta to today's counter for side. It never fails.
func (f *FallbackStore) Increment(ctx context.Context, side model.Side, delta int64) (int64, error) {
	f.reconcileMu.RLock()
	defer f.reconcileMu.RUnlock()

	if !f.usingFallback.Load() {
		pctx, cancel := f.primaryCtx(ctx)
		v, err := f.primary.Increment(pctx, side, delta)
		cancel()
		if err == nil {
			return v, nil
		}
		f.failover("increment", err)
	}

	return f.secondary.Increment(ctx, side, delta)
}

// Count returns today's counts. It never fails.
func (f *FallbackStore) Count(ctx context.Context) (model.PrayerCount, error) {
	f.reconcileMu.RLock()
	defer f.reconcileMu.RUnlock()

	if !f.usingFallback.Load() {
		pctx, cancel := f.primaryCtx(ctx)
		c, err := f.primary.Count(pctx)
		cancel()
		if err == nil {
			return c, nil
		}
		f.failover("count", err)
	}

	return f.secondary.Count(ctx)
}

// Merge adds delta to today's counters. It never fails.
func (f *FallbackStore) Merge(ctx context.Context, delta model.PrayerCount) error {
	f.reconcileMu.RLock()
	defer f.reconcileMu.RUnlock()

	if !f.usingFallback.Load() {
		pctx, cancel := f.primaryCtx(ctx)
		err := f.primary.Merge(pctx, delta)
		cancel()
		if err == nil {
			return nil
		}
		f.failover("merge", err)
	}

	return f.secondary.Merge(ctx, delta)
}

// Available reports whether either store can serve. It does not change mode.
func (f *FallbackStore) Available(ctx context.Context) bool {
	pctx, cancel := f.primaryCtx(ctx)
	defer cancel()
	return f.primary.Available(pctx) || f.secondary.Available(ctx)
}

// Reconcile moves fallback counts into the primary once it is reachable
// and switches back to primary mode. In primary mode it only purges
// expired keys when the primary supports it.
func (f *FallbackStore) Reconcile(ctx context.Context) {
	if !f.usingFallback.Load() {
		f.purge(ctx)
		return
	}

	f.reconcileMu.Lock()
	defer f.reconcileMu.Unlock()

	if !f.usingFallback.Load() {
		return
	}

	pctx, cancel := f.primaryCtx(ctx)
	defer cancel()

	if !f.primary.Available(pctx) {
		f.logger.Debug("primary counter store still unavailable")
		return
	}

	taken := f.secondary.TakeAndReset()
	if !taken.IsZero() {
		if err := f.primary.Merge(pctx, taken); err != nil {
			f.secondary.Merge(ctx, taken)
			f.logger.Warn("failed to merge fallback counts into primary",
				"up", taken.Up,
				"down", taken.Down,
				"err", err,
			)
			return
		}
	}

	f.usingFallback.Store(false)
	f.logger.Info("primary counter store recovered",
		"merged_up", taken.Up,
		"merged_down", taken.Down,
	)
}

func (f *FallbackStore) purge(ctx context.Context) {
	p, ok := f.primary.(Purger)
	if !ok {
		return
	}

	pctx, cancel := f.primaryCtx(ctx)
	defer cancel()

	n, err := p.PurgeExpired(pctx)
	if err != nil {
		f.logger.Debug("failed to purge expired counters", "err", err)
		return
	}
	if n > 0 {
		f.logger.Debug("purged expired counters", "rows", n)
	}
}

// Start begins the reconciliation loop.
func (f *FallbackStore) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go f.run()

	f.logger.Info("counter reconciler started", "interval", f.cfg.ReconcileInterval)
	return nil
}

// Stop shuts down the reconciliation loop.
func (f *FallbackStore) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.logger.Info("counter reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FallbackStore) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.Reconcile(f.ctx)
		}
	}
}
