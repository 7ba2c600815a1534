package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config configures the per-client token bucket.
type Config struct {
	Capacity       int           // Max tokens per bucket (burst size)
	RefillPerSec   int           // Tokens added per second
	RefillInterval time.Duration // Minimum elapsed time before a refill is considered
}

// DefaultConfig returns 20 tokens refilled at 5 per second in 200ms steps.
func DefaultConfig() Config {
	return Config{
		Capacity:       20,
		RefillPerSec:   5,
		RefillInterval: 200 * time.Millisecond,
	}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

type bucket struct {
	mu           sync.Mutex
	tokens       int
	lastRefillAt time.Time
}

// Limiter admits or rejects requests per client id.
type Limiter struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// New creates a Limiter. Non-positive config fields take their defaults.
func New(cfg Config, opts ...Option) *Limiter {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.RefillPerSec <= 0 {
		cfg.RefillPerSec = def.RefillPerSec
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = def.RefillInterval
	}

	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		logger:  slog.Default(),
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryConsume takes one token from the client's bucket, creating a full
// bucket on first use. It returns false when the bucket is empty.
func (l *Limiter) TryConsume(clientID string) bool {
	b := l.bucket(clientID)

	b.mu.Lock()
	defer b.mu.Unlock()

	l.refill(b)

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RemoveClient drops the client's bucket. Unknown ids are ignored.
func (l *Limiter) RemoveClient(clientID string) {
	l.mu.Lock()
	delete(l.buckets, clientID)
	l.mu.Unlock()
}

// CleanupStale removes buckets not refilled within maxIdle and returns how many were removed.
func (l *Limiter) CleanupStale(maxIdle time.Duration) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, b := range l.buckets {
		b.mu.Lock()
		idle := now.Sub(b.lastRefillAt)
		b.mu.Unlock()

		if idle > maxIdle {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// RunJanitor calls CleanupStale every interval until ctx is done.
func (l *Limiter) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.CleanupStale(maxIdle); n > 0 {
				l.logger.Debug("removed stale rate limit buckets",
					"removed", n,
					"remaining", l.Len(),
				)
			}
		}
	}
}

func (l *Limiter) bucket(clientID string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[clientID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[clientID]; ok {
		return b
	}
	b = &bucket{
		tokens:       l.cfg.Capacity,
		lastRefillAt: l.now(),
	}
	l.buckets[clientID] = b
	return b
}

// refill adds whole tokens for elapsed time. lastRefillAt only advances when
// at least one token is added, so sub-token remainders keep accruing.
// Caller holds b.mu.
func (l *Limiter) refill(b *bucket) {
	now := l.now()
	elapsed := now.Sub(b.lastRefillAt)
	if elapsed < l.cfg.RefillInterval {
		return
	}

	add := int(elapsed.Seconds() * float64(l.cfg.RefillPerSec))
	if add <= 0 {
		return
	}

	b.tokens += add
	if b.tokens > l.cfg.Capacity {
		b.tokens = l.cfg.Capacity
	}
	b.lastRefillAt = now
}
