package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// Store is a per-day, per-side prayer counter.
type Store interface {
	// Increment adds delta to today's counter for side and returns the new value.
	Increment(ctx context.Context, side model.Side, delta int64) (int64, error)

	// Count returns today's counts for both sides.
	Count(ctx context.Context) (model.PrayerCount, error)

	// Merge adds both sides of delta to today's counters.
	Merge(ctx context.Context, delta model.PrayerCount) error

	// Available reports whether the store can currently serve requests.
	Available(ctx context.Context) bool
}

// Purger is implemented by stores that reclaim expired day keys themselves.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// DefaultTTL is how long a day's counter key lives after creation.
const DefaultTTL = 48 * time.Hour

// KeyGenerator builds the day-scoped counter keys "prayer:<YYYYMMDD>:<side>".
type KeyGenerator struct {
	now func() time.Time
	loc *time.Location
	ttl time.Duration
}

// KeyOption configures a KeyGenerator.
type KeyOption func(*KeyGenerator)

// WithKeyClock overrides the time source.
func WithKeyClock(now func() time.Time) KeyOption {
	return func(k *KeyGenerator) {
		if now != nil {
			k.now = now
		}
	}
}

// WithLocation sets the time zone that defines a "day". Defaults to time.Local.
func WithLocation(loc *time.Location) KeyOption {
	return func(k *KeyGenerator) {
		if loc != nil {
			k.loc = loc
		}
	}
}

// WithTTL sets the key lifetime.
func WithTTL(ttl time.Duration) KeyOption {
	return func(k *KeyGenerator) {
		if ttl > 0 {
			k.ttl = ttl
		}
	}
}

// NewKeyGenerator creates a KeyGenerator.
func NewKeyGenerator(opts ...KeyOption) *KeyGenerator {
	k := &KeyGenerator{
		now: time.Now,
		loc: time.Local,
		ttl: DefaultTTL,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Key returns today's key for side.
func (k *KeyGenerator) Key(side model.Side) string {
	return k.KeyAt(side, k.now())
}

// KeyAt returns the key for side on the day containing t.
func (k *KeyGenerator) KeyAt(side model.Side, t time.Time) string {
	return fmt.Sprintf("prayer:%s:%s", t.In(k.loc).Format("20060102"), side.Key())
}

// Keys returns today's keys for every side, in model.Sides order.
func (k *KeyGenerator) Keys() []string {
	now := k.now()
	sides := model.Sides()
	keys := make([]string, len(sides))
	for i, s := range sides {
		keys[i] = k.KeyAt(s, now)
	}
	return keys
}

// TTL returns the key lifetime.
func (k *KeyGenerator) TTL() time.Duration {
	return k.ttl
}

// Now returns the generator's current time.
func (k *KeyGenerator) Now() time.Time {
	return k.now()
}
