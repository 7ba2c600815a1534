package counter

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// MemoryStore keeps counts in process memory. It is always available and
// is the secondary store behind FallbackStore.
type MemoryStore struct {
	up   atomic.Int64
	down atomic.Int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) counter(side model.Side) *atomic.Int64 {
	switch side {
	case model.SideUp:
		return &m.up
	case model.SideDown:
		return &m.down
	default:
		panic(fmt.Sprintf("counter: invalid side %d", int(side)))
	}
}

// Increment adds delta and returns the new value.
func (m *MemoryStore) Increment(_ context.Context, side model.Side, delta int64) (int64, error) {
	return m.counter(side).Add(delta), nil
}

// Count returns the current counts.
func (m *MemoryStore) Count(_ context.Context) (model.PrayerCount, error) {
	return model.PrayerCount{Up: m.up.Load(), Down: m.down.Load()}, nil
}

// Merge adds delta to both sides.
func (m *MemoryStore) Merge(_ context.Context, delta model.PrayerCount) error {
	m.up.Add(delta.Up)
	m.down.Add(delta.Down)
	return nil
}

// Available always returns true.
func (m *MemoryStore) Available(context.Context) bool {
	return true
}

// TakeAndReset atomically swaps each side to zero and returns the previous counts.
func (m *MemoryStore) TakeAndReset() model.PrayerCount {
	return model.PrayerCount{
		Up:   m.up.Swap(0),
		Down: m.down.Swap(0),
	}
}

// HasData reports whether either side is non-zero.
func (m *MemoryStore) HasData() bool {
	return m.up.Load() != 0 || m.down.Load() != 0
}
