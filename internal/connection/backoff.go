package connection

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backoff produces reconnect delays that grow exponentially up to a cap,
// with symmetric jitter. It is safe for concurrent use.
type Backoff struct {
	mu      sync.Mutex
	exp     *backoff.ExponentialBackOff
	attempt int
}

// NewBackoff creates a Backoff. Zero fields fall back to DefaultBackoffConfig.
func NewBackoff(cfg BackoffConfig) *Backoff {
	def := DefaultBackoffConfig()
	if cfg.Initial <= 0 {
		cfg.Initial = def.Initial
	}
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		cfg.Jitter = def.Jitter
	}
	if cfg.Initial > cfg.Max {
		cfg.Initial = cfg.Max
	}

	exp := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.Initial,
		RandomizationFactor: cfg.Jitter,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.Max,
	}
	exp.Reset()

	return &Backoff{exp: exp}
}

// NextDelay returns the delay for the current attempt and advances the attempt counter.
func (b *Backoff) NextDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempt++
	d := b.exp.NextBackOff()
	if d < 0 {
		d = 0
	}
	return d
}

// Reset returns the generator to attempt zero.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempt = 0
	b.exp.Reset()
}

// Attempt returns how many delays have been handed out since the last reset.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
