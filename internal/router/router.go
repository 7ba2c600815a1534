package router

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// Option configures a handler.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// counters is the shared stats block for both handlers.
type counters struct {
	received    atomic.Int64
	forwarded   atomic.Int64
	parseErrors atomic.Int64
}

func (c *counters) snapshot() HandlerStats {
	return HandlerStats{
		Received:    c.received.Load(),
		Forwarded:   c.forwarded.Load(),
		ParseErrors: c.parseErrors.Load(),
	}
}

// -----------------------------------------------------------------------------
// Liquidations
// -----------------------------------------------------------------------------

// LiquidationHandler turns raw forceOrder messages into Liquidation events.
type LiquidationHandler struct {
	sink   LiquidationSink
	logger *slog.Logger
	now    func() time.Time
	stats  counters
}

// NewLiquidationHandler creates a handler that forwards to sink.
func NewLiquidationHandler(sink LiquidationSink, opts ...Option) *LiquidationHandler {
	o := buildOptions(opts)
	return &LiquidationHandler{
		sink:   sink,
		logger: o.logger.With("handler", "liquidation"),
		now:    o.now,
	}
}

// HandleMessage parses one message and forwards it. Malformed messages are dropped.
func (h *LiquidationHandler) HandleMessage(data []byte) {
	h.stats.received.Add(1)

	liq, err := ParseLiquidation(data, h.now())
	if err != nil {
		h.stats.parseErrors.Add(1)
		h.logger.Warn("dropping malformed liquidation", "error", err)
		return
	}

	if liq.IsLarge() {
		h.logger.Info("large liquidation",
			"symbol", liq.Symbol,
			"side", liq.Side,
			"value", liq.FormattedValue(),
		)
	}

	h.sink.BroadcastLiquidation(liq)
	h.stats.forwarded.Add(1)
}

// Stats returns handler statistics.
func (h *LiquidationHandler) Stats() HandlerStats {
	return h.stats.snapshot()
}

// -----------------------------------------------------------------------------
// Tickers
// -----------------------------------------------------------------------------

// TickerHandler turns raw 24hrTicker messages into Ticker events and
// remembers the latest one for late-joining clients.
type TickerHandler struct {
	sink   TickerSink
	logger *slog.Logger
	now    func() time.Time
	stats  counters

	latest   atomic.Pointer[model.Ticker]
	streamed atomic.Bool
}

// NewTickerHandler creates a handler that forwards to sink.
func NewTickerHandler(sink TickerSink, opts ...Option) *TickerHandler {
	o := buildOptions(opts)
	return &TickerHandler{
		sink:   sink,
		logger: o.logger.With("handler", "ticker"),
		now:    o.now,
	}
}

// HandleMessage parses one message, records it as latest and forwards it.
func (h *TickerHandler) HandleMessage(data []byte) {
	h.stats.received.Add(1)

	t, err := ParseTicker(data, h.now())
	if err != nil {
		h.stats.parseErrors.Add(1)
		h.logger.Warn("dropping malformed ticker", "error", err)
		return
	}

	h.latest.Store(&t)
	h.streamed.Store(true)

	h.sink.BroadcastTicker(t)
	h.stats.forwarded.Add(1)
}

// Seed sets the latest ticker from another source (e.g. a REST snapshot)
// unless the stream has already delivered one. It reports whether it applied.
func (h *TickerHandler) Seed(t model.Ticker) bool {
	if h.streamed.Load() {
		return false
	}
	if !h.latest.CompareAndSwap(nil, &t) {
		return false
	}
	h.sink.BroadcastTicker(t)
	return true
}

// Latest returns the most recent ticker, if any.
func (h *TickerHandler) Latest() (model.Ticker, bool) {
	p := h.latest.Load()
	if p == nil {
		return model.Ticker{}, false
	}
	return *p, true
}

// Stats returns handler statistics.
func (h *TickerHandler) Stats() HandlerStats {
	return h.stats.snapshot()
}
