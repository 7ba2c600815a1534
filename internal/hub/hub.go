package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// ClientLimiter gates inbound messages per client.
type ClientLimiter interface {
	TryConsume(clientID string) bool
	RemoveClient(clientID string)
}

// PrayerRecorder records accepted prayers.
type PrayerRecorder interface {
	PrayBatch(ctx context.Context, side model.Side, clientID string, count int) error
}

// Config holds hub and per-client connection settings.
type Config struct {
	SendBufferSize      int           // Per-client outbound queue (default: 256)
	BroadcastBufferSize int           // Fan-out queue (default: 1024)
	WriteTimeout        time.Duration // Per-write deadline (default: 5s)
	PongWait            time.Duration // Read deadline refreshed by pongs (default: 60s)
	MaxMessageSize      int64         // Inbound message limit (default: 4KiB)
	RequestTimeout      time.Duration // Bound on recording one request (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendBufferSize:      256,
		BroadcastBufferSize: 1024,
		WriteTimeout:        5 * time.Second,
		PongWait:            60 * time.Second,
		MaxMessageSize:      4096,
		RequestTimeout:      5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = d.SendBufferSize
	}
	if c.BroadcastBufferSize <= 0 {
		c.BroadcastBufferSize = d.BroadcastBufferSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	return c
}

func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

// Stats holds hub counters.
type Stats struct {
	Clients   int
	Broadcast uint64 // Messages fanned out
	Dropped   uint64 // Messages dropped because the fan-out queue was full
	Evicted   uint64 // Clients dropped for being too slow
}

// Hub owns the set of connected clients and fans out broadcasts to them.
// All client set mutations happen on the Run goroutine.
type Hub struct {
	cfg     Config
	limiter ClientLimiter
	prayers PrayerRecorder
	logger  *slog.Logger

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once

	latestMu     sync.RWMutex
	latestPrayer []byte
	latestTicker []byte

	clientCount atomic.Int64
	sent        atomic.Uint64
	dropped     atomic.Uint64
	evicted     atomic.Uint64
}

// New creates a Hub. Call Run to start it.
func New(cfg Config, limiter ClientLimiter, prayers PrayerRecorder, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Hub{
		cfg:        cfg,
		limiter:    limiter,
		prayers:    prayers,
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, cfg.BroadcastBufferSize),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.clientCount.Store(int64(len(h.clients)))
			h.sendLatest(c)
			h.logger.Debug("client connected", "client", c.id, "clients", len(h.clients))

		case c := <-h.unregister:
			h.remove(c)
			h.logger.Debug("client disconnected", "client", c.id, "clients", len(h.clients))

		case msg := <-h.broadcast:
			h.sent.Add(1)
			for c := range h.clients {
				if !c.trySend(msg) {
					h.evicted.Add(1)
					h.logger.Warn("evicting slow client", "client", c.id)
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
		h.clientCount.Store(int64(len(h.clients)))
	}
	if h.limiter != nil {
		h.limiter.RemoveClient(c.id)
	}
}

func (h *Hub) shutdown() {
	h.closeOnce.Do(func() { close(h.done) })
	for c := range h.clients {
		h.remove(c)
	}
}

func (h *Hub) sendLatest(c *Client) {
	h.latestMu.RLock()
	prayer, ticker := h.latestPrayer, h.latestTicker
	h.latestMu.RUnlock()

	if prayer != nil {
		c.trySend(prayer)
	}
	if ticker != nil {
		c.trySend(ticker)
	}
}

// Stats returns current counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:   int(h.clientCount.Load()),
		Broadcast: h.sent.Load(),
		Dropped:   h.dropped.Load(),
		Evicted:   h.evicted.Load(),
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// BroadcastPrayerStats sends a PRAYER message to every client and keeps it
// for clients that connect later.
func (h *Hub) BroadcastPrayerStats(stats model.PrayerStats) {
	data, ok := h.marshal(NewPrayerMessage(stats))
	if !ok {
		return
	}
	h.latestMu.Lock()
	h.latestPrayer = data
	h.latestMu.Unlock()
	h.enqueue(data)
}

// BroadcastTicker sends a TICKER message to every client and keeps it for
// clients that connect later.
func (h *Hub) BroadcastTicker(t model.Ticker) {
	data, ok := h.marshal(NewTickerMessage(t))
	if !ok {
		return
	}
	h.latestMu.Lock()
	h.latestTicker = data
	h.latestMu.Unlock()
	h.enqueue(data)
}

// BroadcastLiquidation sends a LIQUIDATION message to every client.
func (h *Hub) BroadcastLiquidation(l model.Liquidation) {
	if data, ok := h.marshal(NewLiquidationMessage(l)); ok {
		h.enqueue(data)
	}
}

func (h *Hub) marshal(v any) ([]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "err", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) enqueue(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
			h.logger.Warn("broadcast queue full, dropping message", "dropped_total", n)
		}
	}
}

// errHubClosed is returned when a client tries to join a stopped hub.
var errHubClosed = errors.New("hub closed")

func (h *Hub) join(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return errHubClosed
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// handleMessage processes one inbound client message. Rejections go back to
// that client only.
func (h *Hub) handleMessage(ctx context.Context, c *Client, data []byte) {
	if h.limiter != nil && !h.limiter.TryConsume(c.id) {
		c.sendError(CodeRateLimitExceeded, "too many prayers, slow down")
		return
	}

	var req PrayerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(CodeInvalidRequest, "malformed prayer request")
		return
	}

	side, err := model.ParseSide(req.Side)
	if err != nil {
		c.sendError(CodeInvalidRequest, fmt.Sprintf("unknown side %q", req.Side))
		return
	}

	if h.prayers == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
	defer cancel()

	if err := h.prayers.PrayBatch(ctx, side, c.id, req.ClampedCount()); err != nil {
		h.logger.Error("failed to record prayer",
			"client", c.id,
			"side", side,
			"err", err,
		)
	}
}
