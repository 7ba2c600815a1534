package hub

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rickgao/crypto-prayer/internal/connection"
	"github.com/rickgao/crypto-prayer/internal/model"
	"github.com/rickgao/crypto-prayer/internal/version"
)

// StatsSource provides current prayer stats.
type StatsSource interface {
	CurrentStats(ctx context.Context) (model.PrayerStats, error)
}

// TickerSource provides the latest ticker, if any.
type TickerSource interface {
	Latest() (model.Ticker, bool)
}

// StoreStatus reports counter store health.
type StoreStatus interface {
	UsingFallback() bool
}

// StreamStatus reports upstream stream health.
type StreamStatus interface {
	Stats() connection.ManagerStats
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	ListenAddr     string
	Mode           string   // gin mode
	AllowedOrigins []string // empty allows every origin
	ConnectRate    float64  // New WebSocket connections per second across all clients
	ConnectBurst   int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithStats sets the source for GET /api/prayer.
func WithStats(s StatsSource) ServerOption {
	return func(srv *Server) { srv.stats = s }
}

// WithTicker sets the source for GET /api/ticker.
func WithTicker(t TickerSource) ServerOption {
	return func(srv *Server) { srv.ticker = t }
}

// WithStoreStatus adds counter store state to GET /api/health.
func WithStoreStatus(s StoreStatus) ServerOption {
	return func(srv *Server) { srv.store = s }
}

// WithStreamStatus adds upstream stream state to GET /api/health.
func WithStreamStatus(s StreamStatus) ServerOption {
	return func(srv *Server) { srv.streams = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(srv *Server) {
		if logger != nil {
			srv.logger = logger
		}
	}
}

// Server exposes the hub over HTTP.
type Server struct {
	cfg      ServerConfig
	hub      *Hub
	engine   *gin.Engine
	http     *http.Server
	upgrader websocket.Upgrader
	admit    *rate.Limiter
	logger   *slog.Logger

	stats   StatsSource
	ticker  TickerSource
	store   StoreStatus
	streams StreamStatus
}

// NewServer creates a Server. The hub must be running before clients connect.
func NewServer(cfg ServerConfig, h *Hub, opts ...ServerOption) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	s := &Server{
		cfg:    cfg,
		hub:    h,
		engine: gin.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	limit := rate.Inf
	if cfg.ConnectRate > 0 {
		limit = rate.Limit(cfg.ConnectRate)
	}
	burst := cfg.ConnectBurst
	if burst <= 0 {
		burst = 1
	}
	s.admit = rate.NewLimiter(limit, burst)

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.engine.Use(gin.Recovery(), s.requestLogger(), s.cors())
	s.setupRoutes()

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/prayer", s.getPrayer)
	s.engine.GET("/api/ticker", s.getTicker)

	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens and serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
// Upgraded WebSocket connections are closed by the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && s.checkOrigin(c.Request) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/ws" {
			return
		}
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) getHealth(c *gin.Context) {
	resp := gin.H{
		"status":      "ok",
		"version":     version.Version,
		"commit":      version.Commit,
		"connections": s.hub.ClientCount(),
	}

	if s.store != nil {
		fallback := s.store.UsingFallback()
		resp["usingFallback"] = fallback
		if fallback {
			resp["status"] = "degraded"
		}
	}

	if s.streams != nil {
		st := s.streams.Stats()
		streams := make(gin.H, len(st.Streams))
		for _, ss := range st.Streams {
			streams[ss.Name] = ss.State.String()
		}
		resp["streams"] = streams
		if st.ConnectedCount < len(st.Streams) {
			resp["status"] = "degraded"
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) getPrayer(c *gin.Context) {
	if s.stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prayer stats unavailable"})
		return
	}
	stats, err := s.stats.CurrentStats(c.Request.Context())
	if err != nil {
		s.logger.Warn("failed to read prayer stats", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prayer stats unavailable"})
		return
	}
	c.JSON(http.StatusOK, NewPrayerMessage(stats))
}

func (s *Server) getTicker(c *gin.Context) {
	if s.ticker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no ticker yet"})
		return
	}
	t, ok := s.ticker.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no ticker yet"})
		return
	}
	c.JSON(http.StatusOK, NewTickerMessage(t))
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if !s.admit.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many new connections"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	client := newClient(s.hub, conn)
	if err := s.hub.join(client); err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump(c.Request.Context())
}
