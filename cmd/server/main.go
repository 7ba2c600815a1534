package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/crypto-prayer/internal/api"
	"github.com/rickgao/crypto-prayer/internal/broadcast"
	"github.com/rickgao/crypto-prayer/internal/config"
	"github.com/rickgao/crypto-prayer/internal/connection"
	"github.com/rickgao/crypto-prayer/internal/counter"
	"github.com/rickgao/crypto-prayer/internal/database"
	"github.com/rickgao/crypto-prayer/internal/hub"
	"github.com/rickgao/crypto-prayer/internal/prayer"
	"github.com/rickgao/crypto-prayer/internal/ratelimit"
	"github.com/rickgao/crypto-prayer/internal/router"
	"github.com/rickgao/crypto-prayer/internal/version"
)

const (
	streamLiquidation = "liquidation"
	streamTicker      = "ticker"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults are used when empty)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting prayer server",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("prayer server stopped")
}

func loadConfig(path string) (*config.ServerConfig, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.LoadAndValidate(path)
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func run(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	// Counter storage
	primary, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open counter store: %w", err)
	}
	defer closeStore()

	store := counter.NewFallbackStore(primary, counter.NewMemoryStore(), counter.FallbackConfig{
		ReconcileInterval: cfg.Storage.ReconcileInterval,
		OpTimeout:         cfg.Storage.OpTimeout,
	}, logger.With("component", "counter"))

	// Prayer use case
	estimator := prayer.NewRateEstimator(prayer.WithWindow(cfg.Broadcast.RateWindow))
	service := prayer.NewService(store, estimator, prayer.WithLogger(logger.With("component", "prayer")))

	limiter := ratelimit.New(ratelimit.Config{
		Capacity:       cfg.RateLimit.Capacity,
		RefillPerSec:   cfg.RateLimit.RefillPerSecond,
		RefillInterval: cfg.RateLimit.RefillInterval,
	}, ratelimit.WithLogger(logger.With("component", "ratelimit")))

	// Client-facing hub and HTTP server
	h := hub.New(hub.Config{
		SendBufferSize:      cfg.Server.SendBufferSize,
		BroadcastBufferSize: cfg.Server.BroadcastBufferSize,
		WriteTimeout:        cfg.Server.WriteTimeout,
		PongWait:            cfg.Server.PongWait,
		MaxMessageSize:      cfg.Server.MaxMessageSize,
		RequestTimeout:      cfg.Storage.OpTimeout * 2,
	}, limiter, service, logger.With("component", "hub"))

	// Upstream streams
	liquidations := router.NewLiquidationHandler(h, router.WithLogger(logger.With("component", "liquidation")))
	tickers := router.NewTickerHandler(h, router.WithLogger(logger.With("component", "ticker")))

	streams := connection.NewManager(connection.ManagerConfig{
		Backoff: connection.BackoffConfig{
			Initial:    cfg.Binance.Reconnect.BaseDelay,
			Max:        cfg.Binance.Reconnect.MaxDelay,
			Multiplier: cfg.Binance.Reconnect.Multiplier,
			Jitter:     cfg.Binance.Reconnect.JitterOrDefault(),
		},
		HandshakeTimeout: cfg.Binance.HandshakeTimeout,
		ReadTimeout:      cfg.Binance.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		MaxMessageSize:   connection.DefaultClientConfig().MaxMessageSize,
	}, logger.With("component", "connection"))
	defer streams.Close()

	server := hub.NewServer(hub.ServerConfig{
		ListenAddr:     cfg.Server.ListenAddr,
		Mode:           cfg.Server.Mode,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ConnectRate:    cfg.Server.ConnectRate,
		ConnectBurst:   cfg.Server.ConnectBurst,
	}, h,
		hub.WithStats(service),
		hub.WithTicker(tickers),
		hub.WithStoreStatus(store),
		hub.WithStreamStatus(streams),
		hub.WithLogger(logger.With("component", "http")),
	)

	scheduler := broadcast.New(broadcast.Config{
		Interval:      cfg.Broadcast.Interval,
		RateThreshold: cfg.Broadcast.RateThresholdOrDefault(),
		Timeout:       cfg.Storage.OpTimeout * 2,
	}, service, h, logger.With("component", "broadcast"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return h.Run(gctx)
	})

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		limiter.RunJanitor(gctx, cfg.RateLimit.CleanupInterval, cfg.RateLimit.MaxIdle)
		return nil
	})

	if err := store.Start(gctx); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}
	if err := scheduler.Start(gctx); err != nil {
		return fmt.Errorf("start broadcast scheduler: %w", err)
	}

	warmUpTicker(gctx, cfg.Binance, tickers, logger)

	if err := streams.Connect(streamLiquidation, cfg.Binance.LiquidationURL, liquidations.HandleMessage); err != nil {
		return fmt.Errorf("connect %s stream: %w", streamLiquidation, err)
	}
	if err := streams.Connect(streamTicker, cfg.Binance.TickerURL, tickers.HandleMessage); err != nil {
		return fmt.Errorf("connect %s stream: %w", streamTicker, err)
	}

	logger.Info("prayer server running",
		"listen_addr", cfg.Server.ListenAddr,
		"storage", cfg.Storage.Driver,
	)

	// Shutdown in reverse order once the signal arrives or a task fails.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := streams.Close(); err != nil {
			logger.Warn("failed to close streams", "error", err)
		}
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("failed to stop broadcast scheduler", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down http server", "error", err)
		}
		if err := store.Stop(shutdownCtx); err != nil {
			logger.Warn("failed to stop reconciler", "error", err)
		}

		// Flush counts still held in memory.
		store.Reconcile(shutdownCtx)
		if store.UsingFallback() {
			logger.Warn("counts taken while the primary store was down were not persisted")
		}
		return nil
	})

	return g.Wait()
}

// openStore builds the durable primary counter store for the configured driver.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (counter.Store, func(), error) {
	keys := counter.NewKeyGenerator(counter.WithTTL(cfg.CounterTTL))

	switch cfg.Driver {
	case config.DriverPostgres:
		logger.Info("connecting to database",
			"host", cfg.Postgres.Host,
			"port", cfg.Postgres.Port,
			"database", cfg.Postgres.Name,
		)
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		store := counter.NewPostgresStore(pool, keys)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("database connected")
		return store, pool.Close, nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLite.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		store := counter.NewSQLiteStore(db, keys)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("sqlite store opened", "path", cfg.SQLite.Path)
		return store, func() { db.Close() }, nil

	case config.DriverMemory:
		logger.Warn("using in-memory counter store, counts are lost on restart")
		return counter.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// warmUpTicker seeds the ticker handler from REST so clients see a price
// before the first stream message. Failures are logged and ignored.
func warmUpTicker(ctx context.Context, cfg config.BinanceConfig, tickers *router.TickerHandler, logger *slog.Logger) {
	if cfg.WarmupTimeout <= 0 || cfg.Symbol == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.WarmupTimeout)
	defer cancel()

	client := api.NewClient(cfg.RestURL, "",
		api.WithLogger(logger.With("component", "api")),
		api.WithTimeout(cfg.WarmupTimeout),
		api.WithRetries(1, 500*time.Millisecond),
	)

	resp, err := client.GetTicker24h(ctx, cfg.Symbol)
	if err != nil {
		logger.Warn("ticker warm-up failed", "symbol", cfg.Symbol, "error", err)
		return
	}

	t, err := resp.ToTicker(time.Now())
	if err != nil {
		logger.Warn("ticker warm-up returned invalid data", "symbol", cfg.Symbol, "error", err)
		return
	}

	if tickers.Seed(t) {
		logger.Info("ticker warmed up", "symbol", t.Symbol, "price", t.FormattedPrice())
	}
}
