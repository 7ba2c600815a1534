// streamtest connects to the Binance futures liquidation and ticker streams
// and prints normalized events to the console.
// Usage: go run ./cmd/streamtest --config configs/server.example.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rickgao/crypto-prayer/internal/api"
	"github.com/rickgao/crypto-prayer/internal/config"
	"github.com/rickgao/crypto-prayer/internal/connection"
	"github.com/rickgao/crypto-prayer/internal/hub"
	"github.com/rickgao/crypto-prayer/internal/model"
	"github.com/rickgao/crypto-prayer/internal/router"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults are used when empty)")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	largeOnly := flag.Bool("large", false, "only print large liquidations")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := &printer{verbose: *verbose, largeOnly: *largeOnly}

	liquidations := router.NewLiquidationHandler(out, router.WithLogger(logger))
	tickers := router.NewTickerHandler(out, router.WithLogger(logger))

	// REST snapshot first so there is something to look at immediately.
	client := api.NewClient(cfg.Binance.RestURL, "", api.WithLogger(logger))
	pingStart := time.Now()
	if err := client.Ping(ctx); err != nil {
		logger.Warn("REST ping failed", "url", cfg.Binance.RestURL, "error", err)
	} else {
		logger.Info("REST reachable", "url", cfg.Binance.RestURL, "latency", time.Since(pingStart))
	}
	if resp, err := client.GetTicker24h(ctx, cfg.Binance.Symbol); err != nil {
		logger.Warn("REST ticker failed", "symbol", cfg.Binance.Symbol, "error", err)
	} else if t, err := resp.ToTicker(time.Now()); err == nil {
		fmt.Printf("[REST TICKER] %s %s (%s)\n", t.Symbol, t.FormattedPrice(), t.FormattedChange())
		tickers.Seed(t)
	}

	connCfg := connection.DefaultManagerConfig()
	connCfg.Backoff.Initial = cfg.Binance.Reconnect.BaseDelay
	connCfg.Backoff.Max = cfg.Binance.Reconnect.MaxDelay
	connCfg.ReadTimeout = cfg.Binance.ReadTimeout

	connMgr := connection.NewManager(connCfg, logger)

	if err := connMgr.Connect("liquidation", cfg.Binance.LiquidationURL, liquidations.HandleMessage); err != nil {
		logger.Error("failed to connect liquidation stream", "error", err)
		os.Exit(1)
	}
	if err := connMgr.Connect("ticker", cfg.Binance.TickerURL, tickers.HandleMessage); err != nil {
		logger.Error("failed to connect ticker stream", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				connStats := connMgr.Stats()
				liqStats := liquidations.Stats()
				tickStats := tickers.Stats()
				logger.Info("stats",
					"conn_connected", connStats.ConnectedCount,
					"liq_received", liqStats.Received,
					"liq_forwarded", liqStats.Forwarded,
					"liq_parse_errors", liqStats.ParseErrors,
					"ticker_received", tickStats.Received,
					"ticker_parse_errors", tickStats.ParseErrors,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	logger.Info("shutting down...")
	connMgr.Close()
	logger.Info("shutdown complete")
}

// printer writes normalized events to stdout.
type printer struct {
	verbose   bool
	largeOnly bool
	mu        sync.Mutex
}

func (p *printer) BroadcastLiquidation(l model.Liquidation) {
	if p.largeOnly && !l.IsLarge() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.verbose {
		data, _ := json.MarshalIndent(hub.NewLiquidationMessage(l), "", "  ")
		fmt.Printf("[LIQUIDATION] %s\n", data)
		return
	}

	marker := ""
	if l.IsLarge() {
		marker = " !!"
	}
	fmt.Printf("[LIQUIDATION]%s symbol=%s side=%s qty=%g price=%g value=%s\n",
		marker, l.Symbol, l.Side, l.Quantity, l.Price, l.FormattedValue())
}

func (p *printer) BroadcastTicker(t model.Ticker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.verbose {
		data, _ := json.MarshalIndent(hub.NewTickerMessage(t), "", "  ")
		fmt.Printf("[TICKER] %s\n", data)
		return
	}

	arrow := "v"
	if t.IsPositive() {
		arrow = "^"
	}
	fmt.Printf("[TICKER] %s symbol=%s price=%s change=%s high=%g low=%g\n",
		arrow, t.Symbol, t.FormattedPrice(), t.FormattedChange(), t.High24h, t.Low24h)
}
