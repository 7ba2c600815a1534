package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServerConfig) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	switch c.Server.Mode {
	case "release", "debug", "test":
	default:
		return fmt.Errorf("server.mode must be release, debug or test, got %q", c.Server.Mode)
	}
	if c.Server.ConnectRate <= 0 {
		return errors.New("server.connect_rate must be > 0")
	}
	if c.Server.ConnectBurst < 1 {
		return errors.New("server.connect_burst must be >= 1")
	}
	if c.Server.SendBufferSize < 1 {
		return errors.New("server.send_buffer_size must be >= 1")
	}
	if c.Server.BroadcastBufferSize < 1 {
		return errors.New("server.broadcast_buffer_size must be >= 1")
	}

	if c.Binance.LiquidationURL == "" {
		return errors.New("binance.liquidation_url is required")
	}
	if c.Binance.TickerURL == "" {
		return errors.New("binance.ticker_url is required")
	}
	if c.Binance.Reconnect.BaseDelay > c.Binance.Reconnect.MaxDelay {
		return fmt.Errorf("binance.reconnect.base_delay (%v) cannot exceed max_delay (%v)",
			c.Binance.Reconnect.BaseDelay, c.Binance.Reconnect.MaxDelay)
	}
	if c.Binance.Reconnect.Multiplier < 1 {
		return errors.New("binance.reconnect.multiplier must be >= 1")
	}
	if j := c.Binance.Reconnect.JitterOrDefault(); j < 0 || j >= 1 {
		return fmt.Errorf("binance.reconnect.jitter must be in [0, 1), got %v", j)
	}

	if c.RateLimit.Capacity < 1 {
		return errors.New("rate_limit.capacity must be >= 1")
	}
	if c.RateLimit.RefillPerSecond < 1 {
		return errors.New("rate_limit.refill_per_second must be >= 1")
	}
	if c.RateLimit.RefillInterval <= 0 {
		return errors.New("rate_limit.refill_interval must be > 0")
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if err := c.Storage.Postgres.validate("storage.postgres"); err != nil {
			return err
		}
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be postgres, sqlite or memory, got %q", c.Storage.Driver)
	}
	if c.Storage.CounterTTL < 0 {
		return errors.New("storage.counter_ttl must be >= 0")
	}
	if c.Storage.ReconcileInterval <= 0 {
		return errors.New("storage.reconcile_interval must be > 0")
	}

	if c.Broadcast.Interval <= 0 {
		return errors.New("broadcast.interval must be > 0")
	}
	if c.Broadcast.RateThresholdOrDefault() < 0 {
		return errors.New("broadcast.rate_threshold must be >= 0")
	}
	if c.Broadcast.RateWindow <= 0 {
		return errors.New("broadcast.rate_window must be > 0")
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// ParseLevel maps a logging.level string to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", s)
	}
}
