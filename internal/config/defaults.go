package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListenAddr          = ":8080"
	DefaultMode                = "release"
	DefaultConnectRate         = 50.0
	DefaultConnectBurst        = 100
	DefaultSendBufferSize      = 256
	DefaultBroadcastBufferSize = 1024
	DefaultWriteTimeout        = 10 * time.Second
	DefaultPongWait            = 60 * time.Second
	DefaultMaxMessageSize      = 4096
	DefaultShutdownTimeout     = 10 * time.Second

	DefaultLiquidationURL   = "wss://fstream.binance.com/ws/!forceOrder@arr"
	DefaultTickerURL        = "wss://fstream.binance.com/ws/btcusdt@ticker"
	DefaultRestURL          = "https://fapi.binance.com"
	DefaultSymbol           = "BTCUSDT"
	DefaultWarmupTimeout    = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadTimeout      = 5 * time.Minute
	DefaultReconnectBase    = 1 * time.Second
	DefaultReconnectMax     = 30 * time.Second
	DefaultReconnectFactor  = 2.0
	DefaultReconnectJitter  = 0.1

	DefaultBucketCapacity  = 20
	DefaultRefillPerSecond = 5
	DefaultRefillInterval  = 200 * time.Millisecond
	DefaultCleanupInterval = 1 * time.Minute
	DefaultBucketMaxIdle   = 10 * time.Minute

	DefaultDriver            = DriverSQLite
	DefaultSQLitePath        = "data/prayer.db"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultCounterTTL        = 48 * time.Hour
	DefaultReconcileInterval = 30 * time.Second
	DefaultOpTimeout         = 2 * time.Second

	DefaultBroadcastInterval = 200 * time.Millisecond
	DefaultRateThreshold     = 0.1
	DefaultRateWindow        = 60 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

func (c *ServerConfig) applyDefaults() {
	// Server defaults
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.Mode == "" {
		c.Server.Mode = DefaultMode
	}
	if c.Server.ConnectRate == 0 {
		c.Server.ConnectRate = DefaultConnectRate
	}
	if c.Server.ConnectBurst == 0 {
		c.Server.ConnectBurst = DefaultConnectBurst
	}
	if c.Server.SendBufferSize == 0 {
		c.Server.SendBufferSize = DefaultSendBufferSize
	}
	if c.Server.BroadcastBufferSize == 0 {
		c.Server.BroadcastBufferSize = DefaultBroadcastBufferSize
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.PongWait == 0 {
		c.Server.PongWait = DefaultPongWait
	}
	if c.Server.MaxMessageSize == 0 {
		c.Server.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Binance defaults
	if c.Binance.LiquidationURL == "" {
		c.Binance.LiquidationURL = DefaultLiquidationURL
	}
	if c.Binance.TickerURL == "" {
		c.Binance.TickerURL = DefaultTickerURL
	}
	if c.Binance.RestURL == "" {
		c.Binance.RestURL = DefaultRestURL
	}
	if c.Binance.Symbol == "" {
		c.Binance.Symbol = DefaultSymbol
	}
	if c.Binance.WarmupTimeout == 0 {
		c.Binance.WarmupTimeout = DefaultWarmupTimeout
	}
	if c.Binance.HandshakeTimeout == 0 {
		c.Binance.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Binance.ReadTimeout == 0 {
		c.Binance.ReadTimeout = DefaultReadTimeout
	}
	if c.Binance.Reconnect.BaseDelay == 0 {
		c.Binance.Reconnect.BaseDelay = DefaultReconnectBase
	}
	if c.Binance.Reconnect.MaxDelay == 0 {
		c.Binance.Reconnect.MaxDelay = DefaultReconnectMax
	}
	if c.Binance.Reconnect.Multiplier == 0 {
		c.Binance.Reconnect.Multiplier = DefaultReconnectFactor
	}
	if c.Binance.Reconnect.Jitter == nil {
		c.Binance.Reconnect.Jitter = ptr(DefaultReconnectJitter)
	}

	// Rate limit defaults
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = DefaultBucketCapacity
	}
	if c.RateLimit.RefillPerSecond == 0 {
		c.RateLimit.RefillPerSecond = DefaultRefillPerSecond
	}
	if c.RateLimit.RefillInterval == 0 {
		c.RateLimit.RefillInterval = DefaultRefillInterval
	}
	if c.RateLimit.CleanupInterval == 0 {
		c.RateLimit.CleanupInterval = DefaultCleanupInterval
	}
	if c.RateLimit.MaxIdle == 0 {
		c.RateLimit.MaxIdle = DefaultBucketMaxIdle
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = DefaultSQLitePath
	}
	applyDBDefaults(&c.Storage.Postgres)
	if c.Storage.CounterTTL == 0 {
		c.Storage.CounterTTL = DefaultCounterTTL
	}
	if c.Storage.ReconcileInterval == 0 {
		c.Storage.ReconcileInterval = DefaultReconcileInterval
	}
	if c.Storage.OpTimeout == 0 {
		c.Storage.OpTimeout = DefaultOpTimeout
	}

	// Broadcast defaults
	if c.Broadcast.Interval == 0 {
		c.Broadcast.Interval = DefaultBroadcastInterval
	}
	if c.Broadcast.RateThreshold == nil {
		c.Broadcast.RateThreshold = ptr(DefaultRateThreshold)
	}
	if c.Broadcast.RateWindow == 0 {
		c.Broadcast.RateWindow = DefaultRateWindow
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

func ptr[T any](v T) *T {
	return &v
}
