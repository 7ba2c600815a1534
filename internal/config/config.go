package config

import "time"

// ServerConfig is the root configuration for a prayer server instance.
type ServerConfig struct {
	Server    HTTPConfig      `yaml:"server"`
	Binance   BinanceConfig   `yaml:"binance"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HTTPConfig holds the client-facing HTTP/WebSocket settings.
type HTTPConfig struct {
	ListenAddr          string        `yaml:"listen_addr"`
	Mode                string        `yaml:"mode"`            // gin mode: "release", "debug" or "test"
	AllowedOrigins      []string      `yaml:"allowed_origins"` // empty = allow all
	ConnectRate         float64       `yaml:"connect_rate"`    // new WebSocket connections per second, all clients combined
	ConnectBurst        int           `yaml:"connect_burst"`
	SendBufferSize      int           `yaml:"send_buffer_size"`      // per-client outbound queue
	BroadcastBufferSize int           `yaml:"broadcast_buffer_size"` // hub fan-out queue
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	PongWait            time.Duration `yaml:"pong_wait"`
	MaxMessageSize      int64         `yaml:"max_message_size"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
}

// BinanceConfig holds upstream stream and REST settings.
type BinanceConfig struct {
	LiquidationURL   string          `yaml:"liquidation_url"`
	TickerURL        string          `yaml:"ticker_url"`
	RestURL          string          `yaml:"rest_url"`
	Symbol           string          `yaml:"symbol"`         // REST warm-up symbol
	WarmupTimeout    time.Duration   `yaml:"warmup_timeout"` // 0 disables warm-up
	HandshakeTimeout time.Duration   `yaml:"handshake_timeout"`
	ReadTimeout      time.Duration   `yaml:"read_timeout"`
	Reconnect        ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig holds stream reconnect backoff settings.
type ReconnectConfig struct {
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     *float64      `yaml:"jitter"` // unset = default; 0 disables jitter
}

// RateLimitConfig holds per-client token bucket settings.
type RateLimitConfig struct {
	Capacity        int           `yaml:"capacity"`
	RefillPerSecond int           `yaml:"refill_per_second"`
	RefillInterval  time.Duration `yaml:"refill_interval"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MaxIdle         time.Duration `yaml:"max_idle"`
}

// StorageConfig selects and configures the durable counter store.
type StorageConfig struct {
	Driver            string        `yaml:"driver"` // "postgres", "sqlite" or "memory"
	Postgres          DBConfig      `yaml:"postgres"`
	SQLite            SQLiteConfig  `yaml:"sqlite"`
	CounterTTL        time.Duration `yaml:"counter_ttl"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	OpTimeout         time.Duration `yaml:"op_timeout"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SQLiteConfig holds the embedded database file location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// BroadcastConfig holds prayer stats emission settings.
type BroadcastConfig struct {
	Interval      time.Duration `yaml:"interval"`
	RateThreshold *float64      `yaml:"rate_threshold"` // unset = default; 0 broadcasts on any rate change
	RateWindow    time.Duration `yaml:"rate_window"`
}

// LoggingConfig holds slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// JitterOrDefault returns the configured jitter, or the default when unset.
func (r ReconnectConfig) JitterOrDefault() float64 {
	if r.Jitter == nil {
		return DefaultReconnectJitter
	}
	return *r.Jitter
}

// RateThresholdOrDefault returns the configured threshold, or the default when unset.
func (b BroadcastConfig) RateThresholdOrDefault() float64 {
	if b.RateThreshold == nil {
		return DefaultRateThreshold
	}
	return *b.RateThreshold
}
