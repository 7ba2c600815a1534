package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrUnknownStream = errors.New("unknown stream")
)

// MessageHandler receives one complete message payload.
// The slice is only valid for the duration of the call.
type MessageHandler func(data []byte)

// State is the lifecycle state of a named stream.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// BackoffConfig configures reconnect delays.
type BackoffConfig struct {
	Initial    time.Duration // First delay
	Max        time.Duration // Upper bound before jitter
	Multiplier float64       // Growth factor per attempt
	Jitter     float64       // Symmetric jitter fraction (0.1 = ±10%)
}

// DefaultBackoffConfig returns 1s doubling up to 30s with ±10% jitter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    1 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://fstream.binance.com/ws/btcusdt@ticker)
	HandshakeTimeout time.Duration // Dial handshake timeout
	ReadTimeout      time.Duration // Max silence (no message, no ping) before the connection is considered dead; 0 disables
	WriteTimeout     time.Duration // Deadline for control frames
	MaxMessageSize   int64         // Read limit per message; 0 = unlimited
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      5 * time.Minute, // Binance pings every 3 minutes
		WriteTimeout:     5 * time.Second,
		MaxMessageSize:   1 << 20,
	}
}

// ManagerConfig configures the stream Manager.
type ManagerConfig struct {
	Backoff          BackoffConfig
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	client := DefaultClientConfig()
	return ManagerConfig{
		Backoff:          DefaultBackoffConfig(),
		HandshakeTimeout: client.HandshakeTimeout,
		ReadTimeout:      client.ReadTimeout,
		WriteTimeout:     client.WriteTimeout,
		MaxMessageSize:   client.MaxMessageSize,
	}
}

func (c ManagerConfig) clientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:              url,
		HandshakeTimeout: c.HandshakeTimeout,
		ReadTimeout:      c.ReadTimeout,
		WriteTimeout:     c.WriteTimeout,
		MaxMessageSize:   c.MaxMessageSize,
	}
}

// StreamStats describes one named stream.
type StreamStats struct {
	Name       string
	URL        string
	State      State
	Messages   int64
	Reconnects int64
	Panics     int64
}

// ManagerStats provides statistics about the stream manager.
type ManagerStats struct {
	ConnectedCount int
	Streams        []StreamStats
}
