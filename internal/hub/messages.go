package hub

import (
	"time"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// Outbound message types.
const (
	TypePrayer      = "PRAYER"
	TypeTicker      = "TICKER"
	TypeLiquidation = "LIQUIDATION"
)

// Error codes sent to a single client.
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInvalidRequest    = "INVALID_REQUEST"
)

// Inbound prayer count bounds.
const (
	MinPrayerCount = 1
	MaxPrayerCount = 20
)

// PrayerMessage carries today's counts and rates.
type PrayerMessage struct {
	Type      string  `json:"type"`
	UpCount   int64   `json:"upCount"`
	DownCount int64   `json:"downCount"`
	UpRPM     float64 `json:"upRpm"`
	DownRPM   float64 `json:"downRpm"`
	UpRatio   float64 `json:"upRatio"`
	DownRatio float64 `json:"downRatio"`
	Timestamp int64   `json:"timestamp"` // unix ms
}

// TickerMessage carries the latest 24h ticker.
type TickerMessage struct {
	Type           string  `json:"type"`
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	PriceChange24h float64 `json:"priceChange24h"`
	Timestamp      int64   `json:"timestamp"`
}

// LiquidationMessage carries one forced liquidation.
type LiquidationMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	USDValue  float64 `json:"usdValue"`
	IsLarge   bool    `json:"isLarge"`
	Timestamp int64   `json:"timestamp"`
}

// ErrorMessage is sent to the client whose request was rejected.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PrayerRequest is the only inbound message.
type PrayerRequest struct {
	Side  string `json:"side"`
	Count int    `json:"count"`
}

// ClampedCount returns Count limited to [MinPrayerCount, MaxPrayerCount].
func (r PrayerRequest) ClampedCount() int {
	switch {
	case r.Count < MinPrayerCount:
		return MinPrayerCount
	case r.Count > MaxPrayerCount:
		return MaxPrayerCount
	default:
		return r.Count
	}
}

// NewPrayerMessage builds the PRAYER message for a stats snapshot.
func NewPrayerMessage(s model.PrayerStats) PrayerMessage {
	return PrayerMessage{
		Type:      TypePrayer,
		UpCount:   s.Count.Up,
		DownCount: s.Count.Down,
		UpRPM:     s.UpRPM,
		DownRPM:   s.DownRPM,
		UpRatio:   s.Count.UpRatio(),
		DownRatio: s.Count.DownRatio(),
		Timestamp: unixMilli(s.ObservedAt),
	}
}

// NewTickerMessage builds the TICKER message. High, low and volume are not sent.
func NewTickerMessage(t model.Ticker) TickerMessage {
	return TickerMessage{
		Type:           TypeTicker,
		Symbol:         t.Symbol,
		Price:          t.Price,
		PriceChange24h: t.PriceChange24h,
		Timestamp:      unixMilli(t.ObservedAt),
	}
}

// NewLiquidationMessage builds the LIQUIDATION message.
func NewLiquidationMessage(l model.Liquidation) LiquidationMessage {
	return LiquidationMessage{
		Type:      TypeLiquidation,
		Symbol:    l.Symbol,
		Side:      string(l.Side),
		Quantity:  l.Quantity,
		Price:     l.Price,
		USDValue:  l.USDValue,
		IsLarge:   l.IsLarge(),
		Timestamp: unixMilli(l.ObservedAt),
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}
