package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnknownSide is returned when a string does not name a prayer side.
var ErrUnknownSide = errors.New("unknown side")

// ErrUnknownOrderSide is returned when a liquidation order side is neither BUY nor SELL.
var ErrUnknownOrderSide = errors.New("unknown order side")

// -----------------------------------------------------------------------------
// Prayer Types
// -----------------------------------------------------------------------------

// Side is the direction a prayer votes for.
type Side int

const (
	SideUp Side = iota
	SideDown
)

// Sides lists every Side in display order.
func Sides() []Side {
	return []Side{SideUp, SideDown}
}

// Key returns the lowercase wire/storage key ("up" or "down").
func (s Side) Key() string {
	switch s {
	case SideUp:
		return "up"
	case SideDown:
		return "down"
	default:
		panic(fmt.Sprintf("model: invalid side %d", int(s)))
	}
}

// String returns "UP" or "DOWN".
func (s Side) String() string {
	return strings.ToUpper(s.Key())
}

// ParseSide parses a side key case-insensitively.
func ParseSide(key string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "up":
		return SideUp, nil
	case "down":
		return SideDown, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSide, key)
	}
}

// PrayerCount is a pair of non-negative per-side tallies.
// It is a value type: every method returns a new value or reads the receiver.
type PrayerCount struct {
	Up   int64
	Down int64
}

// ZeroCount returns the identity count {0, 0}.
func ZeroCount() PrayerCount {
	return PrayerCount{}
}

// Total returns Up + Down.
func (c PrayerCount) Total() int64 {
	return c.Up + c.Down
}

// IsZero reports whether both sides are zero.
func (c PrayerCount) IsZero() bool {
	return c.Up == 0 && c.Down == 0
}

// UpRatio returns Up / Total, or 0.5 when there are no prayers.
func (c PrayerCount) UpRatio() float64 {
	total := c.Total()
	if total == 0 {
		return 0.5
	}
	return float64(c.Up) / float64(total)
}

// DownRatio returns 1 - UpRatio.
func (c PrayerCount) DownRatio() float64 {
	return 1 - c.UpRatio()
}

// Merge returns the pointwise sum of c and other.
func (c PrayerCount) Merge(other PrayerCount) PrayerCount {
	return PrayerCount{
		Up:   c.Up + other.Up,
		Down: c.Down + other.Down,
	}
}

// Increment returns c with delta added to the given side.
func (c PrayerCount) Increment(side Side, delta int64) PrayerCount {
	switch side {
	case SideUp:
		c.Up += delta
	case SideDown:
		c.Down += delta
	default:
		panic(fmt.Sprintf("model: invalid side %d", int(side)))
	}
	return c
}

// Get returns the tally for one side.
func (c PrayerCount) Get(side Side) int64 {
	switch side {
	case SideUp:
		return c.Up
	case SideDown:
		return c.Down
	default:
		panic(fmt.Sprintf("model: invalid side %d", int(side)))
	}
}

// PrayerStats is a point-in-time snapshot of today's counts and recent rates.
type PrayerStats struct {
	Count      PrayerCount
	UpRPM      float64 // Prayers per minute, UP side, over the sliding window
	DownRPM    float64 // Prayers per minute, DOWN side
	ObservedAt time.Time
}

// TotalRPM returns the combined rate of both sides.
func (s PrayerStats) TotalRPM() float64 {
	return s.UpRPM + s.DownRPM
}

// Prayer is one accepted vote.
type Prayer struct {
	ID       uuid.UUID
	Side     Side
	ClientID string
	At       time.Time
}

// NewPrayer creates a prayer with a fresh ID.
func NewPrayer(side Side, clientID string, at time.Time) Prayer {
	return Prayer{
		ID:       uuid.New(),
		Side:     side,
		ClientID: clientID,
		At:       at,
	}
}

// -----------------------------------------------------------------------------
// Market Types
// -----------------------------------------------------------------------------

// Ticker is a 24h price snapshot for one symbol.
type Ticker struct {
	Symbol         string  // e.g. "BTCUSDT"
	Price          float64 // Last price
	PriceChange24h float64 // Percent change over 24h
	High24h        float64 // Zero when the feed omits it
	Low24h         float64
	Volume24h      float64
	ObservedAt     time.Time
}

// IsPositive reports whether the 24h change is non-negative.
func (t Ticker) IsPositive() bool {
	return t.PriceChange24h >= 0
}

// FormattedPrice renders the price with 2 decimals at or above 1000, else 4.
func (t Ticker) FormattedPrice() string {
	if t.Price >= 1000 {
		return fmt.Sprintf("$%.2f", t.Price)
	}
	return fmt.Sprintf("$%.4f", t.Price)
}

// FormattedChange renders the 24h change as a signed percentage.
func (t Ticker) FormattedChange() string {
	sign := ""
	if t.IsPositive() {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, t.PriceChange24h)
}

// LiquidationSide is the side of the position that was force-closed.
type LiquidationSide string

const (
	LiquidationLong  LiquidationSide = "LONG"
	LiquidationShort LiquidationSide = "SHORT"
)

// LargeLiquidationUSD is the notional at or above which a liquidation is "large".
const LargeLiquidationUSD = 100_000

var largeThreshold = decimal.NewFromInt(LargeLiquidationUSD)

// Liquidation is a normalized forced-liquidation event.
type Liquidation struct {
	Symbol     string
	Side       LiquidationSide
	Quantity   float64
	Price      float64
	USDValue   float64 // Quantity * Price
	ObservedAt time.Time

	large bool
}

// NewLiquidation builds a Liquidation from an exchange order side.
// A SELL order closes a long position; a BUY order closes a short.
// The notional is computed exactly before conversion to float64.
func NewLiquidation(symbol, orderSide string, qty, price decimal.Decimal, at time.Time) (Liquidation, error) {
	var side LiquidationSide
	switch strings.ToUpper(orderSide) {
	case "SELL":
		side = LiquidationLong
	case "BUY":
		side = LiquidationShort
	default:
		return Liquidation{}, fmt.Errorf("%w: %q", ErrUnknownOrderSide, orderSide)
	}

	usd := qty.Mul(price)
	return Liquidation{
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty.InexactFloat64(),
		Price:      price.InexactFloat64(),
		USDValue:   usd.InexactFloat64(),
		ObservedAt: at,
		large:      usd.GreaterThanOrEqual(largeThreshold),
	}, nil
}

// IsLarge reports whether the notional is at least LargeLiquidationUSD.
func (l Liquidation) IsLarge() bool {
	if l.large {
		return true
	}
	return l.USDValue >= LargeLiquidationUSD
}

// FormattedValue renders the notional as $x.xxM, $x.xK or $x.
func (l Liquidation) FormattedValue() string {
	switch {
	case l.USDValue >= 1_000_000:
		return fmt.Sprintf("$%.2fM", l.USDValue/1_000_000)
	case l.USDValue >= 1_000:
		return fmt.Sprintf("$%.1fK", l.USDValue/1_000)
	default:
		return fmt.Sprintf("$%.0f", l.USDValue)
	}
}
