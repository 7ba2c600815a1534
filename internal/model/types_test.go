package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"up", SideUp, false},
		{"UP", SideUp, false},
		{"Down", SideDown, false},
		{" down ", SideDown, false},
		{"sideways", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSide(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownSide) {
					t.Errorf("ParseSide(%q) error = %v, want ErrUnknownSide", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSide(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseSide(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSide_Names(t *testing.T) {
	if SideUp.Key() != "up" || SideDown.Key() != "down" {
		t.Errorf("Key() = %q/%q, want up/down", SideUp.Key(), SideDown.Key())
	}
	if SideUp.String() != "UP" || SideDown.String() != "DOWN" {
		t.Errorf("String() = %q/%q, want UP/DOWN", SideUp.String(), SideDown.String())
	}
	if len(Sides()) != 2 {
		t.Errorf("len(Sides()) = %d, want 2", len(Sides()))
	}
}

func TestSide_InvalidPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid side")
		}
	}()
	_ = Side(7).Key()
}

func TestPrayerCount_Ratios(t *testing.T) {
	tests := []struct {
		name     string
		count    PrayerCount
		wantUp   float64
		wantDown float64
	}{
		{"zero", ZeroCount(), 0.5, 0.5},
		{"all up", PrayerCount{Up: 4}, 1, 0},
		{"three to one", PrayerCount{Up: 3, Down: 1}, 0.75, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.count.UpRatio(); got != tt.wantUp {
				t.Errorf("UpRatio() = %v, want %v", got, tt.wantUp)
			}
			if got := tt.count.DownRatio(); got != tt.wantDown {
				t.Errorf("DownRatio() = %v, want %v", got, tt.wantDown)
			}
			if sum := tt.count.UpRatio() + tt.count.DownRatio(); sum != 1 {
				t.Errorf("UpRatio + DownRatio = %v, want 1", sum)
			}
		})
	}
}

func TestPrayerCount_Merge(t *testing.T) {
	a := PrayerCount{Up: 2, Down: 5}
	b := PrayerCount{Up: 7, Down: 1}

	got := a.Merge(b)
	if got != (PrayerCount{Up: 9, Down: 6}) {
		t.Errorf("Merge = %+v, want {9 6}", got)
	}
	if a.Merge(b) != b.Merge(a) {
		t.Error("Merge is not commutative")
	}
	if a.Merge(ZeroCount()) != a {
		t.Error("ZeroCount is not the identity")
	}
	if a != (PrayerCount{Up: 2, Down: 5}) {
		t.Errorf("operand mutated: %+v", a)
	}
}

func TestPrayerCount_IncrementGet(t *testing.T) {
	c := ZeroCount().Increment(SideUp, 3).Increment(SideDown, 2)
	if c.Get(SideUp) != 3 || c.Get(SideDown) != 2 {
		t.Errorf("got %+v, want {3 2}", c)
	}
	if c.Total() != 5 {
		t.Errorf("Total() = %d, want 5", c.Total())
	}
	if c.IsZero() {
		t.Error("IsZero() = true, want false")
	}
}

func TestNewLiquidation(t *testing.T) {
	at := time.Unix(1700000000, 0)

	tests := []struct {
		name      string
		orderSide string
		qty       string
		price     string
		wantSide  LiquidationSide
		wantUSD   float64
		wantLarge bool
		wantText  string
	}{
		{"sell closes long", "SELL", "2", "50000", LiquidationLong, 100000, true, "$100.0K"},
		{"buy closes short", "buy", "0.01", "50000", LiquidationShort, 500, false, "$500"},
		{"millions", "SELL", "100", "50000", LiquidationLong, 5_000_000, true, "$5.00M"},
		{"boundary inclusive", "SELL", "2.5", "40000", LiquidationLong, 100000, true, "$100.0K"},
		{"just below large", "BUY", "1.99998", "50000", LiquidationShort, 99999, false, "$100.0K"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			liq, err := NewLiquidation("BTCUSDT", tt.orderSide,
				decimal.RequireFromString(tt.qty), decimal.RequireFromString(tt.price), at)
			if err != nil {
				t.Fatalf("NewLiquidation failed: %v", err)
			}
			if liq.Side != tt.wantSide {
				t.Errorf("Side = %s, want %s", liq.Side, tt.wantSide)
			}
			if liq.USDValue != tt.wantUSD {
				t.Errorf("USDValue = %v, want %v", liq.USDValue, tt.wantUSD)
			}
			if liq.IsLarge() != tt.wantLarge {
				t.Errorf("IsLarge() = %v, want %v", liq.IsLarge(), tt.wantLarge)
			}
			if liq.FormattedValue() != tt.wantText {
				t.Errorf("FormattedValue() = %q, want %q", liq.FormattedValue(), tt.wantText)
			}
		})
	}
}

func TestNewLiquidation_UnknownSide(t *testing.T) {
	_, err := NewLiquidation("BTCUSDT", "HOLD", decimal.NewFromInt(1), decimal.NewFromInt(1), time.Now())
	if !errors.Is(err, ErrUnknownOrderSide) {
		t.Errorf("error = %v, want ErrUnknownOrderSide", err)
	}
}

func TestTicker_Formatting(t *testing.T) {
	tests := []struct {
		ticker     Ticker
		wantPrice  string
		wantChange string
	}{
		{Ticker{Price: 42150.5, PriceChange24h: 2.5}, "$42150.50", "+2.50%"},
		{Ticker{Price: 0.5, PriceChange24h: -3.25}, "$0.5000", "-3.25%"},
		{Ticker{Price: 1000, PriceChange24h: 0}, "$1000.00", "+0.00%"},
	}

	for _, tt := range tests {
		if got := tt.ticker.FormattedPrice(); got != tt.wantPrice {
			t.Errorf("FormattedPrice() = %q, want %q", got, tt.wantPrice)
		}
		if got := tt.ticker.FormattedChange(); got != tt.wantChange {
			t.Errorf("FormattedChange() = %q, want %q", got, tt.wantChange)
		}
	}
}

func TestTicker_IsPositive(t *testing.T) {
	if !(Ticker{PriceChange24h: 0}).IsPositive() {
		t.Error("zero change should count as positive")
	}
	if (Ticker{PriceChange24h: -0.01}).IsPositive() {
		t.Error("negative change should not be positive")
	}
}

func TestPrayerStats_TotalRPM(t *testing.T) {
	s := PrayerStats{UpRPM: 12.5, DownRPM: 3}
	if got := s.TotalRPM(); got != 15.5 {
		t.Errorf("TotalRPM() = %v, want 15.5", got)
	}
}

func TestNewPrayer(t *testing.T) {
	at := time.Now()
	a := NewPrayer(SideUp, "client-1", at)
	b := NewPrayer(SideUp, "client-1", at)
	if a.ID == b.ID {
		t.Error("expected distinct prayer IDs")
	}
	if a.Side != SideUp || a.ClientID != "client-1" || !a.At.Equal(at) {
		t.Errorf("unexpected prayer %+v", a)
	}
}
