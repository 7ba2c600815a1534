package router

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// ParseLiquidation decodes a Binance forceOrder message.
// Quantity is the accumulated filled quantity and price the average fill price.
func ParseLiquidation(data []byte, at time.Time) (model.Liquidation, error) {
	var ev forceOrderEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.Liquidation{}, fmt.Errorf("decode forceOrder: %w", err)
	}

	o := ev.Order
	if o.Symbol == "" {
		return model.Liquidation{}, fmt.Errorf("%w: o.s", ErrMissingField)
	}
	if o.Side == "" {
		return model.Liquidation{}, fmt.Errorf("%w: o.S", ErrMissingField)
	}

	qty, err := parsePositive("o.z", o.FilledAccQty)
	if err != nil {
		return model.Liquidation{}, err
	}
	price, err := parsePositive("o.ap", o.AvgPrice)
	if err != nil {
		return model.Liquidation{}, err
	}

	return model.NewLiquidation(o.Symbol, o.Side, qty, price, at)
}

// ParseTicker decodes a Binance 24hrTicker message.
// High, low and volume are optional and default to zero.
func ParseTicker(data []byte, at time.Time) (model.Ticker, error) {
	var ev tickerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.Ticker{}, fmt.Errorf("decode 24hrTicker: %w", err)
	}

	if ev.Symbol == "" {
		return model.Ticker{}, fmt.Errorf("%w: s", ErrMissingField)
	}

	price, err := parsePositive("c", ev.LastPrice)
	if err != nil {
		return model.Ticker{}, err
	}
	change, err := parseRequired("P", ev.ChangePercent)
	if err != nil {
		return model.Ticker{}, err
	}

	return model.Ticker{
		Symbol:         ev.Symbol,
		Price:          price.InexactFloat64(),
		PriceChange24h: change.InexactFloat64(),
		High24h:        parseOptional(ev.HighPrice),
		Low24h:         parseOptional(ev.LowPrice),
		Volume24h:      parseOptional(ev.Volume),
		ObservedAt:     at,
	}, nil
}

func parseRequired(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrInvalidValue, field, s)
	}
	return d, nil
}

func parsePositive(field, s string) (decimal.Decimal, error) {
	d, err := parseRequired(field, s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s=%q must be positive", ErrInvalidValue, field, s)
	}
	return d, nil
}

func parseOptional(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
