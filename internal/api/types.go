package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// Ticker24h from GET /fapi/v1/ticker/24hr?symbol=X
type Ticker24h struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	WeightedAvgPrice   string `json:"weightedAvgPrice"`
	LastPrice          string `json:"lastPrice"`
	LastQty            string `json:"lastQty"`
	OpenPrice          string `json:"openPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	OpenTime           int64  `json:"openTime"`
	CloseTime          int64  `json:"closeTime"`
	Count              int64  `json:"count"`
}

// ToTicker converts the REST snapshot into the shared Ticker type.
func (t Ticker24h) ToTicker(at time.Time) (model.Ticker, error) {
	price, err := decimal.NewFromString(t.LastPrice)
	if err != nil {
		return model.Ticker{}, fmt.Errorf("lastPrice %q: %w", t.LastPrice, err)
	}
	if !price.IsPositive() {
		return model.Ticker{}, fmt.Errorf("lastPrice %q must be positive", t.LastPrice)
	}
	change, err := decimal.NewFromString(t.PriceChangePercent)
	if err != nil {
		return model.Ticker{}, fmt.Errorf("priceChangePercent %q: %w", t.PriceChangePercent, err)
	}

	return model.Ticker{
		Symbol:         t.Symbol,
		Price:          price.InexactFloat64(),
		PriceChange24h: change.InexactFloat64(),
		High24h:        optionalFloat(t.HighPrice),
		Low24h:         optionalFloat(t.LowPrice),
		Volume24h:      optionalFloat(t.Volume),
		ObservedAt:     at,
	}, nil
}

func optionalFloat(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// GetTicker24h fetches the 24h rolling ticker for one symbol.
func (c *Client) GetTicker24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	query := url.Values{}
	query.Set("symbol", strings.ToUpper(symbol))

	var resp Ticker24h
	if err := c.get(ctx, "/fapi/v1/ticker/24hr", query, &resp); err != nil {
		return nil, fmt.Errorf("get ticker %s: %w", symbol, err)
	}
	return &resp, nil
}

// Ping checks REST connectivity.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct{}
	if err := c.get(ctx, "/fapi/v1/ping", nil, &resp); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
