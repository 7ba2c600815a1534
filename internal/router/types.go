package router

import (
	"errors"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// Errors
var (
	ErrMissingField = errors.New("missing field")
	ErrInvalidValue = errors.New("invalid value")
)

// LiquidationSink consumes normalized liquidation events.
type LiquidationSink interface {
	BroadcastLiquidation(liq model.Liquidation)
}

// TickerSink consumes normalized ticker events.
type TickerSink interface {
	BroadcastTicker(t model.Ticker)
}

// HandlerStats contains runtime statistics for a stream handler.
type HandlerStats struct {
	Received    int64
	Forwarded   int64
	ParseErrors int64
}

// -----------------------------------------------------------------------------
// Binance wire formats
//
// Binance abbreviates fields to single letters and reuses a letter in both
// cases (e.g. "p" price change, "P" percent). encoding/json falls back to
// case-insensitive matching when no exact key exists, so every pair is
// declared explicitly to keep one key from filling the other's field.
// -----------------------------------------------------------------------------

// forceOrderEvent is a !forceOrder@arr message.
type forceOrderEvent struct {
	EventType string     `json:"e"` // "forceOrder"
	EventTime int64      `json:"E"` // ms
	Order     forceOrder `json:"o"`
}

type forceOrder struct {
	Symbol       string `json:"s"`
	Side         string `json:"S"` // "BUY" or "SELL"
	OrderType    string `json:"o"`
	TimeInForce  string `json:"f"`
	OrigQty      string `json:"q"`
	Price        string `json:"p"`
	AvgPrice     string `json:"ap"`
	Status       string `json:"X"`
	LastFilled   string `json:"l"`
	FilledAccQty string `json:"z"`
	TradeTime    int64  `json:"T"`
}

// tickerEvent is a <symbol>@ticker (24hrTicker) message.
type tickerEvent struct {
	EventType     string `json:"e"` // "24hrTicker"
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	PriceChange   string `json:"p"`
	ChangePercent string `json:"P"`
	WeightedAvg   string `json:"w"`
	LastPrice     string `json:"c"`
	LastQty       string `json:"Q"`
	OpenPrice     string `json:"o"`
	HighPrice     string `json:"h"`
	LowPrice      string `json:"l"`
	Volume        string `json:"v"`
	QuoteVolume   string `json:"q"`
	OpenTime      int64  `json:"O"`
	CloseTime     int64  `json:"C"`
	FirstTradeID  int64  `json:"F"`
	LastTradeID   int64  `json:"L"`
	TradeCount    int64  `json:"n"`
}
