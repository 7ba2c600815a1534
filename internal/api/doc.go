// Package api provides a small Binance futures REST client.
//
// REST endpoint:
//   - Production: https://fapi.binance.com
//
// Used endpoints: /fapi/v1/ticker/24hr (start-up price snapshot), /fapi/v1/ping.
package api
