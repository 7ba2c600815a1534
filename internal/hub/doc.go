// Package hub is the client-facing transport: a gin HTTP server with a
// WebSocket endpoint and a hub that fans out PRAYER, TICKER and
// LIQUIDATION messages to every connected client.
//
// Inbound prayer requests are rate limited per connection before they are
// decoded. Rejections are sent only to the offending client.
package hub
