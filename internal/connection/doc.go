// Package connection implements the upstream stream client.
//
// The Manager:
//   - Keeps any number of named Binance streams open, one goroutine each
//   - Reconnects forever with exponential backoff and jitter
//   - Assembles fragmented frames into whole messages before dispatch
//   - Contains handler panics so one bad message cannot stop a stream
package connection
