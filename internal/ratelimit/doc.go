// Package ratelimit implements per-client token-bucket admission control
// for inbound prayer messages.
package ratelimit
