// Package counter stores per-day prayer counts in a durable primary store
// with an in-memory fallback that is reconciled back once the primary recovers.
package counter
