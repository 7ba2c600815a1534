// Package broadcast implements the change-gated prayer stats broadcaster.
//
// Every tick the Scheduler reads the current counts and rates and emits
// them only when a count changed or a rate moved by more than the
// configured threshold. The first tick always emits.
package broadcast
