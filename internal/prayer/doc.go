// Package prayer implements the prayer use case: recording votes into the
// counter store and estimating per-side prayers per minute.
package prayer
