// Package model defines the value types shared across the prayer server.
//
// Conventions:
//   - Side is a closed enum; switches over it panic on unknown values.
//   - PrayerCount is immutable in use; Merge and Increment return new values.
//   - Market amounts are float64 on the outbound path and decimal while parsing.
package model
