// Package database opens the durable stores behind the prayer counters.
//
//   - PostgreSQL via pgxpool for shared deployments
//   - SQLite (modernc, pure Go) for single-node deployments and tests
package database
