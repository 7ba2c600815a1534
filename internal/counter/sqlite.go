package counter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rickgao/crypto-prayer/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS prayer_counters (
    key        TEXT PRIMARY KEY,
    value      INTEGER NOT NULL,
    expires_at INTEGER
);
CREATE INDEX IF NOT EXISTS prayer_counters_expires_at_idx ON prayer_counters (expires_at);
`

// expires_at is unix milliseconds. The row and its expiry are written in one
// statement; an expired row restarts from delta with a fresh expiry.
const sqliteIncrement = `
INSERT INTO prayer_counters (key, value, expires_at) VALUES (?1, ?2, ?4)
ON CONFLICT (key) DO UPDATE SET
    value = CASE
        WHEN expires_at IS NOT NULL AND expires_at <= ?3 THEN excluded.value
        ELSE value + excluded.value
    END,
    expires_at = CASE
        WHEN expires_at IS NOT NULL AND expires_at <= ?3 THEN excluded.expires_at
        ELSE COALESCE(expires_at, excluded.expires_at)
    END
RETURNING value`

const sqliteCount = `
SELECT value FROM prayer_counters
WHERE key = ?1 AND (expires_at IS NULL OR expires_at > ?2)`

const sqlitePurge = `DELETE FROM prayer_counters WHERE expires_at IS NOT NULL AND expires_at <= ?1`

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore is a durable counter store for single-node deployments.
type SQLiteStore struct {
	db   *sql.DB
	keys *KeyGenerator
}

// NewSQLiteStore creates a store on db. Call EnsureSchema before first use.
func NewSQLiteStore(db *sql.DB, keys *KeyGenerator) *SQLiteStore {
	if keys == nil {
		keys = NewKeyGenerator()
	}
	return &SQLiteStore{db: db, keys: keys}
}

// EnsureSchema creates the counters table if it does not exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create prayer_counters: %w", err)
	}
	return nil
}

// Increment adds delta to today's key for side.
func (s *SQLiteStore) Increment(ctx context.Context, side model.Side, delta int64) (int64, error) {
	return s.increment(ctx, s.db, s.keys.Key(side), delta, s.keys.Now())
}

func (s *SQLiteStore) increment(ctx context.Context, q sqlQuerier, key string, delta int64, now time.Time) (int64, error) {
	expires := now.Add(s.keys.TTL()).UnixMilli()

	var value int64
	if err := q.QueryRowContext(ctx, sqliteIncrement, key, delta, now.UnixMilli(), expires).Scan(&value); err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return value, nil
}

// Count returns today's counts. Missing keys read as zero.
func (s *SQLiteStore) Count(ctx context.Context) (model.PrayerCount, error) {
	keys := s.keys.Keys()
	now := s.keys.Now().UnixMilli()

	values := make(map[string]int64, len(keys))
	for _, key := range keys {
		var value int64
		err := s.db.QueryRowContext(ctx, sqliteCount, key, now).Scan(&value)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return model.PrayerCount{}, fmt.Errorf("query count %s: %w", key, err)
		default:
			values[key] = value
		}
	}

	return countFromKeys(model.Sides(), keys, values), nil
}

// Merge adds delta to today's keys in one transaction.
func (s *SQLiteStore) Merge(ctx context.Context, delta model.PrayerCount) error {
	if delta.IsZero() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	now := s.keys.Now()
	for _, side := range model.Sides() {
		d := delta.Get(side)
		if d == 0 {
			continue
		}
		if _, err := s.increment(ctx, tx, s.keys.KeyAt(side, now), d, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

// Available pings the database.
func (s *SQLiteStore) Available(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// PurgeExpired deletes counter rows past their expiry.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlitePurge, s.keys.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return res.RowsAffected()
}
