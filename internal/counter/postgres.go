package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// PgxDB is the subset of *pgxpool.Pool used by PostgresStore.
type PgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// pgxQuerier is satisfied by both the pool and a transaction.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS prayer_counters (
    key        TEXT PRIMARY KEY,
    value      BIGINT NOT NULL,
    expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS prayer_counters_expires_at_idx ON prayer_counters (expires_at);
`

// An expired row counts as absent: the increment restarts it from delta with
// a fresh expiry. Value and expiry are written in one statement.
const pgIncrement = `
INSERT INTO prayer_counters (key, value, expires_at) VALUES ($1, $2, $4)
ON CONFLICT (key) DO UPDATE SET
    value = CASE
        WHEN prayer_counters.expires_at IS NOT NULL AND prayer_counters.expires_at <= $3 THEN EXCLUDED.value
        ELSE prayer_counters.value + EXCLUDED.value
    END,
    expires_at = CASE
        WHEN prayer_counters.expires_at IS NOT NULL AND prayer_counters.expires_at <= $3 THEN EXCLUDED.expires_at
        ELSE COALESCE(prayer_counters.expires_at, EXCLUDED.expires_at)
    END
RETURNING value`

const pgCount = `
SELECT key, value FROM prayer_counters
WHERE key = ANY($1) AND (expires_at IS NULL OR expires_at > $2)`

const pgPurge = `DELETE FROM prayer_counters WHERE expires_at IS NOT NULL AND expires_at <= $1`

// PostgresStore is the durable primary counter store.
type PostgresStore struct {
	db   PgxDB
	keys *KeyGenerator
}

// NewPostgresStore creates a store on db. Call EnsureSchema before first use.
func NewPostgresStore(db PgxDB, keys *KeyGenerator) *PostgresStore {
	if keys == nil {
		keys = NewKeyGenerator()
	}
	return &PostgresStore{db: db, keys: keys}
}

// EnsureSchema creates the counters table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("create prayer_counters: %w", err)
	}
	return nil
}

// Increment adds delta to today's key for side.
func (s *PostgresStore) Increment(ctx context.Context, side model.Side, delta int64) (int64, error) {
	return s.increment(ctx, s.db, s.keys.Key(side), delta, s.keys.Now())
}

func (s *PostgresStore) increment(ctx context.Context, q pgxQuerier, key string, delta int64, now time.Time) (int64, error) {
	var value int64
	if err := q.QueryRow(ctx, pgIncrement, key, delta, now, now.Add(s.keys.TTL())).Scan(&value); err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return value, nil
}

// Count returns today's counts. Missing keys read as zero.
func (s *PostgresStore) Count(ctx context.Context) (model.PrayerCount, error) {
	keys := s.keys.Keys()
	rows, err := s.db.Query(ctx, pgCount, keys, s.keys.Now())
	if err != nil {
		return model.PrayerCount{}, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	values := make(map[string]int64, len(keys))
	for rows.Next() {
		var key string
		var value int64
		if err := rows.Scan(&key, &value); err != nil {
			return model.PrayerCount{}, fmt.Errorf("scan count: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return model.PrayerCount{}, fmt.Errorf("iterate counts: %w", err)
	}

	return countFromKeys(model.Sides(), keys, values), nil
}

// Merge adds delta to today's keys in one transaction.
func (s *PostgresStore) Merge(ctx context.Context, delta model.PrayerCount) error {
	if delta.IsZero() {
		return nil
	}

	now := s.keys.Now()
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, side := range model.Sides() {
			d := delta.Get(side)
			if d == 0 {
				continue
			}
			if _, err := s.increment(ctx, tx, s.keys.KeyAt(side, now), d, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// Available pings the database.
func (s *PostgresStore) Available(ctx context.Context) bool {
	return s.db.Ping(ctx) == nil
}

// PurgeExpired deletes counter rows past their expiry.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, pgPurge, s.keys.Now())
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

func countFromKeys(sides []model.Side, keys []string, values map[string]int64) model.PrayerCount {
	count := model.ZeroCount()
	for i, side := range sides {
		count = count.Increment(side, values[keys[i]])
	}
	return count
}
