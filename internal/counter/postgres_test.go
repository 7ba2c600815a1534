package counter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/crypto-prayer/internal/model"
)

// Set PRAYER_TEST_DATABASE_URL to run these against a real PostgreSQL.
func newTestPostgresStore(t *testing.T, now *time.Time) *PostgresStore {
	t.Helper()

	url := os.Getenv("PRAYER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PRAYER_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	keys := NewKeyGenerator(
		WithLocation(time.UTC),
		WithKeyClock(func() time.Time { return *now }),
	)
	s := NewPostgresStore(pool, keys)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	// Each test uses its own day so runs do not collide.
	cleanup := func() {
		pool.Exec(ctx, "DELETE FROM prayer_counters WHERE key = ANY($1)", keys.Keys())
	}
	cleanup()
	t.Cleanup(cleanup)

	return s
}

func TestPostgresStore_IncrementAndCount(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2001, 2, 3, 10, 0, 0, 0, time.UTC)
	s := newTestPostgresStore(t, &now)

	if v, err := s.Increment(ctx, model.SideUp, 2); err != nil || v != 2 {
		t.Errorf("Increment = %d, %v; want 2, nil", v, err)
	}
	if v, err := s.Increment(ctx, model.SideUp, 3); err != nil || v != 5 {
		t.Errorf("Increment = %d, %v; want 5, nil", v, err)
	}

	if err := s.Merge(ctx, model.PrayerCount{Up: 1, Down: 4}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	c, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if c.Up != 6 || c.Down != 4 {
		t.Errorf("Count = %+v, want {6 4}", c)
	}
}

func TestPostgresStore_Expiry(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2001, 2, 4, 0, 0, 0, 0, time.UTC)
	now := start
	s := newTestPostgresStore(t, &now)
	s.keys.ttl = time.Hour

	s.Increment(ctx, model.SideDown, 5)

	now = start.Add(2 * time.Hour)
	c, _ := s.Count(ctx)
	if c.Down != 0 {
		t.Errorf("Count.Down after expiry = %d, want 0", c.Down)
	}

	if n, err := s.PurgeExpired(ctx); err != nil || n < 1 {
		t.Errorf("PurgeExpired = %d, %v; want >= 1, nil", n, err)
	}
}

func TestPostgresStore_IncrementSetsExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2001, 2, 5, 9, 0, 0, 0, time.UTC)
	s := newTestPostgresStore(t, &now)

	s.Increment(ctx, model.SideUp, 2)
	s.Increment(ctx, model.SideUp, 2)

	var value int64
	var expiresAt *time.Time
	err := s.db.QueryRow(ctx,
		"SELECT value, expires_at FROM prayer_counters WHERE key = $1",
		s.keys.Key(model.SideUp)).Scan(&value, &expiresAt)
	if err != nil {
		t.Fatalf("read row: %v", err)
	}
	if value != 4 {
		t.Errorf("value = %d, want 4", value)
	}
	want := now.Add(DefaultTTL)
	if expiresAt == nil || !expiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", expiresAt, want)
	}
}
