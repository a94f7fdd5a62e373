package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

type memRedis struct {
	store  map[string]string
	expiry map[string]time.Time
}

func newMemRedis() *memRedis {
	return &memRedis{store: make(map[string]string), expiry: make(map[string]time.Time)}
}

func (m *memRedis) Ping(ctx context.Context) error { return nil }
func (m *memRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.store[key] = fmt.Sprint(value)
	return nil
}
func (m *memRedis) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.store[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}
func (m *memRedis) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	fmt.Sscan(m.store[key], &n)
	n++
	m.store[key] = fmt.Sprint(n)
	return n, nil
}
func (m *memRedis) ExpireAt(ctx context.Context, key string, at time.Time) error {
	m.expiry[key] = at
	return nil
}
func (m *memRedis) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.store, k)
	}
	return nil
}
func (m *memRedis) Publish(ctx context.Context, channel string, message interface{}) error {
	return nil
}
func (m *memRedis) Close() error { return nil }

// downRedis simulates an unreachable server.
type downRedis struct {
	*memRedis
}

func (d *downRedis) Get(ctx context.Context, key string) (string, error) {
	return "", fmt.Errorf("dial tcp: connection refused")
}

func TestDailyCounter(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key counts as zero", func(t *testing.T) {
		c := NewDailyCounter(newMemRedis(), "captions")
		n, err := c.Count(ctx)
		if err != nil || n != 0 {
			t.Fatalf("got %d, %v; want 0, nil", n, err)
		}
	})

	t.Run("incr then count", func(t *testing.T) {
		c := NewDailyCounter(newMemRedis(), "captions")
		for i := 0; i < 3; i++ {
			if err := c.Incr(ctx); err != nil {
				t.Fatal(err)
			}
		}
		n, _ := c.Count(ctx)
		if n != 3 {
			t.Fatalf("count = %d, want 3", n)
		}
	})

	t.Run("first incr arms expiry past midnight", func(t *testing.T) {
		mem := newMemRedis()
		c := NewDailyCounter(mem, "captions")
		fixed := time.Date(2026, 3, 14, 15, 0, 0, 0, time.Local)
		c.now = func() time.Time { return fixed }

		if err := c.Incr(ctx); err != nil {
			t.Fatal(err)
		}
		at, ok := mem.expiry[c.key(fixed)]
		if !ok {
			t.Fatal("expiry not set on first incr")
		}
		nextMidnight := time.Date(2026, 3, 15, 0, 0, 0, 0, time.Local)
		if at.Before(nextMidnight) {
			t.Errorf("expiry %s is before next midnight %s", at, nextMidnight)
		}
	})

	t.Run("a redis outage surfaces as an error, not zero", func(t *testing.T) {
		down := &downRedis{memRedis: newMemRedis()}
		c := NewDailyCounter(down, "captions")

		_, err := c.Count(ctx)
		if err == nil {
			t.Fatal("an unreachable redis must not read as zero dispatches")
		}
		if errors.Is(err, goredis.Nil) {
			t.Fatalf("outage must not be conflated with a missing key: %v", err)
		}
	})

	t.Run("counter rolls over with the date", func(t *testing.T) {
		mem := newMemRedis()
		c := NewDailyCounter(mem, "captions")
		day1 := time.Date(2026, 3, 14, 23, 0, 0, 0, time.Local)
		c.now = func() time.Time { return day1 }
		_ = c.Incr(ctx)

		c.now = func() time.Time { return day1.Add(2 * time.Hour) } // past midnight
		n, _ := c.Count(ctx)
		if n != 0 {
			t.Fatalf("count after day rollover = %d, want 0", n)
		}
	})
}
