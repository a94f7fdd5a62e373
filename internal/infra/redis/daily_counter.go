package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// DailyCounter tracks how many caption jobs were dispatched today. The key
// is dated and expires just past the next local midnight, so the counter
// resets exactly at the day boundary without a sweeper.
type DailyCounter struct {
	client RedisClient
	prefix string
	now    func() time.Time
}

func NewDailyCounter(client RedisClient, prefix string) *DailyCounter {
	return &DailyCounter{client: client, prefix: prefix, now: time.Now}
}

func (d *DailyCounter) key(t time.Time) string {
	return fmt.Sprintf("%s:%s", d.prefix, t.In(time.Local).Format("2006-01-02"))
}

// Count returns today's value without modifying it. Only a missing key
// reads as zero; any other failure must reach the caller so the dispatch
// gate stays closed while redis is unreachable.
func (d *DailyCounter) Count(ctx context.Context) (int, error) {
	v, err := d.client.Get(ctx, d.key(d.now()))
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("daily counter read: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("daily counter corrupt: %w", err)
	}
	return n, nil
}

// Incr bumps today's counter, arming the midnight expiry on first use.
func (d *DailyCounter) Incr(ctx context.Context) error {
	now := d.now().In(time.Local)
	n, err := d.client.Incr(ctx, d.key(now))
	if err != nil {
		return err
	}
	if n == 1 {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local).Add(24*time.Hour + time.Hour)
		return d.client.ExpireAt(ctx, d.key(now), midnight)
	}
	return nil
}
