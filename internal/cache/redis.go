package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/seatrush/config"
	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/redis/go-redis/v9"
)

func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

// ScheduleCache keeps read-mostly schedule rows in Redis in front of the catalog repository.
type ScheduleCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewScheduleCache(client redis.Cmdable, ttl time.Duration) *ScheduleCache {
	return &ScheduleCache{client: client, ttl: ttl}
}

// GetSchedule returns (nil, nil) on a cache miss.
func (c *ScheduleCache) GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	data, err := c.client.Get(ctx, scheduleKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var s domain.Schedule
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *ScheduleCache) SetSchedule(ctx context.Context, s *domain.Schedule) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, scheduleKey(s.ID), payload, c.ttl).Err()
}

func (c *ScheduleCache) InvalidateSchedule(ctx context.Context, id int64) error {
	return c.client.Del(ctx, scheduleKey(id)).Err()
}

func scheduleKey(id int64) string {
	return fmt.Sprintf("cache:schedule:%d", id)
}
