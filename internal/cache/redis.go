package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"challengeEngineAPI/internal/types/task"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisClient connects and pings, mirroring the boot-time check used for the database.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 50,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, challengeID, taskID uuid.UUID, date string) (*task.TaskEngagement, bool, error) {
	raw, err := c.rdb.Get(ctx, key(challengeID, taskID, date)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "redis get engagement")
	}

	var e task.TaskEngagement
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, errors.Wrap(err, "decode engagement")
	}
	return &e, true, nil
}

func (c *RedisCache) Set(ctx context.Context, challengeID uuid.UUID, e *task.TaskEngagement) error {
	if c.ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode engagement")
	}
	return errors.Wrap(c.rdb.Set(ctx, key(challengeID, e.TaskID, e.Date), raw, c.ttl).Err(), "redis set engagement")
}

func (c *RedisCache) InvalidateTask(ctx context.Context, challengeID, taskID uuid.UUID, date string) error {
	return errors.Wrap(c.rdb.Del(ctx, key(challengeID, taskID, date)).Err(), "redis del engagement")
}

func (c *RedisCache) InvalidateChallenge(ctx context.Context, challengeID uuid.UUID) error {
	iter := c.rdb.Scan(ctx, 0, challengePrefix(challengeID)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "redis scan engagement keys")
	}
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(c.rdb.Del(ctx, keys...).Err(), "redis del engagement keys")
}
