package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cooldown grants a key at most once per ttl.
type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// NewRedisClient connects to addr. It returns nil when addr is empty or the
// server does not answer, which leaves reminders unthrottled.
func NewRedisClient(ctx context.Context, addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis unavailable, reminder cooldown disabled")
		rdb.Close()
		return nil
	}
	log.Info().Str("addr", addr).Msg("redis connected")
	return rdb
}

type RedisCooldown struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCooldown(rdb *redis.Client) *RedisCooldown {
	return &RedisCooldown{rdb: rdb, prefix: "ledger:reminder:"}
}

func (c *RedisCooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire cooldown: %w", err)
	}
	return ok, nil
}

func (c *RedisCooldown) Release(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("release cooldown: %w", err)
	}
	return nil
}
