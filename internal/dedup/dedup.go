package dedup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const updatePrefix = "custos:update:v1:"

// UpdateGuard remembers webhook update ids in Redis so that an update
// re-delivered by the chat platform is processed once.
type UpdateGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to the Redis server at url and pings it.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewUpdateGuard(client *redis.Client, ttl time.Duration) *UpdateGuard {
	return &UpdateGuard{client: client, ttl: ttl}
}

// First reports whether updateID is seen for the first time. A nil guard
// lets every update through.
func (g *UpdateGuard) First(ctx context.Context, updateID int64) (bool, error) {
	if g == nil || g.client == nil {
		return true, nil
	}
	key := updatePrefix + strconv.FormatInt(updateID, 10)
	ok, err := g.client.SetNX(ctx, key, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("update reservation failed: %w", err)
	}
	return ok, nil
}
