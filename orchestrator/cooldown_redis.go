// orchestrator/cooldown_redis.go
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCooldown keeps the cooldown marker in Redis so every instance of the
// backend sees the same last-attempt state. SET NX PX is the conditional
// write: the key exists exactly while the window is open.
type RedisCooldown struct {
	Client *redis.Client
}

func NewRedisCooldown(addr string) *RedisCooldown {
	return &RedisCooldown{Client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *RedisCooldown) TryAcquire(ctx context.Context, key string, now time.Time, window time.Duration) (bool, time.Duration, error) {
	rkey := "cooldown:" + key
	ok, err := c.Client.SetNX(ctx, rkey, now.UnixMilli(), window).Result()
	if err != nil {
		return false, 0, fmt.Errorf("cooldown marker write: %w", err)
	}
	if ok {
		return true, 0, nil
	}
	remaining, err := c.Client.PTTL(ctx, rkey).Result()
	if err != nil || remaining < 0 {
		// Marker disappeared between SETNX and PTTL; the caller just waits
		// a full window.
		remaining = window
	}
	return false, remaining, nil
}
