// orchestrator/cooldown.go
package orchestrator

import (
	"context"
	"sync"
	"time"
)

// CooldownStore tracks the last attempted generation per (practitioner,
// patient) key. TryAcquire must be atomic: when the window has elapsed it
// records the new attempt and returns ok; otherwise it returns the remaining
// wait. Two concurrent calls on the same key must never both acquire.
type CooldownStore interface {
	TryAcquire(ctx context.Context, key string, now time.Time, window time.Duration) (ok bool, remaining time.Duration, err error)
}

// MemoryCooldown is the single-process implementation: a mutexed map keyed
// by (practitioner, patient). Multi-instance deployments use RedisCooldown
// instead, keeping the check-and-set a single conditional write either way.
type MemoryCooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{last: make(map[string]time.Time)}
}

func (c *MemoryCooldown) TryAcquire(_ context.Context, key string, now time.Time, window time.Duration) (bool, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.last[key]; ok {
		if elapsed := now.Sub(prev); elapsed < window {
			return false, window - elapsed, nil
		}
	}
	c.last[key] = now
	return true, 0, nil
}

// Sweep drops markers older than maxAge so the map does not grow without
// bound. Called from the background ticker in main.
func (c *MemoryCooldown) Sweep(now time.Time, maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, at := range c.last {
		if now.Sub(at) > maxAge {
			delete(c.last, key)
			removed++
		}
	}
	return removed
}
