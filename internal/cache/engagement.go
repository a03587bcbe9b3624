package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"challengeEngineAPI/internal/types/task"
)

// EngagementCache holds short-lived TaskEngagement snapshots keyed by
// (challenge, task, date). Entries are dropped on every write that could change them.
type EngagementCache interface {
	Get(ctx context.Context, challengeID, taskID uuid.UUID, date string) (*task.TaskEngagement, bool, error)
	Set(ctx context.Context, challengeID uuid.UUID, e *task.TaskEngagement) error
	InvalidateTask(ctx context.Context, challengeID, taskID uuid.UUID, date string) error
	InvalidateChallenge(ctx context.Context, challengeID uuid.UUID) error
}

func key(challengeID, taskID uuid.UUID, date string) string {
	return fmt.Sprintf("engagement:%s:%s:%s", challengeID, taskID, date)
}

func challengePrefix(challengeID uuid.UUID) string {
	return fmt.Sprintf("engagement:%s:", challengeID)
}

type memoryEntry struct {
	value     task.TaskEngagement
	expiresAt time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, challengeID, taskID uuid.UUID, date string) (*task.TaskEngagement, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(challengeID, taskID, date)
	e, ok := c.entries[k]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, k)
		return nil, false, nil
	}
	v := e.value
	return &v, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, challengeID uuid.UUID, e *task.TaskEngagement) error {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key(challengeID, e.TaskID, e.Date)] = memoryEntry{value: *e, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) InvalidateTask(ctx context.Context, challengeID, taskID uuid.UUID, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key(challengeID, taskID, date))
	return nil
}

func (c *MemoryCache) InvalidateChallenge(ctx context.Context, challengeID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := challengePrefix(challengeID)
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// RunSweeper drops expired entries every interval until ctx is done.
func (c *MemoryCache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}
