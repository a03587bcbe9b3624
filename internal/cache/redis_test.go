package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"challengeEngineAPI/internal/types/task"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	c := NewRedisCache(rdb, time.Minute)
	challengeID, taskID := uuid.New(), uuid.New()
	e := &task.TaskEngagement{TaskID: taskID, Date: "2024-01-03", TotalParticipants: 3, CompletedCount: 1, EngagementRate: 33}
	require.NoError(t, c.Set(ctx, challengeID, e))

	got, ok, err := c.Get(ctx, challengeID, taskID, "2024-01-03")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, *e, *got)

	require.NoError(t, c.InvalidateChallenge(ctx, challengeID))
	_, ok, err = c.Get(ctx, challengeID, taskID, "2024-01-03")
	require.NoError(t, err)
	assert.False(t, ok)
}
