package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"challengeEngineAPI/internal/cache"
	"challengeEngineAPI/internal/identity"
	"challengeEngineAPI/internal/store"
	"challengeEngineAPI/internal/timewindow"
	"challengeEngineAPI/internal/types/challenge"
	"challengeEngineAPI/internal/types/leaderboard"
	"challengeEngineAPI/internal/types/task"
)

func TestEngagementRate(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 4, 0},
		{1, 4, 25},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{1, 200, 1},
		{1, 201, 0},
		{4, 4, 100},
		{5, 4, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EngagementRate(tt.completed, tt.total), "%d/%d", tt.completed, tt.total)
	}
}

func TestRankEntries(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []*leaderboard.LeaderboardEntry{
		{UserID: "late", Progress: 10, JoinedAt: base.Add(2 * time.Hour)},
		{UserID: "zed", Progress: 10, JoinedAt: base},
		{UserID: "top", Progress: 30, JoinedAt: base.Add(5 * time.Hour)},
		{UserID: "amy", Progress: 10, JoinedAt: base},
		{UserID: "none", Progress: 0, JoinedAt: base},
	}

	RankEntries(entries)

	var order []string
	for i, e := range entries {
		order = append(order, e.UserID)
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, []string{"top", "amy", "zed", "late", "none"}, order)
}

// countHookStore runs afterCount once, right after the first completer count.
type countHookStore struct {
	*store.MemoryStore
	afterCount func()
}

func (s *countHookStore) CountCompletersOn(ctx context.Context, taskID uuid.UUID, date time.Time) (int, error) {
	n, err := s.MemoryStore.CountCompletersOn(ctx, taskID, date)
	if hook := s.afterCount; hook != nil {
		s.afterCount = nil
		hook()
	}
	return n, err
}

func TestRefreshEngagementDropsSnapshotRacedByInvalidation(t *testing.T) {
	ctx := context.Background()
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mem := store.NewMemoryStore()

	ch := &challenge.Challenge{
		ID: uuid.New(), Name: "Hydration", Type: challenge.TypeWater, Goal: 10,
		DurationDays: 7, StartDate: jan1, EndDate: timewindow.EndDate(jan1, 7), CreatorID: "creator",
	}
	require.NoError(t, mem.CreateChallenge(ctx, ch))
	require.NoError(t, mem.CreateParticipation(ctx, &challenge.Participation{ChallengeID: ch.ID, UserID: "alice", JoinedAt: jan1}))
	day := 1
	tk := &task.DailyTask{ID: uuid.New(), ChallengeID: ch.ID, TaskType: task.TypeWater, Title: "Drink", Points: 1, DayOfChallenge: &day}
	require.NoError(t, mem.CreateTask(ctx, tk))

	hooked := &countHookStore{MemoryStore: mem}
	agg := NewAggregator(hooked, cache.NewMemoryCache(time.Minute), identity.Static{}, zap.NewNop())

	hooked.afterCount = func() {
		_, err := mem.RecordCompletion(ctx, &task.TaskCompletion{
			ID: uuid.New(), TaskID: tk.ID, ChallengeID: ch.ID, UserID: "alice",
			CompletedDate: jan1, Points: 1, CreatedAt: jan1,
		}, ch)
		require.NoError(t, err)
		agg.InvalidateTask(ctx, ch.ID, tk.ID, jan1)
	}

	stale, err := agg.RefreshEngagement(ctx, tk, jan1)
	require.NoError(t, err)
	assert.Equal(t, 0, stale.CompletedCount)

	fresh, err := agg.TaskEngagement(ctx, tk, jan1)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.CompletedCount)
	assert.Equal(t, 100, fresh.EngagementRate)
}
