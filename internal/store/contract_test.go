package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"challengeEngineAPI/internal/apperr"
	"challengeEngineAPI/internal/timewindow"
	"challengeEngineAPI/internal/types/challenge"
	"challengeEngineAPI/internal/types/task"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seedChallenge(t *testing.T, s Store, typ challenge.ChallengeType, goal int) *challenge.Challenge {
	t.Helper()
	c := &challenge.Challenge{
		ID:           uuid.New(),
		Name:         "Hydration week",
		Type:         typ,
		Goal:         goal,
		DurationDays: 7,
		StartDate:    jan1,
		EndDate:      timewindow.EndDate(jan1, 7),
		CreatorID:    "creator_" + uuid.NewString(),
		CreatedAt:    jan1,
	}
	require.NoError(t, s.CreateChallenge(context.Background(), c))
	return c
}

func seedJoin(t *testing.T, s Store, c *challenge.Challenge, userID string, at time.Time) {
	t.Helper()
	require.NoError(t, s.CreateParticipation(context.Background(), &challenge.Participation{
		ChallengeID: c.ID,
		UserID:      userID,
		JoinedAt:    at,
	}))
}

func seedTask(t *testing.T, s Store, c *challenge.Challenge, points int, date *time.Time, day *int) *task.DailyTask {
	t.Helper()
	tk := &task.DailyTask{
		ID:             uuid.New(),
		ChallengeID:    c.ID,
		TaskType:       task.TypeWater,
		Title:          "Drink 2L",
		Points:         points,
		TaskDate:       date,
		DayOfChallenge: day,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, s.CreateTask(context.Background(), tk))
	return tk
}

func completion(c *challenge.Challenge, tk *task.DailyTask, userID string, date time.Time) *task.TaskCompletion {
	return &task.TaskCompletion{
		ID:            uuid.New(),
		TaskID:        tk.ID,
		ChallengeID:   c.ID,
		UserID:        userID,
		CompletedDate: date,
		Points:        tk.Points,
		CreatedAt:     date.Add(9 * time.Hour),
	}
}

func ptr[T any](v T) *T { return &v }

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("participant count and duplicate join", func(t *testing.T) {
		s := newStore(t)
		c := seedChallenge(t, s, challenge.TypeWater, 10)
		user := "user_" + uuid.NewString()
		seedJoin(t, s, c, user, jan1)

		err := s.CreateParticipation(ctx, &challenge.Participation{ChallengeID: c.ID, UserID: user, JoinedAt: jan1})
		assert.ErrorIs(t, err, apperr.ErrAlreadyJoined)

		got, err := s.GetChallenge(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.ParticipantCount)
		assert.True(t, got.EndDate.Equal(timewindow.EndDate(jan1, 7)))
	})

	t.Run("completion is unique per day and snapshots points", func(t *testing.T) {
		s := newStore(t)
		c := seedChallenge(t, s, challenge.TypeStreak, 3)
		user := "user_" + uuid.NewString()
		seedJoin(t, s, c, user, jan1)
		tk := seedTask(t, s, c, 10, nil, ptr(3))
		day := jan1.AddDate(0, 0, 2)

		p, err := s.RecordCompletion(ctx, completion(c, tk, user, day), c)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Progress)
		assert.False(t, p.Completed)

		_, err = s.RecordCompletion(ctx, completion(c, tk, user, day), c)
		assert.ErrorIs(t, err, apperr.ErrAlreadyCompletedToday)

		after, err := s.GetParticipation(ctx, c.ID, user)
		require.NoError(t, err)
		assert.Equal(t, 1, after.Progress)

		list, err := s.ListCompletions(ctx, tk.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 10, list[0].Points)
	})

	t.Run("concurrent completions have one winner", func(t *testing.T) {
		s := newStore(t)
		c := seedChallenge(t, s, challenge.TypeCustom, 100)
		user := "user_" + uuid.NewString()
		seedJoin(t, s, c, user, jan1)
		tk := seedTask(t, s, c, 5, ptr(jan1), nil)

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, dupes := 0, 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.RecordCompletion(ctx, completion(c, tk, user, jan1), c)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case apperr.As(err) == apperr.ErrAlreadyCompletedToday:
					dupes++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.Equal(t, 7, dupes)

		p, err := s.GetParticipation(ctx, c.ID, user)
		require.NoError(t, err)
		assert.Equal(t, 5, p.Progress)
	})

	t.Run("points mode sums and marks completed", func(t *testing.T) {
		s := newStore(t)
		c := seedChallenge(t, s, challenge.TypeWorkout, 15)
		user := "user_" + uuid.NewString()
		seedJoin(t, s, c, user, jan1)
		a := seedTask(t, s, c, 10, nil, ptr(1))
		b := seedTask(t, s, c, 5, nil, ptr(1))

		_, err := s.RecordCompletion(ctx, completion(c, a, user, jan1), c)
		require.NoError(t, err)
		p, err := s.RecordCompletion(ctx, completion(c, b, user, jan1), c)
		require.NoError(t, err)
		assert.Equal(t, 15, p.Progress)
		assert.True(t, p.Completed)
		assert.NotNil(t, p.CompletedAt)

		byUser, err := s.ProgressByUser(ctx, c.ID, c.ProgressMode())
		require.NoError(t, err)
		assert.Equal(t, 15, byUser[user])
	})

	t.Run("non participant cannot record", func(t *testing.T) {
		s := newStore(t)
		c := seedChallenge(t, s, challenge.TypeWater, 1)
		tk := seedTask(t, s, c, 1, ptr(jan1), nil)
		_, err := s.RecordCompletion(ctx, completion(c, tk, "stranger_"+uuid.NewString(), jan1), c)
		assert.ErrorIs(t, err, apperr.ErrNotAParticipant)
	})

	t.Run("both addressing modes resolve to the same day", func(t *testing.T) {
		s := newStore(t)
		c := seedChallenge(t, s, challenge.TypeMeals, 1)
		third := jan1.AddDate(0, 0, 2)
		absolute := seedTask(t, s, c, 1, ptr(third), nil)
		relative := seedTask(t, s, c, 1, nil, ptr(3))
		seedTask(t, s, c, 1, nil, ptr(4))

		tasks, err := s.ListTasksForDay(ctx, c.ID, third, timewindow.DayOfChallenge(c.StartDate, third))
		require.NoError(t, err)
		ids := map[uuid.UUID]bool{}
		for _, tk := range tasks {
			ids[tk.ID] = true
		}
		assert.Len(t, tasks, 2)
		assert.True(t, ids[absolute.ID])
		assert.True(t, ids[relative.ID])
	})

	t.Run("tasks with completions are locked", func(t *testing.T) {
		s := newStore(t)
		c := seedChallenge(t, s, challenge.TypeWater, 1)
		user := "user_" + uuid.NewString()
		seedJoin(t, s, c, user, jan1)
		tk := seedTask(t, s, c, 3, nil, ptr(1))
		_, err := s.RecordCompletion(ctx, completion(c, tk, user, jan1), c)
		require.NoError(t, err)

		assert.ErrorIs(t, s.DeleteTask(ctx, tk.ID), apperr.ErrTaskLocked)
		edited := *tk
		edited.Points = 50
		assert.ErrorIs(t, s.UpdateTask(ctx, &edited), apperr.ErrTaskLocked)

		replacement := edited
		replacement.ID = uuid.New()
		require.NoError(t, s.SupersedeTask(ctx, tk.ID, &replacement))

		old, err := s.GetTask(ctx, tk.ID)
		require.NoError(t, err)
		require.NotNil(t, old.SupersededBy)
		assert.Equal(t, replacement.ID, *old.SupersededBy)

		tasks, err := s.ListTasksForDay(ctx, c.ID, jan1, 1)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, replacement.ID, tasks[0].ID)

		list, err := s.ListCompletions(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, list[0].Points)

		again := edited
		again.ID = uuid.New()
		assert.ErrorIs(t, s.SupersedeTask(ctx, tk.ID, &again), apperr.ErrTaskLocked)
	})

	t.Run("superseded tasks score once per slot", func(t *testing.T) {
		s := newStore(t)
		c := seedChallenge(t, s, challenge.TypeWater, 100)
		alice := "user_" + uuid.NewString()
		bob := "user_" + uuid.NewString()
		seedJoin(t, s, c, alice, jan1)
		seedJoin(t, s, c, bob, jan1)
		tk := seedTask(t, s, c, 5, nil, ptr(1))
		_, err := s.RecordCompletion(ctx, completion(c, tk, alice, jan1), c)
		require.NoError(t, err)

		replacement := *tk
		replacement.ID = uuid.New()
		replacement.Points = 1
		require.NoError(t, s.SupersedeTask(ctx, tk.ID, &replacement))

		_, err = s.RecordCompletion(ctx, completion(c, tk, bob, jan1), c)
		assert.ErrorIs(t, err, apperr.ErrTaskLocked)

		_, err = s.RecordCompletion(ctx, completion(c, &replacement, alice, jan1), c)
		assert.ErrorIs(t, err, apperr.ErrAlreadyCompletedToday)

		p, err := s.RecordCompletion(ctx, completion(c, &replacement, bob, jan1), c)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Progress)

		p, err = s.GetParticipation(ctx, c.ID, alice)
		require.NoError(t, err)
		assert.Equal(t, 5, p.Progress)
	})

	t.Run("delete challenge cascades", func(t *testing.T) {
		s := newStore(t)
		c := seedChallenge(t, s, challenge.TypeWater, 1)
		user := "user_" + uuid.NewString()
		seedJoin(t, s, c, user, jan1)
		tk := seedTask(t, s, c, 1, nil, ptr(1))
		_, err := s.RecordCompletion(ctx, completion(c, tk, user, jan1), c)
		require.NoError(t, err)

		require.NoError(t, s.DeleteChallenge(ctx, c.ID))
		_, err = s.GetChallenge(ctx, c.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = s.GetTask(ctx, tk.ID)
		assert.ErrorIs(t, err, apperr.ErrTaskNotFound)
		n, err := s.CountTaskCompletions(ctx, tk.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.ErrorIs(t, s.DeleteChallenge(ctx, c.ID), apperr.ErrNotFound)
	})

	t.Run("delete user data", func(t *testing.T) {
		s := newStore(t)
		c := seedChallenge(t, s, challenge.TypeWater, 1)
		user := "user_" + uuid.NewString()
		seedJoin(t, s, c, user, jan1)
		tk := seedTask(t, s, c, 1, nil, ptr(1))
		_, err := s.RecordCompletion(ctx, completion(c, tk, user, jan1), c)
		require.NoError(t, err)

		other := seedChallenge(t, s, challenge.TypeWater, 1)
		seedJoin(t, s, other, user, jan1)
		untouched := seedChallenge(t, s, challenge.TypeWater, 1)

		touched, err := s.DeleteUserData(ctx, user)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{c.ID, other.ID}, touched)
		assert.NotContains(t, touched, untouched.ID)
		_, err = s.GetParticipation(ctx, c.ID, user)
		assert.ErrorIs(t, err, apperr.ErrNotAParticipant)
		n, err := s.CountCompletersOn(ctx, tk.ID, jan1)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("list filters", func(t *testing.T) {
		s := newStore(t)
		c := seedChallenge(t, s, challenge.TypeWater, 1)
		user := "user_" + uuid.NewString()
		seedJoin(t, s, c, user, jan1)

		joined, err := s.ListChallenges(ctx, challenge.FilterJoined, user)
		require.NoError(t, err)
		require.Len(t, joined, 1)
		assert.Equal(t, c.ID, joined[0].ID)

		created, err := s.ListChallenges(ctx, challenge.FilterCreated, c.CreatorID)
		require.NoError(t, err)
		require.Len(t, created, 1)

		none, err := s.ListChallenges(ctx, challenge.FilterCreated, user)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
