package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"challengeEngineAPI/internal/types/challenge"
	"challengeEngineAPI/internal/types/task"
)

// Stores report failures with the apperr taxonomy: apperr.ErrNotFound,
// apperr.ErrTaskNotFound, apperr.ErrAlreadyJoined, apperr.ErrAlreadyCompletedToday,
// apperr.ErrNotAParticipant, apperr.ErrTaskLocked. Anything else wraps apperr.ErrUnavailable.

type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c *challenge.Challenge) error
	// GetChallenge fills ParticipantCount from live participation rows.
	GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error)
	ListChallenges(ctx context.Context, filter challenge.ListFilter, userID string) ([]*challenge.Challenge, error)
	// DeleteChallenge removes tasks, participations and completions with it.
	DeleteChallenge(ctx context.Context, id uuid.UUID) error

	CreateParticipation(ctx context.Context, p *challenge.Participation) error
	GetParticipation(ctx context.Context, challengeID uuid.UUID, userID string) (*challenge.Participation, error)
	// ListParticipations is ordered by joined_at, user_id.
	ListParticipations(ctx context.Context, challengeID uuid.UUID) ([]*challenge.Participation, error)
	CountParticipants(ctx context.Context, challengeID uuid.UUID) (int, error)
	// DeleteUserData returns the challenges the user had rows in.
	DeleteUserData(ctx context.Context, userID string) ([]uuid.UUID, error)
}

type TaskStore interface {
	CreateTask(ctx context.Context, t *task.DailyTask) error
	GetTask(ctx context.Context, id uuid.UUID) (*task.DailyTask, error)
	// ListTasksForDay returns live tasks addressed to date, either absolutely or by dayIndex.
	ListTasksForDay(ctx context.Context, challengeID uuid.UUID, date time.Time, dayIndex int) ([]*task.DailyTask, error)
	// UpdateTask rewrites t in place; it fails with ErrTaskLocked once completions exist.
	UpdateTask(ctx context.Context, t *task.DailyTask) error
	// SupersedeTask inserts replacement and points oldID at it in one step. An already
	// superseded oldID fails with ErrTaskLocked.
	SupersedeTask(ctx context.Context, oldID uuid.UUID, replacement *task.DailyTask) error
	// DeleteTask fails with ErrTaskLocked once completions exist.
	DeleteTask(ctx context.Context, id uuid.UUID) error
}

type CompletionStore interface {
	// RecordCompletion inserts c and recomputes the participation's progress atomically.
	// The (task, user, completed date) key is the serialization point. A superseded task
	// fails with ErrTaskLocked; a task whose predecessor the user already completed that
	// day fails with ErrAlreadyCompletedToday.
	RecordCompletion(ctx context.Context, c *task.TaskCompletion, ch *challenge.Challenge) (*challenge.Participation, error)
	CountTaskCompletions(ctx context.Context, taskID uuid.UUID) (int, error)
	// CountCompletersOn counts distinct users who completed taskID on date.
	CountCompletersOn(ctx context.Context, taskID uuid.UUID, date time.Time) (int, error)
	// ListCompletions is newest first.
	ListCompletions(ctx context.Context, taskID uuid.UUID) ([]*task.TaskCompletion, error)
	CompletedTaskIDs(ctx context.Context, challengeID uuid.UUID, userID string, date time.Time) (map[uuid.UUID]bool, error)
	// ProgressByUser sums completions per user according to mode.
	ProgressByUser(ctx context.Context, challengeID uuid.UUID, mode challenge.ProgressMode) (map[string]int, error)
}

type Store interface {
	ChallengeStore
	TaskStore
	CompletionStore
	Ping(ctx context.Context) error
	Close()
}

// progressOf folds a user's completions into a progress value.
func progressOf(completions []*task.TaskCompletion, mode challenge.ProgressMode) int {
	if mode == challenge.ProgressDays {
		days := make(map[time.Time]struct{})
		for _, c := range completions {
			days[c.CompletedDate] = struct{}{}
		}
		return len(days)
	}
	total := 0
	for _, c := range completions {
		total += c.Points
	}
	return total
}
