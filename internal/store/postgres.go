package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"challengeEngineAPI/internal/apperr"
	"challengeEngineAPI/internal/types/challenge"
	"challengeEngineAPI/internal/types/task"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func unavailable(err error, msg string) error {
	return fmt.Errorf("%w: %w", apperr.ErrUnavailable, errors.Wrap(err, msg))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const challengeColumns = `
	c.id, c.name, c.description, c.type, c.goal, c.duration_days,
	c.start_date, c.end_date, c.creator_id, c.created_at,
	(SELECT COUNT(*) FROM challenge_participants p WHERE p.challenge_id = c.id)`

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	c := &challenge.Challenge{}
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.Type,
		&c.Goal,
		&c.DurationDays,
		&c.StartDate,
		&c.EndDate,
		&c.CreatorID,
		&c.CreatedAt,
		&c.ParticipantCount,
	)
	return c, err
}

func (s *PostgresStore) CreateChallenge(ctx context.Context, c *challenge.Challenge) error {
	query := `
	INSERT INTO challenges (id, name, description, type, goal, duration_days, start_date, end_date, creator_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.Exec(ctx, query,
		c.ID,
		c.Name,
		c.Description,
		c.Type,
		c.Goal,
		c.DurationDays,
		c.StartDate,
		c.EndDate,
		c.CreatorID,
		c.CreatedAt,
	)
	if err != nil {
		return unavailable(err, "insert challenge")
	}
	return nil
}

func (s *PostgresStore) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	query := `SELECT` + challengeColumns + ` FROM challenges c WHERE c.id = $1`

	c, err := scanChallenge(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("challenge %s: %w", id, apperr.ErrNotFound)
		}
		return nil, unavailable(err, "get challenge")
	}
	return c, nil
}

func (s *PostgresStore) ListChallenges(ctx context.Context, filter challenge.ListFilter, userID string) ([]*challenge.Challenge, error) {
	query := `SELECT` + challengeColumns + ` FROM challenges c`
	var args []any

	switch filter {
	case challenge.FilterCreated:
		query += ` WHERE c.creator_id = $1`
		args = append(args, userID)
	case challenge.FilterJoined:
		query += ` WHERE EXISTS (
			SELECT 1 FROM challenge_participants p
			WHERE p.challenge_id = c.id AND p.user_id = $1
		)`
		args = append(args, userID)
	}
	query += ` ORDER BY c.start_date DESC, c.id`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err, "list challenges")
	}
	defer rows.Close()

	out := []*challenge.Challenge{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, unavailable(err, "scan challenge")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "iterate challenges")
	}
	return out, nil
}

func (s *PostgresStore) DeleteChallenge(ctx context.Context, id uuid.UUID) error {
	// Tasks, participants and completions go with it through ON DELETE CASCADE.
	result, err := s.db.Exec(ctx, `DELETE FROM challenges WHERE id = $1`, id)
	if err != nil {
		return unavailable(err, "delete challenge")
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("challenge %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CreateParticipation(ctx context.Context, p *challenge.Participation) error {
	query := `
	INSERT INTO challenge_participants (challenge_id, user_id, joined_at, progress, completed, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.Exec(ctx, query, p.ChallengeID, p.UserID, p.JoinedAt, p.Progress, p.Completed, p.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s in challenge %s: %w", p.UserID, p.ChallengeID, apperr.ErrAlreadyJoined)
		}
		return unavailable(err, "insert participation")
	}
	return nil
}

func scanParticipation(row pgx.Row) (*challenge.Participation, error) {
	p := &challenge.Participation{}
	err := row.Scan(&p.ChallengeID, &p.UserID, &p.JoinedAt, &p.Progress, &p.Completed, &p.CompletedAt)
	return p, err
}

func (s *PostgresStore) GetParticipation(ctx context.Context, challengeID uuid.UUID, userID string) (*challenge.Participation, error) {
	query := `
	SELECT challenge_id, user_id, joined_at, progress, completed, completed_at
	FROM challenge_participants
	WHERE challenge_id = $1 AND user_id = $2
	`
	p, err := scanParticipation(s.db.QueryRow(ctx, query, challengeID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s in challenge %s: %w", userID, challengeID, apperr.ErrNotAParticipant)
		}
		return nil, unavailable(err, "get participation")
	}
	return p, nil
}

func (s *PostgresStore) ListParticipations(ctx context.Context, challengeID uuid.UUID) ([]*challenge.Participation, error) {
	query := `
	SELECT challenge_id, user_id, joined_at, progress, completed, completed_at
	FROM challenge_participants
	WHERE challenge_id = $1
	ORDER BY joined_at, user_id
	`
	rows, err := s.db.Query(ctx, query, challengeID)
	if err != nil {
		return nil, unavailable(err, "list participations")
	}
	defer rows.Close()

	out := []*challenge.Participation{}
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, unavailable(err, "scan participation")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "iterate participations")
	}
	return out, nil
}

func (s *PostgresStore) CountParticipants(ctx context.Context, challengeID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM challenge_participants WHERE challenge_id = $1`, challengeID).Scan(&n)
	if err != nil {
		return 0, unavailable(err, "count participants")
	}
	return n, nil
}

func (s *PostgresStore) DeleteUserData(ctx context.Context, userID string) ([]uuid.UUID, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, unavailable(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT challenge_id FROM challenge_participants WHERE user_id = $1
		UNION
		SELECT challenge_id FROM task_completions WHERE user_id = $1
		ORDER BY challenge_id
	`, userID)
	if err != nil {
		return nil, unavailable(err, "list user challenges")
	}
	touched, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, unavailable(err, "scan user challenges")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM task_completions WHERE user_id = $1`, userID); err != nil {
		return nil, unavailable(err, "delete user completions")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM challenge_participants WHERE user_id = $1`, userID); err != nil {
		return nil, unavailable(err, "delete user participations")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable(err, "commit user deletion")
	}
	return touched, nil
}

const taskColumns = `
	id, challenge_id, task_type, title, description, is_required, points,
	target_value, target_unit, fasting_type, task_date, day_of_challenge,
	superseded_by, created_at`

func scanTask(row pgx.Row) (*task.DailyTask, error) {
	t := &task.DailyTask{}
	err := row.Scan(
		&t.ID,
		&t.ChallengeID,
		&t.TaskType,
		&t.Title,
		&t.Description,
		&t.IsRequired,
		&t.Points,
		&t.TargetValue,
		&t.TargetUnit,
		&t.FastingType,
		&t.TaskDate,
		&t.DayOfChallenge,
		&t.SupersededBy,
		&t.CreatedAt,
	)
	return t, err
}

const insertTaskSQL = `
	INSERT INTO daily_tasks (` + taskColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func insertTaskArgs(t *task.DailyTask) []any {
	return []any{
		t.ID, t.ChallengeID, t.TaskType, t.Title, t.Description, t.IsRequired, t.Points,
		t.TargetValue, t.TargetUnit, t.FastingType, t.TaskDate, t.DayOfChallenge,
		t.SupersededBy, t.CreatedAt,
	}
}

func (s *PostgresStore) CreateTask(ctx context.Context, t *task.DailyTask) error {
	if _, err := s.db.Exec(ctx, insertTaskSQL, insertTaskArgs(t)...); err != nil {
		return unavailable(err, "insert task")
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (*task.DailyTask, error) {
	query := `SELECT` + taskColumns + ` FROM daily_tasks WHERE id = $1`

	t, err := scanTask(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, apperr.ErrTaskNotFound)
		}
		return nil, unavailable(err, "get task")
	}
	return t, nil
}

func (s *PostgresStore) ListTasksForDay(ctx context.Context, challengeID uuid.UUID, date time.Time, dayIndex int) ([]*task.DailyTask, error) {
	query := `SELECT` + taskColumns + `
	FROM daily_tasks
	WHERE challenge_id = $1
	  AND superseded_by IS NULL
	  AND (task_date = $2 OR day_of_challenge = $3)
	ORDER BY created_at, id
	`
	rows, err := s.db.Query(ctx, query, challengeID, date, dayIndex)
	if err != nil {
		return nil, unavailable(err, "list tasks for day")
	}
	defer rows.Close()

	out := []*task.DailyTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, unavailable(err, "scan task")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "iterate tasks")
	}
	return out, nil
}

// lockedOrMissing explains why a guarded write touched no rows.
func (s *PostgresStore) lockedOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM daily_tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return unavailable(err, "check task")
	}
	if !exists {
		return fmt.Errorf("task %s: %w", id, apperr.ErrTaskNotFound)
	}
	return fmt.Errorf("task %s: %w", id, apperr.ErrTaskLocked)
}

func (s *PostgresStore) UpdateTask(ctx context.Context, t *task.DailyTask) error {
	query := `
	UPDATE daily_tasks
	SET task_type = $2, title = $3, description = $4, is_required = $5, points = $6,
	    target_value = $7, target_unit = $8, fasting_type = $9, task_date = $10, day_of_challenge = $11
	WHERE id = $1
	  AND NOT EXISTS (SELECT 1 FROM task_completions WHERE task_id = $1)
	`
	result, err := s.db.Exec(ctx, query,
		t.ID, t.TaskType, t.Title, t.Description, t.IsRequired, t.Points,
		t.TargetValue, t.TargetUnit, t.FastingType, t.TaskDate, t.DayOfChallenge,
	)
	if err != nil {
		return unavailable(err, "update task")
	}
	if result.RowsAffected() == 0 {
		return s.lockedOrMissing(ctx, t.ID)
	}
	return nil
}

func (s *PostgresStore) SupersedeTask(ctx context.Context, oldID uuid.UUID, replacement *task.DailyTask) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return unavailable(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertTaskSQL, insertTaskArgs(replacement)...); err != nil {
		return unavailable(err, "insert replacement task")
	}
	result, err := tx.Exec(ctx, `
		UPDATE daily_tasks SET superseded_by = $2
		WHERE id = $1 AND superseded_by IS NULL
	`, oldID, replacement.ID)
	if err != nil {
		return unavailable(err, "mark task superseded")
	}
	if result.RowsAffected() == 0 {
		return s.lockedOrMissing(ctx, oldID)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(err, "commit task replacement")
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	query := `
	DELETE FROM daily_tasks
	WHERE id = $1
	  AND NOT EXISTS (SELECT 1 FROM task_completions WHERE task_id = $1)
	`
	result, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return unavailable(err, "delete task")
	}
	if result.RowsAffected() == 0 {
		return s.lockedOrMissing(ctx, id)
	}
	return nil
}

func (s *PostgresStore) RecordCompletion(ctx context.Context, c *task.TaskCompletion, ch *challenge.Challenge) (*challenge.Participation, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, unavailable(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	// Row lock keeps concurrent completions by the same user from interleaving their progress writes.
	p, err := scanParticipation(tx.QueryRow(ctx, `
		SELECT challenge_id, user_id, joined_at, progress, completed, completed_at
		FROM challenge_participants
		WHERE challenge_id = $1 AND user_id = $2
		FOR UPDATE
	`, c.ChallengeID, c.UserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s in challenge %s: %w", c.UserID, c.ChallengeID, apperr.ErrNotAParticipant)
		}
		return nil, unavailable(err, "lock participation")
	}

	// FOR SHARE waits out a concurrent SupersedeTask on the same row.
	var superseded bool
	err = tx.QueryRow(ctx, `
		SELECT superseded_by IS NOT NULL FROM daily_tasks WHERE id = $1 FOR SHARE
	`, c.TaskID).Scan(&superseded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", c.TaskID, apperr.ErrTaskNotFound)
		}
		return nil, unavailable(err, "lock task")
	}
	if superseded {
		return nil, fmt.Errorf("task %s: %w", c.TaskID, apperr.ErrTaskLocked)
	}

	var slotTaken bool
	err = tx.QueryRow(ctx, `
		WITH RECURSIVE chain(id) AS (
			SELECT id FROM daily_tasks WHERE superseded_by = $1
			UNION
			SELECT d.id FROM daily_tasks d JOIN chain ON d.superseded_by = chain.id
		)
		SELECT EXISTS (
			SELECT 1 FROM task_completions
			WHERE task_id IN (SELECT id FROM chain) AND user_id = $2 AND completed_date = $3
		)
	`, c.TaskID, c.UserID, c.CompletedDate).Scan(&slotTaken)
	if err != nil {
		return nil, unavailable(err, "check replaced task completions")
	}
	if slotTaken {
		return nil, fmt.Errorf("task %s for %s: %w", c.TaskID, c.UserID, apperr.ErrAlreadyCompletedToday)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO task_completions (id, task_id, challenge_id, user_id, completed_date, actual_value, notes, points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.TaskID, c.ChallengeID, c.UserID, c.CompletedDate, c.ActualValue, c.Notes, c.Points, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("task %s for %s: %w", c.TaskID, c.UserID, apperr.ErrAlreadyCompletedToday)
		}
		return nil, unavailable(err, "insert completion")
	}

	progressSQL := `SELECT COALESCE(SUM(points), 0) FROM task_completions WHERE challenge_id = $1 AND user_id = $2`
	if ch.ProgressMode() == challenge.ProgressDays {
		progressSQL = `SELECT COUNT(DISTINCT completed_date) FROM task_completions WHERE challenge_id = $1 AND user_id = $2`
	}
	if err := tx.QueryRow(ctx, progressSQL, c.ChallengeID, c.UserID).Scan(&p.Progress); err != nil {
		return nil, unavailable(err, "recompute progress")
	}

	p.Completed = ch.IsComplete(p.Progress)
	if p.Completed && p.CompletedAt == nil {
		at := c.CreatedAt
		p.CompletedAt = &at
	}

	_, err = tx.Exec(ctx, `
		UPDATE challenge_participants
		SET progress = $3, completed = $4, completed_at = $5
		WHERE challenge_id = $1 AND user_id = $2
	`, c.ChallengeID, c.UserID, p.Progress, p.Completed, p.CompletedAt)
	if err != nil {
		return nil, unavailable(err, "update progress")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable(err, "commit completion")
	}
	return p, nil
}

func (s *PostgresStore) CountTaskCompletions(ctx context.Context, taskID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM task_completions WHERE task_id = $1`, taskID).Scan(&n)
	if err != nil {
		return 0, unavailable(err, "count task completions")
	}
	return n, nil
}

func (s *PostgresStore) CountCompletersOn(ctx context.Context, taskID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM task_completions
		WHERE task_id = $1 AND completed_date = $2
	`, taskID, date).Scan(&n)
	if err != nil {
		return 0, unavailable(err, "count completers")
	}
	return n, nil
}

func (s *PostgresStore) ListCompletions(ctx context.Context, taskID uuid.UUID) ([]*task.TaskCompletion, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, task_id, challenge_id, user_id, completed_date, actual_value, notes, points, created_at
		FROM task_completions
		WHERE task_id = $1
		ORDER BY created_at DESC, id
	`, taskID)
	if err != nil {
		return nil, unavailable(err, "list completions")
	}
	defer rows.Close()

	out := []*task.TaskCompletion{}
	for rows.Next() {
		c := &task.TaskCompletion{}
		err := rows.Scan(
			&c.ID,
			&c.TaskID,
			&c.ChallengeID,
			&c.UserID,
			&c.CompletedDate,
			&c.ActualValue,
			&c.Notes,
			&c.Points,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, unavailable(err, "scan completion")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "iterate completions")
	}
	return out, nil
}

func (s *PostgresStore) CompletedTaskIDs(ctx context.Context, challengeID uuid.UUID, userID string, date time.Time) (map[uuid.UUID]bool, error) {
	rows, err := s.db.Query(ctx, `
		SELECT task_id FROM task_completions
		WHERE challenge_id = $1 AND user_id = $2 AND completed_date = $3
	`, challengeID, userID, date)
	if err != nil {
		return nil, unavailable(err, "list completed tasks")
	}
	defer rows.Close()

	out := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable(err, "scan completed task")
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "iterate completed tasks")
	}
	return out, nil
}

func (s *PostgresStore) ProgressByUser(ctx context.Context, challengeID uuid.UUID, mode challenge.ProgressMode) (map[string]int, error) {
	query := `
	SELECT user_id, COALESCE(SUM(points), 0)
	FROM task_completions
	WHERE challenge_id = $1
	GROUP BY user_id
	`
	if mode == challenge.ProgressDays {
		query = `
		SELECT user_id, COUNT(DISTINCT completed_date)
		FROM task_completions
		WHERE challenge_id = $1
		GROUP BY user_id
		`
	}

	rows, err := s.db.Query(ctx, query, challengeID)
	if err != nil {
		return nil, unavailable(err, "aggregate progress")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var userID string
		var progress int
		if err := rows.Scan(&userID, &progress); err != nil {
			return nil, unavailable(err, "scan progress")
		}
		out[userID] = progress
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "iterate progress")
	}
	return out, nil
}
