package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"challengeEngineAPI/internal/apperr"
	"challengeEngineAPI/internal/store"
	"challengeEngineAPI/internal/timewindow"
	"challengeEngineAPI/internal/types/challenge"
	"challengeEngineAPI/internal/types/leaderboard"
	"challengeEngineAPI/internal/types/task"
)

type AccessPolicy struct {
	admins map[string]bool
}

func NewAccessPolicy(adminUserIDs []string) *AccessPolicy {
	admins := make(map[string]bool, len(adminUserIDs))
	for _, id := range adminUserIDs {
		admins[id] = true
	}
	return &AccessPolicy{admins: admins}
}

func (p *AccessPolicy) IsAdmin(userID string) bool {
	return p.admins[userID]
}

// CanManage reports whether userID may author tasks for, inspect or delete c.
func (p *AccessPolicy) CanManage(c *challenge.Challenge, userID string) bool {
	return userID != "" && (c.CreatorID == userID || p.IsAdmin(userID))
}

type ChallengeService struct {
	store      store.Store
	aggregator *Aggregator
	dispatcher *SideEffectDispatcher
	access     *AccessPolicy
	validate   *validator.Validate
	log        *zap.Logger
	now        func() time.Time
}

func NewChallengeService(s store.Store, aggregator *Aggregator, dispatcher *SideEffectDispatcher, access *AccessPolicy, log *zap.Logger) *ChallengeService {
	return &ChallengeService{
		store:      s,
		aggregator: aggregator,
		dispatcher: dispatcher,
		access:     access,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        log,
		now:        time.Now,
	}
}

// SetClock replaces the wall clock, for tests and replays.
func (s *ChallengeService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ChallengeService) Today() time.Time {
	return timewindow.Day(s.now())
}

func (s *ChallengeService) checkStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		msgs := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			msgs[i] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		}
		return apperr.Invalid("%s", strings.Join(msgs, "; "))
	}
	return apperr.Invalid("%v", err)
}

func (s *ChallengeService) summarize(c *challenge.Challenge) *challenge.Summary {
	now := s.now()
	return &challenge.Summary{
		Challenge:     c,
		Status:        c.StatusAt(now),
		DaysRemaining: timewindow.DaysRemaining(c.EndDate, now),
	}
}

func (s *ChallengeService) CreateChallenge(ctx context.Context, creatorID string, req *challenge.CreateChallengeRequest) (*challenge.Summary, error) {
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}
	if !req.Type.Valid() {
		return nil, apperr.Invalid("unknown challenge type %q", req.Type)
	}
	start, err := timewindow.ParseDate(req.StartDate)
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}

	c := &challenge.Challenge{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Type:         req.Type,
		Goal:         req.Goal,
		DurationDays: req.Duration,
		StartDate:    start,
		EndDate:      timewindow.EndDate(start, req.Duration),
		CreatorID:    creatorID,
		CreatedAt:    s.now().UTC(),
	}
	if c.Name == "" {
		return nil, apperr.Invalid("name must not be blank")
	}
	if err := s.store.CreateChallenge(ctx, c); err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}

	s.log.Info("challenge created",
		zap.String("challenge_id", c.ID.String()),
		zap.String("creator_id", creatorID),
		zap.String("type", string(c.Type)))
	return s.summarize(c), nil
}

func (s *ChallengeService) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Summary, error) {
	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.summarize(c), nil
}

func (s *ChallengeService) GetChallengeDetail(ctx context.Context, id uuid.UUID, userID string) (*challenge.Detail, error) {
	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &challenge.Detail{
		Summary:        *s.summarize(c),
		DayOfChallenge: timewindow.DayOfChallenge(c.StartDate, s.now()),
	}
	if userID == "" {
		return detail, nil
	}
	p, err := s.store.GetParticipation(ctx, id, userID)
	switch {
	case err == nil:
		detail.Participation = p
	case !errors.Is(err, apperr.ErrNotAParticipant):
		return nil, err
	}
	return detail, nil
}

func (s *ChallengeService) ListChallenges(ctx context.Context, filter challenge.ListFilter, userID string) ([]*challenge.Summary, error) {
	switch filter {
	case "":
		filter = challenge.FilterAll
	case challenge.FilterAll, challenge.FilterJoined, challenge.FilterCreated:
	default:
		return nil, apperr.Invalid("unknown filter %q", filter)
	}

	list, err := s.store.ListChallenges(ctx, filter, userID)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	out := make([]*challenge.Summary, len(list))
	for i, c := range list {
		out[i] = s.summarize(c)
	}
	return out, nil
}

func (s *ChallengeService) DeleteChallenge(ctx context.Context, id uuid.UUID, requesterID string) error {
	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return err
	}
	if !s.access.CanManage(c, requesterID) {
		return fmt.Errorf("delete challenge %s: %w", id, apperr.ErrForbidden)
	}
	if err := s.store.DeleteChallenge(ctx, id); err != nil {
		return fmt.Errorf("delete challenge %s: %w", id, err)
	}
	s.aggregator.InvalidateChallenge(ctx, id)

	s.log.Info("challenge deleted", zap.String("challenge_id", id.String()), zap.String("requester_id", requesterID))
	return nil
}

// JoinChallenge creates the user's participation. A repeated join always fails with
// ErrAlreadyJoined and never writes a second row.
func (s *ChallengeService) JoinChallenge(ctx context.Context, challengeID uuid.UUID, userID string) (*challenge.Participation, error) {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if c.StatusAt(now) == timewindow.StatusEnded {
		joinsTotal.WithLabelValues("ended").Inc()
		return nil, fmt.Errorf("join challenge %s: %w", challengeID, apperr.ErrChallengeEnded)
	}

	p := &challenge.Participation{
		ChallengeID: challengeID,
		UserID:      userID,
		JoinedAt:    now.UTC(),
		Completed:   c.IsComplete(0),
	}
	if p.Completed {
		at := p.JoinedAt
		p.CompletedAt = &at
	}
	if err := s.store.CreateParticipation(ctx, p); err != nil {
		if errors.Is(err, apperr.ErrAlreadyJoined) {
			joinsTotal.WithLabelValues("duplicate").Inc()
		}
		return nil, fmt.Errorf("join challenge %s: %w", challengeID, err)
	}
	joinsTotal.WithLabelValues("joined").Inc()

	// Every engagement rate of this challenge has a new denominator.
	s.aggregator.InvalidateChallenge(ctx, challengeID)

	s.log.Info("challenge joined", zap.String("challenge_id", challengeID.String()), zap.String("user_id", userID))
	return p, nil
}

func (s *ChallengeService) LeaveChallenge(ctx context.Context, challengeID uuid.UUID, userID string) error {
	return fmt.Errorf("leave challenge %s: %w", challengeID, apperr.ErrUnsupported)
}

// DeleteUserData removes every participation and completion of an account.
func (s *ChallengeService) DeleteUserData(ctx context.Context, userID string) error {
	touched, err := s.store.DeleteUserData(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete data of user %s: %w", userID, err)
	}
	for _, challengeID := range touched {
		s.aggregator.InvalidateChallenge(ctx, challengeID)
	}
	s.log.Info("user challenge data deleted",
		zap.String("user_id", userID),
		zap.Int("challenges", len(touched)))
	return nil
}

func (s *ChallengeService) managedChallenge(ctx context.Context, challengeID uuid.UUID, requesterID string) (*challenge.Challenge, error) {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !s.access.CanManage(c, requesterID) {
		return nil, fmt.Errorf("manage challenge %s: %w", challengeID, apperr.ErrForbidden)
	}
	return c, nil
}

// taskOf loads a task and checks it belongs to challengeID.
func (s *ChallengeService) taskOf(ctx context.Context, challengeID, taskID uuid.UUID) (*task.DailyTask, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.ChallengeID != challengeID {
		return nil, fmt.Errorf("task %s in challenge %s: %w", taskID, challengeID, apperr.ErrTaskNotFound)
	}
	return t, nil
}

// buildTask validates req against c and returns an unsaved task.
func (s *ChallengeService) buildTask(c *challenge.Challenge, req *task.CreateTaskRequest) (*task.DailyTask, error) {
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.Invalid("title must not be blank")
	}

	hasDate := req.TaskDate != nil && *req.TaskDate != ""
	hasDay := req.DayOfChallenge != nil
	if hasDate == hasDay {
		return nil, apperr.Invalid("exactly one of task_date or day_of_challenge must be set")
	}

	t := &task.DailyTask{
		ID:          uuid.New(),
		ChallengeID: c.ID,
		TaskType:    req.TaskType,
		Title:       title,
		Description: req.Description,
		IsRequired:  req.IsRequired,
		Points:      req.Points,
		TargetValue: req.TargetValue,
		TargetUnit:  req.TargetUnit,
		FastingType: req.FastingType,
		CreatedAt:   s.now().UTC(),
	}

	if hasDate {
		date, err := timewindow.ParseDate(*req.TaskDate)
		if err != nil {
			return nil, apperr.Invalid("%v", err)
		}
		if date.Before(c.StartDate) || date.After(c.EndDate) {
			return nil, apperr.Invalid("task_date %s is outside the challenge window", *req.TaskDate)
		}
		t.TaskDate = &date
	} else {
		day := *req.DayOfChallenge
		if last := timewindow.DayOfChallenge(c.StartDate, c.EndDate); day < 1 || day > last {
			return nil, apperr.Invalid("day_of_challenge must be between 1 and %d", last)
		}
		t.DayOfChallenge = &day
	}

	if t.TaskType == task.TypeFasting && (t.FastingType == nil || *t.FastingType == "") {
		return nil, apperr.Invalid("fasting tasks need a fasting_type")
	}
	return t, nil
}

func (s *ChallengeService) CreateTask(ctx context.Context, challengeID uuid.UUID, requesterID string, req *task.CreateTaskRequest) (*task.DailyTask, error) {
	c, err := s.managedChallenge(ctx, challengeID, requesterID)
	if err != nil {
		return nil, err
	}
	t, err := s.buildTask(c, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.log.Info("task created",
		zap.String("challenge_id", challengeID.String()),
		zap.String("task_id", t.ID.String()),
		zap.String("task_type", string(t.TaskType)))
	return t, nil
}

// UpdateTask edits in place while a task has no completions. Afterwards the edit
// becomes a new task and the old one is marked superseded, so scored history is untouched.
func (s *ChallengeService) UpdateTask(ctx context.Context, challengeID, taskID uuid.UUID, requesterID string, req *task.CreateTaskRequest) (*task.DailyTask, error) {
	c, err := s.managedChallenge(ctx, challengeID, requesterID)
	if err != nil {
		return nil, err
	}
	existing, err := s.taskOf(ctx, challengeID, taskID)
	if err != nil {
		return nil, err
	}
	if existing.SupersededBy != nil {
		return nil, fmt.Errorf("task %s was replaced by %s: %w", taskID, *existing.SupersededBy, apperr.ErrTaskLocked)
	}
	next, err := s.buildTask(c, req)
	if err != nil {
		return nil, err
	}

	n, err := s.store.CountTaskCompletions(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
		err = s.store.UpdateTask(ctx, next)
		if err == nil {
			return next, nil
		}
		// A completion landed between the count and the guarded update.
		if !errors.Is(err, apperr.ErrTaskLocked) {
			return nil, fmt.Errorf("update task %s: %w", taskID, err)
		}
		next.ID = uuid.New()
		next.CreatedAt = s.now().UTC()
	}

	if err := s.store.SupersedeTask(ctx, taskID, next); err != nil {
		return nil, fmt.Errorf("replace task %s: %w", taskID, err)
	}
	s.log.Info("task superseded",
		zap.String("task_id", taskID.String()),
		zap.String("replacement_id", next.ID.String()))
	return next, nil
}

func (s *ChallengeService) DeleteTask(ctx context.Context, challengeID, taskID uuid.UUID, requesterID string) error {
	if _, err := s.managedChallenge(ctx, challengeID, requesterID); err != nil {
		return err
	}
	if _, err := s.taskOf(ctx, challengeID, taskID); err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	return nil
}

// resolvedDate is the calendar day a task is scheduled on.
func resolvedDate(c *challenge.Challenge, t *task.DailyTask) time.Time {
	if t.TaskDate != nil {
		return timewindow.Day(*t.TaskDate)
	}
	return timewindow.ResolveTaskDate(c.StartDate, *t.DayOfChallenge)
}

// GetTasksForDay lists tasks scheduled on day under either addressing mode. With a
// userID each task reports whether that user completed it on day.
func (s *ChallengeService) GetTasksForDay(ctx context.Context, challengeID uuid.UUID, day time.Time, userID string) ([]*task.DayTask, error) {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	day = timewindow.Day(day)

	tasks, err := s.store.ListTasksForDay(ctx, challengeID, day, timewindow.DayOfChallenge(c.StartDate, day))
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", timewindow.FormatDate(day), err)
	}

	done := map[uuid.UUID]bool{}
	if userID != "" {
		done, err = s.store.CompletedTaskIDs(ctx, challengeID, userID, day)
		if err != nil {
			return nil, fmt.Errorf("list completed tasks: %w", err)
		}
	}

	out := make([]*task.DayTask, len(tasks))
	for i, t := range tasks {
		out[i] = &task.DayTask{
			DailyTask:     t,
			Date:          timewindow.FormatDate(resolvedDate(c, t)),
			CompletedByMe: done[t.ID],
		}
	}
	return out, nil
}

// CompleteTask records that userID did taskID on the given day (today when nil).
func (s *ChallengeService) CompleteTask(ctx context.Context, challengeID, taskID uuid.UUID, userID string, req *task.CompleteTaskRequest) (*task.TaskCompletion, error) {
	if req == nil {
		req = &task.CompleteTaskRequest{}
	}
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}

	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	t, err := s.taskOf(ctx, challengeID, taskID)
	if err != nil {
		return nil, err
	}
	if t.SupersededBy != nil {
		completionsTotal.WithLabelValues("superseded").Inc()
		return nil, fmt.Errorf("task %s was replaced by %s: %w", taskID, *t.SupersededBy, apperr.ErrTaskLocked)
	}
	if _, err := s.store.GetParticipation(ctx, challengeID, userID); err != nil {
		return nil, err
	}

	now := s.now()
	switch c.StatusAt(now) {
	case timewindow.StatusEnded:
		completionsTotal.WithLabelValues("ended").Inc()
		return nil, fmt.Errorf("complete task %s: %w", taskID, apperr.ErrChallengeEnded)
	case timewindow.StatusUpcoming:
		return nil, fmt.Errorf("complete task %s: %w", taskID, apperr.ErrChallengeNotStarted)
	}

	date := timewindow.Day(now)
	if req.Date != nil && *req.Date != "" {
		d, err := timewindow.ParseDate(*req.Date)
		if err != nil {
			return nil, apperr.Invalid("%v", err)
		}
		if d.After(date) || d.Before(c.StartDate) {
			return nil, apperr.Invalid("date %s must be between the challenge start and today", *req.Date)
		}
		date = d
	}

	completion := &task.TaskCompletion{
		ID:            uuid.New(),
		TaskID:        t.ID,
		ChallengeID:   challengeID,
		UserID:        userID,
		CompletedDate: date,
		ActualValue:   req.ActualValue,
		Notes:         req.Notes,
		Points:        t.Points,
		CreatedAt:     now.UTC(),
	}
	p, err := s.store.RecordCompletion(ctx, completion, c)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyCompletedToday) {
			completionsTotal.WithLabelValues("duplicate").Inc()
		}
		return nil, fmt.Errorf("complete task %s: %w", taskID, err)
	}
	completionsTotal.WithLabelValues("recorded").Inc()

	s.aggregator.InvalidateTask(ctx, challengeID, taskID, date)

	if t.TaskType == task.TypeFasting && t.FastingType != nil {
		s.dispatcher.Dispatch(&SideEffectJob{
			Kind:        SideEffectFastingActivation,
			UserID:      userID,
			FastingType: *t.FastingType,
		})
	}

	s.log.Info("task completed",
		zap.String("challenge_id", challengeID.String()),
		zap.String("task_id", taskID.String()),
		zap.String("user_id", userID),
		zap.String("date", timewindow.FormatDate(date)),
		zap.Int("points", completion.Points),
		zap.Int("progress", p.Progress))
	return completion, nil
}

// GetTaskEngagement defaults date to the task's scheduled day.
func (s *ChallengeService) GetTaskEngagement(ctx context.Context, challengeID, taskID uuid.UUID, date *time.Time) (*task.TaskEngagement, error) {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	t, err := s.taskOf(ctx, challengeID, taskID)
	if err != nil {
		return nil, err
	}
	day := resolvedDate(c, t)
	if date != nil {
		day = timewindow.Day(*date)
	}
	return s.aggregator.TaskEngagement(ctx, t, day)
}

// UpdateTaskEngagementSnapshot recomputes a task's engagement on demand and replaces
// the cached copy. date defaults to the task's scheduled day.
func (s *ChallengeService) UpdateTaskEngagementSnapshot(ctx context.Context, challengeID, taskID uuid.UUID, requesterID string, date *time.Time) (*task.TaskEngagement, error) {
	c, err := s.managedChallenge(ctx, challengeID, requesterID)
	if err != nil {
		return nil, err
	}
	t, err := s.taskOf(ctx, challengeID, taskID)
	if err != nil {
		return nil, err
	}
	day := resolvedDate(c, t)
	if date != nil {
		day = timewindow.Day(*date)
	}
	return s.aggregator.RefreshEngagement(ctx, t, day)
}

func (s *ChallengeService) GetLeaderboard(ctx context.Context, challengeID uuid.UUID, requesterID string) (*leaderboard.Leaderboard, error) {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	return s.aggregator.Leaderboard(ctx, c, requesterID)
}

func (s *ChallengeService) GetCompletionDetails(ctx context.Context, challengeID, taskID uuid.UUID, requesterID string) ([]*task.CompletionDetail, error) {
	if _, err := s.managedChallenge(ctx, challengeID, requesterID); err != nil {
		return nil, err
	}
	if _, err := s.taskOf(ctx, challengeID, taskID); err != nil {
		return nil, err
	}
	return s.aggregator.CompletionDetails(ctx, taskID)
}
