package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"challengeEngineAPI/internal/apperr"
	"challengeEngineAPI/internal/timewindow"
	"challengeEngineAPI/internal/types/challenge"
	"challengeEngineAPI/internal/types/task"
)

type participationKey struct {
	challengeID uuid.UUID
	userID      string
}

type completionKey struct {
	taskID uuid.UUID
	userID string
	date   time.Time
}

// MemoryStore keeps everything in process. One lock guards all maps, which makes
// RecordCompletion's insert and progress recompute a single critical section.
type MemoryStore struct {
	mu             sync.RWMutex
	challenges     map[uuid.UUID]*challenge.Challenge
	participations map[participationKey]*challenge.Participation
	tasks          map[uuid.UUID]*task.DailyTask
	completions    map[completionKey]*task.TaskCompletion
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges:     make(map[uuid.UUID]*challenge.Challenge),
		participations: make(map[participationKey]*challenge.Participation),
		tasks:          make(map[uuid.UUID]*task.DailyTask),
		completions:    make(map[completionKey]*task.TaskCompletion),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}

func (s *MemoryStore) CreateChallenge(ctx context.Context, c *challenge.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.challenges[c.ID]; exists {
		return fmt.Errorf("challenge %s already exists: %w", c.ID, apperr.ErrInvalidSpec)
	}
	cp := *c
	s.challenges[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.challenges[id]
	if !ok {
		return nil, fmt.Errorf("challenge %s: %w", id, apperr.ErrNotFound)
	}
	return s.withCount(c), nil
}

func (s *MemoryStore) withCount(c *challenge.Challenge) *challenge.Challenge {
	cp := *c
	cp.ParticipantCount = s.countParticipants(c.ID)
	return &cp
}

func (s *MemoryStore) countParticipants(challengeID uuid.UUID) int {
	n := 0
	for k := range s.participations {
		if k.challengeID == challengeID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) ListChallenges(ctx context.Context, filter challenge.ListFilter, userID string) ([]*challenge.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*challenge.Challenge{}
	for _, c := range s.challenges {
		switch filter {
		case challenge.FilterCreated:
			if c.CreatorID != userID {
				continue
			}
		case challenge.FilterJoined:
			if _, ok := s.participations[participationKey{c.ID, userID}]; !ok {
				continue
			}
		}
		out = append(out, s.withCount(c))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) DeleteChallenge(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.challenges[id]; !ok {
		return fmt.Errorf("challenge %s: %w", id, apperr.ErrNotFound)
	}
	delete(s.challenges, id)
	for k := range s.participations {
		if k.challengeID == id {
			delete(s.participations, k)
		}
	}
	for tid, t := range s.tasks {
		if t.ChallengeID == id {
			delete(s.tasks, tid)
		}
	}
	for k, c := range s.completions {
		if c.ChallengeID == id {
			delete(s.completions, k)
		}
	}
	return nil
}

func (s *MemoryStore) CreateParticipation(ctx context.Context, p *challenge.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.challenges[p.ChallengeID]; !ok {
		return fmt.Errorf("challenge %s: %w", p.ChallengeID, apperr.ErrNotFound)
	}
	key := participationKey{p.ChallengeID, p.UserID}
	if _, exists := s.participations[key]; exists {
		return fmt.Errorf("user %s in challenge %s: %w", p.UserID, p.ChallengeID, apperr.ErrAlreadyJoined)
	}
	cp := *p
	s.participations[key] = &cp
	return nil
}

func (s *MemoryStore) GetParticipation(ctx context.Context, challengeID uuid.UUID, userID string) (*challenge.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participations[participationKey{challengeID, userID}]
	if !ok {
		return nil, fmt.Errorf("user %s in challenge %s: %w", userID, challengeID, apperr.ErrNotAParticipant)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListParticipations(ctx context.Context, challengeID uuid.UUID) ([]*challenge.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*challenge.Participation{}
	for k, p := range s.participations {
		if k.challengeID == challengeID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *MemoryStore) CountParticipants(ctx context.Context, challengeID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countParticipants(challengeID), nil
}

func (s *MemoryStore) DeleteUserData(ctx context.Context, userID string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[uuid.UUID]struct{})
	for k := range s.participations {
		if k.userID == userID {
			touched[k.challengeID] = struct{}{}
			delete(s.participations, k)
		}
	}
	for k, c := range s.completions {
		if k.userID == userID {
			touched[c.ChallengeID] = struct{}{}
			delete(s.completions, k)
		}
	}

	out := make([]uuid.UUID, 0, len(touched))
	for id := range touched {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *MemoryStore) CreateTask(ctx context.Context, t *task.DailyTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.challenges[t.ChallengeID]; !ok {
		return fmt.Errorf("challenge %s: %w", t.ChallengeID, apperr.ErrNotFound)
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id uuid.UUID) (*task.DailyTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, apperr.ErrTaskNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTasksForDay(ctx context.Context, challengeID uuid.UUID, date time.Time, dayIndex int) ([]*task.DailyTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := timewindow.Day(date)
	out := []*task.DailyTask{}
	for _, t := range s.tasks {
		if t.ChallengeID != challengeID || t.SupersededBy != nil {
			continue
		}
		byDate := t.TaskDate != nil && timewindow.Day(*t.TaskDate).Equal(day)
		byIndex := t.DayOfChallenge != nil && *t.DayOfChallenge == dayIndex
		if byDate || byIndex {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) taskCompletionCount(taskID uuid.UUID) int {
	n := 0
	for k := range s.completions {
		if k.taskID == taskID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) UpdateTask(ctx context.Context, t *task.DailyTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; !ok {
		return fmt.Errorf("task %s: %w", t.ID, apperr.ErrTaskNotFound)
	}
	if s.taskCompletionCount(t.ID) > 0 {
		return fmt.Errorf("task %s: %w", t.ID, apperr.ErrTaskLocked)
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *MemoryStore) SupersedeTask(ctx context.Context, oldID uuid.UUID, replacement *task.DailyTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tasks[oldID]
	if !ok {
		return fmt.Errorf("task %s: %w", oldID, apperr.ErrTaskNotFound)
	}
	if old.SupersededBy != nil {
		return fmt.Errorf("task %s: %w", oldID, apperr.ErrTaskLocked)
	}
	cp := *replacement
	s.tasks[replacement.ID] = &cp
	id := replacement.ID
	old.SupersededBy = &id
	return nil
}

func (s *MemoryStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, apperr.ErrTaskNotFound)
	}
	if s.taskCompletionCount(id) > 0 {
		return fmt.Errorf("task %s: %w", id, apperr.ErrTaskLocked)
	}
	delete(s.tasks, id)
	return nil
}

// predecessors walks the supersede chain backwards from id.
func (s *MemoryStore) predecessors(id uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	frontier := []uuid.UUID{id}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, t := range s.tasks {
			if t.SupersededBy != nil && *t.SupersededBy == cur {
				out = append(out, t.ID)
				frontier = append(frontier, t.ID)
			}
		}
	}
	return out
}

func (s *MemoryStore) RecordCompletion(ctx context.Context, c *task.TaskCompletion, ch *challenge.Challenge) (*challenge.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participations[participationKey{c.ChallengeID, c.UserID}]
	if !ok {
		return nil, fmt.Errorf("user %s in challenge %s: %w", c.UserID, c.ChallengeID, apperr.ErrNotAParticipant)
	}
	t, ok := s.tasks[c.TaskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", c.TaskID, apperr.ErrTaskNotFound)
	}
	if t.SupersededBy != nil {
		return nil, fmt.Errorf("task %s: %w", c.TaskID, apperr.ErrTaskLocked)
	}
	day := timewindow.Day(c.CompletedDate)
	for _, id := range append([]uuid.UUID{c.TaskID}, s.predecessors(c.TaskID)...) {
		if _, exists := s.completions[completionKey{id, c.UserID, day}]; exists {
			return nil, fmt.Errorf("task %s for %s on %s: %w",
				c.TaskID, c.UserID, timewindow.FormatDate(day), apperr.ErrAlreadyCompletedToday)
		}
	}
	key := completionKey{c.TaskID, c.UserID, day}
	cp := *c
	cp.CompletedDate = key.date
	s.completions[key] = &cp

	var mine []*task.TaskCompletion
	for _, done := range s.completions {
		if done.ChallengeID == c.ChallengeID && done.UserID == c.UserID {
			mine = append(mine, done)
		}
	}
	p.Progress = progressOf(mine, ch.ProgressMode())
	p.Completed = ch.IsComplete(p.Progress)
	if p.Completed && p.CompletedAt == nil {
		at := c.CreatedAt
		p.CompletedAt = &at
	}

	out := *p
	return &out, nil
}

func (s *MemoryStore) CountTaskCompletions(ctx context.Context, taskID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.taskCompletionCount(taskID), nil
}

func (s *MemoryStore) CountCompletersOn(ctx context.Context, taskID uuid.UUID, date time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := timewindow.Day(date)
	users := make(map[string]struct{})
	for k := range s.completions {
		if k.taskID == taskID && k.date.Equal(day) {
			users[k.userID] = struct{}{}
		}
	}
	return len(users), nil
}

func (s *MemoryStore) ListCompletions(ctx context.Context, taskID uuid.UUID) ([]*task.TaskCompletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*task.TaskCompletion{}
	for _, c := range s.completions {
		if c.TaskID == taskID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) CompletedTaskIDs(ctx context.Context, challengeID uuid.UUID, userID string, date time.Time) (map[uuid.UUID]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := timewindow.Day(date)
	out := make(map[uuid.UUID]bool)
	for k, c := range s.completions {
		if c.ChallengeID == challengeID && k.userID == userID && k.date.Equal(day) {
			out[k.taskID] = true
		}
	}
	return out, nil
}

func (s *MemoryStore) ProgressByUser(ctx context.Context, challengeID uuid.UUID, mode challenge.ProgressMode) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser := make(map[string][]*task.TaskCompletion)
	for _, c := range s.completions {
		if c.ChallengeID == challengeID {
			byUser[c.UserID] = append(byUser[c.UserID], c)
		}
	}
	out := make(map[string]int, len(byUser))
	for userID, list := range byUser {
		out[userID] = progressOf(list, mode)
	}
	return out, nil
}
