package services

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"challengeEngineAPI/internal/cache"
	"challengeEngineAPI/internal/identity"
	"challengeEngineAPI/internal/store"
	"challengeEngineAPI/internal/timewindow"
	"challengeEngineAPI/internal/types/challenge"
	"challengeEngineAPI/internal/types/leaderboard"
	"challengeEngineAPI/internal/types/task"
)

const identityLookupConcurrency = 8

// Aggregator derives engagement figures and standings from live completion and
// participation rows. Nothing it returns is persisted as a source of truth.
type Aggregator struct {
	store    store.Store
	cache    cache.EngagementCache
	identity identity.Resolver
	log      *zap.Logger

	// generation moves on every invalidation. A refresh that raced one drops what it wrote.
	generation atomic.Uint64
}

func NewAggregator(s store.Store, c cache.EngagementCache, id identity.Resolver, log *zap.Logger) *Aggregator {
	return &Aggregator{
		store:    s,
		cache:    c,
		identity: id,
		log:      log,
	}
}

// EngagementRate is completed/total as a whole percentage in [0, 100], rounding half
// away from zero. An empty challenge has a rate of zero.
func EngagementRate(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	rate := decimal.NewFromInt(int64(completed)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(0).
		IntPart()
	if rate > 100 {
		return 100
	}
	return int(rate)
}

func (a *Aggregator) computeEngagement(ctx context.Context, t *task.DailyTask, date time.Time) (*task.TaskEngagement, error) {
	total, err := a.store.CountParticipants(ctx, t.ChallengeID)
	if err != nil {
		return nil, err
	}
	completed, err := a.store.CountCompletersOn(ctx, t.ID, date)
	if err != nil {
		return nil, err
	}
	return &task.TaskEngagement{
		TaskID:            t.ID,
		Date:              timewindow.FormatDate(date),
		TotalParticipants: total,
		CompletedCount:    completed,
		EngagementRate:    EngagementRate(completed, total),
	}, nil
}

// TaskEngagement serves a cached snapshot when one is fresh and recomputes otherwise.
func (a *Aggregator) TaskEngagement(ctx context.Context, t *task.DailyTask, date time.Time) (*task.TaskEngagement, error) {
	day := timewindow.FormatDate(date)
	if cached, ok, err := a.cache.Get(ctx, t.ChallengeID, t.ID, day); err != nil {
		engagementCacheLookups.WithLabelValues("error").Inc()
		a.log.Warn("engagement cache read failed", zap.String("task_id", t.ID.String()), zap.Error(err))
	} else if ok {
		engagementCacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	} else {
		engagementCacheLookups.WithLabelValues("miss").Inc()
	}

	return a.RefreshEngagement(ctx, t, date)
}

// RefreshEngagement recomputes and overwrites the cached snapshot.
func (a *Aggregator) RefreshEngagement(ctx context.Context, t *task.DailyTask, date time.Time) (*task.TaskEngagement, error) {
	gen := a.generation.Load()
	e, err := a.computeEngagement(ctx, t, date)
	if err != nil {
		return nil, fmt.Errorf("compute engagement for task %s: %w", t.ID, err)
	}
	if err := a.cache.Set(ctx, t.ChallengeID, e); err != nil {
		a.log.Warn("engagement cache write failed", zap.String("task_id", t.ID.String()), zap.Error(err))
		return e, nil
	}
	if a.generation.Load() != gen {
		a.dropTask(ctx, t.ChallengeID, t.ID, e.Date)
	}
	return e, nil
}

func (a *Aggregator) InvalidateTask(ctx context.Context, challengeID, taskID uuid.UUID, date time.Time) {
	a.generation.Add(1)
	a.dropTask(ctx, challengeID, taskID, timewindow.FormatDate(date))
}

func (a *Aggregator) dropTask(ctx context.Context, challengeID, taskID uuid.UUID, day string) {
	if err := a.cache.InvalidateTask(ctx, challengeID, taskID, day); err != nil {
		a.log.Warn("engagement cache invalidation failed", zap.String("task_id", taskID.String()), zap.Error(err))
	}
}

func (a *Aggregator) InvalidateChallenge(ctx context.Context, challengeID uuid.UUID) {
	a.generation.Add(1)
	if err := a.cache.InvalidateChallenge(ctx, challengeID); err != nil {
		a.log.Warn("engagement cache invalidation failed", zap.String("challenge_id", challengeID.String()), zap.Error(err))
	}
}

// RankEntries orders by progress descending, then earlier join, then user id, and
// assigns 1-based ranks. Every rank is distinct.
func RankEntries(entries []*leaderboard.LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Progress != b.Progress {
			return a.Progress > b.Progress
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	for i, e := range entries {
		e.Rank = i + 1
	}
}

func (a *Aggregator) Leaderboard(ctx context.Context, c *challenge.Challenge, requesterID string) (*leaderboard.Leaderboard, error) {
	participants, err := a.store.ListParticipations(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants of %s: %w", c.ID, err)
	}
	progress, err := a.store.ProgressByUser(ctx, c.ID, c.ProgressMode())
	if err != nil {
		return nil, fmt.Errorf("aggregate progress of %s: %w", c.ID, err)
	}

	entries := make([]*leaderboard.LeaderboardEntry, len(participants))
	for i, p := range participants {
		score := progress[p.UserID]
		entries[i] = &leaderboard.LeaderboardEntry{
			UserID:    p.UserID,
			Progress:  score,
			Completed: c.IsComplete(score),
			JoinedAt:  p.JoinedAt,
		}
	}
	RankEntries(entries)
	a.resolveNames(ctx, entries)

	board := &leaderboard.Leaderboard{
		ChallengeID: c.ID,
		Goal:        c.Goal,
		Entries:     entries,
		TotalUsers:  len(entries),
	}
	for _, e := range entries {
		if e.UserID == requesterID {
			board.UserPosition = e
			break
		}
	}
	return board, nil
}

func (a *Aggregator) resolveNames(ctx context.Context, entries []*leaderboard.LeaderboardEntry) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(identityLookupConcurrency)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			p := a.identity.Resolve(gctx, e.UserID)
			e.DisplayName = p.DisplayName
			e.PhotoURL = p.PhotoURL
			return nil
		})
	}
	_ = g.Wait()
}

func (a *Aggregator) CompletionDetails(ctx context.Context, taskID uuid.UUID) ([]*task.CompletionDetail, error) {
	completions, err := a.store.ListCompletions(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list completions of %s: %w", taskID, err)
	}

	profiles := make(map[string]identity.Profile)
	for _, c := range completions {
		profiles[c.UserID] = identity.Profile{}
	}
	names := make([]string, 0, len(profiles))
	for userID := range profiles {
		names = append(names, userID)
	}
	resolved := make([]identity.Profile, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(identityLookupConcurrency)
	for i, userID := range names {
		i, userID := i, userID
		g.Go(func() error {
			resolved[i] = a.identity.Resolve(gctx, userID)
			return nil
		})
	}
	_ = g.Wait()
	for i, userID := range names {
		profiles[userID] = resolved[i]
	}

	out := make([]*task.CompletionDetail, len(completions))
	for i, c := range completions {
		p := profiles[c.UserID]
		out[i] = &task.CompletionDetail{
			TaskCompletion: c,
			DisplayName:    p.DisplayName,
			PhotoURL:       p.PhotoURL,
		}
	}
	return out, nil
}
