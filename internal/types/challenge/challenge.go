package challenge

import (
	"time"

	"github.com/google/uuid"

	"challengeEngineAPI/internal/timewindow"
)

type ChallengeType string

const (
	TypeWater      ChallengeType = "water"
	TypeMeals      ChallengeType = "meals"
	TypeStreak     ChallengeType = "streak"
	TypeSteps      ChallengeType = "steps"
	TypeWorkout    ChallengeType = "workout"
	TypeMeditation ChallengeType = "meditation"
	TypeCustom     ChallengeType = "custom"
)

func (t ChallengeType) Valid() bool {
	switch t {
	case TypeWater, TypeMeals, TypeStreak, TypeSteps, TypeWorkout, TypeMeditation, TypeCustom:
		return true
	}
	return false
}

// ProgressMode decides what Participation.Progress counts.
type ProgressMode string

const (
	ProgressDays   ProgressMode = "days"
	ProgressPoints ProgressMode = "points"
)

type Challenge struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	Name             string        `json:"name" db:"name"`
	Description      string        `json:"description" db:"description"`
	Type             ChallengeType `json:"type" db:"type"`
	Goal             int           `json:"goal" db:"goal"`
	DurationDays     int           `json:"duration" db:"duration_days"`
	StartDate        time.Time     `json:"start_date" db:"start_date"`
	EndDate          time.Time     `json:"end_date" db:"end_date"`
	CreatorID        string        `json:"creator_id" db:"creator_id"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	ParticipantCount int           `json:"participant_count" db:"-"`
}

func (c *Challenge) ProgressMode() ProgressMode {
	if c.Type == TypeStreak {
		return ProgressDays
	}
	return ProgressPoints
}

func (c *Challenge) IsComplete(progress int) bool {
	return progress >= c.Goal
}

func (c *Challenge) StatusAt(now time.Time) timewindow.Status {
	return timewindow.StatusAt(c.StartDate, c.EndDate, now)
}

type Participation struct {
	ChallengeID uuid.UUID  `json:"challenge_id" db:"challenge_id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Progress    int        `json:"progress" db:"progress"`
	Completed   bool       `json:"completed" db:"completed"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	JoinedAt    time.Time  `json:"joined_at" db:"joined_at"`
}

type ListFilter string

const (
	FilterAll     ListFilter = "all"
	FilterJoined  ListFilter = "joined"
	FilterCreated ListFilter = "created"
)

// Summary is a challenge as seen at a given instant.
type Summary struct {
	*Challenge
	Status        timewindow.Status `json:"status"`
	DaysRemaining int               `json:"days_remaining"`
}

type Detail struct {
	Summary
	DayOfChallenge int            `json:"day_of_challenge"`
	Participation  *Participation `json:"participation,omitempty"`
}

type CreateChallengeRequest struct {
	Name        string        `json:"name" validate:"required,max=120"`
	Description string        `json:"description" validate:"max=2000"`
	Type        ChallengeType `json:"type" validate:"required,oneof=water meals streak steps workout meditation custom"`
	Goal        int           `json:"goal" validate:"gte=0"`
	Duration    int           `json:"duration" validate:"gt=0,lte=366"`
	StartDate   string        `json:"start_date" validate:"required"`
}
