package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"challengeEngineAPI/internal/timewindow"
)

type TaskType string

const (
	TypeExercise TaskType = "exercise"
	TypeMeal     TaskType = "meal"
	TypeFasting  TaskType = "fasting"
	TypeSleep    TaskType = "sleep"
	TypeWater    TaskType = "water"
	TypeOther    TaskType = "other"
)

// DailyTask is addressed by exactly one of TaskDate or DayOfChallenge.
type DailyTask struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ChallengeID    uuid.UUID  `json:"challenge_id" db:"challenge_id"`
	TaskType       TaskType   `json:"task_type" db:"task_type"`
	Title          string     `json:"title" db:"title"`
	Description    string     `json:"description" db:"description"`
	IsRequired     bool       `json:"is_required" db:"is_required"`
	Points         int        `json:"points" db:"points"`
	TargetValue    *float64   `json:"target_value,omitempty" db:"target_value"`
	TargetUnit     *string    `json:"target_unit,omitempty" db:"target_unit"`
	FastingType    *string    `json:"fasting_type,omitempty" db:"fasting_type"`
	TaskDate       *time.Time `json:"task_date,omitempty" db:"task_date"`
	DayOfChallenge *int       `json:"day_of_challenge,omitempty" db:"day_of_challenge"`
	SupersededBy   *uuid.UUID `json:"superseded_by,omitempty" db:"superseded_by"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// DayTask is a task resolved onto a calendar day.
type DayTask struct {
	*DailyTask
	Date          string `json:"date"`
	CompletedByMe bool   `json:"completed_by_me"`
}

type TaskCompletion struct {
	ID            uuid.UUID `json:"id" db:"id"`
	TaskID        uuid.UUID `json:"task_id" db:"task_id"`
	ChallengeID   uuid.UUID `json:"challenge_id" db:"challenge_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	CompletedDate time.Time `json:"completed_date" db:"completed_date"`
	ActualValue   *float64  `json:"actual_value,omitempty" db:"actual_value"`
	Notes         *string   `json:"notes,omitempty" db:"notes"`
	Points        int       `json:"points" db:"points"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type CompletionDetail struct {
	*TaskCompletion
	DisplayName string  `json:"display_name"`
	PhotoURL    *string `json:"photo_url"`
}

type TaskEngagement struct {
	TaskID            uuid.UUID `json:"task_id"`
	Date              string    `json:"date"`
	TotalParticipants int       `json:"total_participants"`
	CompletedCount    int       `json:"completed_count"`
	EngagementRate    int       `json:"engagement_rate"`
}

type CreateTaskRequest struct {
	TaskType       TaskType `json:"task_type" validate:"required,oneof=exercise meal fasting sleep water other"`
	Title          string   `json:"title" validate:"required,max=200"`
	Description    string   `json:"description" validate:"max=2000"`
	IsRequired     bool     `json:"is_required"`
	Points         int      `json:"points" validate:"gte=0"`
	TargetValue    *float64 `json:"target_value" validate:"omitempty,gte=0"`
	TargetUnit     *string  `json:"target_unit" validate:"omitempty,max=32"`
	FastingType    *string  `json:"fasting_type" validate:"omitempty,max=32"`
	TaskDate       *string  `json:"task_date"`
	DayOfChallenge *int     `json:"day_of_challenge"`
}

type CompleteTaskRequest struct {
	ActualValue *float64 `json:"actual_value"`
	Notes       *string  `json:"notes" validate:"omitempty,max=1000"`
	// Date defaults to today and may not lie in the future.
	Date *string `json:"date"`
}

// Calendar dates travel as YYYY-MM-DD on the wire, like every date the API accepts.

type dailyTaskFields DailyTask

type dailyTaskJSON struct {
	dailyTaskFields
	TaskDate *string `json:"task_date,omitempty"`
}

func (t *DailyTask) toJSON() dailyTaskJSON {
	out := dailyTaskJSON{dailyTaskFields: dailyTaskFields(*t)}
	if t.TaskDate != nil {
		d := timewindow.FormatDate(*t.TaskDate)
		out.TaskDate = &d
	}
	return out
}

func (w *dailyTaskJSON) task() (DailyTask, error) {
	t := DailyTask(w.dailyTaskFields)
	t.TaskDate = nil
	if w.TaskDate != nil {
		d, err := timewindow.ParseDate(*w.TaskDate)
		if err != nil {
			return t, err
		}
		t.TaskDate = &d
	}
	return t, nil
}

func (t DailyTask) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.toJSON())
}

func (t *DailyTask) UnmarshalJSON(b []byte) error {
	var w dailyTaskJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	parsed, err := w.task()
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type dayTaskJSON struct {
	dailyTaskJSON
	Date          string `json:"date"`
	CompletedByMe bool   `json:"completed_by_me"`
}

func (d DayTask) MarshalJSON() ([]byte, error) {
	w := dayTaskJSON{Date: d.Date, CompletedByMe: d.CompletedByMe}
	if d.DailyTask != nil {
		w.dailyTaskJSON = d.DailyTask.toJSON()
	}
	return json.Marshal(w)
}

func (d *DayTask) UnmarshalJSON(b []byte) error {
	var w dayTaskJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	t, err := w.task()
	if err != nil {
		return err
	}
	*d = DayTask{DailyTask: &t, Date: w.Date, CompletedByMe: w.CompletedByMe}
	return nil
}

type completionFields TaskCompletion

type completionJSON struct {
	completionFields
	CompletedDate string `json:"completed_date"`
}

func (c *TaskCompletion) toJSON() completionJSON {
	return completionJSON{
		completionFields: completionFields(*c),
		CompletedDate:    timewindow.FormatDate(c.CompletedDate),
	}
}

func (w *completionJSON) completion() (TaskCompletion, error) {
	c := TaskCompletion(w.completionFields)
	d, err := timewindow.ParseDate(w.CompletedDate)
	if err != nil {
		return c, err
	}
	c.CompletedDate = d
	return c, nil
}

func (c TaskCompletion) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.toJSON())
}

func (c *TaskCompletion) UnmarshalJSON(b []byte) error {
	var w completionJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	parsed, err := w.completion()
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

type completionDetailJSON struct {
	completionJSON
	DisplayName string  `json:"display_name"`
	PhotoURL    *string `json:"photo_url"`
}

func (d CompletionDetail) MarshalJSON() ([]byte, error) {
	w := completionDetailJSON{DisplayName: d.DisplayName, PhotoURL: d.PhotoURL}
	if d.TaskCompletion != nil {
		w.completionJSON = d.TaskCompletion.toJSON()
	}
	return json.Marshal(w)
}

func (d *CompletionDetail) UnmarshalJSON(b []byte) error {
	var w completionDetailJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	c, err := w.completion()
	if err != nil {
		return err
	}
	*d = CompletionDetail{TaskCompletion: &c, DisplayName: w.DisplayName, PhotoURL: w.PhotoURL}
	return nil
}
