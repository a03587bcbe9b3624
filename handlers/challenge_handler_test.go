package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"challengeEngineAPI/internal/types/challenge"
)

func TestRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/v1/challenges", "", nil)
	requireStatus(t, rr, http.StatusUnauthorized)
	assert.Equal(t, "unauthorized", errorCode(t, rr))
}

func TestRejectsForgedToken(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.doRaw(t, http.MethodGet, "/api/v1/challenges", "Bearer not-a-jwt")
	requireStatus(t, rr, http.StatusUnauthorized)

	rr = ts.doRaw(t, http.MethodGet, "/api/v1/challenges", "Token abc")
	requireStatus(t, rr, http.StatusUnauthorized)
}

func TestCreateChallenge_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"zero duration", map[string]any{"name": "x", "type": "water", "duration": 0, "start_date": "2024-01-01"}},
		{"negative goal", map[string]any{"name": "x", "type": "water", "goal": -5, "duration": 7, "start_date": "2024-01-01"}},
		{"bad start date", map[string]any{"name": "x", "type": "water", "duration": 7, "start_date": "tomorrow"}},
		{"missing name", map[string]any{"type": "water", "duration": 7, "start_date": "2024-01-01"}},
		{"unknown type", map[string]any{"name": "x", "type": "chess", "duration": 7, "start_date": "2024-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/api/v1/challenges", "user_creator", tt.body)
			requireStatus(t, rr, http.StatusBadRequest)
			assert.Equal(t, "invalid_spec", errorCode(t, rr))
		})
	}

	rr := ts.do(t, http.MethodPost, "/api/v1/challenges", "user_creator", nil)
	requireStatus(t, rr, http.StatusBadRequest)
}

func TestListChallenges_Filters(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/challenges", "user_creator", newChallengeBody("2024-01-01"))
	requireStatus(t, rr, http.StatusCreated)
	first := decode[challenge.Summary](t, rr)
	requireStatus(t, ts.do(t, http.MethodPost, "/api/v1/challenges", "user_creator", newChallengeBody("2024-03-01")), http.StatusCreated)
	requireStatus(t, ts.do(t, http.MethodPost, "/api/v1/challenges/"+first.ID.String()+"/join", "user_alice", nil), http.StatusCreated)

	rr = ts.do(t, http.MethodGet, "/api/v1/challenges", "user_alice", nil)
	requireStatus(t, rr, http.StatusOK)
	assert.Len(t, decode[[]challenge.Summary](t, rr), 2)

	rr = ts.do(t, http.MethodGet, "/api/v1/challenges?filter=joined", "user_alice", nil)
	requireStatus(t, rr, http.StatusOK)
	joined := decode[[]challenge.Summary](t, rr)
	if assert.Len(t, joined, 1) {
		assert.Equal(t, first.ID, joined[0].ID)
		assert.Equal(t, 1, joined[0].ParticipantCount)
		assert.Equal(t, 5, joined[0].DaysRemaining)
	}

	rr = ts.do(t, http.MethodGet, "/api/v1/challenges?filter=created", "user_alice", nil)
	requireStatus(t, rr, http.StatusOK)
	assert.Empty(t, decode[[]challenge.Summary](t, rr))

	rr = ts.do(t, http.MethodGet, "/api/v1/challenges?filter=trending", "user_alice", nil)
	requireStatus(t, rr, http.StatusBadRequest)
}

func TestBadPathAndQueryParams(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/v1/challenges/not-a-uuid", "user_alice", nil)
	requireStatus(t, rr, http.StatusBadRequest)
	assert.Equal(t, "invalid_spec", errorCode(t, rr))

	rr = ts.do(t, http.MethodPost, "/api/v1/challenges", "user_creator", newChallengeBody("2024-01-01"))
	requireStatus(t, rr, http.StatusCreated)
	c := decode[challenge.Summary](t, rr)

	rr = ts.do(t, http.MethodGet, "/api/v1/challenges/"+c.ID.String()+"/tasks?date=03-01-2024", "user_alice", nil)
	requireStatus(t, rr, http.StatusBadRequest)

	rr = ts.do(t, http.MethodPost, "/api/v1/challenges/"+c.ID.String()+"/tasks/"+c.ID.String()+"/complete", "user_alice", nil)
	requireStatus(t, rr, http.StatusNotFound)
	assert.Equal(t, "task_not_found", errorCode(t, rr))
}

func TestCompleteTask_NotAParticipantAndNotStarted(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/challenges", "user_creator", newChallengeBody("2024-02-01"))
	requireStatus(t, rr, http.StatusCreated)
	c := decode[challenge.Summary](t, rr)
	assert.Equal(t, "upcoming", string(c.Status))

	rr = ts.do(t, http.MethodPost, "/api/v1/admin/challenges/"+c.ID.String()+"/tasks", "user_creator", map[string]any{
		"task_type": "exercise", "title": "Walk", "points": 5, "task_date": "2024-02-01",
	})
	requireStatus(t, rr, http.StatusCreated)
	taskID := decode[map[string]any](t, rr)["id"].(string)
	completePath := "/api/v1/challenges/" + c.ID.String() + "/tasks/" + taskID + "/complete"

	rr = ts.do(t, http.MethodPost, completePath, "user_alice", nil)
	requireStatus(t, rr, http.StatusForbidden)
	assert.Equal(t, "not_a_participant", errorCode(t, rr))

	requireStatus(t, ts.do(t, http.MethodPost, "/api/v1/challenges/"+c.ID.String()+"/join", "user_alice", nil), http.StatusCreated)
	rr = ts.do(t, http.MethodPost, completePath, "user_alice", nil)
	requireStatus(t, rr, http.StatusUnprocessableEntity)
	assert.Equal(t, "challenge_not_started", errorCode(t, rr))
}

func TestUpdateTask_ThroughAdminRoute(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/challenges", "user_creator", newChallengeBody("2024-01-01"))
	requireStatus(t, rr, http.StatusCreated)
	c := decode[challenge.Summary](t, rr)
	tasksPath := "/api/v1/admin/challenges/" + c.ID.String() + "/tasks"

	rr = ts.do(t, http.MethodPost, tasksPath, "user_creator", map[string]any{
		"task_type": "meal", "title": "Veggie lunch", "points": 5, "day_of_challenge": 2,
	})
	requireStatus(t, rr, http.StatusCreated)
	taskID := decode[map[string]any](t, rr)["id"].(string)

	rr = ts.do(t, http.MethodPut, tasksPath+"/"+taskID, "admin", map[string]any{
		"task_type": "meal", "title": "Veggie dinner", "points": 8, "day_of_challenge": 2,
	})
	requireStatus(t, rr, http.StatusOK)
	updated := decode[map[string]any](t, rr)
	assert.Equal(t, taskID, updated["id"])
	assert.Equal(t, "Veggie dinner", updated["title"])

	rr = ts.do(t, http.MethodPut, tasksPath+"/"+taskID, "admin", map[string]any{
		"task_type": "meal", "title": "Both", "day_of_challenge": 2, "task_date": "2024-01-02",
	})
	requireStatus(t, rr, http.StatusBadRequest)

	requireStatus(t, ts.do(t, http.MethodDelete, tasksPath+"/"+taskID, "user_creator", nil), http.StatusOK)
}

func TestPublicRoutes_TokenOptional(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/challenges", "user_creator", newChallengeBody("2024-01-01"))
	requireStatus(t, rr, http.StatusCreated)
	c := decode[challenge.Summary](t, rr)
	rr = ts.do(t, http.MethodPost, "/api/v1/admin/challenges/"+c.ID.String()+"/tasks", "user_creator", map[string]any{
		"task_type": "water", "title": "Drink 2L", "points": 5, "day_of_challenge": 3,
	})
	requireStatus(t, rr, http.StatusCreated)
	taskID := decode[map[string]any](t, rr)["id"].(string)

	requireStatus(t, ts.do(t, http.MethodPost, "/api/v1/challenges/"+c.ID.String()+"/join", "user_alice", nil), http.StatusCreated)
	requireStatus(t, ts.do(t, http.MethodPost, "/api/v1/challenges/"+c.ID.String()+"/tasks/"+taskID+"/complete", "user_alice", nil), http.StatusCreated)

	requireStatus(t, ts.do(t, http.MethodGet, "/api/v1/challenges/"+c.ID.String()+"/tasks", "", nil), http.StatusUnauthorized)

	rr = ts.do(t, http.MethodGet, "/api/v1/public/challenges/"+c.ID.String()+"/tasks", "", nil)
	requireStatus(t, rr, http.StatusOK)
	anon := decode[[]map[string]any](t, rr)
	assert.Len(t, anon, 1)
	assert.Equal(t, false, anon[0]["completed_by_me"])

	rr = ts.do(t, http.MethodGet, "/api/v1/public/challenges/"+c.ID.String()+"/tasks", "user_alice", nil)
	requireStatus(t, rr, http.StatusOK)
	mine := decode[[]map[string]any](t, rr)
	assert.Equal(t, true, mine[0]["completed_by_me"])

	rr = ts.do(t, http.MethodGet, "/api/v1/public/challenges/"+c.ID.String(), "", nil)
	requireStatus(t, rr, http.StatusOK)
	assert.Nil(t, decode[challenge.Detail](t, rr).Participation)

	rr = ts.doRaw(t, http.MethodGet, "/api/v1/public/challenges/"+c.ID.String(), "Bearer not-a-jwt")
	requireStatus(t, rr, http.StatusOK)
}
