package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"challengeEngineAPI/internal/types/challenge"
	"challengeEngineAPI/internal/types/task"
	"challengeEngineAPI/middleware"
	"challengeEngineAPI/services"
)

type ChallengeHandler struct {
	challengeService *services.ChallengeService
	log              *zap.Logger
}

func NewChallengeHandler(challengeService *services.ChallengeService, log *zap.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService: challengeService,
		log:              log,
	}
}

func requireUser(w http.ResponseWriter, ctx context.Context) (string, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
	}
	return clerkID, ok
}

func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := requireUser(w, ctx)
	if !ok {
		return
	}

	filter := challenge.ListFilter(r.URL.Query().Get("filter"))
	list, err := h.challengeService.ListChallenges(ctx, filter, clerkID)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusOK, list)
}

func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := requireUser(w, ctx)
	if !ok {
		return
	}

	var req challenge.CreateChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	created, err := h.challengeService.CreateChallenge(ctx, clerkID, &req)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// GetChallenge also serves anonymous callers on the public routes; the requester's
// participation is only attached when signed in.
func (h *ChallengeHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, _ := middleware.GetClerkID(ctx)
	challengeID, err := pathUUID(r, "id")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	detail, err := h.challengeService.GetChallengeDetail(ctx, challengeID, clerkID)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}

func (h *ChallengeHandler) DeleteChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := requireUser(w, ctx)
	if !ok {
		return
	}
	challengeID, err := pathUUID(r, "id")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	if err := h.challengeService.DeleteChallenge(ctx, challengeID, clerkID); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ChallengeHandler) JoinChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := requireUser(w, ctx)
	if !ok {
		return
	}
	challengeID, err := pathUUID(r, "id")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	participation, err := h.challengeService.JoinChallenge(ctx, challengeID, clerkID)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, participation)
}

func (h *ChallengeHandler) LeaveChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := requireUser(w, ctx)
	if !ok {
		return
	}
	challengeID, err := pathUUID(r, "id")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	if err := h.challengeService.LeaveChallenge(ctx, challengeID, clerkID); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ChallengeHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := requireUser(w, ctx)
	if !ok {
		return
	}
	challengeID, err := pathUUID(r, "id")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	board, err := h.challengeService.GetLeaderboard(ctx, challengeID, clerkID)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

// GetTasksForDay serves ?date=YYYY-MM-DD, defaulting to today. completed_by_me is only
// filled for signed in callers.
func (h *ChallengeHandler) GetTasksForDay(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, _ := middleware.GetClerkID(ctx)
	challengeID, err := pathUUID(r, "id")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	date, err := queryDate(r, "date")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	day := h.challengeService.Today()
	if date != nil {
		day = *date
	}

	tasks, err := h.challengeService.GetTasksForDay(ctx, challengeID, day, clerkID)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusOK, tasks)
}

func (h *ChallengeHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := requireUser(w, ctx)
	if !ok {
		return
	}
	challengeID, err := pathUUID(r, "id")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	taskID, err := pathUUID(r, "taskId")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	var req task.CompleteTaskRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	completion, err := h.challengeService.CompleteTask(ctx, challengeID, taskID, clerkID, &req)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, completion)
}

func (h *ChallengeHandler) GetTaskEngagement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if _, ok := requireUser(w, ctx); !ok {
		return
	}
	challengeID, err := pathUUID(r, "id")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	taskID, err := pathUUID(r, "taskId")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	date, err := queryDate(r, "date")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	engagement, err := h.challengeService.GetTaskEngagement(ctx, challengeID, taskID, date)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusOK, engagement)
}
