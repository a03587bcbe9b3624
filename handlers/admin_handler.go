package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"challengeEngineAPI/internal/types/task"
	"challengeEngineAPI/services"
)

// AdminHandler serves task authoring and inspection. The engine checks that the caller
// created the challenge or is a configured admin.
type AdminHandler struct {
	challengeService *services.ChallengeService
	log              *zap.Logger
}

func NewAdminHandler(challengeService *services.ChallengeService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		challengeService: challengeService,
		log:              log,
	}
}

func (h *AdminHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
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

	var req task.CreateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	created, err := h.challengeService.CreateTask(ctx, challengeID, clerkID, &req)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *AdminHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
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

	var req task.CreateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	updated, err := h.challengeService.UpdateTask(ctx, challengeID, taskID, clerkID, &req)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *AdminHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
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

	if err := h.challengeService.DeleteTask(ctx, challengeID, taskID, clerkID); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) GetCompletionDetails(w http.ResponseWriter, r *http.Request) {
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

	details, err := h.challengeService.GetCompletionDetails(ctx, challengeID, taskID, clerkID)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusOK, details)
}

// RefreshEngagement recomputes and re-caches one task's engagement. ?date= overrides the
// task's scheduled day.
func (h *AdminHandler) RefreshEngagement(w http.ResponseWriter, r *http.Request) {
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
	date, err := queryDate(r, "date")
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	engagement, err := h.challengeService.UpdateTaskEngagementSnapshot(ctx, challengeID, taskID, clerkID, date)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusOK, engagement)
}
