package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"challengeEngineAPI/middleware"
	"challengeEngineAPI/services"
)

type RouterConfig struct {
	ChallengeService *services.ChallengeService
	Auth             *middleware.Authenticator
	// RateLimiter and MetricsHandler are optional.
	RateLimiter    *middleware.RateLimiter
	MetricsHandler http.Handler
	MetricsUser    string
	MetricsPass    string
	WebhookSecret  string
	Health         func(ctx context.Context) error
	Log            *zap.Logger
}

func NewRouter(cfg RouterConfig) *mux.Router {
	challengeHandler := NewChallengeHandler(cfg.ChallengeService, cfg.Log)
	adminHandler := NewAdminHandler(cfg.ChallengeService, cfg.Log)

	router := mux.NewRouter()
	router.Use(middleware.MonitorMiddleware)
	router.Use(middleware.RequestLogger(cfg.Log))
	if cfg.RateLimiter != nil {
		router.Use(cfg.RateLimiter.Middleware)
	}

	if cfg.MetricsHandler != nil {
		router.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(cfg.MetricsHandler)).Methods("GET")
	}

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if cfg.Health != nil {
			if err := cfg.Health(ctx); err != nil {
				cfg.Log.Warn("health check failed", zap.Error(err))
				respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": "database connection failed"})
				return
			}
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "challenge-engine-api"})
	}).Methods("GET")

	// Without a signing secret anyone could post user.deleted, so the route stays off.
	if webhookHandler, err := NewWebhookHandler(cfg.ChallengeService, cfg.WebhookSecret, cfg.Log); err != nil {
		cfg.Log.Warn("clerk webhook disabled", zap.Error(err))
	} else {
		router.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")
	}

	// -------------------------------------------------------------------------
	// PUBLIC ROUTES (TOKEN OPTIONAL)
	// -------------------------------------------------------------------------
	public := router.PathPrefix("/api/v1/public").Subrouter()
	public.Use(cfg.Auth.OptionalAuth)

	public.HandleFunc("/challenges/{id}", challengeHandler.GetChallenge).Methods("GET")
	public.HandleFunc("/challenges/{id}/tasks", challengeHandler.GetTasksForDay).Methods("GET")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(cfg.Auth.RequireAuth)

	api.HandleFunc("/challenges", challengeHandler.ListChallenges).Methods("GET")
	api.HandleFunc("/challenges", challengeHandler.CreateChallenge).Methods("POST")
	api.HandleFunc("/challenges/{id}", challengeHandler.GetChallenge).Methods("GET")
	api.HandleFunc("/challenges/{id}", challengeHandler.DeleteChallenge).Methods("DELETE")
	api.HandleFunc("/challenges/{id}/join", challengeHandler.JoinChallenge).Methods("POST")
	api.HandleFunc("/challenges/{id}/leave", challengeHandler.LeaveChallenge).Methods("POST")
	api.HandleFunc("/challenges/{id}/leaderboard", challengeHandler.GetLeaderboard).Methods("GET")
	api.HandleFunc("/challenges/{id}/tasks", challengeHandler.GetTasksForDay).Methods("GET")
	api.HandleFunc("/challenges/{id}/tasks/{taskId}/complete", challengeHandler.CompleteTask).Methods("POST")
	api.HandleFunc("/challenges/{id}/tasks/{taskId}/engagement", challengeHandler.GetTaskEngagement).Methods("GET")

	api.HandleFunc("/admin/challenges/{id}/tasks", adminHandler.CreateTask).Methods("POST")
	api.HandleFunc("/admin/challenges/{id}/tasks/{taskId}", adminHandler.UpdateTask).Methods("PUT")
	api.HandleFunc("/admin/challenges/{id}/tasks/{taskId}", adminHandler.DeleteTask).Methods("DELETE")
	api.HandleFunc("/admin/challenges/{id}/tasks/{taskId}/completions", adminHandler.GetCompletionDetails).Methods("GET")
	api.HandleFunc("/admin/challenges/{id}/tasks/{taskId}/engagement/refresh", adminHandler.RefreshEngagement).Methods("POST")

	return router
}
