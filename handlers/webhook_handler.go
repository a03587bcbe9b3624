package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	"challengeEngineAPI/services"
)

type clerkWebhookEvent struct {
	Type   string          `json:"type"`
	Object string          `json:"object"`
	Data   json.RawMessage `json:"data"`
}

// WebhookHandler receives Clerk (svix-signed) events.
type WebhookHandler struct {
	challengeService *services.ChallengeService
	webhook          *svix.Webhook
	log              *zap.Logger
}

// NewWebhookHandler takes the "whsec_" signing secret from the Clerk dashboard.
func NewWebhookHandler(challengeService *services.ChallengeService, webhookSecret string, log *zap.Logger) (*WebhookHandler, error) {
	if webhookSecret == "" {
		return nil, fmt.Errorf("clerk webhook secret is not set")
	}
	wh, err := svix.NewWebhook(webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid clerk webhook secret: %w", err)
	}
	return &WebhookHandler{
		challengeService: challengeService,
		webhook:          wh,
		log:              log,
	}, nil
}

func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.log.Warn("reading webhook body", zap.Error(err))
		respondWithError(w, http.StatusBadRequest, "invalid_spec", "Error reading body")
		return
	}

	// Verify checks the svix-id/svix-timestamp/svix-signature headers and the timestamp tolerance.
	if err := h.webhook.Verify(body, r.Header); err != nil {
		h.log.Warn("invalid webhook signature", zap.Error(err))
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "Invalid signature")
		return
	}

	var event clerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.log.Warn("parsing webhook", zap.Error(err))
		respondWithError(w, http.StatusBadRequest, "invalid_spec", "Error parsing webhook")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	switch event.Type {
	case "user.deleted":
		if err := h.handleUserDeleted(ctx, event.Data); err != nil {
			h.log.Error("handling user.deleted", zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, "unavailable", "Error processing webhook")
			return
		}
	default:
		h.log.Debug("unhandled webhook event", zap.String("type", event.Type))
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *WebhookHandler) handleUserDeleted(ctx context.Context, data json.RawMessage) error {
	var userData struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	if userData.ID == "" {
		return fmt.Errorf("user.deleted event without user id")
	}

	return h.challengeService.DeleteUserData(ctx, userData.ID)
}
