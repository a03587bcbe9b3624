package fasting

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
)

const sessionsCollection = "fasting_sessions"

// Activator starts a fasting session for a user in the fasting tracker.
type Activator interface {
	Activate(ctx context.Context, userID, fastingType string) error
}

// FirestoreActivator writes the user's active session document. The document is keyed
// by user, so a repeated activation overwrites rather than duplicates.
type FirestoreActivator struct {
	client *firestore.Client
}

func NewFirestoreActivator(client *firestore.Client) *FirestoreActivator {
	return &FirestoreActivator{client: client}
}

func (a *FirestoreActivator) Activate(ctx context.Context, userID, fastingType string) error {
	_, err := a.client.Collection(sessionsCollection).Doc(userID).Set(ctx, map[string]any{
		"userId":      userID,
		"fastingType": fastingType,
		"isActive":    true,
		"source":      "challenge_task",
		"startTime":   firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("activate fasting session for %s: %w", userID, err)
	}
	return nil
}

// LogActivator is used when Firebase is not configured.
type LogActivator struct {
	log *zap.Logger
}

func NewLogActivator(log *zap.Logger) *LogActivator {
	return &LogActivator{log: log}
}

func (a *LogActivator) Activate(ctx context.Context, userID, fastingType string) error {
	a.log.Info("fasting activation skipped, firebase not configured",
		zap.String("user_id", userID), zap.String("fasting_type", fastingType))
	return nil
}
