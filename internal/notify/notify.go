// Package notify delivers completed-intake alerts to the on-call doctor.
package notify

import (
	"context"
	"log/slog"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
)

// Notifier receives the snapshot of a finished intake exactly once, when the
// conversation transitions to complete.
type Notifier interface {
	NotifyComplete(ctx context.Context, snapshot models.IntakeSnapshot) error
}

// LogNotifier writes completion alerts to the structured log. It is the
// default sink when no Telegram credentials are configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyComplete logs the completed intake summary.
func (n *LogNotifier) NotifyComplete(_ context.Context, snapshot models.IntakeSnapshot) error {
	slog.Info("Intake complete", "conversationID", snapshot.ConversationID,
		"name", snapshot.Name, "symptom", snapshot.Symptom, "answers", len(snapshot.Answers))
	return nil
}
