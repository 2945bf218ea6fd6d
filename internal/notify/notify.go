package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

const appName = "VoiceNotes"

// Notifier delivers desktop notifications to the user
type Notifier struct {
	enabled bool
	logger  *slog.Logger
}

// New creates a notifier; a disabled notifier only logs
func New(enabled bool, logger *slog.Logger) *Notifier {
	return &Notifier{
		enabled: enabled,
		logger:  logger,
	}
}

// Info shows an informational notification
func (n *Notifier) Info(title, message string) {
	n.logger.Info("Notification",
		slog.String("title", title),
		slog.String("message", message),
	)

	if !n.enabled {
		return
	}

	if err := beeep.Notify(appName+": "+title, message, ""); err != nil {
		n.logger.Warn("Failed to show notification", slog.String("error", err.Error()))
	}
}

// Error shows an alert notification for a failure
func (n *Notifier) Error(title, message string) {
	n.logger.Error("Notification",
		slog.String("title", title),
		slog.String("message", message),
	)

	if !n.enabled {
		return
	}

	if err := beeep.Alert(appName+": "+title, message, ""); err != nil {
		n.logger.Warn("Failed to show notification", slog.String("error", err.Error()))
	}
}
