package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes messages to the log. Used when no chat transport is wired.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

// Send logs the message.
func (n *LogNotifier) Send(ctx context.Context, recipient int64, kind Kind, text string) error {
	n.logger.Info().
		Int64("recipient", recipient).
		Str("kind", string(kind)).
		Str("text", text).
		Msg("Notification")
	return nil
}
