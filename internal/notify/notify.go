// Package notify delivers outgoing messages to users and administrators.
package notify

import (
	"context"
	"fmt"

	"github.com/goodtune/attendance/internal/metrics"
	"github.com/rs/zerolog"
)

// Kind classifies a message for routing and metrics.
type Kind string

const (
	KindCheckIn       Kind = "checkin"
	KindCheckOut      Kind = "checkout"
	KindReminder      Kind = "reminder"
	KindAdminAlert    Kind = "admin_alert"
	KindAdminActivity Kind = "admin_activity"
)

// Notifier delivers one message to one recipient.
type Notifier interface {
	Send(ctx context.Context, recipient int64, kind Kind, text string) error
}

// DeliveryError reports a failed delivery to a single recipient.
type DeliveryError struct {
	Recipient int64
	Kind      Kind
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %d: %v", e.Kind, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Broadcast sends text to every recipient. A failure for one recipient is logged
// and counted but does not stop delivery to the rest. Returns the number delivered
// and the per-recipient failures.
func Broadcast(ctx context.Context, n Notifier, logger zerolog.Logger, recipients []int64, kind Kind, text string) (int, []*DeliveryError) {
	delivered := 0
	var failures []*DeliveryError

	for _, recipient := range recipients {
		if err := n.Send(ctx, recipient, kind, text); err != nil {
			derr := &DeliveryError{Recipient: recipient, Kind: kind, Err: err}
			failures = append(failures, derr)
			metrics.NotificationFailures.WithLabelValues(string(kind)).Inc()
			logger.Warn().
				Err(err).
				Int64("recipient", recipient).
				Str("kind", string(kind)).
				Msg("Notification delivery failed")
			continue
		}
		delivered++
	}

	return delivered, failures
}
