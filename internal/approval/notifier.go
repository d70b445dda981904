package approval

import (
	"context"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/approval-engine/internal/logger"
)

// EventType identifies a workflow event for the notification dispatcher.
type EventType string

// Workflow events that may trigger a notification.
const (
	EventSubmission EventType = "submission"
	EventApproval   EventType = "approval"
	EventRejection  EventType = "rejection"
	EventEscalation EventType = "escalation"
	EventReminder   EventType = "reminder"
)

// RequestSummary is the denormalized payload handed to the notifier. It
// carries enough context to render a message without another store read.
type RequestSummary struct {
	RequestID       string
	ReceiptID       int64
	CompanyID       int64
	SubmitterID     int64
	Amount          decimal.Decimal
	Category        string
	Vendor          string
	Status          string
	EscalationLevel int
}

// Notifier is the fire-and-forget dispatch hook. Implementations deliver to
// email/chat/etc. Delivery failures must never change a request's persisted
// status; the engine logs and swallows any error returned here.
type Notifier interface {
	Notify(ctx context.Context, recipients []int64, event EventType, summary RequestSummary) error
}

// LogNotifier is the in-tree Notifier: it only writes a structured log line.
// Useful for development and as a default when no dispatcher is wired.
type LogNotifier struct{}

// Notify logs the event.
func (LogNotifier) Notify(_ context.Context, recipients []int64, event EventType, summary RequestSummary) error {
	hashed := make([]string, len(recipients))
	for i, id := range recipients {
		hashed[i] = logger.HashActorID(id)
	}
	logger.Log.Info().
		Str("event", string(event)).
		Str("request_id", summary.RequestID).
		Int64("company_id", summary.CompanyID).
		Strs("recipient_hashes", hashed).
		Str("status", summary.Status).
		Msg("Notification dispatched")
	return nil
}
