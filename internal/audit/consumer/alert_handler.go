package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"audittrail/internal/audit/models"
	"audittrail/internal/platform/kafka/consumer"
)

// Alerter delivers one notification to its destinations.
type Alerter interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

// AlertHandler decodes notifications from the alerts topic and hands them to an Alerter.
// Malformed records are logged and skipped.
type AlertHandler struct {
	alerter Alerter
	logger  *slog.Logger
}

func NewAlertHandler(alerter Alerter, logger *slog.Logger) *AlertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertHandler{alerter: alerter, logger: logger}
}

func (h *AlertHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var n models.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		h.logger.WarnContext(ctx, "failed to unmarshal notification",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if n.EntryID == uuid.Nil || !n.EventType.IsValid() {
		h.logger.WarnContext(ctx, "skipping notification without entry id or known event type",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)
		return nil
	}
	if !n.RequiresAlert {
		h.logger.DebugContext(ctx, "notification does not require an alert", "entry_id", n.EntryID)
		return nil
	}

	if err := h.alerter.Dispatch(ctx, n); err != nil {
		return fmt.Errorf("dispatch alert for entry %s: %w", n.EntryID, err)
	}
	return nil
}
