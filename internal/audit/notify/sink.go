package notify

import (
	"context"
	"log/slog"

	"audittrail/internal/audit/models"
)

// Sink delivers notifications to one destination. Delivery is at-most-once:
// a failed batch is not retried.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, batch []models.Notification) error
}

// LogSink writes notifications to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, batch []models.Notification) error {
	for _, n := range batch {
		level := slog.LevelInfo
		msg := "audit entry recorded"
		if n.RequiresAlert {
			level = slog.LevelWarn
			msg = "audit entry requires attention"
		}
		s.logger.Log(ctx, level, msg,
			"entry_id", n.EntryID,
			"sequence", n.Sequence,
			"event_type", n.EventType,
			"entity_type", n.EntityType,
			"entity_id", n.EntityID,
			"user_id", n.UserID,
			"critical", n.Critical,
		)
	}
	return nil
}
