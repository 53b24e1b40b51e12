package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"audittrail/internal/audit/models"
)

// Dispatcher fans a notification out to every matching webhook.
type Dispatcher struct {
	webhooks []Webhook
	sender   *Sender
	logger   *slog.Logger
}

// NewDispatcher returns nil when no webhooks are configured; a nil Dispatcher
// drops every notification.
func NewDispatcher(webhooks []Webhook, sender *Sender, logger *slog.Logger) *Dispatcher {
	if len(webhooks) == 0 {
		return nil
	}
	if sender == nil {
		sender = NewSender()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{webhooks: webhooks, sender: sender, logger: logger}
}

// Dispatch sends n to matching webhooks concurrently and waits for all of them.
// The returned error joins every failed delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, n models.Notification) error {
	if d == nil {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, w := range d.webhooks {
		if !w.Matches(n) {
			continue
		}
		g.Go(func() error {
			err := d.sender.Send(ctx, w, n)
			if err != nil {
				d.logger.ErrorContext(ctx, "alert delivery failed",
					"webhook", w.Name,
					"entry_id", n.EntryID,
					"event_type", n.EventType,
					"error", err,
				)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			d.logger.InfoContext(ctx, "alert delivered",
				"webhook", w.Name,
				"entry_id", n.EntryID,
				"event_type", n.EventType,
			)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
