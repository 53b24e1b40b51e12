// Package retention runs the purge of entries whose retention period has elapsed.
//
// Every purge is recorded in the chain before anything is removed: the DATA_PURGE
// entry is appended, then the expired entries are deleted, all under the exclusive
// purge lock. With the Postgres store both happen in one transaction.
package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"audittrail/internal/audit/models"
	"audittrail/pkg/platform/tx"
)

const defaultInterval = 24 * time.Hour

// Purger is the retention side of the query service.
type Purger interface {
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Recorder appends the purge record and announces it once committed.
type Recorder interface {
	Append(ctx context.Context, lc models.LogContext) (*models.Entry, error)
	Announce(e *models.Entry)
}

// Locker provides the exclusive purge lock.
type Locker interface {
	WithPurgeLock(ctx context.Context, exclusive bool, fn func(ctx context.Context) error) error
}

// Result describes one purge run.
type Result struct {
	Cutoff       time.Time `json:"cutoff"`
	Eligible     int64     `json:"eligible"`
	Deleted      int64     `json:"deleted"`
	PurgeEntryID uuid.UUID `json:"purge_entry_id"`
}

type Job struct {
	purger   Purger
	recorder Recorder
	locker   Locker
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// Option configures the Job.
type Option func(*Job)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) { j.logger = logger }
}

// WithInterval sets how often Run purges.
func WithInterval(d time.Duration) Option {
	return func(j *Job) {
		if d > 0 {
			j.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

func NewJob(purger Purger, recorder Recorder, locker Locker, opts ...Option) *Job {
	j := &Job{
		purger:   purger,
		recorder: recorder,
		locker:   locker,
		logger:   slog.Default(),
		interval: defaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// RunOnce purges entries whose retention ended before cutoff. A zero cutoff means
// now. When nothing is eligible no purge entry is written.
func (j *Job) RunOnce(ctx context.Context, cutoff time.Time) (Result, error) {
	if cutoff.IsZero() {
		cutoff = j.now()
	}
	result := Result{Cutoff: cutoff}

	var (
		recorded      *models.Entry
		announceLater bool
	)
	err := j.locker.WithPurgeLock(ctx, true, func(ctx context.Context) error {
		eligible, err := j.purger.CountOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("count expired entries: %w", err)
		}
		result.Eligible = eligible
		if eligible == 0 {
			return nil
		}

		payload, err := json.Marshal(map[string]any{
			"cutoff":   cutoff.UTC().Format(time.RFC3339),
			"eligible": eligible,
		})
		if err != nil {
			return fmt.Errorf("marshal purge record: %w", err)
		}

		recorded, err = j.recorder.Append(ctx, models.LogContext{
			EventType:    models.EventDataPurge,
			EntityType:   "AuditTrail",
			EntityID:     models.SyntheticEntityID("PURGE"),
			Actor:        models.SystemActor(),
			Source:       models.SourceSystem,
			ChangeReason: "retention period elapsed",
			NewValue:     payload,
		})
		if err != nil {
			return fmt.Errorf("record purge: %w", err)
		}
		_, announceLater = tx.From(ctx)

		deleted, err := j.purger.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return err
		}
		result.Deleted = deleted
		result.PurgeEntryID = recorded.ID
		return nil
	})
	if err != nil {
		j.logger.ErrorContext(ctx, "CRITICAL: retention purge failed",
			"cutoff", cutoff,
			"error", err,
		)
		return Result{Cutoff: cutoff}, err
	}

	if announceLater {
		j.recorder.Announce(recorded)
	}
	if result.Deleted > 0 {
		j.logger.InfoContext(ctx, "retention purge completed",
			"cutoff", cutoff,
			"deleted", result.Deleted,
			"purge_entry_id", result.PurgeEntryID,
		)
	}
	return result, nil
}

// Run purges on every interval tick until ctx is done. Failed runs are logged and
// retried on the next tick.
func (j *Job) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Errors are already logged by RunOnce.
			_, _ = j.RunOnce(ctx, time.Time{})
		}
	}
}
