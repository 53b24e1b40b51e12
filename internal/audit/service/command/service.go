// Package command is the write side of the audit trail.
//
// Callers describe what happened in a models.LogContext. The service fills missing
// actor and request metadata from the request context, classifies the entry, applies
// the retention policy and appends it through the hash chain engine. Committed
// entries are announced to the notifier without waiting for delivery.
//
// Whether an audit failure aborts the caller's operation is the caller's decision:
// legally mandated events (consent, deletion) should treat it as fatal, telemetry
// events may log and continue.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"audittrail/internal/audit/metrics"
	"audittrail/internal/audit/models"
	"audittrail/internal/audit/policy"
	"audittrail/internal/audit/worker"
	"audittrail/pkg/platform/sentinel"
	"audittrail/pkg/platform/tx"
	"audittrail/pkg/requestcontext"
)

const defaultAsyncTimeout = 30 * time.Second

// Appender is the hash chain write path.
type Appender interface {
	AppendWithLinkage(ctx context.Context, entry *models.Entry) (*models.Entry, error)
}

// Notifier receives announcements of committed entries. Notify must not block.
type Notifier interface {
	Notify(n models.Notification)
}

type Service struct {
	appender     Appender
	notifier     Notifier
	pool         *worker.Pool
	logger       *slog.Logger
	metrics      *metrics.Metrics
	asyncTimeout time.Duration
	tracer       trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotifier enables announcements of committed entries.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPool sets the bounded pool used by LogAsync.
func WithPool(p *worker.Pool) Option {
	return func(s *Service) { s.pool = p }
}

// WithAsyncTimeout bounds how long one async append may take once started.
func WithAsyncTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.asyncTimeout = d
		}
	}
}

func New(appender Appender, opts ...Option) *Service {
	s := &Service{
		appender:     appender,
		logger:       slog.Default(),
		asyncTimeout: defaultAsyncTimeout,
		tracer:       otel.Tracer("audittrail/command"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = worker.NewPool(0, false)
	}
	return s
}

// Append builds, classifies and durably appends one entry and returns the stored
// entry. When ctx carries a caller transaction the entry is not announced, since the
// caller may still roll back; call Announce after commit instead.
func (s *Service) Append(ctx context.Context, lc models.LogContext) (*models.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "command.Append",
		trace.WithAttributes(attribute.String("audit.event_type", string(lc.EventType))))
	defer span.End()

	entry, err := s.build(ctx, lc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid entry")
		s.metrics.IncWriteFailure()
		return nil, err
	}

	stored, err := s.appender.AppendWithLinkage(ctx, entry)
	if err != nil {
		writeErr := &models.AuditWriteError{EventType: entry.EventType, Err: err}
		span.RecordError(writeErr)
		span.SetStatus(codes.Error, "append failed")
		s.metrics.IncWriteFailure()
		s.logFailure(ctx, entry, err)
		return nil, writeErr
	}

	s.metrics.IncEntryWritten(string(stored.EventType))
	if _, inCallerTx := tx.From(ctx); !inCallerTx {
		s.Announce(stored)
	}
	return stored, nil
}

// LogSync appends one entry and returns its ID once it is durable.
func (s *Service) LogSync(ctx context.Context, lc models.LogContext) (uuid.UUID, error) {
	e, err := s.Append(ctx, lc)
	if err != nil {
		return uuid.Nil, err
	}
	return e.ID, nil
}

// Log is the write surface for collaborators. It is LogSync.
func (s *Service) Log(ctx context.Context, lc models.LogContext) (uuid.UUID, error) {
	return s.LogSync(ctx, lc)
}

// LogAsync runs the append on the bounded pool and returns immediately with a
// receipt. Every outcome, including a busy pool, is delivered through the receipt.
//
// The append runs detached from ctx cancellation and from any caller transaction,
// bounded by the async timeout. Two async calls are not ordered relative to each
// other; the persisted sequence is the only order.
func (s *Service) LogAsync(ctx context.Context, lc models.LogContext) *Receipt {
	r := newReceipt()

	// Resolve actor, metadata and time now, while the request context is still valid.
	entry, err := s.build(ctx, lc)
	if err != nil {
		s.metrics.IncWriteFailure()
		r.resolve(uuid.Nil, err)
		return r
	}
	resolved := contextFor(entry, lc)

	detached := tx.Detach(context.WithoutCancel(ctx))
	submitErr := s.pool.Submit(ctx, func() {
		s.metrics.AsyncStarted()
		defer s.metrics.AsyncFinished()

		taskCtx, cancel := context.WithTimeout(requestcontext.WithTime(detached, entry.Timestamp), s.asyncTimeout)
		defer cancel()

		id, err := s.LogSync(taskCtx, resolved)
		r.resolve(id, err)
	})
	if submitErr != nil {
		if errors.Is(submitErr, sentinel.ErrBusy) {
			s.metrics.IncAsyncRejected()
		}
		s.metrics.IncWriteFailure()
		r.resolve(uuid.Nil, &models.AuditWriteError{EventType: lc.EventType, Err: submitErr})
	}
	return r
}

// LogSecurityEvent records a security event that is not tied to one stored record.
// The entity ID is synthesized; details become the entry's new value.
func (s *Service) LogSecurityEvent(ctx context.Context, eventType models.EventType, details map[string]any) (uuid.UUID, error) {
	payload, err := marshalDetails(details)
	if err != nil {
		return uuid.Nil, err
	}
	return s.LogSync(ctx, models.LogContext{
		EventType:  eventType,
		EntityType: "SecurityEvent",
		EntityID:   models.SyntheticEntityID("SEC"),
		Source:     models.SourceSystem,
		NewValue:   payload,
	})
}

// LogExport records a data export with its parameters.
func (s *Service) LogExport(ctx context.Context, exportType string, parameters map[string]any) (uuid.UUID, error) {
	payload, err := marshalDetails(parameters)
	if err != nil {
		return uuid.Nil, err
	}
	return s.LogSync(ctx, models.LogContext{
		EventType:    models.EventDataExport,
		EntityType:   "Export",
		EntityID:     models.SyntheticEntityID("EXPORT"),
		Source:       models.SourceAPI,
		ChangeReason: "export: " + exportType,
		NewValue:     payload,
	})
}

// Announce hands a committed entry to the notifier, if one is configured.
func (s *Service) Announce(e *models.Entry) {
	if s.notifier == nil || e == nil {
		return
	}
	s.notifier.Notify(models.NotificationFor(e))
}

// Close waits for in-flight async appends.
func (s *Service) Close(ctx context.Context) error {
	return s.pool.Close(ctx)
}

func (s *Service) build(ctx context.Context, lc models.LogContext) (*models.Entry, error) {
	if lc.Actor.IsZero() {
		lc.Actor = actorFrom(ctx)
	}
	if lc.Source == "" && lc.Actor.IsSystem() {
		lc.Source = models.SourceSystem
	}
	if lc.Request.IsZero() {
		lc.Request = models.RequestMetadata{
			IPAddress:   requestcontext.ClientIP(ctx),
			UserAgent:   requestcontext.UserAgent(ctx),
			SessionID:   requestcontext.SessionID(ctx),
			RequestID:   requestcontext.RequestID(ctx),
			APIEndpoint: requestcontext.APIEndpoint(ctx),
		}
	}

	entry, err := models.NewEntry(lc, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	policy.Apply(entry)
	return entry, nil
}

func (s *Service) logFailure(ctx context.Context, e *models.Entry, err error) {
	msg := "audit write failed"
	if e.IsComplianceRelevant || e.IsCritical {
		msg = "CRITICAL: audit write failed"
	}
	s.logger.ErrorContext(ctx, msg,
		"event_type", e.EventType,
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"user_id", e.UserID,
		"error", err,
	)
}

func actorFrom(ctx context.Context) models.Actor {
	p := requestcontext.Actor(ctx)
	if p.IsZero() {
		return models.SystemActor()
	}
	name := p.UserName
	if name == "" {
		name = p.UserID
	}
	return models.Actor{UserID: p.UserID, UserName: name, UserRole: p.Role}
}

// contextFor turns a built entry back into a fully resolved log context so the
// async task does not depend on the request context.
func contextFor(e *models.Entry, lc models.LogContext) models.LogContext {
	lc.Actor = e.Actor()
	lc.Source = e.Source
	lc.Request = models.RequestMetadata{
		IPAddress:   e.IPAddress,
		UserAgent:   e.UserAgent,
		SessionID:   e.SessionID,
		RequestID:   e.RequestID,
		APIEndpoint: e.APIEndpoint,
	}
	return lc
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if len(details) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	return b, nil
}
