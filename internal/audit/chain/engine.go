package chain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"audittrail/internal/audit/metrics"
	"audittrail/internal/audit/models"
	"audittrail/pkg/platform/sentinel"
	"audittrail/pkg/platform/tx"
)

const (
	defaultMaxRetries      = 5
	defaultInitialInterval = 10 * time.Millisecond
	defaultMaxInterval     = 500 * time.Millisecond
)

// LinkFunc positions an unlinked entry after the given tail.
type LinkFunc func(tail models.Tail) *models.Entry

// Store is the durable side of the chain.
//
// AppendLinked must hold exclusive access to the chain tail for the whole call:
// read the tail, call link, persist the returned entry and advance the tail as one
// atomic unit. On error nothing is persisted. Transient failures (serialization,
// deadlock, lock timeout) are reported as sentinel.ErrConflict.
type Store interface {
	AppendLinked(ctx context.Context, link LinkFunc) (*models.Entry, error)
}

// Option configures an Engine or Verifier.
type Option func(*config)

type config struct {
	logger          *slog.Logger
	metrics         *metrics.Metrics
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithRetry sets how many times a conflicting append is retried and the backoff bounds.
func WithRetry(maxRetries int, initial, maxInterval time.Duration) Option {
	return func(c *config) {
		if maxRetries >= 0 {
			c.maxRetries = uint64(maxRetries)
		}
		if initial > 0 {
			c.initialInterval = initial
		}
		if maxInterval > 0 {
			c.maxInterval = maxInterval
		}
	}
}

func newConfig(opts []Option) config {
	c := config{
		logger:          slog.Default(),
		maxRetries:      defaultMaxRetries,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Engine is the single write path of the chain.
type Engine struct {
	store  Store
	cfg    config
	tracer trace.Tracer
}

func NewEngine(store Store, opts ...Option) *Engine {
	return &Engine{
		store:  store,
		cfg:    newConfig(opts),
		tracer: otel.Tracer("audittrail/chain"),
	}
}

// AppendWithLinkage links entry to the current tail and persists it. The input entry
// is not modified; the stored, linked copy is returned.
//
// Conflicts are retried with exponential backoff from a fresh tail read. When the
// context carries a caller transaction the append joins it and is not retried, since
// the caller owns commit and rollback. After the last failed attempt the error is a
// *models.ChainAppendError and nothing was persisted.
func (e *Engine) AppendWithLinkage(ctx context.Context, entry *models.Entry) (*models.Entry, error) {
	ctx, span := e.tracer.Start(ctx, "chain.AppendWithLinkage",
		trace.WithAttributes(attribute.String("audit.event_type", string(entry.EventType))))
	defer span.End()

	start := time.Now()
	defer func() { e.cfg.metrics.ObserveAppendLatency(time.Since(start)) }()

	link := func(tail models.Tail) *models.Entry { return Link(entry, tail) }

	_, inCallerTx := tx.From(ctx)

	var (
		stored   *models.Entry
		attempts int
	)
	op := func() error {
		attempts++
		s, err := e.store.AppendLinked(ctx, link)
		if err == nil {
			stored = s
			e.cfg.metrics.IncAppendAttempt("ok")
			return nil
		}
		if isRetryable(err) && !inCallerTx {
			e.cfg.metrics.IncAppendAttempt("conflict")
			return err
		}
		e.cfg.metrics.IncAppendAttempt("failed")
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		e.cfg.logger.WarnContext(ctx, "chain append conflict, retrying",
			"event_type", entry.EventType,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, e.newBackOff(ctx), notify); err != nil {
		appendErr := &models.ChainAppendError{Attempts: attempts, Err: err}
		span.RecordError(appendErr)
		span.SetStatus(codes.Error, "append failed")
		return nil, appendErr
	}

	span.SetAttributes(attribute.Int64("audit.sequence", stored.Sequence))
	return stored, nil
}

func (e *Engine) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.cfg.initialInterval
	exp.MaxInterval = e.cfg.maxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, e.cfg.maxRetries), ctx)
}

func isRetryable(err error) bool {
	return errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrUnavailable)
}
