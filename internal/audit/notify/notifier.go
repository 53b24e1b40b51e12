// Package notify hands committed audit entries to listeners without touching the
// write path's durability.
//
// The command service calls Notify, which only enqueues into a bounded drop-oldest
// queue. One dispatcher goroutine drains the queue in batches and delivers them to
// each sink behind its own circuit breaker. Delivery is fire-and-forget and
// at-most-once.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"audittrail/internal/audit/metrics"
	"audittrail/internal/audit/models"
	"audittrail/pkg/platform/circuit"
)

const (
	defaultBatchSize      = 100
	defaultFlushInterval  = time.Second
	defaultDeliverTimeout = 5 * time.Second
)

type guardedSink struct {
	Sink
	breaker *circuit.Breaker
}

// Notifier owns the queue and the dispatcher goroutine.
type Notifier struct {
	queue          *Queue
	sinks          []guardedSink
	logger         *slog.Logger
	metrics        *metrics.Metrics
	batchSize      int
	flushInterval  time.Duration
	deliverTimeout time.Duration

	breakerThreshold int
	breakerCooldown  time.Duration

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures the Notifier.
type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) { n.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// WithBuffer sets the queue capacity.
func WithBuffer(capacity int) Option {
	return func(n *Notifier) { n.queue = NewQueue(capacity) }
}

// WithBatching sets the batch size and how often the queue is drained without a wake-up.
func WithBatching(size int, interval time.Duration) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.batchSize = size
		}
		if interval > 0 {
			n.flushInterval = interval
		}
	}
}

// WithCircuitBreaker sets the failures that open a sink's breaker and its cooldown.
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(n *Notifier) {
		n.breakerThreshold = threshold
		n.breakerCooldown = cooldown
	}
}

// New creates a Notifier delivering to sinks. Call Start to run the dispatcher.
func New(sinks []Sink, opts ...Option) *Notifier {
	n := &Notifier{
		queue:          NewQueue(0),
		logger:         slog.Default(),
		batchSize:      defaultBatchSize,
		flushInterval:  defaultFlushInterval,
		deliverTimeout: defaultDeliverTimeout,
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	for _, s := range sinks {
		n.sinks = append(n.sinks, guardedSink{Sink: s, breaker: circuit.New(s.Name(),
			circuit.WithFailureThreshold(n.breakerThreshold),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(n.breakerCooldown),
		)})
	}
	return n
}

// Notify enqueues a notification. It never blocks.
func (n *Notifier) Notify(note models.Notification) {
	if n.queue.Enqueue(note) {
		n.metrics.IncNotificationDropped()
	}
	n.metrics.IncNotificationQueued()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Start launches the dispatcher goroutine. Calling it more than once has no effect.
func (n *Notifier) Start() {
	n.startOnce.Do(func() { go n.run() })
}

// Close stops the dispatcher after a final drain. It returns ctx.Err() if the drain
// does not finish in time. A Notifier that was never started is drained inline.
func (n *Notifier) Close(ctx context.Context) error {
	started := true
	n.startOnce.Do(func() { started = false })

	n.stopOnce.Do(func() { close(n.stop) })
	if !started {
		n.drain()
		return nil
	}

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued notifications.
func (n *Notifier) Pending() int { return n.queue.Len() }

func (n *Notifier) run() {
	defer close(n.done)

	ticker := time.NewTicker(n.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stop:
			n.drain()
			return
		case <-n.wake:
		case <-ticker.C:
		}
		n.drain()
	}
}

func (n *Notifier) drain() {
	for {
		batch := n.queue.DequeueBatch(n.batchSize)
		if len(batch) == 0 {
			return
		}
		n.deliver(batch)
	}
}

func (n *Notifier) deliver(batch []models.Notification) {
	for _, s := range n.sinks {
		if !s.breaker.Allow() {
			n.logger.Debug("notification sink circuit open, skipping batch",
				"sink", s.Name(),
				"batch_size", len(batch),
			)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), n.deliverTimeout)
		err := s.Deliver(ctx, batch)
		cancel()

		if err != nil {
			open, _ := s.breaker.RecordFailure()
			n.metrics.IncNotificationFailure(s.Name())
			n.metrics.SetSinkCircuitOpen(s.Name(), open)
			n.logger.Warn("notification delivery failed",
				"sink", s.Name(),
				"batch_size", len(batch),
				"circuit_open", open,
				"error", err,
			)
			continue
		}
		s.breaker.RecordSuccess()
		n.metrics.SetSinkCircuitOpen(s.Name(), false)
		n.metrics.AddNotificationsDelivered(s.Name(), len(batch))
	}
}
