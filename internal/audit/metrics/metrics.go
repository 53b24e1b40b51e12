package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit trail. All methods are nil-safe so
// components can run without metrics in tests.
type Metrics struct {
	// Chain appends by outcome: "ok", "conflict", "failed"
	AppendAttempts *prometheus.CounterVec
	AppendLatency  prometheus.Histogram

	// Entries written by event type
	EntriesWritten *prometheus.CounterVec
	WriteFailures  prometheus.Counter

	// Async pool
	AsyncInFlight prometheus.Gauge
	AsyncRejected prometheus.Counter

	// Notification pipeline
	NotificationsQueued    prometheus.Counter
	NotificationsDropped   prometheus.Counter
	NotificationsDelivered *prometheus.CounterVec
	NotificationFailures   *prometheus.CounterVec
	SinkCircuitOpen        *prometheus.GaugeVec

	// Verification and retention
	VerifyLatency       prometheus.Histogram
	IntegrityViolations prometheus.Counter
	EntriesPurged       prometheus.Counter
}

// New registers the audit metrics with the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the audit metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AppendAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_chain_append_attempts_total",
			Help: "Chain append attempts by outcome",
		}, []string{"outcome"}),
		AppendLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_chain_append_duration_seconds",
			Help:    "Duration of a chain append including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		EntriesWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_entries_written_total",
			Help: "Audit entries durably written by event type",
		}, []string{"event_type"}),
		WriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_write_failures_total",
			Help: "Audit writes that failed",
		}),
		AsyncInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "audittrail_async_in_flight",
			Help: "Async audit writes currently running",
		}),
		AsyncRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_async_rejected_total",
			Help: "Async audit writes rejected because the pool was busy",
		}),
		NotificationsQueued: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_notifications_queued_total",
			Help: "Notifications handed to the notification queue",
		}),
		NotificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_notifications_dropped_total",
			Help: "Notifications dropped because the queue was full",
		}),
		NotificationsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_notifications_delivered_total",
			Help: "Notifications delivered by sink",
		}, []string{"sink"}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_notification_failures_total",
			Help: "Notification deliveries that failed by sink",
		}, []string{"sink"}),
		SinkCircuitOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "audittrail_notification_circuit_open",
			Help: "Sink circuit breaker state (0=closed, 1=open)",
		}, []string{"sink"}),
		VerifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_verify_duration_seconds",
			Help:    "Duration of chain verification runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		IntegrityViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_integrity_violations_total",
			Help: "Integrity violations found by verification",
		}),
		EntriesPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_entries_purged_total",
			Help: "Entries removed by the retention purge",
		}),
	}
}

func (m *Metrics) IncAppendAttempt(outcome string) {
	if m != nil {
		m.AppendAttempts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveAppendLatency(d time.Duration) {
	if m != nil {
		m.AppendLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncEntryWritten(eventType string) {
	if m != nil {
		m.EntriesWritten.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) IncWriteFailure() {
	if m != nil {
		m.WriteFailures.Inc()
	}
}

func (m *Metrics) AsyncStarted() {
	if m != nil {
		m.AsyncInFlight.Inc()
	}
}

func (m *Metrics) AsyncFinished() {
	if m != nil {
		m.AsyncInFlight.Dec()
	}
}

func (m *Metrics) IncAsyncRejected() {
	if m != nil {
		m.AsyncRejected.Inc()
	}
}

func (m *Metrics) IncNotificationQueued() {
	if m != nil {
		m.NotificationsQueued.Inc()
	}
}

func (m *Metrics) IncNotificationDropped() {
	if m != nil {
		m.NotificationsDropped.Inc()
	}
}

func (m *Metrics) AddNotificationsDelivered(sink string, n int) {
	if m != nil {
		m.NotificationsDelivered.WithLabelValues(sink).Add(float64(n))
	}
}

func (m *Metrics) IncNotificationFailure(sink string) {
	if m != nil {
		m.NotificationFailures.WithLabelValues(sink).Inc()
	}
}

// SetSinkCircuitOpen records the breaker state of a sink.
func (m *Metrics) SetSinkCircuitOpen(sink string, open bool) {
	if m == nil {
		return
	}
	if open {
		m.SinkCircuitOpen.WithLabelValues(sink).Set(1)
	} else {
		m.SinkCircuitOpen.WithLabelValues(sink).Set(0)
	}
}

func (m *Metrics) ObserveVerifyLatency(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) AddIntegrityViolations(n int) {
	if m != nil {
		m.IntegrityViolations.Add(float64(n))
	}
}

func (m *Metrics) AddEntriesPurged(n int64) {
	if m != nil {
		m.EntriesPurged.Add(float64(n))
	}
}
