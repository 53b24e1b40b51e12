// Package query is the read side of the audit trail. Apart from the retention
// operations reserved for the purge job, nothing here writes.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"golang.org/x/sync/errgroup"

	"audittrail/internal/audit/metrics"
	"audittrail/internal/audit/models"
	"audittrail/internal/audit/policy"
)

// Store reads persisted entries.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Entry, error)
	Find(ctx context.Context, f models.Filter) ([]*models.Entry, error)
	Count(ctx context.Context, f models.Filter) (int64, error)
	CountDistinct(ctx context.Context, f models.Filter, field models.Field) (int64, error)
	GroupCount(ctx context.Context, f models.Filter, field models.Field) (map[string]int64, error)
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff, purgedAt time.Time) (int64, error)
}

// Verifier checks chain integrity over a time range.
type Verifier interface {
	Verify(ctx context.Context, from, to time.Time) (models.IntegrityReport, error)
}

// CoverageSource reports the fraction of audited operations, measured outside the
// audit core.
type CoverageSource interface {
	Coverage(ctx context.Context) (float64, error)
}

type Service struct {
	store    Store
	verifier Verifier
	coverage CoverageSource
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCoverage sets the source of the dashboard coverage ratio.
func WithCoverage(c CoverageSource) Option {
	return func(s *Service) { s.coverage = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, verifier Verifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		verifier: verifier,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns one entry by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Entry, error) {
	return s.store.Get(ctx, id)
}

// Find returns entries matching f, newest first, paged.
func (s *Service) Find(ctx context.Context, f models.Filter) ([]*models.Entry, error) {
	return s.store.Find(ctx, f.Paged())
}

func (s *Service) FindByEntity(ctx context.Context, entityType, entityID string, p models.Page) ([]*models.Entry, error) {
	return s.store.Find(ctx, models.Filter{EntityType: entityType, EntityID: entityID}.WithPage(p))
}

func (s *Service) FindByUser(ctx context.Context, userID string, p models.Page) ([]*models.Entry, error) {
	return s.store.Find(ctx, models.Filter{UserID: userID}.WithPage(p))
}

func (s *Service) FindByEventType(ctx context.Context, t models.EventType, p models.Page) ([]*models.Entry, error) {
	return s.store.Find(ctx, models.Filter{EventTypes: []models.EventType{t}}.WithPage(p))
}

// FindByTimeRange returns entries with timestamps in [from, to).
func (s *Service) FindByTimeRange(ctx context.Context, from, to time.Time, p models.Page) ([]*models.Entry, error) {
	return s.store.Find(ctx, models.Filter{From: from, To: to}.WithPage(p))
}

func (s *Service) FindSecurityEvents(ctx context.Context, from, to time.Time, p models.Page) ([]*models.Entry, error) {
	return s.store.Find(ctx, models.Filter{From: from, To: to, Security: models.Bool(true)}.WithPage(p))
}

// FindFailures returns entries whose event type records a failed operation.
func (s *Service) FindFailures(ctx context.Context, from, to time.Time, p models.Page) ([]*models.Entry, error) {
	return s.store.Find(ctx, models.Filter{From: from, To: to, EventTypes: models.FailureTypes()}.WithPage(p))
}

// FindCriticalEvents returns the newest critical entries.
func (s *Service) FindCriticalEvents(ctx context.Context, limit int) ([]*models.Entry, error) {
	return s.store.Find(ctx, models.Filter{Critical: models.Bool(true)}.WithPage(models.Page{Limit: limit}))
}

// FindRequiringNotification returns critical entries and those of event types
// flagged for immediate notification.
func (s *Service) FindRequiringNotification(ctx context.Context, p models.Page) ([]*models.Entry, error) {
	return s.store.Find(ctx, models.Filter{Notifiable: true}.WithPage(p))
}

// GetStatistics summarizes entries with timestamps in [from, to).
func (s *Service) GetStatistics(ctx context.Context, from, to time.Time) (models.Statistics, error) {
	stats := models.Statistics{From: from, To: to}
	window := models.Filter{From: from, To: to}

	var (
		byType   map[string]int64
		bySource map[string]int64
		byAgent  map[string]int64
	)

	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, f models.Filter) {
		g.Go(func() error {
			n, err := s.store.Count(gctx, f)
			*dst = n
			return err
		})
	}
	distinct := func(dst *int64, field models.Field) {
		g.Go(func() error {
			n, err := s.store.CountDistinct(gctx, window, field)
			*dst = n
			return err
		})
	}
	group := func(dst *map[string]int64, field models.Field) {
		g.Go(func() error {
			m, err := s.store.GroupCount(gctx, window, field)
			*dst = m
			return err
		})
	}

	count(&stats.TotalEntries, window)
	count(&stats.FailureCount, withTypes(window, models.FailureTypes()))
	count(&stats.CriticalCount, withFlag(window, func(f *models.Filter) { f.Critical = models.Bool(true) }))
	count(&stats.SecurityCount, withFlag(window, func(f *models.Filter) { f.Security = models.Bool(true) }))
	count(&stats.ComplianceCount, withFlag(window, func(f *models.Filter) { f.Compliance = models.Bool(true) }))
	distinct(&stats.UniqueUsers, models.FieldUserID)
	distinct(&stats.UniqueEntities, models.FieldEntity)
	group(&byType, models.FieldEventType)
	group(&bySource, models.FieldSource)
	group(&byAgent, models.FieldUserAgent)

	if err := g.Wait(); err != nil {
		return models.Statistics{}, fmt.Errorf("compute statistics: %w", err)
	}

	stats.ByEventType = make(map[models.EventType]int64, len(byType))
	for k, v := range byType {
		stats.ByEventType[models.EventType(k)] = v
	}
	stats.BySource = make(map[models.Source]int64, len(bySource))
	for k, v := range bySource {
		stats.BySource[models.Source(k)] = v
	}
	stats.ByClientFamily = clientFamilies(byAgent)
	return stats, nil
}

// GetDashboardMetrics computes today's overview. "Today" starts at midnight UTC.
func (s *Service) GetDashboardMetrics(ctx context.Context) (models.DashboardMetrics, error) {
	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today := models.Filter{From: startOfDay}

	m := models.DashboardMetrics{GeneratedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.Count(gctx, today)
		m.TodayTotal = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountDistinct(gctx, today, models.FieldUserID)
		m.ActiveUsersToday = n
		return err
	})
	g.Go(func() error {
		f := today
		f.Critical = models.Bool(true)
		n, err := s.store.Count(gctx, f)
		m.CriticalToday = n
		return err
	})
	g.Go(func() error {
		pct, err := s.retentionCompliance(gctx)
		m.RetentionCompliancePercent = pct
		return err
	})
	g.Go(func() error {
		report := s.VerifyIntegrity(gctx, startOfDay, time.Time{})
		m.IntegrityValid = report.Valid
		m.IntegrityViolations = len(report.Violations)
		return nil
	})
	g.Go(func() error {
		if s.coverage == nil {
			return nil
		}
		c, err := s.coverage.Coverage(gctx)
		if err != nil {
			// Coverage is informational; the dashboard still renders.
			s.logger.WarnContext(gctx, "coverage unavailable", "error", err)
			return nil
		}
		m.Coverage = c
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.DashboardMetrics{}, fmt.Errorf("compute dashboard: %w", err)
	}
	return m, nil
}

// retentionCompliance is the percentage of stored entries whose retention window
// meets the minimum for their event type.
func (s *Service) retentionCompliance(ctx context.Context) (float64, error) {
	total, err := s.store.Count(ctx, models.Filter{})
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 100, nil
	}

	byMinimum := make(map[time.Duration][]models.EventType)
	for _, t := range models.AllEventTypes {
		minimum, err := policy.MinimumRetention(t)
		if err != nil {
			return 0, err
		}
		byMinimum[minimum] = append(byMinimum[minimum], t)
	}

	var short int64
	for minimum, types := range byMinimum {
		n, err := s.store.Count(ctx, models.Filter{EventTypes: types, RetentionBelow: minimum})
		if err != nil {
			return 0, err
		}
		short += n
	}
	return 100 * float64(total-short) / float64(total), nil
}

// VerifyIntegrity verifies the chain over [from, to). Failures to run are reported
// in the result, not returned.
func (s *Service) VerifyIntegrity(ctx context.Context, from, to time.Time) models.IntegrityReport {
	report, err := s.verifier.Verify(ctx, from, to)
	if err != nil {
		s.logger.ErrorContext(ctx, "integrity verification could not run", "error", err)
		report.From, report.To = from, to
		report.Valid = false
		report.Error = err.Error()
		if report.VerifiedAt.IsZero() {
			report.VerifiedAt = s.now().UTC()
		}
	}
	return report
}

// GenerateComplianceReport aggregates compliance-relevant entries with timestamps in
// [from, to) and includes the chain's integrity verdict for the period.
func (s *Service) GenerateComplianceReport(ctx context.Context, from, to time.Time) (models.ComplianceReport, error) {
	window := models.Filter{From: from, To: to}
	compliant := window
	compliant.Compliance = models.Bool(true)

	report := models.ComplianceReport{From: from, To: to, GeneratedAt: s.now().UTC()}
	var byBasis map[string]int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.Count(gctx, compliant)
		report.ComplianceEntries = n
		return err
	})
	g.Go(func() error {
		m, err := s.store.GroupCount(gctx, compliant, models.FieldLegalBasis)
		byBasis = m
		return err
	})
	g.Go(func() error {
		n, err := s.store.Count(gctx, withTypes(window, policy.DataSubjectRequestTypes()))
		report.DataSubjectRequest = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.Count(gctx, withTypes(window, policy.ConsentTypes()))
		report.ConsentOperations = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.Count(gctx, withTypes(window, policy.DeletionTypes()))
		report.DeletionRequests = n
		return err
	})
	g.Go(func() error {
		report.Integrity = s.VerifyIntegrity(gctx, from, to)
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.ComplianceReport{}, fmt.Errorf("generate compliance report: %w", err)
	}

	report.ByLegalBasis = make(map[models.LegalBasis]int64, len(byBasis))
	for k, v := range byBasis {
		report.ByLegalBasis[models.LegalBasis(k)] = v
	}
	return report, nil
}

// CountOlderThan counts entries whose retention ended before cutoff. The cutoff is
// clamped to now, so unexpired entries are never counted.
func (s *Service) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.CountOlderThan(ctx, s.clamp(cutoff))
}

// DeleteOlderThan removes entries whose retention ended before cutoff (clamped to
// now). Reserved for the retention purge job, which records the purge in the chain.
func (s *Service) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	now := s.now()
	n, err := s.store.DeleteOlderThan(ctx, s.clamp(cutoff), now)
	if err != nil {
		return 0, fmt.Errorf("delete expired entries: %w", err)
	}
	s.metrics.AddEntriesPurged(n)
	return n, nil
}

func (s *Service) clamp(cutoff time.Time) time.Time {
	if now := s.now(); cutoff.IsZero() || cutoff.After(now) {
		return now
	}
	return cutoff
}

func withTypes(f models.Filter, types []models.EventType) models.Filter {
	f.EventTypes = types
	return f
}

func withFlag(f models.Filter, set func(*models.Filter)) models.Filter {
	set(&f)
	return f
}

func clientFamilies(byAgent map[string]int64) map[string]int64 {
	out := make(map[string]int64)
	for raw, n := range byAgent {
		out[clientFamily(raw)] += n
	}
	return out
}

func clientFamily(raw string) string {
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	name, _ := ua.Browser()
	if name == "" {
		return "other"
	}
	if ua.Mobile() {
		return name + " (mobile)"
	}
	return name
}
