// Package handler exposes the audit trail over HTTP: the write surface for
// collaborators in other processes and the read surface for auditors.
//
// AUDITOR and ADMIN principals see entries in full. Every other role receives
// redacted entries and cannot reach the aggregate or integrity endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"audittrail/internal/audit/models"
	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/platform/httputil"
	"audittrail/pkg/requestcontext"
)

const (
	RoleAuditor = "AUDITOR"
	RoleAdmin   = "ADMIN"
	RoleService = "SERVICE"

	maxBodyBytes = 1 << 20
)

// CommandService is the write side used by POST /audit/entries.
type CommandService interface {
	LogSync(ctx context.Context, lc models.LogContext) (uuid.UUID, error)
}

// QueryService is the read side.
type QueryService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Entry, error)
	Find(ctx context.Context, f models.Filter) ([]*models.Entry, error)
	FindSecurityEvents(ctx context.Context, from, to time.Time, p models.Page) ([]*models.Entry, error)
	FindFailures(ctx context.Context, from, to time.Time, p models.Page) ([]*models.Entry, error)
	FindCriticalEvents(ctx context.Context, limit int) ([]*models.Entry, error)
	FindRequiringNotification(ctx context.Context, p models.Page) ([]*models.Entry, error)
	GetStatistics(ctx context.Context, from, to time.Time) (models.Statistics, error)
	GetDashboardMetrics(ctx context.Context) (models.DashboardMetrics, error)
	VerifyIntegrity(ctx context.Context, from, to time.Time) models.IntegrityReport
	GenerateComplianceReport(ctx context.Context, from, to time.Time) (models.ComplianceReport, error)
}

// CoverageRecorder receives operation counts reported by collaborators.
type CoverageRecorder interface {
	Record(ctx context.Context, operation string, audited bool) error
}

// Handler wires audit endpoints to the command and query services.
type Handler struct {
	commands CommandService
	queries  QueryService
	coverage CoverageRecorder
	logger   *slog.Logger
}

// New constructs a handler. coverage may be nil, which disables POST /audit/coverage.
func New(commands CommandService, queries QueryService, coverage CoverageRecorder, logger *slog.Logger) *Handler {
	return &Handler{
		commands: commands,
		queries:  queries,
		coverage: coverage,
		logger:   logger,
	}
}

// Register mounts the audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Post("/entries", h.handleLog)
		r.Get("/entries", h.handleFind)
		r.Get("/entries/security", h.handleSecurity)
		r.Get("/entries/failures", h.handleFailures)
		r.Get("/entries/critical", h.handleCritical)
		r.Get("/entries/notifications", h.handleNotifications)
		r.Get("/entries/{id}", h.handleGet)

		r.Group(func(r chi.Router) {
			r.Use(requirePrivileged)
			r.Get("/statistics", h.handleStatistics)
			r.Get("/dashboard", h.handleDashboard)
			r.Get("/integrity", h.handleIntegrity)
			r.Get("/compliance-report", h.handleComplianceReport)
		})

		r.Post("/coverage", h.handleCoverage)
	})
}

func (h *Handler) handleLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := requestcontext.Actor(ctx)
	if principal.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var req LogRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	lc, err := req.toLogContext(isService(principal.Role))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	id, err := h.commands.LogSync(ctx, lc)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit write failed",
			"request_id", requestcontext.RequestID(ctx),
			"event_type", lc.EventType,
			"error", err,
		)
		httputil.WriteError(w, writeError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, LogResponse{ID: id})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "id must be a UUID"))
		return
	}
	e, err := h.queries.Get(r.Context(), id)
	if err != nil {
		h.readFailed(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, present(r.Context(), e))
}

func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.queries.Find(r.Context(), f)
	h.writeEntries(w, r, entries, models.Page{Limit: f.Limit, Offset: f.Offset}, err)
}

func (h *Handler) handleSecurity(w http.ResponseWriter, r *http.Request) {
	h.rangeQuery(w, r, h.queries.FindSecurityEvents)
}

func (h *Handler) handleFailures(w http.ResponseWriter, r *http.Request) {
	h.rangeQuery(w, r, h.queries.FindFailures)
}

func (h *Handler) handleCritical(w http.ResponseWriter, r *http.Request) {
	limit, err := parseInt(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.queries.FindCriticalEvents(r.Context(), limit)
	h.writeEntries(w, r, entries, models.Page{Limit: limit}.Clamp(), err)
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.queries.FindRequiringNotification(r.Context(), page)
	h.writeEntries(w, r, entries, page.Clamp(), err)
}

type rangeFinder func(ctx context.Context, from, to time.Time, p models.Page) ([]*models.Entry, error)

func (h *Handler) rangeQuery(w http.ResponseWriter, r *http.Request, find rangeFinder) {
	q := r.URL.Query()
	from, to, err := parseRange(q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := parsePage(q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := find(r.Context(), from, to, page)
	h.writeEntries(w, r, entries, page.Clamp(), err)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	stats, err := h.queries.GetStatistics(r.Context(), from, to)
	if err != nil {
		h.readFailed(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	m, err := h.queries.GetDashboardMetrics(r.Context())
	if err != nil {
		h.readFailed(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// handleIntegrity always answers 200 with the report; a chain that fails
// verification is a finding, not a request error.
func (h *Handler) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report := h.queries.VerifyIntegrity(r.Context(), from, to)
	if !report.Valid {
		h.logger.WarnContext(r.Context(), "integrity check reported violations",
			"request_id", requestcontext.RequestID(r.Context()),
			"violations", len(report.Violations),
			"error", report.Error,
		)
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.queries.GenerateComplianceReport(r.Context(), from, to)
	if err != nil {
		h.readFailed(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleCoverage(w http.ResponseWriter, r *http.Request) {
	if h.coverage == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "coverage tracking is not enabled"))
		return
	}
	if !isService(requestcontext.Actor(r.Context()).Role) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "service role required"))
		return
	}

	var req CoverageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	if err := h.coverage.Record(r.Context(), req.Operation, req.Audited); err != nil {
		h.readFailed(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeEntries(w http.ResponseWriter, r *http.Request, entries []*models.Entry, page models.Page, err error) {
	if err != nil {
		h.readFailed(w, r, err)
		return
	}
	resp := EntriesResponse{
		Entries: make([]EntryResponse, 0, len(entries)),
		Limit:   page.Limit,
		Offset:  page.Offset,
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, present(r.Context(), e))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) readFailed(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "audit read failed",
		"request_id", requestcontext.RequestID(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
	httputil.WriteError(w, err)
}

// present converts an entry for the caller, redacting it for non-privileged roles.
func present(ctx context.Context, e *models.Entry) EntryResponse {
	if !isPrivileged(requestcontext.Actor(ctx).Role) {
		e = e.Redacted()
	}
	return toEntryResponse(e)
}

// writeError maps write-side failures onto domain codes.
func writeError(err error) error {
	var (
		invalid *models.InvalidEntryError
		policy  *models.PolicyError
		write   *models.AuditWriteError
	)
	switch {
	case errors.As(err, &invalid):
		return dErrors.Wrap(err, dErrors.CodeValidation, invalid.Error())
	case errors.As(err, &policy):
		return dErrors.Wrap(err, dErrors.CodeValidation, policy.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "audit write timed out")
	case errors.As(err, &write):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "audit write failed after "+strconv.Itoa(attempts(write))+" attempt(s)")
	default:
		return err
	}
}

func attempts(err error) int {
	var appendErr *models.ChainAppendError
	if errors.As(err, &appendErr) {
		return appendErr.Attempts
	}
	return 1
}

func requirePrivileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isPrivileged(requestcontext.Actor(r.Context()).Role) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "auditor role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPrivileged(role string) bool {
	return role == RoleAuditor || role == RoleAdmin
}

func isService(role string) bool {
	return role == RoleService || role == RoleAdmin
}
