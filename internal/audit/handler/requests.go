package handler

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"audittrail/internal/audit/models"
	dErrors "audittrail/pkg/domain-errors"
	strutil "audittrail/pkg/platform/strings"
)

// LogRequest is the body of POST /audit/entries.
type LogRequest struct {
	EventType    string          `json:"event_type"`
	EntityType   string          `json:"entity_type"`
	EntityID     string          `json:"entity_id"`
	Actor        *ActorRequest   `json:"actor,omitempty"`
	OldValue     json.RawMessage `json:"old_value,omitempty"`
	NewValue     json.RawMessage `json:"new_value,omitempty"`
	ChangeReason string          `json:"change_reason,omitempty"`
	UserComment  string          `json:"user_comment,omitempty"`
	Source       string          `json:"source,omitempty"`
}

// ActorRequest names the user a service logs on behalf of.
type ActorRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	UserRole string `json:"user_role"`
}

// CoverageRequest is the body of POST /audit/coverage.
type CoverageRequest struct {
	Operation string `json:"operation"`
	Audited   bool   `json:"audited"`
}

// toLogContext validates the request shape. Required-field checks are left to
// the command service so the error lists every missing field at once.
func (r LogRequest) toLogContext(mayActForOthers bool) (models.LogContext, error) {
	eventType, err := models.ParseEventType(strings.TrimSpace(r.EventType))
	if err != nil && r.EventType != "" {
		return models.LogContext{}, dErrors.Wrap(err, dErrors.CodeValidation, "unknown event_type")
	}

	lc := models.LogContext{
		EventType:    eventType,
		EntityType:   strings.TrimSpace(r.EntityType),
		EntityID:     strings.TrimSpace(r.EntityID),
		OldValue:     []byte(r.OldValue),
		NewValue:     []byte(r.NewValue),
		ChangeReason: r.ChangeReason,
		UserComment:  r.UserComment,
	}
	if r.Source != "" {
		src := models.Source(strings.ToUpper(r.Source))
		if !src.IsValid() {
			return models.LogContext{}, dErrors.New(dErrors.CodeValidation, "unknown source")
		}
		lc.Source = src
	}
	if r.Actor != nil {
		if !mayActForOthers {
			return models.LogContext{}, dErrors.New(dErrors.CodeForbidden, "only service principals may log on behalf of another actor")
		}
		lc.Actor = models.Actor{UserID: r.Actor.UserID, UserName: r.Actor.UserName, UserRole: r.Actor.UserRole}
	}
	return lc, nil
}

// parseFilter reads the list filters from the query string.
func parseFilter(q url.Values) (models.Filter, error) {
	from, to, err := parseRange(q)
	if err != nil {
		return models.Filter{}, err
	}
	page, err := parsePage(q)
	if err != nil {
		return models.Filter{}, err
	}

	f := models.Filter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
		From:       from,
		To:         to,
	}
	var names []string
	for _, raw := range q["event_type"] {
		names = append(names, strings.Split(raw, ",")...)
	}
	for _, name := range strutil.DedupeAndTrimUpper(names) {
		t, err := models.ParseEventType(name)
		if err != nil {
			return models.Filter{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "unknown event_type")
		}
		f.EventTypes = append(f.EventTypes, t)
	}
	return f.WithPage(page), nil
}

// parseRange reads from/to as RFC 3339 timestamps. Missing bounds stay zero.
func parseRange(q url.Values) (from, to time.Time, err error) {
	if from, err = parseTime(q.Get("from"), "from"); err != nil {
		return
	}
	if to, err = parseTime(q.Get("to"), "to"); err != nil {
		return
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		err = dErrors.New(dErrors.CodeBadRequest, "from must be before to")
	}
	return
}

func parseTime(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeBadRequest, name+" must be an RFC 3339 timestamp")
	}
	return t, nil
}

func parsePage(q url.Values) (models.Page, error) {
	var p models.Page
	var err error
	if p.Limit, err = parseInt(q.Get("limit"), "limit"); err != nil {
		return p, err
	}
	if p.Offset, err = parseInt(q.Get("offset"), "offset"); err != nil {
		return p, err
	}
	return p, nil
}

func parseInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}
