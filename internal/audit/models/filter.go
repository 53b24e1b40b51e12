package models

import "time"

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Filter selects entries for the read side. Zero fields do not constrain.
// From is inclusive, To is exclusive.
type Filter struct {
	EntityType string
	EntityID   string
	UserID     string
	EventTypes []EventType
	From       time.Time
	To         time.Time

	Critical   *bool
	Security   *bool
	Compliance *bool

	// Notifiable selects critical entries plus the event types flagged for notification.
	Notifiable bool

	// RetentionBelow selects entries whose retention window (retentionUntil - timestamp)
	// is shorter than the given duration.
	RetentionBelow time.Duration

	Limit  int
	Offset int
}

// Paged returns a copy with Limit clamped to [1, MaxPageLimit] and a non-negative Offset.
func (f Filter) Paged() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageLimit
	case f.Limit > MaxPageLimit:
		f.Limit = MaxPageLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Unpaged returns a copy without limit or offset, for aggregates.
func (f Filter) Unpaged() Filter {
	f.Limit = 0
	f.Offset = 0
	return f
}

// Bool is a helper for the tri-state flag filters.
func Bool(v bool) *bool { return &v }

// Field names a column the read side can aggregate over.
type Field string

const (
	FieldUserID     Field = "user_id"
	FieldEntity     Field = "entity"
	FieldEventType  Field = "event_type"
	FieldLegalBasis Field = "legal_basis"
	FieldSource     Field = "source"
	FieldUserAgent  Field = "user_agent"
)

// Page selects a slice of a result set.
type Page struct {
	Limit  int
	Offset int
}

// WithPage returns a copy of f restricted to p, clamped by Paged.
func (f Filter) WithPage(p Page) Filter {
	f.Limit = p.Limit
	f.Offset = p.Offset
	return f.Paged()
}

// Clamp applies the same bounds as Filter.Paged.
func (p Page) Clamp() Page {
	f := Filter{}.WithPage(p)
	return Page{Limit: f.Limit, Offset: f.Offset}
}
