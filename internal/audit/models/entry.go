package models

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is written on every new entry.
const SchemaVersion = 1

// Entry is one immutable record of the audit chain.
//
// Sequence, PreviousHash and DataHash are zero until the hash chain engine links
// the entry; after persistence no field changes.
type Entry struct {
	ID           uuid.UUID
	Sequence     int64
	PreviousHash string
	DataHash     string
	Timestamp    time.Time

	EventType  EventType
	EntityType string
	EntityID   string

	UserID   string
	UserName string
	UserRole string

	OldValue     []byte
	NewValue     []byte
	ChangeReason string
	UserComment  string

	Source      Source
	IPAddress   string
	UserAgent   string
	SessionID   string
	RequestID   string
	APIEndpoint string

	IsCritical           bool
	IsSecurityRelevant   bool
	IsComplianceRelevant bool
	LegalBasis           LegalBasis
	RetentionUntil       time.Time
	SchemaVersion        int
}

// NewEntry builds an unlinked entry from a log context. Required fields and the
// source are checked first, then the event type is classified. Retention and legal basis are left for
// the policy to set.
func NewEntry(lc LogContext, now time.Time) (*Entry, error) {
	var missing []string
	if lc.EventType == "" {
		missing = append(missing, "eventType")
	}
	if lc.EntityType == "" {
		missing = append(missing, "entityType")
	}
	if lc.EntityID == "" {
		missing = append(missing, "entityId")
	}
	if lc.Actor.UserID == "" {
		missing = append(missing, "userId")
	}
	if lc.Actor.UserName == "" {
		missing = append(missing, "userName")
	}
	if lc.Actor.UserRole == "" {
		missing = append(missing, "userRole")
	}
	var invalid []string
	if lc.Source != "" && !lc.Source.IsValid() {
		invalid = append(invalid, "source")
	}
	if len(missing) > 0 || len(invalid) > 0 {
		return nil, &InvalidEntryError{Missing: missing, Invalid: invalid}
	}

	class, err := lc.EventType.Classification()
	if err != nil {
		return nil, err
	}

	source := lc.Source
	if source == "" {
		source = SourceAPI
	}

	return &Entry{
		ID:                   uuid.New(),
		Timestamp:            NormalizeTime(now),
		EventType:            lc.EventType,
		EntityType:           lc.EntityType,
		EntityID:             lc.EntityID,
		UserID:               lc.Actor.UserID,
		UserName:             lc.Actor.UserName,
		UserRole:             lc.Actor.UserRole,
		OldValue:             cloneBytes(lc.OldValue),
		NewValue:             cloneBytes(lc.NewValue),
		ChangeReason:         lc.ChangeReason,
		UserComment:          lc.UserComment,
		Source:               source,
		IPAddress:            lc.Request.IPAddress,
		UserAgent:            lc.Request.UserAgent,
		SessionID:            lc.Request.SessionID,
		RequestID:            lc.Request.RequestID,
		APIEndpoint:          lc.Request.APIEndpoint,
		IsCritical:           class.Critical,
		IsSecurityRelevant:   class.SecurityRelevant,
		IsComplianceRelevant: class.ComplianceRelevant,
		SchemaVersion:        SchemaVersion,
	}, nil
}

// NormalizeTime converts t to UTC at microsecond precision, the resolution
// every store keeps, so hashes survive a round trip.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Actor returns the entry's principal.
func (e *Entry) Actor() Actor {
	return Actor{UserID: e.UserID, UserName: e.UserName, UserRole: e.UserRole}
}

// RequiresNotification reports whether the entry should be announced to listeners.
func (e *Entry) RequiresNotification() bool {
	return e.IsCritical || e.EventType.RequiresNotification()
}

// IsFailure reports whether the entry records a failed operation.
func (e *Entry) IsFailure() bool {
	return e.EventType.IsFailure()
}

// Expired reports whether the entry may be purged at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.RetentionUntil.After(now)
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	c := *e
	c.OldValue = cloneBytes(e.OldValue)
	c.NewValue = cloneBytes(e.NewValue)
	return &c
}

// Redacted returns a copy for non-privileged readers with request context and
// change payloads removed. The receiver is not modified.
func (e *Entry) Redacted() *Entry {
	c := *e
	c.IPAddress = ""
	c.UserAgent = ""
	c.SessionID = ""
	c.OldValue = nil
	c.NewValue = nil
	return &c
}

// Link returns the chain-relevant view of the entry.
func (e *Entry) Link() ChainLink {
	return ChainLink{
		ID:           e.ID,
		Sequence:     e.Sequence,
		PreviousHash: e.PreviousHash,
		DataHash:     e.DataHash,
		Entry:        e,
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
