package models

import "github.com/google/uuid"

// SystemUserID identifies entries written without a human principal.
const SystemUserID = "__system__"

// Actor is the principal performing an audited action.
type Actor struct {
	UserID   string
	UserName string
	UserRole string
}

// SystemActor is the reserved actor for system-initiated entries.
func SystemActor() Actor {
	return Actor{UserID: SystemUserID, UserName: "system", UserRole: "SYSTEM"}
}

// IsSystem reports whether a is the reserved system actor.
func (a Actor) IsSystem() bool { return a.UserID == SystemUserID }

// IsZero reports whether no actor identity was supplied.
func (a Actor) IsZero() bool { return a == Actor{} }

// RequestMetadata carries optional request context recorded on an entry.
type RequestMetadata struct {
	IPAddress   string
	UserAgent   string
	SessionID   string
	RequestID   string
	APIEndpoint string
}

// IsZero reports whether no metadata field is set.
func (m RequestMetadata) IsZero() bool { return m == RequestMetadata{} }

// LogContext is what collaborators pass to the write surface.
// OldValue and NewValue are opaque snapshots; the audit core never parses them.
type LogContext struct {
	EventType    EventType
	EntityType   string
	EntityID     string
	Actor        Actor
	OldValue     []byte
	NewValue     []byte
	ChangeReason string
	UserComment  string
	Source       Source
	Request      RequestMetadata
}

// SyntheticEntityID returns a fresh identifier for events that have no natural entity.
func SyntheticEntityID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
