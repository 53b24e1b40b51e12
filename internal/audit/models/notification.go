package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification announces a committed entry to listeners. It carries identifying
// fields only, never payloads or request metadata.
type Notification struct {
	EntryID            uuid.UUID `json:"entry_id"`
	Sequence           int64     `json:"sequence"`
	EventType          EventType `json:"event_type"`
	EntityType         string    `json:"entity_type"`
	EntityID           string    `json:"entity_id"`
	UserID             string    `json:"user_id"`
	Source             Source    `json:"source"`
	Timestamp          time.Time `json:"timestamp"`
	DataHash           string    `json:"data_hash"`
	Critical           bool      `json:"critical"`
	SecurityRelevant   bool      `json:"security_relevant"`
	ComplianceRelevant bool      `json:"compliance_relevant"`
	RequiresAlert      bool      `json:"requires_alert"`
}

// NotificationFor builds the announcement for a committed entry.
func NotificationFor(e *Entry) Notification {
	return Notification{
		EntryID:            e.ID,
		Sequence:           e.Sequence,
		EventType:          e.EventType,
		EntityType:         e.EntityType,
		EntityID:           e.EntityID,
		UserID:             e.UserID,
		Source:             e.Source,
		Timestamp:          e.Timestamp,
		DataHash:           e.DataHash,
		Critical:           e.IsCritical,
		SecurityRelevant:   e.IsSecurityRelevant,
		ComplianceRelevant: e.IsComplianceRelevant,
		RequiresAlert:      e.RequiresNotification(),
	}
}
