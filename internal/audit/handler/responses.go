package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"audittrail/internal/audit/models"
)

// EntryResponse is the wire form of an entry. Change payloads are passed through
// verbatim when they are JSON and as strings otherwise.
type EntryResponse struct {
	ID           uuid.UUID `json:"id"`
	Sequence     int64     `json:"sequence"`
	PreviousHash string    `json:"previous_hash"`
	DataHash     string    `json:"data_hash"`
	Timestamp    time.Time `json:"timestamp"`

	EventType  models.EventType `json:"event_type"`
	EntityType string           `json:"entity_type"`
	EntityID   string           `json:"entity_id"`

	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	UserRole string `json:"user_role"`

	OldValue     json.RawMessage `json:"old_value,omitempty"`
	NewValue     json.RawMessage `json:"new_value,omitempty"`
	ChangeReason string          `json:"change_reason,omitempty"`
	UserComment  string          `json:"user_comment,omitempty"`

	Source      models.Source `json:"source"`
	IPAddress   string        `json:"ip_address,omitempty"`
	UserAgent   string        `json:"user_agent,omitempty"`
	SessionID   string        `json:"session_id,omitempty"`
	RequestID   string        `json:"request_id,omitempty"`
	APIEndpoint string        `json:"api_endpoint,omitempty"`

	IsCritical           bool              `json:"is_critical"`
	IsSecurityRelevant   bool              `json:"is_security_relevant"`
	IsComplianceRelevant bool              `json:"is_compliance_relevant"`
	LegalBasis           models.LegalBasis `json:"legal_basis,omitempty"`
	RetentionUntil       time.Time         `json:"retention_until"`
	SchemaVersion        int               `json:"schema_version"`
}

// EntriesResponse is a page of entries.
type EntriesResponse struct {
	Entries []EntryResponse `json:"entries"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// LogResponse acknowledges a durable write.
type LogResponse struct {
	ID uuid.UUID `json:"id"`
}

func toEntryResponse(e *models.Entry) EntryResponse {
	return EntryResponse{
		ID:                   e.ID,
		Sequence:             e.Sequence,
		PreviousHash:         e.PreviousHash,
		DataHash:             e.DataHash,
		Timestamp:            e.Timestamp,
		EventType:            e.EventType,
		EntityType:           e.EntityType,
		EntityID:             e.EntityID,
		UserID:               e.UserID,
		UserName:             e.UserName,
		UserRole:             e.UserRole,
		OldValue:             payload(e.OldValue),
		NewValue:             payload(e.NewValue),
		ChangeReason:         e.ChangeReason,
		UserComment:          e.UserComment,
		Source:               e.Source,
		IPAddress:            e.IPAddress,
		UserAgent:            e.UserAgent,
		SessionID:            e.SessionID,
		RequestID:            e.RequestID,
		APIEndpoint:          e.APIEndpoint,
		IsCritical:           e.IsCritical,
		IsSecurityRelevant:   e.IsSecurityRelevant,
		IsComplianceRelevant: e.IsComplianceRelevant,
		LegalBasis:           e.LegalBasis,
		RetentionUntil:       e.RetentionUntil,
		SchemaVersion:        e.SchemaVersion,
	}
}

func payload(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}
