// Package chain links audit entries into a tamper-evident hash chain and verifies it.
//
// Each entry's DataHash is SHA-256 over a canonical JSON encoding of all of its
// immutable fields, including its sequence and PreviousHash. The first entry links
// to GenesisHash.
package chain

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"audittrail/internal/audit/models"
)

// GenesisHash is the PreviousHash of the first entry ever written.
var GenesisHash = strings.Repeat("0", 64)

// canonicalEntry fixes field order and formats. Changing it invalidates every
// stored hash, so new fields need a new schema version.
type canonicalEntry struct {
	ID                   string `json:"id"`
	Sequence             int64  `json:"sequence"`
	PreviousHash         string `json:"previous_hash"`
	Timestamp            string `json:"timestamp"`
	EventType            string `json:"event_type"`
	EntityType           string `json:"entity_type"`
	EntityID             string `json:"entity_id"`
	UserID               string `json:"user_id"`
	UserName             string `json:"user_name"`
	UserRole             string `json:"user_role"`
	OldValue             string `json:"old_value"`
	NewValue             string `json:"new_value"`
	ChangeReason         string `json:"change_reason"`
	UserComment          string `json:"user_comment"`
	Source               string `json:"source"`
	IPAddress            string `json:"ip_address"`
	UserAgent            string `json:"user_agent"`
	SessionID            string `json:"session_id"`
	RequestID            string `json:"request_id"`
	APIEndpoint          string `json:"api_endpoint"`
	IsCritical           bool   `json:"is_critical"`
	IsSecurityRelevant   bool   `json:"is_security_relevant"`
	IsComplianceRelevant bool   `json:"is_compliance_relevant"`
	LegalBasis           string `json:"legal_basis"`
	RetentionUntil       string `json:"retention_until"`
	SchemaVersion        int    `json:"schema_version"`
}

// ComputeDataHash returns the hex SHA-256 of the entry's canonical encoding.
// DataHash itself is excluded. Pure, no I/O.
func ComputeDataHash(e *models.Entry) string {
	c := canonicalEntry{
		ID:                   e.ID.String(),
		Sequence:             e.Sequence,
		PreviousHash:         e.PreviousHash,
		Timestamp:            canonicalTime(e.Timestamp),
		EventType:            string(e.EventType),
		EntityType:           e.EntityType,
		EntityID:             e.EntityID,
		UserID:               e.UserID,
		UserName:             e.UserName,
		UserRole:             e.UserRole,
		OldValue:             base64.StdEncoding.EncodeToString(e.OldValue),
		NewValue:             base64.StdEncoding.EncodeToString(e.NewValue),
		ChangeReason:         e.ChangeReason,
		UserComment:          e.UserComment,
		Source:               string(e.Source),
		IPAddress:            e.IPAddress,
		UserAgent:            e.UserAgent,
		SessionID:            e.SessionID,
		RequestID:            e.RequestID,
		APIEndpoint:          e.APIEndpoint,
		IsCritical:           e.IsCritical,
		IsSecurityRelevant:   e.IsSecurityRelevant,
		IsComplianceRelevant: e.IsComplianceRelevant,
		LegalBasis:           string(e.LegalBasis),
		RetentionUntil:       canonicalTime(e.RetentionUntil),
		SchemaVersion:        e.SchemaVersion,
	}
	// Marshal of a struct with only string, int and bool fields cannot fail.
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalTime(t time.Time) string {
	return models.NormalizeTime(t).Format(time.RFC3339Nano)
}

// Link assigns sequence, PreviousHash and DataHash to a copy of e positioned after tail.
func Link(e *models.Entry, tail models.Tail) *models.Entry {
	linked := e.Clone()
	linked.Sequence = tail.Sequence + 1
	linked.PreviousHash = tail.Hash
	if tail.IsEmpty() {
		linked.PreviousHash = GenesisHash
	}
	linked.DataHash = ComputeDataHash(linked)
	return linked
}
