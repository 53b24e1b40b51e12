package alert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"audittrail/internal/audit/models"
)

// Event is the generic webhook body.
type Event struct {
	EntryID    uuid.UUID        `json:"entry_id"`
	Sequence   int64            `json:"sequence"`
	EventType  models.EventType `json:"event_type"`
	Severity   string           `json:"severity"`
	Entity     string           `json:"entity"`
	UserID     string           `json:"user_id"`
	Source     models.Source    `json:"source"`
	Timestamp  string           `json:"timestamp"`
	DataHash   string           `json:"data_hash"`
	Security   bool             `json:"security_relevant"`
	Compliance bool             `json:"compliance_relevant"`
}

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, n models.Notification) ([]byte, error) {
	if format == FormatSlack {
		return formatSlack(n)
	}
	return json.Marshal(eventFor(n))
}

func eventFor(n models.Notification) Event {
	return Event{
		EntryID:    n.EntryID,
		Sequence:   n.Sequence,
		EventType:  n.EventType,
		Severity:   severity(n),
		Entity:     n.EntityType + ":" + n.EntityID,
		UserID:     n.UserID,
		Source:     n.Source,
		Timestamp:  n.Timestamp.UTC().Format(time.RFC3339Nano),
		DataHash:   n.DataHash,
		Security:   n.SecurityRelevant,
		Compliance: n.ComplianceRelevant,
	}
}

func formatSlack(n models.Notification) ([]byte, error) {
	payload := map[string]any{
		"text": fmt.Sprintf("audit %s: %s %s:%s", severity(n), n.EventType, n.EntityType, n.EntityID),
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("Audit alert: %s", n.EventType),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Entity:* %s:%s", n.EntityType, n.EntityID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*User:* %s", n.UserID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", severity(n))},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Sequence:* %d", n.Sequence)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Source:* %s", n.Source)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*At:* %s", n.Timestamp.UTC().Format(time.RFC3339))},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func severity(n models.Notification) string {
	switch {
	case n.Critical:
		return "critical"
	case n.SecurityRelevant:
		return "warning"
	default:
		return "info"
	}
}
