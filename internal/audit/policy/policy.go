// Package policy holds the pure classification, retention and legal-basis rules.
//
// Nothing here performs I/O. The command service consults it at write time and the
// query service at report and purge time.
package policy

import (
	"time"

	"audittrail/internal/audit/models"
)

// year is the unit for retention minimums. Calendar arithmetic (AddDate) is used for
// RetentionUntil, which is never shorter than this many days.
const year = 365 * 24 * time.Hour

const (
	ShortRetention      = 1 * year
	ComplianceRetention = 6 * year
	LongRetention       = 10 * year
)

var tierYears = map[models.RetentionTier]int{
	models.TierShort:      1,
	models.TierCompliance: 6,
	models.TierLong:       10,
}

// Classify returns the fixed classification of an event type.
func Classify(t models.EventType) (models.Classification, error) {
	return t.Classification()
}

// RetentionFor returns the minimum retention of an event type. Long-tier types
// (deletion, consent, data-subject requests) keep ten years, other compliance-relevant
// types six, everything else one.
func RetentionFor(t models.EventType, complianceRelevant bool) time.Duration {
	return time.Duration(retentionYears(t, complianceRelevant)) * year
}

// RetentionUntil returns the earliest purge instant for an entry created at created.
func RetentionUntil(t models.EventType, complianceRelevant bool, created time.Time) time.Time {
	return models.NormalizeTime(created.AddDate(retentionYears(t, complianceRelevant), 0, 0))
}

func retentionYears(t models.EventType, complianceRelevant bool) int {
	tier := t.RetentionTier()
	if tier == models.TierShort && complianceRelevant {
		tier = models.TierCompliance
	}
	return tierYears[tier]
}

// MinimumRetention is the retention an entry of this type must have at least.
func MinimumRetention(t models.EventType) (time.Duration, error) {
	class, err := t.Classification()
	if err != nil {
		return 0, err
	}
	return RetentionFor(t, class.ComplianceRelevant), nil
}

// LegalBasisFor returns the legal basis of a compliance-relevant event type, or
// LegalBasisNone.
func LegalBasisFor(t models.EventType) models.LegalBasis {
	class, err := t.Classification()
	if err != nil || !class.ComplianceRelevant {
		return models.LegalBasisNone
	}
	return t.LegalBasis()
}

// RequiresAlert reports whether entries of this type must be announced immediately.
func RequiresAlert(t models.EventType) bool {
	class, err := t.Classification()
	if err != nil {
		return false
	}
	return class.Critical || t.RequiresNotification()
}

// Apply sets retention and legal basis on an unlinked entry.
func Apply(e *models.Entry) {
	e.RetentionUntil = RetentionUntil(e.EventType, e.IsComplianceRelevant, e.Timestamp)
	e.LegalBasis = models.LegalBasisNone
	if e.IsComplianceRelevant {
		e.LegalBasis = LegalBasisFor(e.EventType)
	}
}

// DataSubjectRequestTypes are the GDPR data-subject rights events.
func DataSubjectRequestTypes() []models.EventType {
	return []models.EventType{
		models.EventDataExport,
		models.EventDataDeletion,
		models.EventDataAccessRequest,
		models.EventDataRectification,
	}
}

// ConsentTypes are the consent lifecycle events.
func ConsentTypes() []models.EventType {
	return []models.EventType{models.EventConsentGiven, models.EventConsentWithdrawn}
}

// DeletionTypes are events recording removal of personal data.
func DeletionTypes() []models.EventType {
	return []models.EventType{
		models.EventCustomerDeleted,
		models.EventLeadDeleted,
		models.EventDataDeletion,
		models.EventDataPurge,
	}
}

// Tiers lists the distinct retention minimums, shortest first.
func Tiers() []time.Duration {
	return []time.Duration{ShortRetention, ComplianceRetention, LongRetention}
}
